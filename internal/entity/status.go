package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/constants"
)

// StatusView is what the status boundary reports. OutputRef is set only for
// DONE jobs and ErrorKind/ErrorDetail only for FAILED ones.
type StatusView struct {
	JobID       uuid.UUID           `json:"job_id"`
	State       constants.JobStatus `json:"state"`
	Filename    string              `json:"filename"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	ErrorDetail string              `json:"error_detail,omitempty"`
	OutputRef   string              `json:"output_ref,omitempty"`
	PageCount   int                 `json:"page_count,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// NewStatusView projects a job, enforcing terminal-field exclusivity.
func NewStatusView(j *Job) StatusView {
	v := StatusView{
		JobID:       j.ID,
		State:       j.Status,
		Filename:    j.Filename,
		SubmittedAt: j.SubmittedAt,
		CompletedAt: clonePtr(j.CompletedAt),
	}
	switch j.Status {
	case constants.JobStatusDone:
		if j.OutputKey != nil {
			v.OutputRef = *j.OutputKey
		}
		v.PageCount = j.PageCount
	case constants.JobStatusFailed:
		if j.ErrorKind != nil {
			v.ErrorKind = *j.ErrorKind
		}
		if j.ErrorDetail != nil {
			v.ErrorDetail = *j.ErrorDetail
		}
	}
	return v
}
