package entity

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/constants"
)

// ProcessingOptions is the per-job configuration threaded into normalization
// and recognition. Treat as immutable once a job is submitted.
type ProcessingOptions struct {
	DPI       int      `json:"dpi"`
	Languages []string `json:"languages"`
	GPU       bool     `json:"gpu"`
}

// WithDefaults fills zero fields from base.
func (o ProcessingOptions) WithDefaults(base ProcessingOptions) ProcessingOptions {
	if o.DPI <= 0 {
		o.DPI = base.DPI
	}
	langs := make([]string, 0, len(o.Languages))
	for _, l := range o.Languages {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" && !slices.Contains(langs, l) {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = slices.Clone(base.Languages)
	}
	o.Languages = langs
	return o
}

// Job is the registry record for one conversion request.
type Job struct {
	ID          uuid.UUID           `json:"id"`
	Status      constants.JobStatus `json:"status"`
	Filename    string              `json:"filename"`
	DocType     constants.DocType   `json:"doc_type"`
	ContentType string              `json:"content_type"`
	SizeBytes   int64               `json:"size_bytes"`
	ContentHash string              `json:"content_hash"`
	InputKey    string              `json:"input_key"`
	Options     ProcessingOptions   `json:"options"`

	OutputKey   *string `json:"output_key,omitempty"`
	PageCount   int     `json:"page_count"`
	ErrorKind   *string `json:"error_kind,omitempty"`
	ErrorDetail *string `json:"error_detail,omitempty"`

	ClaimedBy      *string    `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	Attempts       int        `json:"attempts"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Options.Languages = slices.Clone(j.Options.Languages)
	c.OutputKey = clonePtr(j.OutputKey)
	c.ErrorKind = clonePtr(j.ErrorKind)
	c.ErrorDetail = clonePtr(j.ErrorDetail)
	c.ClaimedBy = clonePtr(j.ClaimedBy)
	c.LeaseExpiresAt = clonePtr(j.LeaseExpiresAt)
	c.StartedAt = clonePtr(j.StartedAt)
	c.CompletedAt = clonePtr(j.CompletedAt)
	return &c
}

// Duration is completion minus start, zero until terminal.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// JobStats aggregates registry counts.
type JobStats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// SuccessRate is done over finished jobs as a percentage.
func (s JobStats) SuccessRate() float64 {
	finished := s.Done + s.Failed
	if finished == 0 {
		return 0
	}
	return float64(s.Done) * 100 / float64(finished)
}
