package constants

// JobStatus is the canonical lifecycle state for rows in the jobs table.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // submitted, not yet claimed
	JobStatusProcessing JobStatus = "PROCESSING" // claimed by exactly one worker
	JobStatusDone       JobStatus = "DONE"       // terminal, output stored
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)

// JobStatuses lists every state in lifecycle order.
var JobStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed}

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	for _, v := range JobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseJobStatus accepts the canonical spelling in any case.
func ParseJobStatus(s string) (JobStatus, bool) {
	st := JobStatus(upper(s))
	return st, st.Valid()
}
