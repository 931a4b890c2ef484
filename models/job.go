package models

// JobStatus is the lifecycle state of the current/last ingestion job.
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// Active reports whether a job currently owns the ingestion slot.
func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobProcessing
}

// JobState is the poller-visible snapshot of the ingestion job.
type JobState struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
	Percent int       `json:"percent"`
}
