package contracts

import "time"

// JobStatus is the lifecycle state of a JobRun
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// JobRun is the provenance row of one job invocation
type JobRun struct {
	ID             int64      `json:"id"`
	RunID          string     `json:"run_id"`
	JobName        string     `json:"job_name"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         JobStatus  `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
	DurationMs     int64      `json:"duration_ms"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Manual         bool       `json:"manual"`
}
