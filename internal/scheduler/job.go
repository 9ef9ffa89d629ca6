package scheduler

import (
	"context"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/failcache"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/internal/ratelimit"
	"github.com/wonny/folio/backend/pkg/database"
	"github.com/wonny/folio/backend/pkg/logger"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job and reports how many units it processed
	Run(ctx context.Context, jc JobContext) (Result, error)

	// Schedule returns the default cron expression (with seconds)
	// Examples: "0 0 17 * * *" (every day at 5 PM), "@every 30m"
	Schedule() string
}

// Reentrant is implemented by jobs whose firings may overlap
type Reentrant interface {
	Reentrant() bool
}

// Result is the unit count of one run
type Result struct {
	ItemsProcessed int `json:"items_processed"`
	ItemsFailed    int `json:"items_failed"`
}

// PriceRefresher is the price ingestion capability handed to jobs
type PriceRefresher interface {
	Refresh(ctx context.Context, ticker string, lookbackDays int) (prices.RefreshResult, error)
}

// JobContext carries the process-wide collaborators into every handler.
// RunID and Logger are set per run.
type JobContext struct {
	Prices   PriceRefresher
	Failures *failcache.Cache
	Limiter  *ratelimit.Limiter
	DB       database.Pool
	Logger   *logger.Logger
	RunID    string
	Manual   bool
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName        string        `json:"job_name"`
	RunID          string        `json:"run_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsFailed    int           `json:"items_failed"`
	Manual         bool          `json:"manual"`
	Error          string        `json:"error,omitempty"`
}

// resultFromRun mirrors a finalized run row
func resultFromRun(run contracts.JobRun) JobResult {
	r := JobResult{
		JobName:        run.JobName,
		RunID:          run.RunID,
		StartTime:      run.StartedAt,
		Duration:       time.Duration(run.DurationMs) * time.Millisecond,
		Success:        run.Status == contracts.JobSuccess,
		ItemsProcessed: run.ItemsProcessed,
		ItemsFailed:    run.ItemsFailed,
		Manual:         run.Manual,
		Error:          run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		r.EndTime = *run.CompletedAt
	}
	return r
}

// historyLimit is how many results each job keeps in memory
const historyLimit = 100

// JobHistory stores job execution history
type JobHistory struct {
	Results []JobResult
}

// AddResult adds a job result to history
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)

	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// GetLatestResults returns the latest N results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}

	if n <= 0 {
		return []JobResult{}
	}

	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetSuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}

	successCount := 0
	for _, result := range h.Results {
		if result.Success {
			successCount++
		}
	}

	return float64(successCount) / float64(len(h.Results))
}
