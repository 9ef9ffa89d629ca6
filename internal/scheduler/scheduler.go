package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

var (
	// ErrJobNotFound is returned for an unregistered job name
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned when a non-reentrant job is already in flight
	ErrJobRunning = errors.New("job already running")
	// ErrInvalidSchedule wraps a cron parse failure; it is fatal at startup
	ErrInvalidSchedule = errors.New("invalid cron expression")
	// ErrStopped is returned for runs requested once Stop has begun
	ErrStopped = errors.New("scheduler stopped")
)

// finalizeTimeout bounds the run-row update after a handler returns
const finalizeTimeout = 10 * time.Second

// RunStore persists JobRun provenance rows
type RunStore interface {
	StartRun(ctx context.Context, run contracts.JobRun) (int64, error)
	FinishRun(ctx context.Context, run contracts.JobRun) error
}

type entry struct {
	job       Job
	schedule  string
	cronID    cron.EntryID
	reentrant bool
	inFlight  atomic.Int32
}

// Option configures the scheduler
type Option func(*Scheduler)

// WithRunStore records every run in job_runs
func WithRunStore(store RunStore) Option {
	return func(s *Scheduler) { s.runs = store }
}

// WithMetrics records run counters and durations
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = rec }
}

// WithScheduleOverride resolves the effective cron expression per job,
// e.g. config.Config.Schedule for CRON_<JOB_NAME> variables
func WithScheduleOverride(fn func(jobName, def string) string) Option {
	return func(s *Scheduler) { s.override = fn }
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron     *cron.Cron
	logger   *logger.Logger
	jc       JobContext
	jobs     map[string]*entry
	history  map[string]*JobHistory
	mu       sync.RWMutex
	runs     RunStore
	metrics  *metrics.Recorder
	override func(jobName, def string) string

	// in-flight handlers, scheduled or manual.
	// stopping is set under runMu before wg.Wait so no Add races the wait.
	runMu    sync.Mutex
	stopping bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	now      func() time.Time
}

// New creates a new scheduler; jc is handed to every handler
func New(jc JobContext, log *logger.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  log.Component("scheduler"),
		jc:      jc,
		jobs:    make(map[string]*entry),
		history: make(map[string]*JobHistory),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.jc.Logger == nil {
		s.jc.Logger = log
	}
	return s
}

// AddJob registers a job under its effective schedule.
// An unparsable expression returns ErrInvalidSchedule.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()
	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	schedule := job.Schedule()
	if s.override != nil {
		schedule = s.override(jobName, schedule)
	}

	e := &entry{job: job, schedule: schedule}
	if r, ok := job.(Reentrant); ok {
		e.reentrant = r.Reentrant()
	}

	id, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.launch(e, false); err != nil && !errors.Is(err, ErrJobRunning) && !errors.Is(err, ErrStopped) {
			s.logger.WithError(err).WithField("job", jobName).Error("Scheduled run failed to start")
		}
	})
	if err != nil {
		return fmt.Errorf("job %s schedule %q: %w: %v", jobName, schedule, ErrInvalidSchedule, err)
	}
	e.cronID = id

	s.jobs[jobName] = e
	s.history[jobName] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": schedule,
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%s: %w", jobName, ErrJobNotFound)
	}

	s.cron.Remove(e.cronID)
	delete(s.jobs, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.jobs)).Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops firing new runs and waits for in-flight handlers.
// If ctx ends first, handlers are cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	s.runMu.Lock()
	s.stopping = true
	s.runMu.Unlock()
	s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warn("Scheduler stopped after cancelling in-flight jobs")
		return ctx.Err()
	}
}

// Trigger starts an immediate run in the background and returns its run id
func (s *Scheduler) Trigger(jobName string) (string, error) {
	e, err := s.entry(jobName)
	if err != nil {
		return "", err
	}
	return s.launch(e, true)
}

// RunNow executes a job synchronously on the tracking path
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (contracts.JobRun, error) {
	e, err := s.entry(jobName)
	if err != nil {
		return contracts.JobRun{}, err
	}
	if !s.track() {
		return contracts.JobRun{}, fmt.Errorf("%s: %w", jobName, ErrStopped)
	}
	defer s.wg.Done()
	if !s.acquire(e) {
		return contracts.JobRun{}, fmt.Errorf("%s: %w", jobName, ErrJobRunning)
	}
	defer e.inFlight.Add(-1)

	run := s.execute(ctx, e, uuid.New().String(), true)
	if run.Status == contracts.JobFailed {
		return run, errors.New(run.ErrorMessage)
	}
	return run, nil
}

func (s *Scheduler) entry(jobName string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[jobName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", jobName, ErrJobNotFound)
	}
	return e, nil
}

// acquire claims the job's run slot; reentrant jobs always succeed
func (s *Scheduler) acquire(e *entry) bool {
	if e.reentrant {
		e.inFlight.Add(1)
		return true
	}
	return e.inFlight.CompareAndSwap(0, 1)
}

// track registers one in-flight run unless Stop has begun
func (s *Scheduler) track() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// launch runs the job in its own goroutine unless a non-reentrant run is in flight
func (s *Scheduler) launch(e *entry, manual bool) (string, error) {
	if !s.track() {
		return "", fmt.Errorf("%s: %w", e.job.Name(), ErrStopped)
	}
	if !s.acquire(e) {
		s.wg.Done()
		s.logger.WithField("job", e.job.Name()).Warn("Job still running, skipping this firing")
		return "", fmt.Errorf("%s: %w", e.job.Name(), ErrJobRunning)
	}

	runID := uuid.New().String()
	go func() {
		defer s.wg.Done()
		defer e.inFlight.Add(-1)
		s.execute(s.ctx, e, runID, manual)
	}()
	return runID, nil
}

// execute is the shared tracking path: open the run row, call the handler,
// finalize the row whatever happened.
func (s *Scheduler) execute(ctx context.Context, e *entry, runID string, manual bool) contracts.JobRun {
	jobName := e.job.Name()
	log := s.logger.Run(jobName, runID)

	run := contracts.JobRun{
		RunID:     runID,
		JobName:   jobName,
		StartedAt: s.now(),
		Status:    contracts.JobRunning,
		Manual:    manual,
	}
	if s.runs != nil {
		id, err := s.runs.StartRun(ctx, run)
		if err != nil {
			log.WithError(err).Warn("Failed to record job start")
		}
		run.ID = id
	}

	log.Info("Job started")

	jc := s.jc
	jc.RunID = runID
	jc.Manual = manual
	jc.Logger = jc.Logger.WithFields(map[string]interface{}{"job": jobName, "run_id": runID})

	result, err := s.call(ctx, e.job, jc)

	completed := s.now()
	run.CompletedAt = &completed
	run.DurationMs = completed.Sub(run.StartedAt).Milliseconds()
	run.ItemsProcessed = result.ItemsProcessed
	run.ItemsFailed = result.ItemsFailed
	if err != nil {
		run.Status = contracts.JobFailed
		run.ErrorMessage = err.Error()
	} else {
		run.Status = contracts.JobSuccess
	}

	if s.runs != nil && run.ID != 0 {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		if ferr := s.runs.FinishRun(fctx, run); ferr != nil {
			log.WithError(ferr).Warn("Failed to record job completion")
		}
		cancel()
	}

	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.AddResult(resultFromRun(run))
	}
	s.mu.Unlock()

	s.metrics.RecordJob(jobName, string(run.Status), run.ItemsProcessed, run.ItemsFailed, completed.Sub(run.StartedAt))

	fields := map[string]interface{}{
		"duration_ms":     run.DurationMs,
		"items_processed": run.ItemsProcessed,
		"items_failed":    run.ItemsFailed,
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Job failed")
	} else {
		log.WithFields(fields).Info("Job completed successfully")
	}
	return run
}

// call runs the handler, converting a panic into a failed run
func (s *Scheduler) call(ctx context.Context, job Job, jc JobContext) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx, jc)
}

// GetJobHistory returns the in-memory history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) ([]JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("%s: %w", jobName, ErrJobNotFound)
	}

	return history.GetLatestResults(historyLimit), nil
}

// GetAllJobs returns all registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.jobs))
	for jobName := range s.jobs {
		jobs = append(jobs, jobName)
	}
	sort.Strings(jobs)

	return jobs
}

// Running reports whether a run of the job is in flight
func (s *Scheduler) Running(jobName string) bool {
	e, err := s.entry(jobName)
	return err == nil && e.inFlight.Load() > 0
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for jobName, history := range s.history {
		e, ok := s.jobs[jobName]
		if !ok {
			continue
		}
		latestResults := history.GetLatestResults(10)
		failedResults := history.GetFailedResults()

		var lastRun *time.Time
		var lastSuccess *time.Time
		var lastFailure *time.Time

		if len(latestResults) > 0 {
			lastResult := latestResults[len(latestResults)-1]
			lastRun = &lastResult.StartTime

			if lastResult.Success {
				lastSuccess = &lastResult.StartTime
			} else {
				lastFailure = &lastResult.StartTime
			}
		}

		var nextRun *time.Time
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			nextRun = &next
		}

		stats[jobName] = JobStats{
			JobName:      jobName,
			Schedule:     e.schedule,
			Running:      e.inFlight.Load() > 0,
			TotalRuns:    len(history.Results),
			SuccessCount: len(history.Results) - len(failedResults),
			FailureCount: len(failedResults),
			SuccessRate:  history.GetSuccessRate(),
			LastRun:      lastRun,
			LastSuccess:  lastSuccess,
			LastFailure:  lastFailure,
			NextRun:      nextRun,
		}
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	Running      bool       `json:"running"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}
