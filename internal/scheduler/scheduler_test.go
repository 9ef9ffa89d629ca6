package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

type funcJob struct {
	name      string
	schedule  string
	reentrant bool
	run       func(ctx context.Context, jc JobContext) (Result, error)
}

func (j *funcJob) Name() string     { return j.name }
func (j *funcJob) Schedule() string { return j.schedule }
func (j *funcJob) Reentrant() bool  { return j.reentrant }
func (j *funcJob) Run(ctx context.Context, jc JobContext) (Result, error) {
	return j.run(ctx, jc)
}

type memRuns struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]contracts.JobRun
}

func newMemRuns() *memRuns {
	return &memRuns{rows: map[int64]contracts.JobRun{}}
}

func (m *memRuns) StartRun(_ context.Context, run contracts.JobRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.rows[run.ID] = run
	return run.ID, nil
}

func (m *memRuns) FinishRun(_ context.Context, run contracts.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[run.ID] = run
	return nil
}

func (m *memRuns) get(id int64) contracts.JobRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func newTestScheduler(opts ...Option) (*Scheduler, *memRuns) {
	runs := newMemRuns()
	opts = append([]Option{WithRunStore(runs)}, opts...)
	return New(JobContext{}, logger.Nop(), opts...), runs
}

func TestAddJobRejectsBadCron(t *testing.T) {
	s, _ := newTestScheduler()
	err := s.AddJob(&funcJob{name: "broken", schedule: "not a cron"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.Empty(t, s.GetAllJobs())
}

func TestAddJobDuplicate(t *testing.T) {
	s, _ := newTestScheduler()
	job := &funcJob{name: "a", schedule: "0 0 2 * * *"}
	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job))
}

func TestScheduleOverrideAndInterval(t *testing.T) {
	s, _ := newTestScheduler(WithScheduleOverride(func(name, def string) string {
		if name == "refresh_prices" {
			return "0 15 3 * * *"
		}
		return def
	}))
	require.NoError(t, s.AddJob(&funcJob{name: "refresh_prices", schedule: "0 0 2 * * *"}))
	require.NoError(t, s.AddJob(&funcJob{name: "watchlist_monitoring", schedule: "@every 30m"}))

	stats := s.GetJobStats()
	assert.Equal(t, "0 15 3 * * *", stats["refresh_prices"].Schedule)
	assert.Equal(t, "@every 30m", stats["watchlist_monitoring"].Schedule)
	assert.Equal(t, []string{"refresh_prices", "watchlist_monitoring"}, s.GetAllJobs())
}

func TestRunNowRecordsSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, runs := newTestScheduler(WithMetrics(metrics.New(reg)))

	var seen JobContext
	require.NoError(t, s.AddJob(&funcJob{name: "refresh_prices", schedule: "0 0 2 * * *",
		run: func(_ context.Context, jc JobContext) (Result, error) {
			seen = jc
			return Result{ItemsProcessed: 7, ItemsFailed: 2}, nil
		}}))

	run, err := s.RunNow(context.Background(), "refresh_prices")
	require.NoError(t, err)
	assert.Equal(t, contracts.JobSuccess, run.Status)
	assert.Equal(t, 7, run.ItemsProcessed)
	assert.Equal(t, 2, run.ItemsFailed)
	assert.True(t, run.Manual)
	require.NotNil(t, run.CompletedAt)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, run.RunID, seen.RunID)
	assert.True(t, seen.Manual)

	stored := runs.get(run.ID)
	assert.Equal(t, contracts.JobSuccess, stored.Status)
	assert.Equal(t, 7, stored.ItemsProcessed)

	history, err := s.GetJobHistory("refresh_prices")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	assert.Equal(t, 1.0, counterValue(t, reg, "folio_job_runs_total", map[string]string{"job": "refresh_prices", "status": "success"}))
}

func TestRunNowRecordsFailureAndPanic(t *testing.T) {
	s, runs := newTestScheduler()
	require.NoError(t, s.AddJob(&funcJob{name: "regime_forecast", schedule: "0 30 17 * * *",
		run: func(context.Context, JobContext) (Result, error) {
			return Result{}, errors.New("no trained hmm model")
		}}))
	require.NoError(t, s.AddJob(&funcJob{name: "boom", schedule: "0 30 17 * * *",
		run: func(context.Context, JobContext) (Result, error) {
			panic("nil map")
		}}))

	run, err := s.RunNow(context.Background(), "regime_forecast")
	require.Error(t, err)
	assert.Equal(t, contracts.JobFailed, run.Status)
	assert.Equal(t, "no trained hmm model", runs.get(run.ID).ErrorMessage)
	require.NotNil(t, runs.get(run.ID).CompletedAt)

	run, err = s.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, run.ErrorMessage, "panicked")
}

func TestTriggerUnknownJob(t *testing.T) {
	s, _ := newTestScheduler()
	_, err := s.Trigger("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestNonReentrantSkipsOverlap(t *testing.T) {
	s, _ := newTestScheduler()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	require.NoError(t, s.AddJob(&funcJob{name: "slow", schedule: "0 0 2 * * *",
		run: func(context.Context, JobContext) (Result, error) {
			started <- struct{}{}
			<-release
			return Result{ItemsProcessed: 1}, nil
		}}))

	_, err := s.Trigger("slow")
	require.NoError(t, err)
	<-started
	assert.True(t, s.Running("slow"))

	_, err = s.Trigger("slow")
	assert.ErrorIs(t, err, ErrJobRunning)
	_, err = s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a handler was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	assert.False(t, s.Running("slow"))

	history, err := s.GetJobHistory("slow")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReentrantAllowsOverlap(t *testing.T) {
	s, _ := newTestScheduler()
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	require.NoError(t, s.AddJob(&funcJob{name: "fanout", schedule: "@every 1h", reentrant: true,
		run: func(context.Context, JobContext) (Result, error) {
			wg.Done()
			<-release
			return Result{}, nil
		}}))

	_, err := s.Trigger("fanout")
	require.NoError(t, err)
	_, err = s.Trigger("fanout")
	require.NoError(t, err)

	wg.Wait()
	close(release)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStopDeadlineCancelsHandlers(t *testing.T) {
	s, runs := newTestScheduler()
	started := make(chan struct{})
	require.NoError(t, s.AddJob(&funcJob{name: "stuck", schedule: "0 0 2 * * *",
		run: func(ctx context.Context, _ JobContext) (Result, error) {
			close(started)
			<-ctx.Done()
			return Result{}, ctx.Err()
		}}))

	_, err := s.Trigger("stuck")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	run := runs.get(1)
	assert.Equal(t, contracts.JobFailed, run.Status, "row finalized even though the handler was cancelled")
}

func TestRunsRejectedOnceStopping(t *testing.T) {
	s, runs := newTestScheduler()
	calls := 0
	require.NoError(t, s.AddJob(&funcJob{name: "late", schedule: "0 0 2 * * *",
		run: func(context.Context, JobContext) (Result, error) {
			calls++
			return Result{}, nil
		}}))

	require.NoError(t, s.Stop(context.Background()))

	_, err := s.Trigger("late")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.RunNow(context.Background(), "late")
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, calls)
	assert.Empty(t, runs.rows)
	assert.False(t, s.Running("late"), "run slot not leaked")
}

func TestStopWaitsForRunStartedDuringStop(t *testing.T) {
	s, _ := newTestScheduler()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.AddJob(&funcJob{name: "first", schedule: "0 0 2 * * *",
		run: func(context.Context, JobContext) (Result, error) {
			close(started)
			<-release
			return Result{}, nil
		}}))
	require.NoError(t, s.AddJob(&funcJob{name: "second", schedule: "0 0 2 * * *",
		run: func(context.Context, JobContext) (Result, error) { return Result{}, nil }}))

	_, err := s.Trigger("first")
	require.NoError(t, err)
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	// once Stop is waiting, new runs are refused rather than added to the wait group
	require.Eventually(t, func() bool {
		_, err := s.Trigger("second")
		return errors.Is(err, ErrStopped)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-stopped)
}

func TestJobHistoryBounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+20; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(3))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
