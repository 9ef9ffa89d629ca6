package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// JobController is the part of the scheduler the admin surface drives
type JobController interface {
	Trigger(jobName string) (string, error)
	GetAllJobs() []string
	GetJobStats() map[string]scheduler.JobStats
}

// RunHistory reads persisted job_runs rows
type RunHistory interface {
	History(ctx context.Context, jobName string, limit int) ([]contracts.JobRun, error)
}

// JobHandler exposes manual triggers and run history
// ⭐ SSOT: Job 관리 API 핸들러는 이 구조체에서만
type JobHandler struct {
	jobs    JobController
	history RunHistory
	logger  *logger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobController, history RunHistory, log *logger.Logger) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		history: history,
		logger:  log,
	}
}

// List returns every registered job with its in-memory stats
// GET /api/admin/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.GetJobStats()

	out := make([]scheduler.JobStats, 0, len(stats))
	for _, name := range h.jobs.GetAllJobs() {
		s, ok := stats[name]
		if !ok {
			s = scheduler.JobStats{JobName: name}
		}
		out = append(out, s)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// Trigger starts a manual run and returns immediately
// POST /api/admin/jobs/{name}/trigger
func (h *JobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	runID, err := h.jobs.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "Unknown job: "+name)
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		respondError(w, http.StatusConflict, "Job is already running: "+name)
		return
	case errors.Is(err, scheduler.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, "Scheduler is shutting down")
		return
	case err != nil:
		h.logger.WithError(err).WithField("job", name).Error("Failed to trigger job")
		respondError(w, http.StatusInternalServerError, "Failed to trigger job")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"job":    name,
		"run_id": runID,
	}).Info("Job triggered via API")

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job":    name,
		"run_id": runID,
		"status": string(contracts.JobRunning),
	})
}

// History returns the latest persisted runs of a job
// GET /api/admin/jobs/{name}/history?limit=N
func (h *JobHandler) History(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	known := false
	for _, j := range h.jobs.GetAllJobs() {
		if j == name {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "Unknown job: "+name)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := h.history.History(r.Context(), name, limit)
	if err != nil {
		h.logger.WithError(err).WithField("job", name).Error("Failed to load job history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job history")
		return
	}
	if runs == nil {
		runs = []contracts.JobRun{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":  name,
		"runs": runs,
	})
}
