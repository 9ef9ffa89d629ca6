package jobs

import (
	"context"
	"time"

	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/internal/snapshots"
)

// CacheCleanupJob deletes expired rows from every cache table
type CacheCleanupJob struct {
	cache *cachestore.Store
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(cache *cachestore.Store) *CacheCleanupJob {
	return &CacheCleanupJob{cache: cache}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cleanup_cache"
}

// Schedule returns the cron schedule (Sunday 3 AM)
func (j *CacheCleanupJob) Schedule() string {
	return "0 0 3 * * SUN"
}

// Run sweeps all kinds and expired fetch failures.
// A kind that fails to sweep counts as failed; the others still run.
func (j *CacheCleanupJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	jc.Logger.Debug("Starting scheduled cache cleanup")

	removed, err := j.cache.SweepAll(ctx)

	var res scheduler.Result
	var total int64
	for _, n := range removed {
		total += n
	}
	res.ItemsProcessed = len(removed)
	res.ItemsFailed = len(cachestore.Kinds()) - len(removed)

	failures := 0
	if jc.Failures != nil {
		failures = jc.Failures.Sweep(ctx)
	}

	jc.Logger.WithFields(map[string]interface{}{
		"removed":          total,
		"failures_expired": failures,
	}).Info("Cache cleanup completed")

	if res.ItemsProcessed == 0 && err != nil {
		return res, err
	}
	return res, nil
}

// ArchiveSnapshotsJob deletes risk snapshots older than a year
type ArchiveSnapshotsJob struct {
	archiver SnapshotArchiver
	now      func() time.Time
}

// NewArchiveSnapshotsJob creates the snapshot archive job
func NewArchiveSnapshotsJob(archiver SnapshotArchiver) *ArchiveSnapshotsJob {
	return &ArchiveSnapshotsJob{archiver: archiver, now: time.Now}
}

// Name returns the job name
func (j *ArchiveSnapshotsJob) Name() string {
	return "archive_snapshots"
}

// Schedule returns the cron schedule (Sunday 3:30 AM)
func (j *ArchiveSnapshotsJob) Schedule() string {
	return "0 30 3 * * SUN"
}

// Run deletes snapshots dated before now - ArchiveAge
func (j *ArchiveSnapshotsJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	cutoff := j.now().Add(-snapshots.ArchiveAge)
	n, err := j.archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return scheduler.Result{}, err
	}
	jc.Logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff.Format("2006-01-02"),
		"deleted": n,
	}).Info("Old risk snapshots archived")
	return scheduler.Result{ItemsProcessed: int(n)}, nil
}
