package scheduler

import (
	"context"
	"time"

	"github.com/quantive/chatfolio/internal/modules/analytics"
	"github.com/quantive/chatfolio/internal/modules/portfolio"
	"github.com/quantive/chatfolio/internal/reliability"
)

// SessionEvictionJob drops guest sessions idle longer than the configured
// TTL. The pipeline itself never evicts; only this job does.
type SessionEvictionJob struct {
	Store *portfolio.SessionStore
	TTL   time.Duration
}

// Name implements Job.
func (j *SessionEvictionJob) Name() string { return "session_eviction" }

// Run implements Job.
func (j *SessionEvictionJob) Run() error {
	j.Store.EvictOlderThan(j.TTL)
	return nil
}

// TracePruneJob removes persisted traces older than the retention window.
type TracePruneJob struct {
	Sink      *analytics.SQLiteSink
	Retention time.Duration
}

// Name implements Job.
func (j *TracePruneJob) Name() string { return "trace_prune" }

// Run implements Job.
func (j *TracePruneJob) Run() error {
	_, err := j.Sink.DeleteOlderThan(time.Now().UTC().Add(-j.Retention))
	return err
}

// BackupJob snapshots the data directory to the configured bucket.
type BackupJob struct {
	Service *reliability.BackupService
	Timeout time.Duration
}

// Name implements Job.
func (j *BackupJob) Name() string { return "backup" }

// Run implements Job.
func (j *BackupJob) Run() error {
	timeout := j.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := j.Service.Backup(ctx)
	return err
}
