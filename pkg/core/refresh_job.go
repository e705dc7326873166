package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"officeradar/pkg/refresh"
)

// BatchRunner runs one scheduled refresh batch.
type BatchRunner interface {
	RunScheduledBatch(ctx context.Context) (refresh.Stats, error)
}

// RefreshJob fires a refresh batch whenever the configured interval has
// elapsed since the last completed run. The first tick after startup
// fires immediately.
type RefreshJob struct {
	BaseJob
	runner   BatchRunner
	interval time.Duration
	lastRun  time.Time
	firstRun bool
}

func NewRefreshJob(runner BatchRunner, interval time.Duration) *RefreshJob {
	return &RefreshJob{
		BaseJob:  NewBaseJob("Refresh"),
		runner:   runner,
		interval: interval,
		firstRun: true,
	}
}

func (j *RefreshJob) ShouldFire(now time.Time) bool {
	if atomic.LoadInt32(&j.running) == 1 {
		return false
	}
	if j.firstRun {
		return true
	}
	return now.Sub(j.lastRun) >= j.interval
}

func (j *RefreshJob) Run(ctx context.Context) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	stats, err := j.runner.RunScheduledBatch(ctx)
	if err != nil {
		slog.Error("Scheduled refresh failed", "error", err)
	} else {
		slog.Info("Scheduled refresh done",
			"matched", stats.OfficesMatched,
			"links", stats.LinksUpserted,
			"pruned", stats.PrunedLinks)
	}

	// Failures also restart the interval; retries ride the next tick
	// cycle instead of hammering the upstream.
	j.lastRun = time.Now()
	j.firstRun = false
}
