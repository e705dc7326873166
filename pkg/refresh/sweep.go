package refresh

import (
	"context"
	"log/slog"
	"time"

	"officeradar/pkg/model"
	"officeradar/pkg/request"
)

const (
	maxThrottle   = 15 * time.Second
	maxRetryDelay = 60 * time.Second
	maxBatchSize  = 200

	// MaxOfficesCap bounds the per-center office cap an admin can request.
	MaxOfficesCap = 10000
)

// AllowedRadiusKm reports whether km is a supported refresh radius.
func AllowedRadiusKm(km int) bool {
	switch km {
	case 10, 25, 50, 100:
		return true
	}
	return false
}

// RunScheduledBatch refreshes the next page of active centers and
// advances the cursor. An empty page resets the cursor to 0 so the next
// run starts over from the lowest center id.
func (e *Engine) RunScheduledBatch(ctx context.Context) (Stats, error) {
	var total Stats

	cursor, _, err := e.store.GetRefreshCursor(ctx)
	if err != nil {
		return total, err
	}

	centers, err := e.store.ListActiveCentersAfter(ctx, cursor.Value, e.cfg.Refresh.BatchCentersPerRun)
	if err != nil {
		return total, err
	}
	if len(centers) == 0 {
		if err := e.store.SetRefreshCursor(ctx, 0); err != nil {
			return total, err
		}
		slog.Info("Refresh batch empty, cursor reset")
		return total, nil
	}

	idx, err := e.matcher.Index(ctx)
	if err != nil {
		return total, err
	}
	banned, err := e.store.ListBannedRefs(ctx)
	if err != nil {
		return total, err
	}
	opts := Options{Index: idx, Banned: banned}

	for i := range centers {
		if i > 0 {
			if err := request.Sleep(ctx, time.Duration(e.cfg.Refresh.Throttle)); err != nil {
				return total, err
			}
		}
		center := &centers[i]
		stats, err := e.RefreshCenter(ctx, center, opts)
		if err != nil {
			// A cancelled batch leaves the cursor untouched so the next
			// run repeats these centers.
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			slog.Error("Center refresh failed", "center", center.CenterCode, "error", err)
			continue
		}
		total.add(stats)
		slog.Info("Center refreshed",
			"center", center.CenterCode,
			"matched", stats.OfficesMatched,
			"links", stats.LinksUpserted,
			"pruned", stats.PrunedLinks)
	}

	last := centers[len(centers)-1].ID
	if err := e.store.SetRefreshCursor(ctx, last); err != nil {
		return total, err
	}
	slog.Info("Refresh batch complete", "centers", len(centers), "cursor", last)
	return total, nil
}

// AllOptions control a full sweep. Zero values select configured
// defaults; out-of-range values are clamped.
type AllOptions struct {
	Throttle   time.Duration
	BatchSize  int
	RadiusM    float64
	MaxOffices int
	FullClean  bool
	RetryCount int
	RetryDelay time.Duration
}

// AllResult aggregates a full sweep.
type AllResult struct {
	Stats
	CentersProcessed int   `json:"centers_processed"`
	CentersFailed    int   `json:"centers_failed"`
	FullClean        bool  `json:"full_clean"`
	DurationMs       int64 `json:"duration_ms"`
	OK               bool  `json:"ok"`
}

// clampAll normalizes sweep inputs to their documented ranges.
func (e *Engine) clampAll(opts AllOptions) AllOptions {
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	if opts.Throttle > maxThrottle {
		opts.Throttle = maxThrottle
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.RetryDelay > maxRetryDelay {
		opts.RetryDelay = maxRetryDelay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = e.cfg.Refresh.BatchCentersPerRun
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.BatchSize > maxBatchSize {
		opts.BatchSize = maxBatchSize
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.MaxOffices < 0 {
		opts.MaxOffices = 0
	}
	if opts.MaxOffices > MaxOfficesCap {
		opts.MaxOffices = MaxOfficesCap
	}
	return opts
}

// RunAll refreshes every active center in id order. Individual center
// failures are retried, then counted; they do not abort the sweep.
func (e *Engine) RunAll(ctx context.Context, opts AllOptions) (AllResult, error) {
	opts = e.clampAll(opts)
	started := time.Now()
	res := AllResult{FullClean: opts.FullClean}

	if opts.FullClean {
		if err := e.store.PurgeAllOfficePoints(ctx); err != nil {
			return res, err
		}
		slog.Info("Purged all office points for full-clean sweep")
	}

	idx, err := e.matcher.Index(ctx)
	if err != nil {
		return res, err
	}
	banned, err := e.store.ListBannedRefs(ctx)
	if err != nil {
		return res, err
	}
	centerOpts := Options{
		RadiusM:    opts.RadiusM,
		MaxOffices: opts.MaxOffices,
		Index:      idx,
		Banned:     banned,
	}

	cursor := int64(0)
	first := true
	for {
		centers, err := e.store.ListActiveCentersAfter(ctx, cursor, opts.BatchSize)
		if err != nil {
			return res, err
		}
		if len(centers) == 0 {
			break
		}

		for i := range centers {
			if !first {
				if err := request.Sleep(ctx, opts.Throttle); err != nil {
					return res, err
				}
			}
			first = false

			res.CentersProcessed++
			if err := e.refreshWithRetries(ctx, &centers[i], centerOpts, opts, &res.Stats); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.CentersFailed++
			}
		}

		cursor = centers[len(centers)-1].ID
		if err := e.store.SetRefreshCursor(ctx, cursor); err != nil {
			return res, err
		}
	}

	res.OK = res.CentersFailed == 0
	res.DurationMs = time.Since(started).Milliseconds()
	slog.Info("Full refresh complete",
		"centers", res.CentersProcessed,
		"failed", res.CentersFailed,
		"links", res.LinksUpserted,
		"duration_ms", res.DurationMs)
	return res, nil
}

// refreshWithRetries attempts one center up to RetryCount+1 times,
// adding stats only for the successful attempt.
func (e *Engine) refreshWithRetries(ctx context.Context, center *model.Center, centerOpts Options, opts AllOptions, total *Stats) error {
	attempts := opts.RetryCount + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stats, err := e.RefreshCenter(ctx, center, centerOpts)
		if err == nil {
			total.add(stats)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Center refresh attempt failed",
			"center", center.CenterCode,
			"attempt", attempt,
			"error", err)
		if attempt < attempts {
			if serr := request.Sleep(ctx, opts.RetryDelay); serr != nil {
				return serr
			}
		}
	}
	return lastErr
}
