package observer

import (
	"context"
	"errors"
	"time"

	"listing-sync/internal/models"
	"listing-sync/internal/store"
	"listing-sync/internal/telemetry"
)

// Run drives the background stall scan and the rolling-window correction
// until the context is cancelled. Each tick is expected to finish well
// within its period; a slow store delays the next tick rather than piling
// up concurrent scans.
func (o *Observer) Run(ctx context.Context) {
	stall := time.NewTicker(o.stallInterval)
	defer stall.Stop()
	recalc := time.NewTicker(o.recalcInterval)
	defer recalc.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stall.C:
			o.detectStalls(o.now())
		case <-recalc.C:
			o.recalcAll(ctx)
		}
	}
}

// detectStalls flags RUNNING jobs whose last activity is older than the
// threshold. Advisory only: state is untouched and nothing is paused.
func (o *Observer) detectStalls(now time.Time) {
	nowMs := now.UnixMilli()

	// Snapshot the key set first; never hold the map lock across the scan.
	o.mu.RLock()
	entries := make([]*jobEntry, 0, len(o.jobs))
	for _, e := range o.jobs {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		stalled := e.snap.State == models.StateRunning &&
			!e.snap.StallDetected &&
			e.snap.LastEventAt > 0 &&
			nowMs-e.snap.LastEventAt > o.stallThreshold.Milliseconds()
		if stalled {
			e.snap.StallDetected = true
			e.snap.UpdatedAt = nowMs
		}
		snap := e.snap
		e.mu.Unlock()

		if stalled {
			telemetry.StallsDetected.Inc()
			o.log.Warnw("stall detected",
				"job_id", snap.JobID,
				"last_event_at", snap.LastEventAt,
				"current_step", snap.CurrentStep)
			o.persistAsync(nil, snap)
		}
	}
}

// RecalculateLast60s replaces the approximate rolling counter with an exact
// count from the durable event log. No-op for jobs not in the cache.
func (o *Observer) RecalculateLast60s(ctx context.Context, jobID string) error {
	o.mu.RLock()
	e, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	since := o.now().UnixMilli() - rollingWindowMs
	count, err := o.store.CountEventsSince(ctx, jobID, since)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.snap.RequestsLast60s = count
	e.mu.Unlock()
	return nil
}

// recalcAll corrects the rolling counter for every cached job. A store that
// is not ready yet skips the tick; a failure scoped to one job does not
// starve the rest.
func (o *Observer) recalcAll(ctx context.Context) {
	o.mu.RLock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	for _, id := range ids {
		if err := o.RecalculateLast60s(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotReady) {
				return
			}
			o.log.Warnw("recalculate rolling window", "job_id", id, "error", err)
		}
	}
}
