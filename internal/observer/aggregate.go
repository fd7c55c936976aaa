package observer

import (
	"math"
	"time"

	"listing-sync/internal/models"
)

const rollingWindowMs = 60_000

// applyEvent folds one event into the cached snapshot. Caller holds the
// entry lock.
func applyEvent(snap *models.JobSnapshot, ev models.SyncEvent, now time.Time) {
	nowMs := now.UnixMilli()

	snap.TotalRequests++

	if ev.StatusCode != nil && *ev.StatusCode == 429 {
		snap.Error429Count++
		if ev.RetryAfterSeconds != nil {
			snap.LastRetryAfterSeconds = *ev.RetryAfterSeconds
			snap.RetryAt = nowMs + *ev.RetryAfterSeconds*1000
		}
	}

	// Cheap approximation of the trailing window: increment only, and let
	// the periodic exact recount against the durable log correct drift.
	if ev.TimestampMs >= nowMs-rollingWindowMs {
		snap.RequestsLast60s++
	}

	if ev.DurationMs > 0 {
		prev := float64(snap.AvgLatencyMs) * float64(snap.TotalRequests-1)
		snap.AvgLatencyMs = int64(math.Round((prev + float64(ev.DurationMs)) / float64(snap.TotalRequests)))
	}

	if ev.ProductID != "" {
		snap.CurrentProductID = ev.ProductID
	}

	snap.LastEventAt = nowMs
	snap.UpdatedAt = nowMs
	// Fresh activity implicitly clears a stall flag.
	snap.StallDetected = false
}
