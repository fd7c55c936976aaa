// Package observer tracks the live progress of long-running sync jobs.
//
// The in-memory snapshot cache is updated synchronously on every call and is
// authoritative for reads. Durable writes (event log plus snapshot upsert)
// are dispatched asynchronously and never block or fail the job runner.
package observer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"listing-sync/internal/models"
	"listing-sync/internal/store"
	"listing-sync/internal/telemetry"
)

const persistTimeout = 10 * time.Second

// Mirror receives best-effort snapshot copies for cross-process readers.
type Mirror interface {
	Publish(ctx context.Context, snap models.JobSnapshot) error
	Remove(ctx context.Context, jobID string) error
}

// Archiver exports the event history of a cleared job.
type Archiver interface {
	Export(ctx context.Context, jobID string) error
}

// Options tunes an Observer. Zero values fall back to production defaults.
type Options struct {
	Mirror   Mirror
	Archiver Archiver

	StallInterval    time.Duration
	StallThreshold   time.Duration
	RecalcInterval   time.Duration
	ActiveJobsWindow time.Duration

	// Now is injected by tests to control stall and window arithmetic.
	Now func() time.Time
}

// Observer is the sync job observability engine. Construct one per process
// (or per test) with New; there is no package-level state.
type Observer struct {
	store    store.Store
	log      *zap.SugaredLogger
	mirror   Mirror
	archiver Archiver

	stallInterval    time.Duration
	stallThreshold   time.Duration
	recalcInterval   time.Duration
	activeJobsWindow time.Duration
	now              func() time.Time

	mu   sync.RWMutex
	jobs map[string]*jobEntry

	wg sync.WaitGroup
}

// jobEntry guards one cached snapshot. Locks are per job; no operation ever
// holds two entries at once.
type jobEntry struct {
	mu   sync.Mutex
	snap models.JobSnapshot
}

func New(st store.Store, log *zap.SugaredLogger, opts Options) *Observer {
	if opts.StallInterval <= 0 {
		opts.StallInterval = 30 * time.Second
	}
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = 30 * time.Second
	}
	if opts.RecalcInterval <= 0 {
		opts.RecalcInterval = time.Minute
	}
	if opts.ActiveJobsWindow <= 0 {
		opts.ActiveJobsWindow = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Observer{
		store:            st,
		log:              log,
		mirror:           opts.Mirror,
		archiver:         opts.Archiver,
		stallInterval:    opts.StallInterval,
		stallThreshold:   opts.StallThreshold,
		recalcInterval:   opts.RecalcInterval,
		activeJobsWindow: opts.ActiveJobsWindow,
		now:              opts.Now,
		jobs:             make(map[string]*jobEntry),
	}
}

// EventInput is the raw per-network-call report from the job runner.
// Oversized diagnostics are truncated, never rejected.
type EventInput struct {
	WorkspaceID string
	UserID      *string
	ProductID   string
	ListingID   string

	Operation    string
	HTTPMethod   string
	EndpointPath string

	// StatusCode nil means the call died at the transport level.
	StatusCode *int
	DurationMs int64
	RequestID  *string

	RetryAfterSeconds *int64
	RateLimitHeaders  map[string]string

	ErrorCode       string
	ErrorMessage    string
	PayloadSummary  string
	ResponseSnippet string
}

// LogEvent records one network call: the cached snapshot is updated
// synchronously, the durable write is fire-and-forget. A missing jobID is a
// warning and a no-op.
func (o *Observer) LogEvent(ctx context.Context, jobID string, in EventInput) {
	if jobID == "" {
		o.log.Warnw("log event without job id", "operation", in.Operation)
		return
	}

	now := o.now()
	ev := models.SyncEvent{
		ID:                uuid.New().String(),
		JobID:             jobID,
		TimestampMs:       now.UnixMilli(),
		WorkspaceID:       in.WorkspaceID,
		UserID:            in.UserID,
		ProductID:         in.ProductID,
		ListingID:         in.ListingID,
		Operation:         in.Operation,
		HTTPMethod:        in.HTTPMethod,
		EndpointPath:      in.EndpointPath,
		StatusCode:        in.StatusCode,
		DurationMs:        in.DurationMs,
		RequestID:         in.RequestID,
		RetryAfterSeconds: in.RetryAfterSeconds,
		RateLimitHeaders:  in.RateLimitHeaders,
		ErrorCode:         in.ErrorCode,
		ErrorMessage:      in.ErrorMessage,
		PayloadSummary:    in.PayloadSummary,
		ResponseSnippet:   in.ResponseSnippet,
	}
	ev.Normalize()

	e := o.entry(ctx, jobID)
	e.mu.Lock()
	applyEvent(&e.snap, ev, now)
	snap := e.snap
	e.mu.Unlock()

	telemetry.EventsLogged.Inc()
	if ev.StatusCode != nil && *ev.StatusCode == 429 {
		telemetry.RateLimitHits.Inc()
	}

	o.persistAsync(&ev, snap)
}

// ProgressUpdate is the coarse-grained report from the job runner. Only
// non-nil fields overwrite the snapshot.
type ProgressUpdate struct {
	State    *string
	TenantID *string
	UserID   *string

	Processed *int64
	Total     *int64
	Completed *int64
	Failed    *int64

	CurrentProductID *string
	CurrentStep      *string

	// RetryAt accepts a time.Time, an RFC3339 string, or a numeric epoch-ms
	// value; callers are inconsistent, so normalization happens here and
	// only epoch-ms reaches storage.
	RetryAt any

	ThrottleMinDelayMs  *int64
	ThrottleConcurrency *int64
}

// UpdateProgress applies a partial progress report to the cached snapshot
// and schedules persistence.
func (o *Observer) UpdateProgress(ctx context.Context, jobID string, p ProgressUpdate) {
	if jobID == "" {
		o.log.Warnw("progress update without job id")
		return
	}

	now := o.now()
	e := o.entry(ctx, jobID)
	e.mu.Lock()
	if p.State != nil {
		e.snap.State = *p.State
	}
	if p.TenantID != nil {
		e.snap.TenantID = *p.TenantID
	}
	if p.UserID != nil {
		e.snap.UserID = p.UserID
	}
	if p.Processed != nil {
		e.snap.Processed = *p.Processed
	}
	if p.Total != nil {
		e.snap.Total = *p.Total
	}
	if p.Completed != nil {
		e.snap.Completed = *p.Completed
	}
	if p.Failed != nil {
		e.snap.Failed = *p.Failed
	}
	if p.CurrentProductID != nil {
		e.snap.CurrentProductID = *p.CurrentProductID
	}
	if p.CurrentStep != nil {
		e.snap.CurrentStep = *p.CurrentStep
	}
	if ms, ok := epochMillis(p.RetryAt); ok {
		e.snap.RetryAt = ms
	}
	if p.ThrottleMinDelayMs != nil {
		e.snap.ThrottleMinDelayMs = *p.ThrottleMinDelayMs
	}
	if p.ThrottleConcurrency != nil {
		e.snap.ThrottleConcurrency = *p.ThrottleConcurrency
	}
	e.snap.UpdatedAt = now.UnixMilli()
	snap := e.snap
	e.mu.Unlock()

	telemetry.ProgressUpdates.Inc()
	o.persistAsync(nil, snap)
}

// GetSnapshot is a pure cache read; nil when the job is not tracked.
func (o *Observer) GetSnapshot(jobID string) *models.JobSnapshot {
	o.mu.RLock()
	e, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	snap := e.snap
	e.mu.Unlock()
	return &snap
}

// ActiveJobIDs queries the durable store for recently-updated live jobs,
// independent of the cache, so dashboards survive a process restart.
func (o *Observer) ActiveJobIDs(ctx context.Context) ([]string, error) {
	since := o.now().Add(-o.activeJobsWindow).UnixMilli()
	return o.store.ActiveJobIDs(ctx, since, models.ActiveStates)
}

// ClearJob evicts the job from the cache and from stall tracking. Durable
// rows stay queryable; if an archiver is configured the job's event history
// is exported in the background.
func (o *Observer) ClearJob(jobID string) {
	o.mu.Lock()
	_, ok := o.jobs[jobID]
	delete(o.jobs, jobID)
	telemetry.TrackedJobsGauge.Set(float64(len(o.jobs)))
	o.mu.Unlock()
	if !ok {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if o.mirror != nil {
			if err := o.mirror.Remove(ctx, jobID); err != nil {
				o.log.Warnw("remove mirrored snapshot", "job_id", jobID, "error", err)
			}
		}
		if o.archiver != nil {
			if err := o.archiver.Export(ctx, jobID); err != nil {
				o.log.Warnw("archive event history", "job_id", jobID, "error", err)
			}
		}
	}()
}

// entry returns the cached entry for jobID, lazily warming it from the
// durable store on first touch after a restart.
func (o *Observer) entry(ctx context.Context, jobID string) *jobEntry {
	o.mu.RLock()
	e, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if ok {
		return e
	}

	var snap models.JobSnapshot
	db, err := o.store.GetSnapshot(ctx, jobID)
	switch {
	case err == nil:
		snap = *db
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotReady):
		// First sighting, or startup race: start from defaults.
	default:
		o.log.Warnw("load snapshot from store", "job_id", jobID, "error", err)
	}
	if snap.JobID == "" {
		now := o.now().UnixMilli()
		snap = models.JobSnapshot{
			JobID:       jobID,
			State:       models.StateRunning,
			LastEventAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.jobs[jobID]; ok {
		return e
	}
	e = &jobEntry{snap: snap}
	o.jobs[jobID] = e
	telemetry.TrackedJobsGauge.Set(float64(len(o.jobs)))
	return e
}

// persistAsync dispatches the durable event append and snapshot upsert
// without blocking the caller. ErrNotReady is a benign startup race and is
// skipped silently; any other failure is logged and absorbed.
func (o *Observer) persistAsync(ev *models.SyncEvent, snap models.JobSnapshot) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if ev != nil {
			if err := o.store.PersistEvent(ctx, *ev); err != nil && !errors.Is(err, store.ErrNotReady) {
				telemetry.PersistFailures.Inc()
				o.log.Errorw("persist event", "job_id", ev.JobID, "operation", ev.Operation, "error", err)
			}
		}
		if err := o.store.UpsertSnapshot(ctx, snap); err != nil && !errors.Is(err, store.ErrNotReady) {
			telemetry.PersistFailures.Inc()
			o.log.Errorw("persist snapshot", "job_id", snap.JobID, "error", err)
		}
		if o.mirror != nil {
			if err := o.mirror.Publish(ctx, snap); err != nil {
				o.log.Warnw("mirror snapshot", "job_id", snap.JobID, "error", err)
			}
		}
	}()
}

// Flush blocks until all dispatched background writes have settled. Used by
// shutdown and tests; the hot path never waits on it.
func (o *Observer) Flush() {
	o.wg.Wait()
}
