package store

import (
	"context"
	"errors"

	"listing-sync/internal/models"
)

// ErrNotReady signals that the durable store has not finished initializing
// (migrations still running during process startup). Write-path callers
// treat it as a benign no-op; it must never be string-matched.
var ErrNotReady = errors.New("store not ready")

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable side of the observability engine: an append-only
// event log plus one upsertable snapshot row per job. Rows are never
// deleted by this subsystem.
type Store interface {
	// PersistEvent appends one immutable event row.
	PersistEvent(ctx context.Context, ev models.SyncEvent) error
	// UpsertSnapshot inserts or fully overwrites the snapshot row for
	// ev.JobID. Safe to call repeatedly with the same or newer data.
	UpsertSnapshot(ctx context.Context, snap models.JobSnapshot) error
	// GetSnapshot reads the durable snapshot row, ErrNotFound if absent.
	GetSnapshot(ctx context.Context, jobID string) (*models.JobSnapshot, error)
	// ListEvents returns up to limit events for jobID, newest first.
	// When beforeMs > 0 only events strictly older than it are returned,
	// which keeps page boundaries stable under concurrent inserts.
	ListEvents(ctx context.Context, jobID string, limit int, beforeMs int64) ([]models.SyncEvent, error)
	// CountEventsSince counts events for jobID with timestamp_ms >= sinceMs.
	CountEventsSince(ctx context.Context, jobID string, sinceMs int64) (int64, error)
	// ActiveJobIDs lists jobs in one of the given states whose snapshot row
	// was updated at or after sinceMs.
	ActiveJobIDs(ctx context.Context, sinceMs int64, states []string) ([]string, error)
}
