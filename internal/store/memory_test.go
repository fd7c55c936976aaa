package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"listing-sync/internal/models"
)

func seedEvents(t *testing.T, m *Memory, jobID string, timestamps ...int64) {
	t.Helper()
	ctx := context.Background()
	for i, ts := range timestamps {
		ev := models.SyncEvent{
			ID:          fmt.Sprintf("ev-%d", i),
			JobID:       jobID,
			TimestampMs: ts,
			Operation:   "create-listing",
		}
		if err := m.PersistEvent(ctx, ev); err != nil {
			t.Fatalf("persist event: %v", err)
		}
	}
}

func TestListEventsNewestFirstWithCursor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedEvents(t, m, "job1", 100, 300, 200, 500, 400)

	events, err := m.ListEvents(ctx, "job1", 3, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []int64{500, 400, 300}
	for i, ev := range events {
		if ev.TimestampMs != want[i] {
			t.Fatalf("position %d timestamp = %d, want %d", i, ev.TimestampMs, want[i])
		}
	}

	older, err := m.ListEvents(ctx, "job1", 3, 300)
	if err != nil {
		t.Fatalf("list older events: %v", err)
	}
	if len(older) != 2 || older[0].TimestampMs != 200 || older[1].TimestampMs != 100 {
		t.Fatalf("cursor page wrong: %+v", older)
	}
}

func TestListEventsIsolatesJobs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedEvents(t, m, "job1", 100, 200)
	seedEvents(t, m, "job2", 150)

	events, err := m.ListEvents(ctx, "job1", 10, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for job1, got %d", len(events))
	}
	for _, ev := range events {
		if ev.JobID != "job1" {
			t.Fatalf("leaked event from %s", ev.JobID)
		}
	}
}

func TestCountEventsSince(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedEvents(t, m, "job1", 100, 200, 300, 400)

	n, err := m.CountEventsSince(ctx, "job1", 250)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	// Boundary is inclusive.
	n, err = m.CountEventsSince(ctx, "job1", 300)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("inclusive count = %d, want 2", n)
	}
}

func TestActiveJobIDsFiltersStateAndWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	snaps := []models.JobSnapshot{
		{JobID: "running-recent", State: models.StateRunning, UpdatedAt: 900},
		{JobID: "paused-recent", State: models.StatePaused, UpdatedAt: 800},
		{JobID: "ratelimited-recent", State: models.StatePausedRateLim, UpdatedAt: 700},
		{JobID: "running-stale", State: models.StateRunning, UpdatedAt: 100},
		{JobID: "completed-recent", State: models.StateCompleted, UpdatedAt: 950},
	}
	for _, s := range snaps {
		if err := m.UpsertSnapshot(ctx, s); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	ids, err := m.ActiveJobIDs(ctx, 500, models.ActiveStates)
	if err != nil {
		t.Fatalf("active job ids: %v", err)
	}
	want := []string{"running-recent", "paused-recent", "ratelimited-recent"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("position %d = %s, want %s (most recent first)", i, ids[i], id)
		}
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetSnapshot(ctx, "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertSnapshotOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.UpsertSnapshot(ctx, models.JobSnapshot{JobID: "job1", Processed: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.UpsertSnapshot(ctx, models.JobSnapshot{JobID: "job1", Processed: 9}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	snap, err := m.GetSnapshot(ctx, "job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Processed != 9 {
		t.Fatalf("processed = %d, want 9", snap.Processed)
	}
}

func TestNotReadyReturnsSentinel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetReady(false)

	if err := m.PersistEvent(ctx, models.SyncEvent{JobID: "job1"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("persist event: expected ErrNotReady, got %v", err)
	}
	if err := m.UpsertSnapshot(ctx, models.JobSnapshot{JobID: "job1"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("upsert: expected ErrNotReady, got %v", err)
	}
	if _, err := m.ListEvents(ctx, "job1", 10, 0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("list: expected ErrNotReady, got %v", err)
	}
}
