package mirror

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"listing-sync/internal/models"
)

func setupMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisMirrorWithClient(client, time.Minute), mr
}

func TestPublishAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := setupMirror(t)

	snap := models.JobSnapshot{
		JobID:         "job1",
		State:         models.StateRunning,
		Processed:     12,
		Total:         40,
		TotalRequests: 30,
		AvgLatencyMs:  145,
	}
	if err := m.Publish(ctx, snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := m.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected mirrored snapshot")
	}
	if got.Processed != 12 || got.TotalRequests != 30 || got.State != models.StateRunning {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPublishOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	m, _ := setupMirror(t)

	if err := m.Publish(ctx, models.JobSnapshot{JobID: "job1", Processed: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.Publish(ctx, models.JobSnapshot{JobID: "job1", Processed: 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := m.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Processed != 2 {
		t.Fatalf("processed = %d, want 2", got.Processed)
	}
}

func TestRemoveDeletesSnapshot(t *testing.T) {
	ctx := context.Background()
	m, _ := setupMirror(t)

	if err := m.Publish(ctx, models.JobSnapshot{JobID: "job1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.Remove(ctx, "job1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := m.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after remove, got %+v", got)
	}
}

func TestSnapshotsExpire(t *testing.T) {
	ctx := context.Background()
	m, mr := setupMirror(t)

	if err := m.Publish(ctx, models.JobSnapshot{JobID: "job1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := m.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected snapshot to expire, got %+v", got)
	}
}
