// Package mirror keeps a best-effort copy of job snapshots in Redis so
// sibling processes (dashboards, the web tier) can render job status
// without reaching into this process. The in-memory cache stays
// authoritative; mirror writes are fire-and-forget like all persistence.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"listing-sync/internal/config"
	"listing-sync/internal/models"
)

const keyPrefix = "syncmon:snapshot:"

// RedisMirror publishes snapshots as JSON values with a TTL, so abandoned
// jobs age out on their own.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror builds a mirror client from config.
func NewRedisMirror(cfg config.Config) *RedisMirror {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ttl := cfg.MirrorTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &RedisMirror{client: client, ttl: ttl}
}

// NewRedisMirrorWithClient is used by tests that supply their own client.
func NewRedisMirrorWithClient(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func snapshotKey(jobID string) string {
	return keyPrefix + jobID
}

// Publish overwrites the mirrored snapshot for snap.JobID.
func (m *RedisMirror) Publish(ctx context.Context, snap models.JobSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.client.Set(ctx, snapshotKey(snap.JobID), b, m.ttl).Err(); err != nil {
		return fmt.Errorf("set mirrored snapshot: %w", err)
	}
	return nil
}

// Remove deletes the mirrored snapshot for a cleared job.
func (m *RedisMirror) Remove(ctx context.Context, jobID string) error {
	if err := m.client.Del(ctx, snapshotKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete mirrored snapshot: %w", err)
	}
	return nil
}

// Get reads a mirrored snapshot back; nil when absent or expired.
func (m *RedisMirror) Get(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	b, err := m.client.Get(ctx, snapshotKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mirrored snapshot: %w", err)
	}
	var snap models.JobSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal mirrored snapshot: %w", err)
	}
	return &snap, nil
}
