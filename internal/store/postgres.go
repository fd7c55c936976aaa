package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-sync/internal/models"
)

// Postgres persists events and snapshots in the sync_events / sync_jobs
// tables. Writes return ErrNotReady until RunMigrations has completed, so
// callers racing process startup can skip them without guessing at error
// strings.
type Postgres struct {
	pool  *pgxpool.Pool
	ready atomic.Bool
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PersistEvent appends one immutable event row.
func (s *Postgres) PersistEvent(ctx context.Context, ev models.SyncEvent) error {
	if !s.ready.Load() {
		return ErrNotReady
	}

	var headersJSON []byte
	if len(ev.RateLimitHeaders) > 0 {
		b, err := json.Marshal(ev.RateLimitHeaders)
		if err != nil {
			return fmt.Errorf("marshal rate limit headers: %w", err)
		}
		headersJSON = b
	}

	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_events (
			id, job_id, timestamp_ms, workspace_id, user_id, product_id, listing_id,
			operation, http_method, endpoint_path, status_code, duration_ms, request_id,
			retry_after_seconds, rate_limit_headers, error_code, error_message,
			payload_summary, response_snippet
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, id, ev.JobID, ev.TimestampMs, ev.WorkspaceID, ev.UserID, ev.ProductID, ev.ListingID,
		ev.Operation, ev.HTTPMethod, ev.EndpointPath, ev.StatusCode, ev.DurationMs, ev.RequestID,
		ev.RetryAfterSeconds, headersJSON, ev.ErrorCode, ev.ErrorMessage,
		ev.PayloadSummary, ev.ResponseSnippet)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpsertSnapshot inserts or overwrites the snapshot row keyed by job_id.
func (s *Postgres) UpsertSnapshot(ctx context.Context, snap models.JobSnapshot) error {
	if !s.ready.Load() {
		return ErrNotReady
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_jobs (
			job_id, tenant_id, user_id, state, processed, total, completed, failed,
			current_product_id, current_step, retry_at, last_retry_after_seconds,
			last_event_at, updated_at, created_at, total_requests, requests_last_60s,
			error_429_count, avg_latency_ms, throttle_min_delay_ms, throttle_concurrency,
			stall_detected
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (job_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			processed = EXCLUDED.processed,
			total = EXCLUDED.total,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			current_product_id = EXCLUDED.current_product_id,
			current_step = EXCLUDED.current_step,
			retry_at = EXCLUDED.retry_at,
			last_retry_after_seconds = EXCLUDED.last_retry_after_seconds,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at,
			total_requests = EXCLUDED.total_requests,
			requests_last_60s = EXCLUDED.requests_last_60s,
			error_429_count = EXCLUDED.error_429_count,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			throttle_min_delay_ms = EXCLUDED.throttle_min_delay_ms,
			throttle_concurrency = EXCLUDED.throttle_concurrency,
			stall_detected = EXCLUDED.stall_detected
	`, snap.JobID, snap.TenantID, snap.UserID, snap.State, snap.Processed, snap.Total,
		snap.Completed, snap.Failed, snap.CurrentProductID, snap.CurrentStep, snap.RetryAt,
		snap.LastRetryAfterSeconds, snap.LastEventAt, snap.UpdatedAt, snap.CreatedAt,
		snap.TotalRequests, snap.RequestsLast60s, snap.Error429Count, snap.AvgLatencyMs,
		snap.ThrottleMinDelayMs, snap.ThrottleConcurrency, snap.StallDetected)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot reads the durable snapshot row for cache warm-start.
func (s *Postgres) GetSnapshot(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}

	row := s.pool.QueryRow(ctx, `
		SELECT job_id, tenant_id, user_id, state, processed, total, completed, failed,
			current_product_id, current_step, retry_at, last_retry_after_seconds,
			last_event_at, updated_at, created_at, total_requests, requests_last_60s,
			error_429_count, avg_latency_ms, throttle_min_delay_ms, throttle_concurrency,
			stall_detected
		FROM sync_jobs WHERE job_id = $1
	`, jobID)

	var snap models.JobSnapshot
	var userID pgtype.Text
	err := row.Scan(&snap.JobID, &snap.TenantID, &userID, &snap.State, &snap.Processed,
		&snap.Total, &snap.Completed, &snap.Failed, &snap.CurrentProductID, &snap.CurrentStep,
		&snap.RetryAt, &snap.LastRetryAfterSeconds, &snap.LastEventAt, &snap.UpdatedAt,
		&snap.CreatedAt, &snap.TotalRequests, &snap.RequestsLast60s, &snap.Error429Count,
		&snap.AvgLatencyMs, &snap.ThrottleMinDelayMs, &snap.ThrottleConcurrency, &snap.StallDetected)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.UserID = textPtr(userID)
	return &snap, nil
}

// ListEvents returns up to limit events for jobID, newest first, strictly
// older than beforeMs when it is set.
func (s *Postgres) ListEvents(ctx context.Context, jobID string, limit int, beforeMs int64) ([]models.SyncEvent, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}

	query := `
		SELECT id, job_id, timestamp_ms, workspace_id, user_id, product_id, listing_id,
			operation, http_method, endpoint_path, status_code, duration_ms, request_id,
			retry_after_seconds, rate_limit_headers, error_code, error_message,
			payload_summary, response_snippet
		FROM sync_events
		WHERE job_id = $1`
	args := []any{jobID}
	if beforeMs > 0 {
		query += ` AND timestamp_ms < $2`
		args = append(args, beforeMs)
	}
	query += fmt.Sprintf(` ORDER BY timestamp_ms DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.SyncEvent
	for rows.Next() {
		var ev models.SyncEvent
		var userID, requestID pgtype.Text
		var statusCode pgtype.Int4
		var retryAfter pgtype.Int8
		var headersJSON []byte
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.TimestampMs, &ev.WorkspaceID, &userID,
			&ev.ProductID, &ev.ListingID, &ev.Operation, &ev.HTTPMethod, &ev.EndpointPath,
			&statusCode, &ev.DurationMs, &requestID, &retryAfter, &headersJSON,
			&ev.ErrorCode, &ev.ErrorMessage, &ev.PayloadSummary, &ev.ResponseSnippet); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.UserID = textPtr(userID)
		ev.RequestID = textPtr(requestID)
		if statusCode.Valid {
			code := int(statusCode.Int32)
			ev.StatusCode = &code
		}
		if retryAfter.Valid {
			secs := retryAfter.Int64
			ev.RetryAfterSeconds = &secs
		}
		if len(headersJSON) > 0 {
			if err := json.Unmarshal(headersJSON, &ev.RateLimitHeaders); err != nil {
				return nil, fmt.Errorf("unmarshal rate limit headers: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CountEventsSince counts events with timestamp_ms >= sinceMs.
func (s *Postgres) CountEventsSince(ctx context.Context, jobID string, sinceMs int64) (int64, error) {
	if !s.ready.Load() {
		return 0, ErrNotReady
	}

	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sync_events WHERE job_id = $1 AND timestamp_ms >= $2
	`, jobID, sinceMs).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ActiveJobIDs lists jobs updated at or after sinceMs in any of the given states.
func (s *Postgres) ActiveJobIDs(ctx context.Context, sinceMs int64, states []string) ([]string, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}

	rows, err := s.pool.Query(ctx, `
		SELECT job_id FROM sync_jobs
		WHERE updated_at >= $1 AND state = ANY($2)
		ORDER BY updated_at DESC
	`, sinceMs, states)
	if err != nil {
		return nil, fmt.Errorf("query active jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active jobs: %w", err)
	}
	return ids, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
