package models

// JobState enumerates lifecycle states persisted in Postgres.
const (
	StateRunning       = "RUNNING"
	StatePaused        = "PAUSED"
	StatePausedRateLim = "PAUSED_RATE_LIMIT"
	StateCompleted     = "COMPLETED"
	StateFailed        = "FAILED"
)

// ActiveStates are the states a dashboard considers live when rehydrating
// its job picker.
var ActiveStates = []string{StateRunning, StatePaused, StatePausedRateLim}

// JobSnapshot is the continuously-mutated aggregate for one sync job.
// The in-memory copy is authoritative for reads; the Postgres row is the
// crash-recovery copy and may lag slightly.
type JobSnapshot struct {
	JobID    string  `json:"job_id"`
	TenantID string  `json:"tenant_id"`
	UserID   *string `json:"user_id,omitempty"`

	State string `json:"state"`

	Processed int64 `json:"processed"`
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`

	CurrentProductID string `json:"current_product_id,omitempty"`
	CurrentStep      string `json:"current_step,omitempty"`

	RetryAt               int64 `json:"retry_at,omitempty"`
	LastRetryAfterSeconds int64 `json:"last_retry_after_seconds,omitempty"`

	LastEventAt int64 `json:"last_event_at"`
	UpdatedAt   int64 `json:"updated_at"`
	CreatedAt   int64 `json:"created_at"`

	TotalRequests int64 `json:"total_requests"`

	// RequestsLast60s is a monotonically-incremented approximation of the
	// trailing 60s request count. It is periodically overwritten with an
	// exact count from the durable event log.
	RequestsLast60s int64 `json:"requests_last_60s"`
	Error429Count   int64 `json:"error_429_count"`
	AvgLatencyMs    int64 `json:"avg_latency_ms"`

	ThrottleMinDelayMs  int64 `json:"throttle_min_delay_ms,omitempty"`
	ThrottleConcurrency int64 `json:"throttle_concurrency,omitempty"`

	StallDetected bool `json:"stall_detected"`
}
