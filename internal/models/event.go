package models

import "unicode/utf8"

// Truncation limits applied when normalizing raw event input. Oversized
// diagnostics are clipped, never rejected.
const (
	MaxErrorMessageLen    = 500
	MaxPayloadSummaryLen  = 200
	MaxResponseSnippetLen = 1000
)

// SyncEvent is an immutable record of one outbound network call made while
// executing a sync job.
type SyncEvent struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	TimestampMs int64  `json:"timestamp_ms"`

	WorkspaceID string  `json:"workspace_id,omitempty"`
	UserID      *string `json:"user_id,omitempty"`
	ProductID   string  `json:"product_id,omitempty"`
	ListingID   string  `json:"listing_id,omitempty"`

	Operation    string `json:"operation"`
	HTTPMethod   string `json:"http_method,omitempty"`
	EndpointPath string `json:"endpoint_path,omitempty"`

	// StatusCode is nil when the call failed at the transport level and no
	// response was received.
	StatusCode *int    `json:"status_code,omitempty"`
	DurationMs int64   `json:"duration_ms"`
	RequestID  *string `json:"request_id,omitempty"`

	RetryAfterSeconds *int64            `json:"retry_after_seconds,omitempty"`
	RateLimitHeaders  map[string]string `json:"rate_limit_headers,omitempty"`

	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	PayloadSummary  string `json:"payload_summary,omitempty"`
	ResponseSnippet string `json:"response_snippet,omitempty"`
}

// Truncate clips s to at most max bytes without splitting a rune; the
// result is always valid UTF-8 when the input is.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Normalize applies the truncation limits in place.
func (e *SyncEvent) Normalize() {
	e.ErrorMessage = Truncate(e.ErrorMessage, MaxErrorMessageLen)
	e.PayloadSummary = Truncate(e.PayloadSummary, MaxPayloadSummaryLen)
	e.ResponseSnippet = Truncate(e.ResponseSnippet, MaxResponseSnippetLen)
}
