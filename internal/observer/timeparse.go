package observer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// epochMillis normalizes the heterogeneous timestamp representations the
// job runner sends for retry_at (time values, RFC3339 strings, bare epoch-ms
// numbers) into epoch milliseconds. This is the single conversion point;
// nothing heterogeneous reaches the snapshot or storage.
func epochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UnixMilli(), true
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
