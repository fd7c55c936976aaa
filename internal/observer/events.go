package observer

import (
	"context"

	"listing-sync/internal/models"
)

// EventPage is one page of a job's event history, newest first.
type EventPage struct {
	Events []models.SyncEvent `json:"events"`
	// NextCursor is the timestamp_ms of the last returned event when more
	// pages exist, nil otherwise.
	NextCursor *int64 `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// GetEvents pages through the durable event log in reverse chronological
// order. cursor, when > 0, is the timestamp_ms of the last event of the
// previous page; only strictly older events are returned, so pages stay
// stable while new events keep arriving.
func (o *Observer) GetEvents(ctx context.Context, jobID string, limit int, cursor int64) (EventPage, error) {
	if limit <= 0 {
		limit = 50
	}

	// One extra row answers has-more without a count query.
	rows, err := o.store.ListEvents(ctx, jobID, limit+1, cursor)
	if err != nil {
		return EventPage{}, err
	}

	page := EventPage{Events: rows}
	if len(rows) > limit {
		page.Events = rows[:limit]
		page.HasMore = true
		last := page.Events[len(page.Events)-1].TimestampMs
		page.NextCursor = &last
	}
	if page.Events == nil {
		page.Events = []models.SyncEvent{}
	}
	return page, nil
}
