package store

import (
	"context"
	"sort"
	"sync"

	"listing-sync/internal/models"
)

// Memory is an in-process Store used by tests and the simulator. It honors
// the same contract as Postgres, including the not-ready write behavior.
type Memory struct {
	mu     sync.Mutex
	ready  bool
	snaps  map[string]models.JobSnapshot
	events map[string][]models.SyncEvent
}

func NewMemory() *Memory {
	return &Memory{
		ready:  true,
		snaps:  make(map[string]models.JobSnapshot),
		events: make(map[string][]models.SyncEvent),
	}
}

// SetReady toggles the not-ready startup condition.
func (m *Memory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *Memory) PersistEvent(_ context.Context, ev models.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotReady
	}
	m.events[ev.JobID] = append(m.events[ev.JobID], ev)
	return nil
}

func (m *Memory) UpsertSnapshot(_ context.Context, snap models.JobSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotReady
	}
	m.snaps[snap.JobID] = snap
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, jobID string) (*models.JobSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNotReady
	}
	snap, ok := m.snaps[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := snap
	return &out, nil
}

func (m *Memory) ListEvents(_ context.Context, jobID string, limit int, beforeMs int64) ([]models.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNotReady
	}

	all := m.events[jobID]
	filtered := make([]models.SyncEvent, 0, len(all))
	for _, ev := range all {
		if beforeMs > 0 && ev.TimestampMs >= beforeMs {
			continue
		}
		filtered = append(filtered, ev)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].TimestampMs > filtered[j].TimestampMs
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *Memory) CountEventsSince(_ context.Context, jobID string, sinceMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return 0, ErrNotReady
	}

	var n int64
	for _, ev := range m.events[jobID] {
		if ev.TimestampMs >= sinceMs {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ActiveJobIDs(_ context.Context, sinceMs int64, states []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrNotReady
	}

	stateSet := make(map[string]struct{}, len(states))
	for _, s := range states {
		stateSet[s] = struct{}{}
	}

	type entry struct {
		id        string
		updatedAt int64
	}
	var matched []entry
	for id, snap := range m.snaps {
		if snap.UpdatedAt < sinceMs {
			continue
		}
		if _, ok := stateSet[snap.State]; !ok {
			continue
		}
		matched = append(matched, entry{id: id, updatedAt: snap.UpdatedAt})
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].updatedAt > matched[j].updatedAt
	})

	ids := make([]string, 0, len(matched))
	for _, e := range matched {
		ids = append(ids, e.id)
	}
	return ids, nil
}
