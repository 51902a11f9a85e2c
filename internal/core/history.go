package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit caps History results when no limit is given.
const DefaultHistoryLimit = 50

// HistoryStore persists finished imports.
type HistoryStore interface {
	// Record stores a finished import. Recording the same ImportID twice
	// replaces the earlier entry.
	Record(ctx context.Context, entry ImportStatus) error

	// List returns the newest entries for an event, newest first.
	List(ctx context.Context, eventID string, limit int) ([]ImportStatus, error)

	// Purge deletes entries that finished before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries map[string]ImportStatus // by ImportID
}

// NewMemoryHistory creates an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string]ImportStatus)}
}

// Record stores entry.
func (h *MemoryHistory) Record(_ context.Context, entry ImportStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[entry.ImportID] = entry
	return nil
}

// List returns up to limit entries for eventID, newest first.
func (h *MemoryHistory) List(_ context.Context, eventID string, limit int) ([]ImportStatus, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.RLock()
	out := make([]ImportStatus, 0)
	for _, e := range h.entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return startedAt(out[i]).After(startedAt(out[j]))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Purge removes entries that finished before cutoff.
func (h *MemoryHistory) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var n int64
	for id, e := range h.entries {
		if e.FinishedAt != nil && e.FinishedAt.Before(cutoff) {
			delete(h.entries, id)
			n++
		}
	}
	return n, nil
}

func startedAt(s ImportStatus) time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return *s.StartedAt
}
