package audit

import (
	"context"
	"sync"
)

// MemorySink keeps audit records in memory, newest first on reads
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
	alerts  []Alert
}

// NewMemorySink creates an in-memory audit sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// RecordEvent implements Sink
func (s *MemorySink) RecordEvent(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// RecordAlert implements Sink
func (s *MemorySink) RecordAlert(ctx context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (q Query) matchesEntry(e Entry) bool {
	if q.Account != "" && e.Account != q.Account {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.From != nil && e.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.CreatedAt.After(*q.To) {
		return false
	}
	return true
}

func (q Query) matchesAlert(a Alert) bool {
	if q.Account != "" && a.Account != q.Account {
		return false
	}
	if q.Action != "" && a.Action != q.Action {
		return false
	}
	if q.From != nil && a.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && a.CreatedAt.After(*q.To) {
		return false
	}
	return true
}

// ListEvents implements Sink
func (s *MemorySink) ListEvents(ctx context.Context, q Query) ([]Entry, int64, error) {
	q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if q.matchesEntry(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	return paginate(matched, q), int64(len(matched)), nil
}

// ListAlerts implements Sink
func (s *MemorySink) ListAlerts(ctx context.Context, q Query) ([]Alert, int64, error) {
	q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if q.matchesAlert(s.alerts[i]) {
			matched = append(matched, s.alerts[i])
		}
	}
	return paginate(matched, q), int64(len(matched)), nil
}

func paginate[T any](items []T, q Query) []T {
	start := (q.Page - 1) * q.PageSize
	if start >= int64(len(items)) {
		return nil
	}
	end := start + q.PageSize
	if end > int64(len(items)) {
		end = int64(len(items))
	}
	return items[start:end]
}
