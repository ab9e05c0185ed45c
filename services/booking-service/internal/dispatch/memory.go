package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRetryStore keeps retry records in process memory. Used when the
// service runs without Postgres, and by tests. FetchDue marks claimed
// records as processing so concurrent sweeps skip them.
type MemoryRetryStore struct {
	mu     sync.Mutex
	nextID int64
	recs   map[int64]*memoryRecord
}

type memoryRecord struct {
	RetryRecord
	processing bool
}

func NewMemoryRetryStore() *MemoryRetryStore {
	return &MemoryRetryStore{recs: map[int64]*memoryRecord{}}
}

func (s *MemoryRetryStore) Insert(_ context.Context, rec RetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.recs[rec.ID] = &memoryRecord{RetryRecord: rec}
	return nil
}

func (s *MemoryRetryStore) FetchDue(_ context.Context, now time.Time, limit int) ([]RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*memoryRecord
	for _, r := range s.recs {
		if !r.Dead && !r.processing && !r.NextRetryAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]RetryRecord, 0, len(due))
	for _, r := range due {
		r.processing = true
		out = append(out, r.RetryRecord)
	}
	return out, nil
}

func (s *MemoryRetryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *MemoryRetryStore) MarkFailed(_ context.Context, id int64, attempts int, nextRetryAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil
	}
	r.Attempts = attempts
	r.NextRetryAt = nextRetryAt
	r.LastError = lastError
	r.processing = false
	return nil
}

func (s *MemoryRetryStore) MarkDead(_ context.Context, id int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil
	}
	r.Dead = true
	r.LastError = lastError
	r.processing = false
	return nil
}

// Pending returns the live (not dead) records, for inspection in tests.
func (s *MemoryRetryStore) Pending() []RetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RetryRecord
	for _, r := range s.recs {
		if !r.Dead {
			out = append(out, r.RetryRecord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dead returns the dead-lettered records, for inspection in tests.
func (s *MemoryRetryStore) DeadRecords() []RetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RetryRecord
	for _, r := range s.recs {
		if r.Dead {
			out = append(out, r.RetryRecord)
		}
	}
	return out
}
