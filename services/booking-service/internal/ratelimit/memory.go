package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps rate-limit records in process memory. Records are purged
// by the janitor only after sitting idle for the retention period, which is
// far longer than any window or cooldown, so a record still inside its
// window is never removed.
type MemoryStore struct {
	mu        sync.Mutex
	recs      map[string]Record
	retention time.Duration
}

const defaultRetention = 24 * time.Hour

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]Record{}, retention: defaultRetention}
}

func storeKey(identifier string, purpose Purpose) string {
	return identifier + ":" + string(purpose)
}

func (s *MemoryStore) RecordAttempt(_ context.Context, identifier string, purpose Purpose, window time.Duration, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(identifier, purpose)
	rec, ok := s.recs[key]
	if !ok || now.Sub(rec.WindowStartAt) >= window {
		rec = Record{
			Identifier:    identifier,
			Purpose:       purpose,
			Attempts:      1,
			WindowStartAt: now,
		}
	} else {
		rec.Attempts++
	}
	rec.LastAttemptAt = now
	s.recs[key] = rec
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, identifier string, purpose Purpose) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[storeKey(identifier, purpose)]
	return rec, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier string, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, storeKey(identifier, purpose))
	return nil
}

// purgeIdle drops records whose last attempt is older than the retention.
func (s *MemoryStore) purgeIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, rec := range s.recs {
		if now.Sub(rec.LastAttemptAt) >= s.retention {
			delete(s.recs, key)
			purged++
		}
	}
	return purged
}

// Janitor periodically purges idle records from the memory store.
func (s *MemoryStore) Janitor(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.purgeIdle(time.Now()); n > 0 {
				logger.Debug("purged idle rate-limit records", "count", n)
			}
		}
	}
}
