package ledger

import (
	"context"
	"sync"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// MemoryLedger keeps slot claims in process memory. Suitable for a single
// service instance and for tests; multi-instance deployments use PGLedger.
type MemoryLedger struct {
	mu    sync.Mutex
	slots map[string]*slotState
}

type slotState struct {
	mu     sync.Mutex
	booked bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{slots: map[string]*slotState{}}
}

// state returns the per-key entry, creating it on first use. The outer lock
// only guards map access; booking state is guarded per key so unrelated
// slots never contend.
func (l *MemoryLedger) state(key model.SlotKey) *slotState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key.String()]
	if !ok {
		s = &slotState{}
		l.slots[key.String()] = s
	}
	return s
}

func (l *MemoryLedger) TryBook(_ context.Context, key model.SlotKey) (ClaimResult, error) {
	s := l.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booked {
		return AlreadyBooked, nil
	}
	s.booked = true
	return Claimed, nil
}

func (l *MemoryLedger) Release(_ context.Context, key model.SlotKey) error {
	s := l.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked = false
	return nil
}

func (l *MemoryLedger) IsBooked(_ context.Context, key model.SlotKey) (bool, error) {
	s := l.state(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booked, nil
}
