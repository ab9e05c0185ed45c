package ledger

import (
	"context"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// ClaimResult is the outcome of a TryBook call.
type ClaimResult int

const (
	Claimed ClaimResult = iota
	AlreadyBooked
)

func (r ClaimResult) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "already_booked"
}

// Ledger is the single source of truth for slot booking state.
//
// TryBook must guarantee that at most one caller observes Claimed for a given
// key, under arbitrary interleaving. Release is idempotent: releasing an
// unbooked slot is a no-op. Operations on distinct keys do not contend.
type Ledger interface {
	TryBook(ctx context.Context, key model.SlotKey) (ClaimResult, error)
	Release(ctx context.Context, key model.SlotKey) error
	IsBooked(ctx context.Context, key model.SlotKey) (bool, error)
}
