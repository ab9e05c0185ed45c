package availability

import (
	"context"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/holiday"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// HoursSource reads a branch's weekly defaults and date overrides.
type HoursSource interface {
	Windows(ctx context.Context, branchID string) (map[time.Weekday]model.OperatingWindow, error)
	Override(ctx context.Context, branchID string, date, now time.Time) (*model.OperationHoursOverride, error)
}

// ClaimsSource reports which slots on a day are already held.
type ClaimsSource interface {
	BookedSlotKeys(ctx context.Context, branchID string, day model.Day) (map[string]struct{}, error)
}

// Provider assembles calculator inputs from storage and the holiday source.
// It implements the slot source the booking service books against.
type Provider struct {
	hours    HoursSource
	holidays holiday.Checker
	claims   ClaimsSource
	slotLen  time.Duration
	now      func() time.Time
}

func NewProvider(hours HoursSource, holidays holiday.Checker, claims ClaimsSource, slotLen time.Duration) *Provider {
	return &Provider{
		hours:    hours,
		holidays: holidays,
		claims:   claims,
		slotLen:  slotLen,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Candidates returns every structural slot for the branch on the day,
// regardless of claims. Claim contention is settled at booking time.
func (p *Provider) Candidates(ctx context.Context, branchID string, day time.Time) ([]model.Slot, error) {
	in, err := p.input(ctx, branchID, day)
	if err != nil {
		return nil, err
	}
	return Calculate(in)
}

// ListOpen returns the day's slots with already-claimed ones flagged, for
// presenting availability to customers.
func (p *Provider) ListOpen(ctx context.Context, branchID string, day time.Time) ([]model.Slot, error) {
	slots, err := p.Candidates(ctx, branchID, day)
	if err != nil || len(slots) == 0 {
		return slots, err
	}

	booked, err := p.claims.BookedSlotKeys(ctx, branchID, model.NewDay(day, false))
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if _, ok := booked[slots[i].Key().String()]; ok {
			slots[i].Booked = true
		}
	}
	return slots, nil
}

func (p *Provider) input(ctx context.Context, branchID string, day time.Time) (Input, error) {
	now := p.now()
	date := model.Date(day)

	windows, err := p.hours.Windows(ctx, branchID)
	if err != nil {
		return Input{}, err
	}
	override, err := p.hours.Override(ctx, branchID, date, now)
	if err != nil {
		return Input{}, err
	}
	isHoliday, err := p.holidays.IsHoliday(ctx, date)
	if err != nil {
		return Input{}, err
	}

	return Input{
		BranchID:     branchID,
		Date:         date,
		Windows:      windows,
		Override:     override,
		Holiday:      isHoliday,
		SlotDuration: p.slotLen,
		Now:          now,
	}, nil
}
