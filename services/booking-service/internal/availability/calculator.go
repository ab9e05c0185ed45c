package availability

import (
	"errors"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// ErrInvalidWindow indicates operating-hours data where open is not strictly
// before close. Upstream validation should prevent it, but the calculator is
// the last gate before slot generation and rejects it itself.
var ErrInvalidWindow = errors.New("operating window open time must be before close time")

// Input carries everything Calculate needs for one branch/day. Now is passed
// in so override expiry stays a caller-observable, testable filter.
type Input struct {
	BranchID     string
	Date         time.Time
	Windows      map[time.Weekday]model.OperatingWindow
	Override     *model.OperationHoursOverride
	Holiday      bool
	SlotDuration time.Duration
	Now          time.Time
}

// Calculate derives the ordered slot candidates for a branch on a date.
//
// Precedence: a non-expired override fully replaces the weekday default,
// including reopening a holiday. Without an override, a holiday closes the
// branch. Slots run back-to-back from open to close; a trailing remainder
// shorter than the slot duration is dropped.
func Calculate(in Input) ([]model.Slot, error) {
	if in.SlotDuration <= 0 {
		return nil, errors.New("slot duration must be positive")
	}

	date := model.Date(in.Date)

	openAt, closeAt, closed := resolveHours(in, date)
	if closed {
		return nil, nil
	}
	if openAt >= closeAt {
		return nil, ErrInvalidWindow
	}

	var slots []model.Slot
	seq := 0
	for start := openAt; start+in.SlotDuration <= closeAt; start += in.SlotDuration {
		slots = append(slots, model.Slot{
			BranchID: in.BranchID,
			Day:      date,
			Start:    start,
			End:      start + in.SlotDuration,
			Sequence: seq,
		})
		seq++
	}
	return slots, nil
}

func resolveHours(in Input, date time.Time) (openAt, closeAt time.Duration, closed bool) {
	if o := in.Override; o != nil && !o.Expired(in.Now) && model.Date(o.EffectiveDate).Equal(date) {
		return o.OpenAt, o.CloseAt, o.Closed
	}
	if in.Holiday {
		return 0, 0, true
	}
	w, ok := in.Windows[date.Weekday()]
	if !ok || w.Closed {
		return 0, 0, true
	}
	return w.OpenAt, w.CloseAt, false
}
