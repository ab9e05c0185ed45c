package model

import (
	"errors"
	"fmt"
	"time"
)

// OperatingWindow is a branch's default open/close interval for one weekday.
type OperatingWindow struct {
	BranchID string
	Weekday  time.Weekday
	OpenAt   time.Duration
	CloseAt  time.Duration
	Closed   bool
}

func (w OperatingWindow) Validate() error {
	if w.Closed {
		return nil
	}
	if w.OpenAt >= w.CloseAt {
		return fmt.Errorf("operating window %s: open %s must be before close %s",
			w.Weekday, FormatClock(w.OpenAt), FormatClock(w.CloseAt))
	}
	return nil
}

// OperationHoursOverride replaces the weekday default for one specific date.
// An override whose effective date has passed is inert: it stays stored but
// must never be applied when computing availability.
type OperationHoursOverride struct {
	BranchID      string
	EffectiveDate time.Time // date only, UTC midnight
	OpenAt        time.Duration
	CloseAt       time.Duration
	Closed        bool
	Reason        string
}

// Validate enforces construction-time rules: open strictly before close, a
// closed override carries a reason, and the effective date is today or later.
func (o OperationHoursOverride) Validate(today time.Time) error {
	if !o.Closed && o.OpenAt >= o.CloseAt {
		return fmt.Errorf("override for %s: open %s must be before close %s",
			o.EffectiveDate.Format(DateLayout), FormatClock(o.OpenAt), FormatClock(o.CloseAt))
	}
	if o.Closed && o.Reason == "" {
		return errors.New("closed override must carry a reason")
	}
	if o.EffectiveDate.Before(Date(today)) {
		return fmt.Errorf("override effective date %s must not be in the past",
			o.EffectiveDate.Format(DateLayout))
	}
	return nil
}

// Expired reports whether the override's effective date is behind now.
// Expiry is a read-time filter; expired rows are kept, not deleted.
func (o OperationHoursOverride) Expired(now time.Time) bool {
	return o.EffectiveDate.Before(Date(now))
}
