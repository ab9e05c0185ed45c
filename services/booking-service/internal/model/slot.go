package model

import (
	"fmt"
	"time"
)

// Slot is a bookable interval at a branch. Sequence disambiguates slots that
// share the same day and start time; duration is always End-Start.
type Slot struct {
	BranchID string
	Day      time.Time // date only, UTC midnight
	Start    time.Duration
	End      time.Duration
	Sequence int
	Booked   bool
}

func (s Slot) Key() SlotKey {
	return SlotKey{
		BranchID: s.BranchID,
		Day:      s.Day,
		Start:    s.Start,
		End:      s.End,
		Sequence: s.Sequence,
	}
}

func (s Slot) StartTime() time.Time { return s.Day.Add(s.Start) }
func (s Slot) EndTime() time.Time   { return s.Day.Add(s.End) }

// SlotKey identifies a slot for booking-state purposes.
type SlotKey struct {
	BranchID string
	Day      time.Time
	Start    time.Duration
	End      time.Duration
	Sequence int
}

// String renders a stable key usable as a map key or database column.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		k.BranchID,
		k.Day.Format(DateLayout),
		FormatClock(k.Start),
		FormatClock(k.End),
		k.Sequence,
	)
}

const DateLayout = "2006-01-02"

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as "HH:MM".
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
