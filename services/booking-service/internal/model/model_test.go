package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusBooked, true},
		{StatusBooked, StatusCancelled, true},
		{StatusBooked, StatusRescheduled, true},
		{StatusBooked, StatusCompleted, true},
		{StatusBooked, StatusBooked, false},
		{StatusCancelled, StatusBooked, false},
		{StatusRescheduled, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusPending, StatusCancelled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOverrideValidate(t *testing.T) {
	today := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	valid := OperationHoursOverride{
		BranchID:      "branch-1",
		EffectiveDate: Date(today),
		OpenAt:        9 * time.Hour,
		CloseAt:       12 * time.Hour,
	}
	if err := valid.Validate(today); err != nil {
		t.Fatalf("valid override rejected: %v", err)
	}

	inverted := valid
	inverted.OpenAt, inverted.CloseAt = inverted.CloseAt, inverted.OpenAt
	if err := inverted.Validate(today); err == nil {
		t.Fatal("open after close should be rejected")
	}

	closedNoReason := OperationHoursOverride{
		BranchID:      "branch-1",
		EffectiveDate: Date(today),
		Closed:        true,
	}
	if err := closedNoReason.Validate(today); err == nil {
		t.Fatal("closed override without reason should be rejected")
	}
	closedNoReason.Reason = "maintenance"
	if err := closedNoReason.Validate(today); err != nil {
		t.Fatalf("closed override with reason rejected: %v", err)
	}

	past := valid
	past.EffectiveDate = Date(today).AddDate(0, 0, -1)
	if err := past.Validate(today); err == nil {
		t.Fatal("past effective date should be rejected")
	}
}

func TestOverrideExpired(t *testing.T) {
	o := OperationHoursOverride{EffectiveDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)}
	if o.Expired(time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("override is not expired on its effective date")
	}
	if !o.Expired(time.Date(2026, 9, 2, 0, 30, 0, 0, time.UTC)) {
		t.Fatal("override is expired the day after its effective date")
	}
}

func TestSlotKeyString(t *testing.T) {
	k := SlotKey{
		BranchID: "branch-1",
		Day:      time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Start:    9 * time.Hour,
		End:      9*time.Hour + 30*time.Minute,
		Sequence: 0,
	}
	want := "branch-1|2026-09-07|09:00|09:30|0"
	if k.String() != want {
		t.Fatalf("SlotKey.String() = %q, want %q", k.String(), want)
	}
}

func TestParseClockRoundTrip(t *testing.T) {
	d, err := ParseClock("14:45")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if d != 14*time.Hour+45*time.Minute {
		t.Fatalf("ParseClock = %s", d)
	}
	if got := FormatClock(d); got != "14:45" {
		t.Fatalf("FormatClock = %q", got)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("ParseClock should reject 25:00")
	}
}
