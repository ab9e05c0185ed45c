package model

import "time"

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusBooked      AppointmentStatus = "booked"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusCompleted   AppointmentStatus = "completed"
)

// CanTransition reports whether moving from s to next is a legal status change.
// Cancelled, rescheduled and completed are terminal.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusBooked
	case StatusBooked:
		return next == StatusCancelled || next == StatusRescheduled || next == StatusCompleted
	default:
		return false
	}
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRescheduled || s == StatusCompleted
}

// TriggerActor identifies who initiated a state change.
type TriggerActor string

const (
	TriggeredByCustomer TriggerActor = "customer"
	TriggeredByStaff    TriggerActor = "staff"
	TriggeredBySystem   TriggerActor = "system"
)

type Appointment struct {
	ID         string
	Reference  string
	BranchID   string
	CustomerID string
	Day        time.Time // date only, UTC midnight
	Start      time.Duration
	End        time.Duration
	Sequence   int
	Status     AppointmentStatus
	CreatedAt  time.Time
}

// SlotKey returns the ledger key for the slot this appointment occupies.
func (a Appointment) SlotKey() SlotKey {
	return SlotKey{
		BranchID: a.BranchID,
		Day:      a.Day,
		Start:    a.Start,
		End:      a.End,
		Sequence: a.Sequence,
	}
}
