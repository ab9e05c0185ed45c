package booking

import "errors"

var (
	// ErrSlotUnavailable is the normal contention outcome: the slot was taken
	// between the availability read and the claim. Callers re-query and retry.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidStateTransition means the operation is illegal for the
	// appointment's current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrAppointmentNotFound = errors.New("appointment not found")
)
