package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/dispatch"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/event"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/ledger"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// SlotSource supplies the valid slot candidates for a branch/day, before any
// booking-state check.
type SlotSource interface {
	Candidates(ctx context.Context, branchID string, day time.Time) ([]model.Slot, error)
}

// AppointmentStore persists appointments. UpdateStatus is conditional on the
// current status and reports whether a row changed, so status transitions
// stay race-free without a separate lock.
type AppointmentStore interface {
	Create(ctx context.Context, appt model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from, to model.AppointmentStatus) (bool, error)
}

// EventDispatcher hands domain events off for at-least-once delivery.
type EventDispatcher interface {
	Dispatch(ctx context.Context, evt event.Event) dispatch.Result
}

// Service drives appointments through their state machine. Booking claims
// the slot before persisting; cancellation and rescheduling transition the
// stored status first and release slots after, so a failed transition never
// frees a slot that is still owned.
type Service struct {
	slots  SlotSource
	ledger ledger.Ledger
	store  AppointmentStore
	events EventDispatcher
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(slots SlotSource, l ledger.Ledger, store AppointmentStore, events EventDispatcher, logger *slog.Logger) *Service {
	return &Service{
		slots:  slots,
		ledger: l,
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Book claims the requested slot and persists a booked appointment. The
// request must match a calculator candidate exactly; contention surfaces as
// ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, branchID string, day time.Time, start, end time.Duration, customerID string) (model.Appointment, error) {
	slot, err := s.findCandidate(ctx, branchID, day, start, end)
	if err != nil {
		return model.Appointment{}, err
	}

	res, err := s.ledger.TryBook(ctx, slot.Key())
	if err != nil {
		return model.Appointment{}, err
	}
	if res == ledger.AlreadyBooked {
		return model.Appointment{}, ErrSlotUnavailable
	}

	now := s.now()
	appt := model.Appointment{
		ID:         s.newID(),
		Reference:  NewReference(now.Year()),
		BranchID:   branchID,
		CustomerID: customerID,
		Day:        slot.Day,
		Start:      slot.Start,
		End:        slot.End,
		Sequence:   slot.Sequence,
		Status:     model.StatusBooked,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, appt); err != nil {
		// No partial state: give the claim back before reporting failure.
		if relErr := s.ledger.Release(ctx, slot.Key()); relErr != nil {
			s.logger.Error("slot release after failed create", "err", relErr, "slot", slot.Key().String())
		}
		return model.Appointment{}, err
	}

	s.events.Dispatch(ctx, event.AppointmentBooked{
		ID:            s.newID(),
		AppointmentID: appt.ID,
		Reference:     appt.Reference,
		BranchID:      appt.BranchID,
		CustomerID:    appt.CustomerID,
		Day:           appt.Day.Format(model.DateLayout),
		Start:         model.FormatClock(appt.Start),
		End:           model.FormatClock(appt.End),
		OccurredAt:    now,
	})
	return appt, nil
}

// Cancel moves a booked appointment to cancelled and frees its slot.
func (s *Service) Cancel(ctx context.Context, appointmentID string, triggeredBy model.TriggerActor) (model.Appointment, error) {
	appt, err := s.transition(ctx, appointmentID, model.StatusCancelled)
	if err != nil {
		return model.Appointment{}, err
	}

	if err := s.ledger.Release(ctx, appt.SlotKey()); err != nil {
		s.logger.Error("slot release on cancel", "err", err, "appointment_id", appt.ID)
	}

	s.events.Dispatch(ctx, event.CustomerCanceledAppointment{
		ID:             s.newID(),
		AppointmentID:  appt.ID,
		Reference:      appt.Reference,
		BranchID:       appt.BranchID,
		CustomerID:     appt.CustomerID,
		PreviousStatus: string(model.StatusBooked),
		NewStatus:      string(model.StatusCancelled),
		TriggeredBy:    triggeredBy,
		OccurredAt:     s.now(),
	})
	appt.Status = model.StatusCancelled
	return appt, nil
}

// Reschedule claims the new slot before touching the original booking: if
// the new slot is taken the original appointment is untouched. On success
// the original becomes rescheduled, its slot is freed, and a new booked
// appointment (same reference) is created on the new slot.
func (s *Service) Reschedule(ctx context.Context, appointmentID string, newDay time.Time, newStart, newEnd time.Duration, triggeredBy model.TriggerActor) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status != model.StatusBooked {
		return model.Appointment{}, ErrInvalidStateTransition
	}

	newSlot, err := s.findCandidate(ctx, appt.BranchID, newDay, newStart, newEnd)
	if err != nil {
		return model.Appointment{}, err
	}

	res, err := s.ledger.TryBook(ctx, newSlot.Key())
	if err != nil {
		return model.Appointment{}, err
	}
	if res == ledger.AlreadyBooked {
		return model.Appointment{}, ErrSlotUnavailable
	}

	changed, err := s.store.UpdateStatus(ctx, appt.ID, model.StatusBooked, model.StatusRescheduled)
	if err != nil || !changed {
		if relErr := s.ledger.Release(ctx, newSlot.Key()); relErr != nil {
			s.logger.Error("new slot release after failed transition", "err", relErr, "appointment_id", appt.ID)
		}
		if err != nil {
			return model.Appointment{}, err
		}
		return model.Appointment{}, ErrInvalidStateTransition
	}

	now := s.now()
	newAppt := model.Appointment{
		ID:         s.newID(),
		Reference:  appt.Reference,
		BranchID:   appt.BranchID,
		CustomerID: appt.CustomerID,
		Day:        newSlot.Day,
		Start:      newSlot.Start,
		End:        newSlot.End,
		Sequence:   newSlot.Sequence,
		Status:     model.StatusBooked,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, newAppt); err != nil {
		// Roll the transition back so the caller sees either both effects
		// or neither.
		if relErr := s.ledger.Release(ctx, newSlot.Key()); relErr != nil {
			s.logger.Error("new slot release after failed create", "err", relErr, "appointment_id", appt.ID)
		}
		if _, revErr := s.store.UpdateStatus(ctx, appt.ID, model.StatusRescheduled, model.StatusBooked); revErr != nil {
			s.logger.Error("status revert after failed create", "err", revErr, "appointment_id", appt.ID)
		}
		return model.Appointment{}, err
	}

	if err := s.ledger.Release(ctx, appt.SlotKey()); err != nil {
		s.logger.Error("old slot release on reschedule", "err", err, "appointment_id", appt.ID)
	}

	s.events.Dispatch(ctx, event.CustomerRescheduledAppointment{
		ID:               s.newID(),
		AppointmentID:    appt.ID,
		NewAppointmentID: newAppt.ID,
		Reference:        appt.Reference,
		BranchID:         appt.BranchID,
		CustomerID:       appt.CustomerID,
		PreviousStatus:   string(model.StatusBooked),
		NewStatus:        string(model.StatusRescheduled),
		NewDay:           newAppt.Day.Format(model.DateLayout),
		NewStart:         model.FormatClock(newAppt.Start),
		NewEnd:           model.FormatClock(newAppt.End),
		TriggeredBy:      triggeredBy,
		OccurredAt:       now,
	})
	return newAppt, nil
}

// Complete marks a booked appointment as attended. The slot stays consumed.
func (s *Service) Complete(ctx context.Context, appointmentID string, triggeredBy model.TriggerActor) (model.Appointment, error) {
	appt, err := s.transition(ctx, appointmentID, model.StatusCompleted)
	if err != nil {
		return model.Appointment{}, err
	}

	s.events.Dispatch(ctx, event.AppointmentCompleted{
		ID:            s.newID(),
		AppointmentID: appt.ID,
		Reference:     appt.Reference,
		BranchID:      appt.BranchID,
		CustomerID:    appt.CustomerID,
		TriggeredBy:   triggeredBy,
		OccurredAt:    s.now(),
	})
	appt.Status = model.StatusCompleted
	return appt, nil
}

// transition performs the conditional booked→to status change.
func (s *Service) transition(ctx context.Context, appointmentID string, to model.AppointmentStatus) (model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !appt.Status.CanTransition(to) {
		return model.Appointment{}, ErrInvalidStateTransition
	}
	changed, err := s.store.UpdateStatus(ctx, appt.ID, model.StatusBooked, to)
	if err != nil {
		return model.Appointment{}, err
	}
	if !changed {
		return model.Appointment{}, ErrInvalidStateTransition
	}
	return appt, nil
}

func (s *Service) findCandidate(ctx context.Context, branchID string, day time.Time, start, end time.Duration) (model.Slot, error) {
	candidates, err := s.slots.Candidates(ctx, branchID, day)
	if err != nil {
		return model.Slot{}, err
	}
	for _, c := range candidates {
		if c.Start == start && c.End == end {
			return c, nil
		}
	}
	return model.Slot{}, ErrSlotUnavailable
}

// IsNotFound reports whether err is the store's missing-appointment error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppointmentNotFound)
}
