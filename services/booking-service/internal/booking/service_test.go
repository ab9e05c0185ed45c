package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/dispatch"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/event"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/ledger"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

var testDay = time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)

type staticSlots struct {
	slots []model.Slot
}

func (s staticSlots) Candidates(_ context.Context, branchID string, day time.Time) ([]model.Slot, error) {
	var out []model.Slot
	for _, c := range s.slots {
		if c.BranchID == branchID && c.Day.Equal(model.Date(day)) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memStore struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]model.Appointment{}}
}

func (s *memStore) Create(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.appts[appt.ID] = appt
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, from, to model.AppointmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok || appt.Status != from {
		return false, nil
	}
	appt.Status = to
	s.appts[id] = appt
	return true, nil
}

type capturingDispatcher struct {
	mu     sync.Mutex
	events []event.Event
}

func (d *capturingDispatcher) Dispatch(_ context.Context, evt event.Event) dispatch.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return dispatch.Result{Outcome: dispatch.Delivered}
}

func (d *capturingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, e := range d.events {
		out = append(out, e.EventType())
	}
	return out
}

func slotAt(start, end time.Duration, seq int) model.Slot {
	return model.Slot{BranchID: "br-1", Day: testDay, Start: start, End: end, Sequence: seq}
}

func newTestService(slots ...model.Slot) (*Service, *memStore, *ledger.MemoryLedger, *capturingDispatcher) {
	store := newMemStore()
	l := ledger.NewMemoryLedger()
	events := &capturingDispatcher{}
	svc := NewService(staticSlots{slots: slots}, l, store, events, slog.New(slog.DiscardHandler))
	return svc, store, l, events
}

func TestBook_Success(t *testing.T) {
	svc, store, l, events := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()

	appt, err := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusBooked {
		t.Fatalf("expected booked status, got %s", appt.Status)
	}
	if appt.Reference == "" {
		t.Fatal("expected a booking reference")
	}
	if _, err := store.Get(ctx, appt.ID); err != nil {
		t.Fatalf("appointment not persisted: %v", err)
	}
	if booked, _ := l.IsBooked(ctx, appt.SlotKey()); !booked {
		t.Fatal("slot should be claimed")
	}
	if got := events.types(); len(got) != 1 || got[0] != event.TopicAppointmentBooked {
		t.Fatalf("expected one booked event, got %v", got)
	}
}

func TestBook_SlotContention(t *testing.T) {
	svc, _, _, _ := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()

	if _, err := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1"); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	_, err := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-2")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBook_UnknownSlotRejected(t *testing.T) {
	svc, _, _, _ := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	_, err := svc.Book(context.Background(), "br-1", testDay, 13*time.Hour, 13*time.Hour+30*time.Minute, "cust-1")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for non-candidate slot, got %v", err)
	}
}

func TestBook_StoreFailureReleasesClaim(t *testing.T) {
	svc, store, l, events := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()
	store.fail = true

	_, err := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1")
	if err == nil {
		t.Fatal("expected create failure to surface")
	}
	key := slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0).Key()
	if booked, _ := l.IsBooked(ctx, key); booked {
		t.Fatal("claim must be released when the appointment cannot be persisted")
	}
	if len(events.types()) != 0 {
		t.Fatal("no event may be emitted for a failed booking")
	}
}

func TestCancel_ReleasesSlotAndEmits(t *testing.T) {
	svc, store, l, events := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()

	appt, err := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, appt.ID, model.TriggeredByCustomer)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if booked, _ := l.IsBooked(ctx, appt.SlotKey()); booked {
		t.Fatal("slot should be released after cancel")
	}
	stored, _ := store.Get(ctx, appt.ID)
	if stored.Status != model.StatusCancelled {
		t.Fatalf("stored status should be cancelled, got %s", stored.Status)
	}
	got := events.types()
	if len(got) != 2 || got[1] != event.TopicCustomerCancelled {
		t.Fatalf("expected cancel event, got %v", got)
	}
}

func TestCancel_OnlyLegalFromBooked(t *testing.T) {
	svc, _, _, _ := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()

	appt, _ := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1")
	if _, err := svc.Cancel(ctx, appt.ID, model.TriggeredByCustomer); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	_, err := svc.Cancel(ctx, appt.ID, model.TriggeredByCustomer)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on double cancel, got %v", err)
	}
}

func TestReschedule_Success(t *testing.T) {
	oldSlot := slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0)
	newSlot := slotAt(14*time.Hour, 14*time.Hour+30*time.Minute, 10)
	svc, store, l, events := newTestService(oldSlot, newSlot)
	ctx := context.Background()

	appt, err := svc.Book(ctx, "br-1", testDay, oldSlot.Start, oldSlot.End, "cust-1")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	newAppt, err := svc.Reschedule(ctx, appt.ID, testDay, newSlot.Start, newSlot.End, model.TriggeredByCustomer)
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if newAppt.ID == appt.ID {
		t.Fatal("reschedule must create a new appointment")
	}
	if newAppt.Reference != appt.Reference {
		t.Fatal("reschedule keeps the booking reference")
	}
	if newAppt.Status != model.StatusBooked {
		t.Fatalf("new appointment should be booked, got %s", newAppt.Status)
	}

	original, _ := store.Get(ctx, appt.ID)
	if original.Status != model.StatusRescheduled {
		t.Fatalf("original should be rescheduled, got %s", original.Status)
	}
	if booked, _ := l.IsBooked(ctx, oldSlot.Key()); booked {
		t.Fatal("old slot should be released")
	}
	if booked, _ := l.IsBooked(ctx, newSlot.Key()); !booked {
		t.Fatal("new slot should be claimed")
	}
	got := events.types()
	if len(got) != 2 || got[1] != event.TopicCustomerRescheduled {
		t.Fatalf("expected reschedule event, got %v", got)
	}
}

func TestReschedule_NewSlotTakenLeavesOriginalUntouched(t *testing.T) {
	oldSlot := slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0)
	newSlot := slotAt(14*time.Hour, 14*time.Hour+30*time.Minute, 10)
	svc, store, l, _ := newTestService(oldSlot, newSlot)
	ctx := context.Background()

	appt, _ := svc.Book(ctx, "br-1", testDay, oldSlot.Start, oldSlot.End, "cust-1")
	// Another customer takes the target slot first.
	if _, err := svc.Book(ctx, "br-1", testDay, newSlot.Start, newSlot.End, "cust-2"); err != nil {
		t.Fatalf("competitor booking failed: %v", err)
	}

	_, err := svc.Reschedule(ctx, appt.ID, testDay, newSlot.Start, newSlot.End, model.TriggeredByCustomer)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	original, _ := store.Get(ctx, appt.ID)
	if original.Status != model.StatusBooked {
		t.Fatalf("original must remain booked, got %s", original.Status)
	}
	if booked, _ := l.IsBooked(ctx, oldSlot.Key()); !booked {
		t.Fatal("original slot must remain claimed")
	}
}

func TestReschedule_OnlyLegalFromBooked(t *testing.T) {
	oldSlot := slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0)
	newSlot := slotAt(14*time.Hour, 14*time.Hour+30*time.Minute, 10)
	svc, _, _, _ := newTestService(oldSlot, newSlot)
	ctx := context.Background()

	appt, _ := svc.Book(ctx, "br-1", testDay, oldSlot.Start, oldSlot.End, "cust-1")
	if _, err := svc.Cancel(ctx, appt.ID, model.TriggeredByCustomer); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err := svc.Reschedule(ctx, appt.ID, testDay, newSlot.Start, newSlot.End, model.TriggeredByCustomer)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestComplete_FromBooked(t *testing.T) {
	svc, store, l, events := newTestService(slotAt(9*time.Hour, 9*time.Hour+30*time.Minute, 0))
	ctx := context.Background()

	appt, _ := svc.Book(ctx, "br-1", testDay, 9*time.Hour, 9*time.Hour+30*time.Minute, "cust-1")
	done, err := svc.Complete(ctx, appt.ID, model.TriggeredByStaff)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	stored, _ := store.Get(ctx, appt.ID)
	if stored.Status != model.StatusCompleted {
		t.Fatalf("stored status should be completed, got %s", stored.Status)
	}
	// An attended appointment consumed its slot; it is not freed.
	if booked, _ := l.IsBooked(ctx, appt.SlotKey()); !booked {
		t.Fatal("completed appointment's slot stays consumed")
	}
	got := events.types()
	if len(got) != 2 || got[1] != event.TopicAppointmentCompleted {
		t.Fatalf("expected completed event, got %v", got)
	}
}
