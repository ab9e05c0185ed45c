package event

import (
	"encoding/json"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// Topic names follow the event-per-topic convention; consumers subscribe to
// the types they care about.
const (
	TopicAppointmentBooked      = "appointment.booked.v1"
	TopicCustomerCancelled      = "appointment.customer_cancelled.v1"
	TopicCustomerRescheduled    = "appointment.customer_rescheduled.v1"
	TopicAppointmentCompleted   = "appointment.completed.v1"
	TopicAppointmentDeadLetters = "appointment.deadletter.v1"
)

// Event is a domain event variant. Each kind is its own struct carrying its
// explicit field set; EventID is stable so redelivery can be deduplicated.
type Event interface {
	EventID() string
	EventType() string
	AggregateID() string
	Payload() ([]byte, error)
}

type AppointmentBooked struct {
	ID            string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	Reference     string    `json:"reference"`
	BranchID      string    `json:"branch_id"`
	CustomerID    string    `json:"customer_id"`
	Day           string    `json:"day"`
	Start         string    `json:"start_time"`
	End           string    `json:"end_time"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e AppointmentBooked) EventID() string          { return e.ID }
func (e AppointmentBooked) EventType() string        { return TopicAppointmentBooked }
func (e AppointmentBooked) AggregateID() string      { return e.AppointmentID }
func (e AppointmentBooked) Payload() ([]byte, error) { return json.Marshal(e) }

type CustomerCanceledAppointment struct {
	ID             string             `json:"event_id"`
	AppointmentID  string             `json:"appointment_id"`
	Reference      string             `json:"reference"`
	BranchID       string             `json:"branch_id"`
	CustomerID     string             `json:"customer_id"`
	PreviousStatus string             `json:"previous_status"`
	NewStatus      string             `json:"new_status"`
	TriggeredBy    model.TriggerActor `json:"triggered_by"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func (e CustomerCanceledAppointment) EventID() string          { return e.ID }
func (e CustomerCanceledAppointment) EventType() string        { return TopicCustomerCancelled }
func (e CustomerCanceledAppointment) AggregateID() string      { return e.AppointmentID }
func (e CustomerCanceledAppointment) Payload() ([]byte, error) { return json.Marshal(e) }

type CustomerRescheduledAppointment struct {
	ID               string             `json:"event_id"`
	AppointmentID    string             `json:"appointment_id"`
	NewAppointmentID string             `json:"new_appointment_id"`
	Reference        string             `json:"reference"`
	BranchID         string             `json:"branch_id"`
	CustomerID       string             `json:"customer_id"`
	PreviousStatus   string             `json:"previous_status"`
	NewStatus        string             `json:"new_status"`
	NewDay           string             `json:"new_day"`
	NewStart         string             `json:"new_start_time"`
	NewEnd           string             `json:"new_end_time"`
	TriggeredBy      model.TriggerActor `json:"triggered_by"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

func (e CustomerRescheduledAppointment) EventID() string          { return e.ID }
func (e CustomerRescheduledAppointment) EventType() string        { return TopicCustomerRescheduled }
func (e CustomerRescheduledAppointment) AggregateID() string      { return e.AppointmentID }
func (e CustomerRescheduledAppointment) Payload() ([]byte, error) { return json.Marshal(e) }

type AppointmentCompleted struct {
	ID            string             `json:"event_id"`
	AppointmentID string             `json:"appointment_id"`
	Reference     string             `json:"reference"`
	BranchID      string             `json:"branch_id"`
	CustomerID    string             `json:"customer_id"`
	TriggeredBy   model.TriggerActor `json:"triggered_by"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

func (e AppointmentCompleted) EventID() string          { return e.ID }
func (e AppointmentCompleted) EventType() string        { return TopicAppointmentCompleted }
func (e AppointmentCompleted) AggregateID() string      { return e.AppointmentID }
func (e AppointmentCompleted) Payload() ([]byte, error) { return json.Marshal(e) }

// Meta is the common projection shared by all variants.
type Meta struct {
	EventID     string
	EventType   string
	AggregateID string
}

func MetaOf(e Event) Meta {
	return Meta{EventID: e.EventID(), EventType: e.EventType(), AggregateID: e.AggregateID()}
}
