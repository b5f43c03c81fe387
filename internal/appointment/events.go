package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated       EventType = "appointment.created"
	EventRescheduled   EventType = "appointment.rescheduled"
	EventCancelled     EventType = "appointment.cancelled"
	EventCompleted     EventType = "appointment.completed"
	EventReversed      EventType = "appointment.reversed"
	EventStatusChanged EventType = "appointment.status_changed"
)

// Event describes a committed appointment change. It is emitted only after
// the transaction that produced it has committed.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	Type            EventType  `json:"type"`
	OccurredAt      time.Time  `json:"occurred_at"`
	ActorID         uuid.UUID  `json:"actor_id"`
	AppointmentID   uuid.UUID  `json:"appointment_id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	PractitionerID  uuid.UUID  `json:"practitioner_id"`
	PatientID       *uuid.UUID `json:"patient_id,omitempty"`
	VisitorName     *string    `json:"visitor_name,omitempty"`
	VisitorPhone    *string    `json:"visitor_phone,omitempty"`
	VisitorEmail    *string    `json:"visitor_email,omitempty"`
	Date            time.Time  `json:"date"`
	Start           TimeOfDay  `json:"start_time"`
	End             TimeOfDay  `json:"end_time"`
	Status          Status     `json:"status"`
	CalendarEventID *string    `json:"calendar_event_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`

	PreviousDate  *time.Time `json:"previous_date,omitempty"`
	PreviousStart *TimeOfDay `json:"previous_start_time,omitempty"`
	PreviousEnd   *TimeOfDay `json:"previous_end_time,omitempty"`
}

// Emitter hands committed events to the side-effect pipeline. Emit must not
// block on external services and has no error to return: delivery failures
// are the emitter's to log.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

func newEvent(t EventType, a *Appointment, actor Actor, at time.Time) Event {
	return Event{
		ID:              uuid.New(),
		Type:            t,
		OccurredAt:      at,
		ActorID:         actor.ID,
		AppointmentID:   a.ID,
		ClinicID:        a.ClinicID,
		PractitionerID:  a.PractitionerID,
		PatientID:       a.PatientID,
		VisitorName:     a.VisitorName,
		VisitorPhone:    a.VisitorPhone,
		VisitorEmail:    a.VisitorEmail,
		Date:            a.Date,
		Start:           a.Start,
		End:             a.End,
		Status:          a.Status,
		CalendarEventID: a.CalendarEventID,
	}
}
