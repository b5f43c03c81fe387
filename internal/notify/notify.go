package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/settings"
)

// Calendar is the external calendar service.
type Calendar interface {
	CreateEvent(ctx context.Context, ev appointment.Event) (string, error)
	UpdateEvent(ctx context.Context, eventID string, ev appointment.Event) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// CalendarRefStore persists the external event id back on the appointment.
type CalendarRefStore interface {
	CalendarEventID(ctx context.Context, id uuid.UUID) (*string, error)
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID *string) error
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelLine  Channel = "line"
)

type Recipient struct {
	Name   string
	Email  string
	Phone  string
	LineID string
}

type Message struct {
	Event   appointment.EventType
	To      Recipient
	Subject string
	Body    string
}

// Notifier delivers a message on one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, msg Message) error
}

// ContactResolver finds who should hear about an appointment.
type ContactResolver interface {
	Resolve(ctx context.Context, ev appointment.Event) (Recipient, error)
}

// Handler runs the side effects of one committed event. Every integration
// gets its own timeout and panic guard, and a failure is only logged.
type Handler struct {
	calendar  Calendar
	refs      CalendarRefStore
	notifiers []Notifier
	contacts  ContactResolver
	settings  settings.Provider
	loc       *time.Location
	timeout   time.Duration
	log       zerolog.Logger
}

type HandlerOptions struct {
	Calendar  Calendar
	Refs      CalendarRefStore
	Notifiers []Notifier
	Contacts  ContactResolver
	Settings  settings.Provider
	Location  *time.Location
	Timeout   time.Duration
	Logger    zerolog.Logger
}

func NewHandler(o HandlerOptions) *Handler {
	h := &Handler{
		calendar:  o.Calendar,
		refs:      o.Refs,
		notifiers: o.Notifiers,
		contacts:  o.Contacts,
		settings:  o.Settings,
		loc:       o.Location,
		timeout:   o.Timeout,
		log:       o.Logger,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, ev appointment.Event) {
	var cs settings.Clinic
	if h.settings != nil {
		var err error
		if cs, err = h.settings.Clinic(ctx, ev.ClinicID); err != nil {
			h.logFailure(ev, "settings", err)
			return
		}
	}

	if h.calendar != nil && cs.CalendarEnabled {
		h.run(ctx, ev, "calendar", func(ctx context.Context) error {
			return h.syncCalendar(ctx, ev)
		})
	}

	subject, body, ok := Render(ev, h.loc)
	if !ok || len(h.notifiers) == 0 || h.contacts == nil {
		return
	}

	var to Recipient
	resolved := h.run(ctx, ev, "contacts", func(ctx context.Context) error {
		var err error
		to, err = h.contacts.Resolve(ctx, ev)
		return err
	})
	if !resolved {
		return
	}

	msg := Message{Event: ev.Type, To: to, Subject: subject, Body: body}
	for _, n := range h.notifiers {
		if !channelEnabled(cs, n.Channel()) {
			continue
		}
		h.run(ctx, ev, string(n.Channel()), func(ctx context.Context) error {
			return n.Notify(ctx, msg)
		})
	}
}

func channelEnabled(cs settings.Clinic, c Channel) bool {
	switch c {
	case ChannelEmail:
		return cs.NotifyEmail
	case ChannelSMS:
		return cs.NotifySMS
	case ChannelLine:
		return cs.NotifyLine
	}
	return false
}

func (h *Handler) syncCalendar(ctx context.Context, ev appointment.Event) error {
	switch ev.Type {
	case appointment.EventCreated:
		id, err := h.calendar.CreateEvent(ctx, ev)
		if err != nil {
			return err
		}
		if h.refs != nil {
			return h.refs.SetCalendarEventID(ctx, ev.AppointmentID, &id)
		}
	case appointment.EventRescheduled, appointment.EventStatusChanged, appointment.EventCompleted, appointment.EventReversed:
		ref, err := h.calendarRef(ctx, ev)
		if err != nil || ref == nil {
			return err
		}
		return h.calendar.UpdateEvent(ctx, *ref, ev)
	case appointment.EventCancelled:
		ref, err := h.calendarRef(ctx, ev)
		if err != nil || ref == nil {
			return err
		}
		if err := h.calendar.DeleteEvent(ctx, *ref); err != nil {
			return err
		}
		if h.refs != nil {
			return h.refs.SetCalendarEventID(ctx, ev.AppointmentID, nil)
		}
	}
	return nil
}

// calendarRef returns the calendar event of the appointment. Events built
// before the create side effect stored its id fall back to the stored one.
func (h *Handler) calendarRef(ctx context.Context, ev appointment.Event) (*string, error) {
	ref := ev.CalendarEventID
	if ref == nil && h.refs != nil {
		stored, err := h.refs.CalendarEventID(ctx, ev.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("load calendar event id: %w", err)
		}
		ref = stored
	}
	if ref == nil {
		h.log.Info().
			Str("appointment_id", ev.AppointmentID.String()).
			Str("event", string(ev.Type)).
			Msg("no calendar event to sync")
	}
	return ref, nil
}

// run executes fn under the integration timeout and reports whether it
// succeeded.
func (h *Handler) run(ctx context.Context, ev appointment.Event, integration string, fn func(ctx context.Context) error) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			h.logFailure(ev, integration, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		h.logFailure(ev, integration, err)
		return false
	}
	return true
}

func (h *Handler) logFailure(ev appointment.Event, integration string, err error) {
	h.log.Warn().
		Err(err).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("integration", integration).
		Str("event", string(ev.Type)).
		Msg("side effect failed")
}
