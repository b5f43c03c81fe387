package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

// LogCalendar stands in for an external calendar in dev. It hands out
// random event ids and logs every call.
type LogCalendar struct {
	Log zerolog.Logger
}

func (c LogCalendar) CreateEvent(_ context.Context, ev appointment.Event) (string, error) {
	id := uuid.NewString()
	c.Log.Info().
		Str("calendar_event_id", id).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("date", ev.Date.Format("2006-01-02")).
		Str("start", ev.Start.String()).
		Str("end", ev.End.String()).
		Msg("calendar create")
	return id, nil
}

func (c LogCalendar) UpdateEvent(_ context.Context, eventID string, ev appointment.Event) error {
	c.Log.Info().
		Str("calendar_event_id", eventID).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("status", string(ev.Status)).
		Msg("calendar update")
	return nil
}

func (c LogCalendar) DeleteEvent(_ context.Context, eventID string) error {
	c.Log.Info().Str("calendar_event_id", eventID).Msg("calendar delete")
	return nil
}
