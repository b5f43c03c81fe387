package notify

import (
	"fmt"
	"time"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

// Render builds the patient-facing text for ev. Events patients are not
// told about return ok=false.
func Render(ev appointment.Event, loc *time.Location) (subject, body string, ok bool) {
	when := formatWhen(ev.Date, ev.Start, ev.End, loc)

	switch ev.Type {
	case appointment.EventCreated:
		return "Appointment booked",
			fmt.Sprintf("Your physiotherapy appointment is booked for %s.", when), true
	case appointment.EventRescheduled:
		prev := "its previous time"
		if ev.PreviousDate != nil && ev.PreviousStart != nil && ev.PreviousEnd != nil {
			prev = formatWhen(*ev.PreviousDate, *ev.PreviousStart, *ev.PreviousEnd, loc)
		}
		return "Appointment rescheduled",
			fmt.Sprintf("Your appointment has moved from %s to %s.", prev, when), true
	case appointment.EventCancelled:
		body := fmt.Sprintf("Your appointment on %s has been cancelled.", when)
		if ev.Reason != "" {
			body += " Reason: " + ev.Reason
		}
		return "Appointment cancelled", body, true
	}
	return "", "", false
}

func formatWhen(date time.Time, start, end appointment.TimeOfDay, loc *time.Location) string {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return fmt.Sprintf("%s %s-%s", d.Format("Mon 2 Jan 2006"), start, end)
}
