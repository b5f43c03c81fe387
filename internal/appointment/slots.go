package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Hours is a clinic's bookable window and grid width.
type Hours struct {
	Open  TimeOfDay
	Close TimeOfDay
	Step  time.Duration
}

// HoursProvider resolves the business hours of a clinic.
type HoursProvider interface {
	BusinessHours(ctx context.Context, clinicID uuid.UUID) (Hours, error)
}

type Slot struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// GenerateSlots returns the fixed-width grid for day. now must already be
// in the clinic's timezone. Past days yield nothing; on the current day
// slots that have already ended are dropped. The last slot always ends at
// or before closing.
func GenerateSlots(h Hours, day, now time.Time) []Slot {
	step := TimeOfDay(h.Step / time.Minute)
	if step <= 0 || h.Open >= h.Close {
		return nil
	}

	today := DateOf(now)
	day = DateOf(day)
	if day.Before(today) {
		return nil
	}

	cutoff := TimeOfDay(-1)
	if day.Equal(today) {
		cutoff = TimeOfDayOf(now)
	}

	var out []Slot
	for start := h.Open; start+step <= h.Close; start += step {
		end := start + step
		if end <= cutoff {
			continue
		}
		out = append(out, Slot{Start: start, End: end})
	}
	return out
}

// freeSlots drops the slots that overlap any of busy.
func freeSlots(grid []Slot, busy []Appointment) []Slot {
	out := make([]Slot, 0, len(grid))
	for _, s := range grid {
		taken := false
		for i := range busy {
			if busy[i].Status.Blocking() && Overlaps(s.Start, s.End, busy[i].Start, busy[i].End) {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, s)
		}
	}
	return out
}
