package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OverlapQuery selects the appointments that would clash with a candidate
// range for one practitioner on one date.
type OverlapQuery struct {
	PractitionerID uuid.UUID
	Date           time.Time
	Start          TimeOfDay
	End            TimeOfDay
	ExcludeID      *uuid.UUID
}

// Overlaps is the half-open interval test. Touching ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// Matches reports whether a is one of the appointments q selects.
func (q OverlapQuery) Matches(a *Appointment) bool {
	if a.PractitionerID != q.PractitionerID || !DateOf(a.Date).Equal(DateOf(q.Date)) {
		return false
	}
	if !a.Status.Blocking() {
		return false
	}
	if q.ExcludeID != nil && a.ID == *q.ExcludeID {
		return false
	}
	return Overlaps(a.Start, a.End, q.Start, q.End)
}

func (q OverlapQuery) validate() error {
	verr := &ValidationError{}
	if q.PractitionerID == uuid.Nil {
		verr.add("practitioner_id", "required")
	}
	if q.Date.IsZero() {
		verr.add("date", "required")
	}
	checkRange(verr, q.Start, q.End)
	return verr.orNil()
}

func checkRange(verr *ValidationError, start, end TimeOfDay) {
	if start < 0 || start >= EndOfDay {
		verr.add("start_time", "out of range")
	}
	if end <= 0 || end > EndOfDay {
		verr.add("end_time", "out of range")
	}
	if start >= end {
		verr.add("end_time", "must be after start_time")
	}
}

type ConflictResult struct {
	HasConflict bool
	Conflicts   []Appointment
}

type overlapFinder interface {
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]Appointment, error)
}

// detectConflicts runs q against f and turns any hit into a ConflictError.
// Inside a booking transaction f must be the transaction so the check and
// the following write see the same locked state.
func detectConflicts(ctx context.Context, f overlapFinder, q OverlapQuery) error {
	found, err := f.FindOverlapping(ctx, q)
	if err != nil {
		return fmt.Errorf("find overlapping appointments: %w", err)
	}
	if len(found) > 0 {
		return &ConflictError{Conflicts: found}
	}
	return nil
}
