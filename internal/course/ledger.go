package course

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence the ledger needs. Implementations must run every
// call on the caller's transaction; GetCourseForUpdate holds a row lock
// until that transaction ends.
type Store interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*Course, error)
	GetCourseForUpdate(ctx context.Context, id uuid.UUID) (*Course, error)
	UpdateCourseBalance(ctx context.Context, c *Course) error
	// LastLedgerEntry returns nil, nil when the pair has no entries.
	LastLedgerEntry(ctx context.Context, courseID, referenceID uuid.UUID) (*LedgerEntry, error)
	InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error
}

// Op identifies one session movement.
type Op struct {
	CourseID      uuid.UUID
	ReferenceID   uuid.UUID
	AppointmentID *uuid.UUID
	ActorID       uuid.UUID
}

type Ledger struct {
	now func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Debit uses one session for the (course, reference) pair. It is a no-op
// returning nil when the pair already has an outstanding USE entry.
func (l *Ledger) Debit(ctx context.Context, st Store, op Op) (*LedgerEntry, error) {
	c, err := st.GetCourseForUpdate(ctx, op.CourseID)
	if err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	last, err := st.LastLedgerEntry(ctx, op.CourseID, op.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("last ledger entry: %w", err)
	}
	if last != nil && last.Kind == KindUse {
		return nil, nil
	}

	if c.Remaining <= 0 {
		return nil, &StateError{Reason: ReasonExhausted, Remaining: c.Remaining}
	}

	c.Used++
	c.Remaining = c.Total - c.Used
	if c.Remaining == 0 {
		c.Status = StatusCompleted
	}

	return l.write(ctx, st, c, op, KindUse)
}

// Credit returns the session debited for the pair. It is a no-op returning
// nil unless the pair's latest entry is a USE.
func (l *Ledger) Credit(ctx context.Context, st Store, op Op) (*LedgerEntry, error) {
	c, err := st.GetCourseForUpdate(ctx, op.CourseID)
	if err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	last, err := st.LastLedgerEntry(ctx, op.CourseID, op.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("last ledger entry: %w", err)
	}
	if last == nil || last.Kind != KindUse {
		return nil, nil
	}

	c.Used = max(c.Used-1, 0)
	c.Remaining = c.Total - c.Used
	if c.Status == StatusCompleted && c.Remaining > 0 {
		c.Status = StatusActive
	}

	return l.write(ctx, st, c, op, KindReturn)
}

func (l *Ledger) write(ctx context.Context, st Store, c *Course, op Op, kind EntryKind) (*LedgerEntry, error) {
	now := l.now()
	c.UpdatedAt = now
	if err := st.UpdateCourseBalance(ctx, c); err != nil {
		return nil, fmt.Errorf("update course balance: %w", err)
	}

	entry := &LedgerEntry{
		CourseID:       c.ID,
		ReferenceID:    op.ReferenceID,
		AppointmentID:  op.AppointmentID,
		Kind:           kind,
		RemainingAfter: c.Remaining,
		CreatedAt:      now,
	}
	if op.ActorID != uuid.Nil {
		actor := op.ActorID
		entry.ActorID = &actor
	}
	if err := st.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

// CheckBookable validates that c can back a new appointment for patientID
// on day.
func CheckBookable(c *Course, patientID uuid.UUID, day time.Time) error {
	switch {
	case !c.UsableBy(patientID):
		return &StateError{Reason: ReasonNotOwned, Remaining: c.Remaining}
	case c.Status == StatusExpired || c.ExpiredOn(day):
		return &StateError{Reason: ReasonExpired, Remaining: c.Remaining}
	case c.Status != StatusActive:
		return &StateError{Reason: ReasonNotActive, Remaining: c.Remaining}
	case c.Remaining <= 0:
		return &StateError{Reason: ReasonExhausted, Remaining: c.Remaining}
	}
	return nil
}
