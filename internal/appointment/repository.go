package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/referral"
)

// AuditEntry is one row of the audit trail. Before and After are encoded
// as JSON.
type AuditEntry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Before     any
	After      any
	CreatedAt  time.Time
}

// Tx is the transactional view used by every mutation. It carries the
// referral and course stores so the whole change commits as one unit.
type Tx interface {
	referral.Store

	// LockPractitionerDay serialises bookings for one practitioner on one
	// date until the transaction ends.
	LockPractitionerDay(ctx context.Context, practitionerID uuid.UUID, day time.Time) error
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]Appointment, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	RecordAudit(ctx context.Context, e AuditEntry) error
}

// Repository contains all DB interactions needed by the manager.
type Repository interface {
	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]Appointment, error)

	// SetCalendarEventID stores the external calendar reference outside of
	// any booking transaction.
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID *string) error
}
