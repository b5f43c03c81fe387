package appointment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// Blocking reports whether an appointment in this status occupies its time
// range for conflict purposes.
func (s Status) Blocking() bool {
	return s != StatusCancelled
}

type BookingKind string

const (
	KindWalkIn            BookingKind = "WALK_IN"
	KindRegisteredPatient BookingKind = "REGISTERED_PATIENT"
)

type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleStaff     Role = "STAFF"
	RoleTherapist Role = "THERAPIST"
	RoleManager   Role = "MANAGER"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Elevated() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) Staff() bool {
	switch r {
	case RoleStaff, RoleTherapist, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller. PatientID is set for public
// self-service callers.
type Actor struct {
	ID        uuid.UUID
	Role      Role
	PatientID *uuid.UUID
}

// Owns reports whether the actor booked a, or is the patient a is for.
func (ac Actor) Owns(a *Appointment) bool {
	if a.CreatedBy != nil && *a.CreatedBy == ac.ID {
		return true
	}
	return ac.Role == RolePatient && ac.PatientID != nil && a.PatientID != nil && *ac.PatientID == *a.PatientID
}

// TimeOfDay is minutes since midnight. 24:00 (1440) is a valid end time.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses a strict HH:MM wall clock time. "24:00" is accepted
// as the end of the day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return EndOfDay, nil
	}
	if len(s) != len("15:04") {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return TimeOfDayOf(t), nil
}

// TimeOfDayOf returns the wall clock minute of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Appointment struct {
	ID                  uuid.UUID
	PatientID           *uuid.UUID
	PractitionerID      uuid.UUID
	ClinicID            uuid.UUID
	Date                time.Time
	Start               TimeOfDay
	End                 TimeOfDay
	Status              Status
	Kind                BookingKind
	VisitorName         *string
	VisitorPhone        *string
	VisitorEmail        *string
	ReferralCaseID      *uuid.UUID
	CourseID            *uuid.UUID
	AutoCreatedReferral bool
	CalendarEventID     *string
	CancellationReason  *string
	BodyAnnotationRef   *string
	Notes               *string
	CreatedBy           *uuid.UUID
	UpdatedBy           *uuid.UUID
	CancelledBy         *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
}

// ledgerReference is the key the course ledger uses for a's session: the
// referral case when linked, otherwise the appointment itself.
func (a *Appointment) ledgerReference() uuid.UUID {
	if a.ReferralCaseID != nil {
		return *a.ReferralCaseID
	}
	return a.ID
}
