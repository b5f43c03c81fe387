package course

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

type EntryKind string

const (
	KindUse    EntryKind = "USE"
	KindReturn EntryKind = "RETURN"
)

// Course is a prepaid bundle of treatment sessions. Remaining is always
// Total - Used; only the ledger mutates the counters.
type Course struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	Name             string
	Total            int
	Used             int
	Remaining        int
	Status           Status
	ExpiresOn        *time.Time
	SharedPatientIDs []uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UsableBy reports whether patientID owns the course or has it shared.
func (c *Course) UsableBy(patientID uuid.UUID) bool {
	return c.PatientID == patientID || slices.Contains(c.SharedPatientIDs, patientID)
}

// ExpiredOn reports whether the course expiry date is before day.
func (c *Course) ExpiredOn(day time.Time) bool {
	if c.ExpiresOn == nil {
		return false
	}
	return c.ExpiresOn.Before(day)
}

// LedgerEntry is an append-only record of one session debit or credit.
// ReferenceID is the referral case the session belongs to, or the
// appointment itself when no case is linked.
type LedgerEntry struct {
	ID             int64
	CourseID       uuid.UUID
	ReferenceID    uuid.UUID
	AppointmentID  *uuid.UUID
	Kind           EntryKind
	RemainingAfter int
	ActorID        *uuid.UUID
	CreatedAt      time.Time
}
