package referral

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCancelled Status = "CANCELLED"
)

// Trigger is the appointment lifecycle change that drives a case transition.
type Trigger string

const (
	TriggerCompleted Trigger = "APPOINTMENT_COMPLETED"
	TriggerReversed  Trigger = "APPOINTMENT_REVERSED"
	TriggerCancelled Trigger = "APPOINTMENT_CANCELLED"
)

// Assessment holds the clinical fields required before a referral to
// another clinic can be accepted.
type Assessment struct {
	Diagnosis      *string `json:"diagnosis,omitempty"`
	ChiefComplaint *string `json:"chief_complaint,omitempty"`
	PresentHistory *string `json:"present_history,omitempty"`
	PainScore      *int    `json:"pain_score,omitempty"`
}

// Missing lists the fields that are still empty.
func (a Assessment) Missing() []string {
	var out []string
	if blank(a.Diagnosis) {
		out = append(out, "diagnosis")
	}
	if blank(a.ChiefComplaint) {
		out = append(out, "chief_complaint")
	}
	if blank(a.PresentHistory) {
		out = append(out, "present_history")
	}
	if a.PainScore == nil {
		out = append(out, "pain_score")
	}
	return out
}

// Merge overlays the non-empty fields of other onto a.
func (a Assessment) Merge(other *Assessment) Assessment {
	if other == nil {
		return a
	}
	if !blank(other.Diagnosis) {
		a.Diagnosis = other.Diagnosis
	}
	if !blank(other.ChiefComplaint) {
		a.ChiefComplaint = other.ChiefComplaint
	}
	if !blank(other.PresentHistory) {
		a.PresentHistory = other.PresentHistory
	}
	if other.PainScore != nil {
		a.PainScore = other.PainScore
	}
	return a
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

// Case is a PN (referral) case.
type Case struct {
	ID             uuid.UUID
	Code           string
	PatientID      uuid.UUID
	SourceClinicID uuid.UUID
	TargetClinicID uuid.UUID
	CourseID       *uuid.UUID
	Status         Status
	Assessment     Assessment
	AcceptedAt     *time.Time
	CancelledAt    *time.Time
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RequiresAssessment reports whether accepting the case needs the clinical
// assessment fields filled in. Intra-clinic cases never do. With no home
// clinic configured only cases crossing clinics do.
func (c *Case) RequiresAssessment(homeClinicID uuid.UUID) bool {
	if c.SourceClinicID == c.TargetClinicID {
		return false
	}
	if homeClinicID == uuid.Nil {
		return true
	}
	return c.TargetClinicID != homeClinicID
}

// StatusHistory is an append-only record of one case transition.
type StatusHistory struct {
	ID            int64
	CaseID        uuid.UUID
	AppointmentID *uuid.UUID
	OldStatus     Status
	NewStatus     Status
	ActorID       *uuid.UUID
	Reason        string
	IsReversal    bool
	CreatedAt     time.Time
}

// FormatCode renders a PN code such as PN202503-0007.
func FormatCode(at time.Time, seq int64) string {
	return fmt.Sprintf("PN%s-%04d", at.Format("200601"), seq)
}

// CounterName is the sequence counter backing PN codes for at's month.
func CounterName(at time.Time) string {
	return "pn:" + at.Format("200601")
}
