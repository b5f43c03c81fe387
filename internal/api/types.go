package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

const dateLayout = "2006-01-02"

type CreateAppointmentRequest struct {
	BookingKind    string                `json:"booking_kind"`
	PatientID      *uuid.UUID            `json:"patient_id"`
	PractitionerID uuid.UUID             `json:"practitioner_id"`
	ClinicID       uuid.UUID             `json:"clinic_id"`
	Date           string                `json:"date"`
	StartTime      appointment.TimeOfDay `json:"start_time"`
	EndTime        appointment.TimeOfDay `json:"end_time"`
	VisitorName    *string               `json:"visitor_name"`
	VisitorPhone   *string               `json:"visitor_phone"`
	VisitorEmail   *string               `json:"visitor_email"`
	ReferralCaseID *uuid.UUID            `json:"referral_case_id"`
	CourseID       *uuid.UUID            `json:"course_id"`
	AutoCreatePN   bool                  `json:"auto_create_pn"`
	SourceClinicID *uuid.UUID            `json:"source_clinic_id"`
	Notes          *string               `json:"notes"`
}

type RescheduleAppointmentRequest struct {
	Date      string                `json:"date"`
	StartTime appointment.TimeOfDay `json:"start_time"`
	EndTime   appointment.TimeOfDay `json:"end_time"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type CompleteAppointmentRequest struct {
	Assessment        *referral.Assessment `json:"assessment"`
	BodyAnnotationRef *string              `json:"body_annotation_ref"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID             `json:"id"`
	PatientID           *uuid.UUID            `json:"patient_id,omitempty"`
	PractitionerID      uuid.UUID             `json:"practitioner_id"`
	ClinicID            uuid.UUID             `json:"clinic_id"`
	Date                string                `json:"date"`
	StartTime           appointment.TimeOfDay `json:"start_time"`
	EndTime             appointment.TimeOfDay `json:"end_time"`
	Status              string                `json:"status"`
	BookingKind         string                `json:"booking_kind"`
	VisitorName         *string               `json:"visitor_name,omitempty"`
	VisitorPhone        *string               `json:"visitor_phone,omitempty"`
	VisitorEmail        *string               `json:"visitor_email,omitempty"`
	ReferralCaseID      *uuid.UUID            `json:"referral_case_id,omitempty"`
	CourseID            *uuid.UUID            `json:"course_id,omitempty"`
	AutoCreatedReferral bool                  `json:"auto_created_pn"`
	CalendarEventID     *string               `json:"calendar_event_id,omitempty"`
	CancellationReason  *string               `json:"cancellation_reason,omitempty"`
	BodyAnnotationRef   *string               `json:"body_annotation_ref,omitempty"`
	Notes               *string               `json:"notes,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
	CancelledAt         *time.Time            `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		PractitionerID:      a.PractitionerID,
		ClinicID:            a.ClinicID,
		Date:                a.Date.Format(dateLayout),
		StartTime:           a.Start,
		EndTime:             a.End,
		Status:              string(a.Status),
		BookingKind:         string(a.Kind),
		VisitorName:         a.VisitorName,
		VisitorPhone:        a.VisitorPhone,
		VisitorEmail:        a.VisitorEmail,
		ReferralCaseID:      a.ReferralCaseID,
		CourseID:            a.CourseID,
		AutoCreatedReferral: a.AutoCreatedReferral,
		CalendarEventID:     a.CalendarEventID,
		CancellationReason:  a.CancellationReason,
		BodyAnnotationRef:   a.BodyAnnotationRef,
		Notes:               a.Notes,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
		CompletedAt:         a.CompletedAt,
		CancelledAt:         a.CancelledAt,
	}
}

func toAppointmentResponses(in []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for i := range in {
		out = append(out, toAppointmentResponse(&in[i]))
	}
	return out
}

type ConflictResponse struct {
	HasConflict bool                  `json:"has_conflict"`
	Conflicts   []AppointmentResponse `json:"conflicts"`
}

type SlotsResponse struct {
	ClinicID       uuid.UUID          `json:"clinic_id"`
	PractitionerID *uuid.UUID         `json:"practitioner_id,omitempty"`
	Date           string             `json:"date"`
	Slots          []appointment.Slot `json:"slots"`
}

type HistoryEntryResponse struct {
	ID            int64      `json:"id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	OldStatus     string     `json:"old_status"`
	NewStatus     string     `json:"new_status"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	IsReversal    bool       `json:"is_reversal"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error     string                `json:"error"`
	Details   string                `json:"details,omitempty"`
	Fields    map[string]string     `json:"fields,omitempty"`
	Conflicts []AppointmentResponse `json:"conflicts,omitempty"`
}
