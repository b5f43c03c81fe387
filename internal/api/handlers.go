package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/course"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

// AppointmentService is the scheduling core behind the HTTP surface.
type AppointmentService interface {
	Create(ctx context.Context, req appointment.BookingRequest, actor appointment.Actor) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, req appointment.RescheduleRequest, actor appointment.Actor) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor appointment.Actor) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, req appointment.CompleteRequest, actor appointment.Actor) (*appointment.Appointment, error)
	Reverse(ctx context.Context, id uuid.UUID, reason string, actor appointment.Actor) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, t appointment.Transition, actor appointment.Actor) (*appointment.Appointment, error)
	CheckConflict(ctx context.Context, q appointment.OverlapQuery) (*appointment.ConflictResult, error)
	AvailableSlots(ctx context.Context, clinicID uuid.UUID, day time.Time, practitionerID *uuid.UUID) ([]appointment.Slot, error)
	Get(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
}

type HistoryReader interface {
	ListHistory(ctx context.Context, caseID uuid.UUID) ([]referral.StatusHistory, error)
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}

		appt, err := svc.Create(r.Context(), appointment.BookingRequest{
			Kind:               appointment.BookingKind(req.BookingKind),
			PatientID:          req.PatientID,
			PractitionerID:     req.PractitionerID,
			ClinicID:           req.ClinicID,
			Date:               date,
			Start:              req.StartTime,
			End:                req.EndTime,
			VisitorName:        req.VisitorName,
			VisitorPhone:       req.VisitorPhone,
			VisitorEmail:       req.VisitorEmail,
			ReferralCaseID:     req.ReferralCaseID,
			CourseID:           req.CourseID,
			AutoCreateReferral: req.AutoCreatePN,
			SourceClinicID:     req.SourceClinicID,
			Notes:              req.Notes,
		}, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Date:  date,
			Start: req.StartTime,
			End:   req.EndTime,
		}, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return reasonHandler(svc.Cancel)
}

func reverseAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return reasonHandler(svc.Reverse)
}

func reasonHandler(op func(context.Context, uuid.UUID, string, appointment.Actor) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req ReasonRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		appt, err := op(r.Context(), id, req.Reason, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req CompleteAppointmentRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Complete(r.Context(), id, appointment.CompleteRequest{
			Assessment:        req.Assessment,
			BodyAnnotationRef: req.BodyAnnotationRef,
		}, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func statusHandler(svc AppointmentService, t appointment.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), id, t, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkConflictHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		practitionerID, err := uuid.Parse(q.Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		date, ok := parseDate(w, "date", q.Get("date"))
		if !ok {
			return
		}
		start, err := appointment.ParseTimeOfDay(q.Get("start_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}
		end, err := appointment.ParseTimeOfDay(q.Get("end_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
			return
		}

		query := appointment.OverlapQuery{
			PractitionerID: practitionerID,
			Date:           date,
			Start:          start,
			End:            end,
		}
		if raw := q.Get("exclude_id"); raw != "" {
			ex, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_id must be a valid UUID")
				return
			}
			query.ExcludeID = &ex
		}

		res, err := svc.CheckConflict(r.Context(), query)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConflictResponse{
			HasConflict: res.HasConflict,
			Conflicts:   toAppointmentResponses(res.Conflicts),
		})
	}
}

func availableSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := pathID(w, r, "clinicID")
		if !ok {
			return
		}
		q := r.URL.Query()
		date, ok := parseDate(w, "date", q.Get("date"))
		if !ok {
			return
		}

		var practitionerID *uuid.UUID
		if raw := q.Get("practitioner_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			practitionerID = &id
		}

		slots, err := svc.AvailableSlots(r.Context(), clinicID, date, practitionerID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []appointment.Slot{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ClinicID:       clinicID,
			PractitionerID: practitionerID,
			Date:           date.Format(dateLayout),
			Slots:          slots,
		})
	}
}

func referralHistoryHandler(history HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		entries, err := history.ListHistory(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]HistoryEntryResponse, 0, len(entries))
		for _, h := range entries {
			out = append(out, HistoryEntryResponse{
				ID:            h.ID,
				AppointmentID: h.AppointmentID,
				OldStatus:     string(h.OldStatus),
				NewStatus:     string(h.NewStatus),
				ActorID:       h.ActorID,
				Reason:        h.Reason,
				IsReversal:    h.IsReversal,
				CreatedAt:     h.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var (
		verr     *appointment.ValidationError
		conflict *appointment.ConflictError
		authz    *appointment.AuthorizationError
		state    *course.StateError
		assess   *referral.AssessmentRequiredError
	)

	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "validation_failed", Details: err.Error(), Fields: verr.Fields,
		})
	case errors.As(err, &assess):
		fields := make(map[string]string, len(assess.Missing))
		for _, f := range assess.Missing {
			fields[f] = "required"
		}
		writeJSONError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "assessment_required", Details: err.Error(), Fields: fields,
		})
	case errors.Is(err, appointment.ErrInvalidPhone):
		writeError(w, http.StatusUnprocessableEntity, "invalid_phone", err.Error())
	case errors.As(err, &conflict):
		writeJSONError(w, http.StatusConflict, ErrorResponse{
			Error: "time_conflict", Details: err.Error(), Conflicts: toAppointmentResponses(conflict.Conflicts),
		})
	case errors.As(err, &authz):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, "course_"+strings.ToLower(string(state.Reason)), err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, referral.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "referral_not_found", err.Error())
	case errors.Is(err, course.ErrCourseNotFound):
		writeError(w, http.StatusNotFound, "course_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, referral.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrBookingBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "practitioner schedule is being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSONError(w, status, ErrorResponse{Error: code, Details: details})
}
