package appointment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/course"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

type BookingRequest struct {
	Kind               BookingKind `json:"booking_kind" validate:"required,oneof=WALK_IN REGISTERED_PATIENT"`
	PatientID          *uuid.UUID  `json:"patient_id"`
	PractitionerID     uuid.UUID   `json:"practitioner_id" validate:"required"`
	ClinicID           uuid.UUID   `json:"clinic_id" validate:"required"`
	Date               time.Time   `json:"date" validate:"required"`
	Start              TimeOfDay   `json:"start_time"`
	End                TimeOfDay   `json:"end_time"`
	VisitorName        *string     `json:"visitor_name" validate:"omitempty,max=200"`
	VisitorPhone       *string     `json:"visitor_phone" validate:"omitempty,max=32"`
	VisitorEmail       *string     `json:"visitor_email" validate:"omitempty,email,max=254"`
	ReferralCaseID     *uuid.UUID  `json:"referral_case_id"`
	CourseID           *uuid.UUID  `json:"course_id"`
	AutoCreateReferral bool        `json:"auto_create_pn"`
	SourceClinicID     *uuid.UUID  `json:"source_clinic_id"`
	Notes              *string     `json:"notes" validate:"omitempty,max=2000"`
}

type RescheduleRequest struct {
	Date  time.Time `json:"date" validate:"required"`
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

type CompleteRequest struct {
	Assessment        *referral.Assessment `json:"assessment"`
	BodyAnnotationRef *string              `json:"body_annotation_ref" validate:"omitempty,max=500"`
}

type Options struct {
	Repo      Repository
	Locker    redisclient.Locker
	Referrals *referral.Synchronizer
	Ledger    *course.Ledger
	Hours     HoursProvider
	Emitter   Emitter
	Location  *time.Location
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
	Now         func() time.Time
	Logger      zerolog.Logger
}

// Manager owns every appointment mutation. Each one runs in a single
// transaction and emits its event only after commit.
type Manager struct {
	repo        Repository
	locker      redisclient.Locker
	referrals   *referral.Synchronizer
	ledger      *course.Ledger
	hours       HoursProvider
	emitter     Emitter
	loc         *time.Location
	phoneRegion string
	now         func() time.Time
	log         zerolog.Logger
	validate    *validator.Validate
}

func NewManager(o Options) *Manager {
	m := &Manager{
		repo:        o.Repo,
		locker:      o.Locker,
		referrals:   o.Referrals,
		ledger:      o.Ledger,
		hours:       o.Hours,
		emitter:     o.Emitter,
		loc:         o.Location,
		phoneRegion: o.PhoneRegion,
		now:         o.Now,
		log:         o.Logger,
		validate:    validator.New(),
	}
	if m.locker == nil {
		m.locker = redisclient.NoopLocker{}
	}
	if m.emitter == nil {
		m.emitter = NopEmitter{}
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.phoneRegion == "" {
		m.phoneRegion = "TH"
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.ledger == nil {
		m.ledger = course.NewLedger(m.now)
	}
	if m.referrals == nil {
		m.referrals = referral.NewSynchronizer(m.ledger, uuid.Nil, m.now)
	}
	m.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return m
}

// Create books a new appointment after checking conflicts and the course.
func (m *Manager) Create(ctx context.Context, req BookingRequest, actor Actor) (*Appointment, error) {
	if err := m.validateBooking(&req); err != nil {
		return nil, err
	}
	if actor.Role == RolePatient {
		if req.Kind != KindRegisteredPatient || actor.PatientID == nil || *actor.PatientID != *req.PatientID {
			return nil, &AuthorizationError{Action: "book", Role: actor.Role}
		}
	}

	day := DateOf(req.Date)
	var created *Appointment

	err := m.withDayLock(ctx, req.PractitionerID, day, func(ctx context.Context) error {
		return m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.LockPractitionerDay(ctx, req.PractitionerID, day); err != nil {
				return fmt.Errorf("lock practitioner day: %w", err)
			}
			if err := detectConflicts(ctx, tx, OverlapQuery{
				PractitionerID: req.PractitionerID,
				Date:           day,
				Start:          req.Start,
				End:            req.End,
			}); err != nil {
				return err
			}

			if req.CourseID != nil {
				c, err := tx.GetCourse(ctx, *req.CourseID)
				if err != nil {
					return fmt.Errorf("load course: %w", err)
				}
				if err := course.CheckBookable(c, *req.PatientID, day); err != nil {
					return err
				}
			}

			now := m.now()
			a := &Appointment{
				ID:             uuid.New(),
				PatientID:      req.PatientID,
				PractitionerID: req.PractitionerID,
				ClinicID:       req.ClinicID,
				Date:           day,
				Start:          req.Start,
				End:            req.End,
				Status:         StatusScheduled,
				Kind:           req.Kind,
				VisitorName:    req.VisitorName,
				VisitorPhone:   req.VisitorPhone,
				VisitorEmail:   req.VisitorEmail,
				ReferralCaseID: req.ReferralCaseID,
				CourseID:       req.CourseID,
				Notes:          req.Notes,
				CreatedBy:      actorRef(actor),
				UpdatedBy:      actorRef(actor),
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			switch {
			case req.ReferralCaseID != nil:
				pn, err := tx.GetCase(ctx, *req.ReferralCaseID)
				if err != nil {
					return fmt.Errorf("load referral case: %w", err)
				}
				verr := &ValidationError{}
				if pn.PatientID != *req.PatientID {
					verr.add("referral_case_id", "belongs to another patient")
				} else if pn.Status == referral.StatusCancelled {
					verr.add("referral_case_id", "referral case is cancelled")
				}
				if err := verr.orNil(); err != nil {
					return err
				}
			case req.AutoCreateReferral:
				source := req.ClinicID
				if req.SourceClinicID != nil {
					source = *req.SourceClinicID
				}
				pn, err := m.referrals.CreatePending(ctx, tx, referral.NewCase{
					PatientID:      *req.PatientID,
					SourceClinicID: source,
					TargetClinicID: req.ClinicID,
					CourseID:       req.CourseID,
					AppointmentID:  &a.ID,
					ActorID:        actor.ID,
				})
				if err != nil {
					return err
				}
				a.ReferralCaseID = &pn.ID
				a.AutoCreatedReferral = true
			}

			if err := tx.InsertAppointment(ctx, a); err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}
			if err := m.audit(ctx, tx, actor, "appointment.create", nil, a); err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("practitioner_id", created.PractitionerID.String()).
		Str("date", created.Date.Format(time.DateOnly)).
		Str("start", created.Start.String()).
		Bool("auto_pn", created.AutoCreatedReferral).
		Msg("appointment created")

	m.emit(ctx, newEvent(EventCreated, created, actor, created.CreatedAt))
	return created, nil
}

// Reschedule moves an appointment to a new date and range. A request that
// matches the current schedule returns the appointment untouched.
func (m *Manager) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest, actor Actor) (*Appointment, error) {
	verr := &ValidationError{}
	m.validateStruct(req, verr)
	checkRange(verr, req.Start, req.End)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	current, err := m.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Staff() && !actor.Owns(current) {
		return nil, &AuthorizationError{Action: "reschedule", Role: actor.Role}
	}

	day := DateOf(req.Date)
	var (
		updated *Appointment
		prev    Appointment
		changed bool
	)

	err = m.withDayLock(ctx, current.PractitionerID, day, func(ctx context.Context) error {
		return m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
			a, err := tx.GetAppointmentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !reschedulable(a.Status) {
				return fmt.Errorf("%w: reschedule from %s", ErrInvalidTransition, a.Status)
			}
			if DateOf(a.Date).Equal(day) && a.Start == req.Start && a.End == req.End {
				updated = a
				return nil
			}

			if err := tx.LockPractitionerDay(ctx, a.PractitionerID, day); err != nil {
				return fmt.Errorf("lock practitioner day: %w", err)
			}
			if err := detectConflicts(ctx, tx, OverlapQuery{
				PractitionerID: a.PractitionerID,
				Date:           day,
				Start:          req.Start,
				End:            req.End,
				ExcludeID:      &a.ID,
			}); err != nil {
				return err
			}

			prev = *a
			a.Date, a.Start, a.End = day, req.Start, req.End
			a.UpdatedBy = actorRef(actor)
			a.UpdatedAt = m.now()

			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			if err := m.audit(ctx, tx, actor, "appointment.reschedule", &prev, a); err != nil {
				return err
			}
			updated, changed = a, true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.log.Info().
			Str("appointment_id", updated.ID.String()).
			Str("from", prev.Date.Format(time.DateOnly)+" "+prev.Start.String()).
			Str("to", updated.Date.Format(time.DateOnly)+" "+updated.Start.String()).
			Msg("appointment rescheduled")

		ev := newEvent(EventRescheduled, updated, actor, updated.UpdatedAt)
		ev.PreviousDate = &prev.Date
		ev.PreviousStart = &prev.Start
		ev.PreviousEnd = &prev.End
		m.emit(ctx, ev)
	}
	return updated, nil
}

// Cancel moves an appointment to CANCELLED and cancels its referral case,
// returning the course session when one had been used.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	var cancelled *Appointment

	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Role.Elevated() && !actor.Owns(a) {
			return &AuthorizationError{Action: "cancel", Role: actor.Role}
		}
		next, err := Next(a.Status, TransitionCancel)
		if err != nil {
			return err
		}
		before := *a

		if a.ReferralCaseID != nil {
			if _, err := m.referrals.Sync(ctx, tx, referral.SyncInput{
				CaseID:        *a.ReferralCaseID,
				AppointmentID: a.ID,
				CourseID:      a.CourseID,
				Trigger:       referral.TriggerCancelled,
				ActorID:       actor.ID,
				Reason:        reason,
			}); err != nil {
				return err
			}
		} else if a.CourseID != nil {
			if _, err := m.ledger.Credit(ctx, tx, m.ledgerOp(a, actor)); err != nil {
				return err
			}
		}

		now := m.now()
		a.Status = next
		if reason != "" {
			a.CancellationReason = &reason
		}
		a.CancelledBy = actorRef(actor)
		a.CancelledAt = &now
		a.UpdatedBy = actorRef(actor)
		a.UpdatedAt = now

		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := m.audit(ctx, tx, actor, "appointment.cancel", &before, a); err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("appointment_id", cancelled.ID.String()).
		Str("reason", reason).
		Msg("appointment cancelled")

	ev := newEvent(EventCancelled, cancelled, actor, cancelled.UpdatedAt)
	ev.Reason = reason
	m.emit(ctx, ev)
	return cancelled, nil
}

// Complete marks an appointment COMPLETED, accepts its referral case and
// uses one course session. Completing an already completed appointment
// re-runs the synchronizer, which is idempotent.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, req CompleteRequest, actor Actor) (*Appointment, error) {
	if !actor.Role.Staff() {
		return nil, &AuthorizationError{Action: "complete", Role: actor.Role}
	}
	verr := &ValidationError{}
	m.validateStruct(req, verr)
	if req.Assessment != nil && req.Assessment.PainScore != nil {
		if p := *req.Assessment.PainScore; p < 0 || p > 10 {
			verr.add("pain_score", "must be between 0 and 10")
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var (
		completed *Appointment
		changed   bool
	)

	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Next(a.Status, TransitionComplete)
		if err != nil {
			return err
		}
		before := *a

		if a.ReferralCaseID != nil {
			if _, err := m.referrals.Sync(ctx, tx, referral.SyncInput{
				CaseID:        *a.ReferralCaseID,
				AppointmentID: a.ID,
				CourseID:      a.CourseID,
				Trigger:       referral.TriggerCompleted,
				ActorID:       actor.ID,
				Assessment:    req.Assessment,
			}); err != nil {
				return err
			}
		} else if a.CourseID != nil {
			if _, err := m.ledger.Debit(ctx, tx, m.ledgerOp(a, actor)); err != nil {
				return err
			}
		}

		now := m.now()
		dirty := false
		if a.Status != next {
			a.Status = next
			a.CompletedAt = &now
			changed, dirty = true, true
		}
		if req.BodyAnnotationRef != nil {
			a.BodyAnnotationRef = req.BodyAnnotationRef
			dirty = true
		}
		completed = a
		if !dirty {
			return nil
		}

		a.UpdatedBy = actorRef(actor)
		a.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return m.audit(ctx, tx, actor, "appointment.complete", &before, a)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.log.Info().Str("appointment_id", completed.ID.String()).Msg("appointment completed")
		m.emit(ctx, newEvent(EventCompleted, completed, actor, completed.UpdatedAt))
	}
	return completed, nil
}

// Reverse takes a COMPLETED appointment back to SCHEDULED, returning the
// referral case to PENDING and the course session to the balance.
func (m *Manager) Reverse(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Appointment, error) {
	if !actor.Role.Elevated() {
		return nil, &AuthorizationError{Action: "reverse", Role: actor.Role}
	}
	reason = strings.TrimSpace(reason)
	var reversed *Appointment

	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Next(a.Status, TransitionReverse)
		if err != nil {
			return err
		}
		before := *a

		if a.ReferralCaseID != nil {
			if _, err := m.referrals.Sync(ctx, tx, referral.SyncInput{
				CaseID:        *a.ReferralCaseID,
				AppointmentID: a.ID,
				CourseID:      a.CourseID,
				Trigger:       referral.TriggerReversed,
				ActorID:       actor.ID,
				Reason:        reason,
			}); err != nil {
				return err
			}
		} else if a.CourseID != nil {
			if _, err := m.ledger.Credit(ctx, tx, m.ledgerOp(a, actor)); err != nil {
				return err
			}
		}

		a.Status = next
		a.CompletedAt = nil
		a.UpdatedBy = actorRef(actor)
		a.UpdatedAt = m.now()

		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := m.audit(ctx, tx, actor, "appointment.reverse", &before, a); err != nil {
			return err
		}
		reversed = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("appointment_id", reversed.ID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment completion reversed")

	ev := newEvent(EventReversed, reversed, actor, reversed.UpdatedAt)
	ev.Reason = reason
	m.emit(ctx, ev)
	return reversed, nil
}

// ChangeStatus applies CONFIRM, START or NO_SHOW. These have no referral
// or course effect.
func (m *Manager) ChangeStatus(ctx context.Context, id uuid.UUID, t Transition, actor Actor) (*Appointment, error) {
	switch t {
	case TransitionConfirm, TransitionStart, TransitionNoShow:
	default:
		return nil, fmt.Errorf("%w: %s is not a plain status change", ErrInvalidTransition, t)
	}

	var updated *Appointment
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Role.Staff() && !(t == TransitionConfirm && actor.Owns(a)) {
			return &AuthorizationError{Action: strings.ToLower(string(t)), Role: actor.Role}
		}
		next, err := Next(a.Status, t)
		if err != nil {
			return err
		}
		before := *a

		a.Status = next
		a.UpdatedBy = actorRef(actor)
		a.UpdatedAt = m.now()
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := m.audit(ctx, tx, actor, "appointment.status", &before, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, newEvent(EventStatusChanged, updated, actor, updated.UpdatedAt))
	return updated, nil
}

// CheckConflict reports the appointments overlapping q without writing.
func (m *Manager) CheckConflict(ctx context.Context, q OverlapQuery) (*ConflictResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	q.Date = DateOf(q.Date)
	found, err := m.repo.FindOverlapping(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	return &ConflictResult{HasConflict: len(found) > 0, Conflicts: found}, nil
}

// AvailableSlots returns the clinic's grid for day, minus the slots the
// practitioner is already booked for when one is given.
func (m *Manager) AvailableSlots(ctx context.Context, clinicID uuid.UUID, day time.Time, practitionerID *uuid.UUID) ([]Slot, error) {
	if clinicID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"clinic_id": "required"}}
	}
	hours := DefaultHours
	if m.hours != nil {
		h, err := m.hours.BusinessHours(ctx, clinicID)
		if err != nil {
			return nil, fmt.Errorf("load business hours: %w", err)
		}
		hours = h
	}

	day = DateOf(day)
	grid := GenerateSlots(hours, day, m.now().In(m.loc))
	if practitionerID == nil || len(grid) == 0 {
		return grid, nil
	}

	busy, err := m.repo.FindOverlapping(ctx, OverlapQuery{
		PractitionerID: *practitionerID,
		Date:           day,
		Start:          0,
		End:            EndOfDay,
	})
	if err != nil {
		return nil, fmt.Errorf("load practitioner schedule: %w", err)
	}
	return freeSlots(grid, busy), nil
}

// Get returns an appointment to staff or to the patient who owns it.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	a, err := m.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Staff() && !actor.Owns(a) {
		return nil, &AuthorizationError{Action: "view", Role: actor.Role}
	}
	return a, nil
}

// DefaultHours is used when no clinic settings are available.
var DefaultHours = Hours{Open: NewTimeOfDay(9, 0), Close: NewTimeOfDay(20, 0), Step: 30 * time.Minute}

func (m *Manager) validateBooking(req *BookingRequest) error {
	verr := &ValidationError{}
	m.validateStruct(req, verr)
	checkRange(verr, req.Start, req.End)

	switch req.Kind {
	case KindWalkIn:
		if req.PatientID != nil {
			verr.add("patient_id", "must be empty for walk-in bookings")
		}
		if req.VisitorName == nil || strings.TrimSpace(*req.VisitorName) == "" {
			verr.add("visitor_name", "required for walk-in bookings")
		} else {
			name := strings.TrimSpace(*req.VisitorName)
			req.VisitorName = &name
		}
		if req.CourseID != nil {
			verr.add("course_id", "not allowed for walk-in bookings")
		}
		if req.ReferralCaseID != nil || req.AutoCreateReferral {
			verr.add("referral_case_id", "not allowed for walk-in bookings")
		}
		if req.VisitorPhone != nil {
			phone, err := NormalizePhone(*req.VisitorPhone, m.phoneRegion)
			if err != nil {
				verr.add("visitor_phone", "invalid phone number")
			} else {
				req.VisitorPhone = &phone
			}
		}
	case KindRegisteredPatient:
		if req.PatientID == nil || *req.PatientID == uuid.Nil {
			verr.add("patient_id", "required for registered patient bookings")
		}
		if req.VisitorName != nil || req.VisitorPhone != nil || req.VisitorEmail != nil {
			verr.add("visitor_name", "walk-in fields are not allowed for registered patients")
		}
	}
	return verr.orNil()
}

func (m *Manager) validateStruct(s any, verr *ValidationError) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(m.validate.Struct(s), &fieldErrs) {
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), validationMessage(fe))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

func (m *Manager) withDayLock(ctx context.Context, practitionerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	err := m.locker.WithPractitionerDayLock(ctx, practitionerID, day, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBookingBusy
	}
	return err
}

func (m *Manager) ledgerOp(a *Appointment, actor Actor) course.Op {
	return course.Op{
		CourseID:      *a.CourseID,
		ReferenceID:   a.ledgerReference(),
		AppointmentID: &a.ID,
		ActorID:       actor.ID,
	}
}

func (m *Manager) audit(ctx context.Context, tx Tx, actor Actor, action string, before, after *Appointment) error {
	e := AuditEntry{
		ActorID:    actorRef(actor),
		Action:     action,
		EntityType: "appointment",
		EntityID:   after.ID,
		After:      after,
		CreatedAt:  m.now(),
	}
	if before != nil {
		e.Before = before
	}
	if err := tx.RecordAudit(ctx, e); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// emit detaches from the request so a client disconnect after commit does
// not drop side effects.
func (m *Manager) emit(ctx context.Context, ev Event) {
	m.emitter.Emit(context.WithoutCancel(ctx), ev)
}

func actorRef(a Actor) *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}
