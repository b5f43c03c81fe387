package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/physio-scheduling/internal/db"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

const (
	pgExclusionViolation = "23P01"
	microsPerMinute      = int64(time.Minute / time.Microsecond)
	// lastMicroOfDay stands in for 24:00 in range predicates.
	lastMicroOfDay = int64(24*time.Hour/time.Microsecond) - 1
)

type PgRepository struct {
	pool *pgxpool.Pool
	*pgStore
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, pgStore: newPgStore(pool)}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, newPgStore(tx))
	})
}

// pgStore runs the appointment statements plus the referral and course
// ones on whatever Queryable it wraps.
type pgStore struct {
	*referral.PgStore
	q db.Queryable
}

func newPgStore(q db.Queryable) *pgStore {
	return &pgStore{PgStore: referral.NewPgStore(q), q: q}
}

// Helpers

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func toPgRangeEnd(t TimeOfDay) pgtype.Time {
	if t >= EndOfDay {
		return pgtype.Time{Microseconds: lastMicroOfDay, Valid: true}
	}
	return toPgTime(t)
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / microsPerMinute)
}

func toPgDate(d time.Time) pgtype.Date {
	return pgtype.Date{Time: DateOf(d), Valid: true}
}

const appointmentCols = `id, patient_id, practitioner_id, clinic_id, appt_date, start_time, end_time,
	status, booking_kind, visitor_name, visitor_phone, visitor_email,
	referral_case_id, course_id, auto_created_referral, calendar_event_id,
	cancellation_reason, body_annotation_ref, notes,
	created_by, updated_by, cancelled_by, created_at, updated_at, completed_at, cancelled_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&a.ClinicID,
		&date,
		&start,
		&end,
		&a.Status,
		&a.Kind,
		&a.VisitorName,
		&a.VisitorPhone,
		&a.VisitorEmail,
		&a.ReferralCaseID,
		&a.CourseID,
		&a.AutoCreatedReferral,
		&a.CalendarEventID,
		&a.CancellationReason,
		&a.BodyAnnotationRef,
		&a.Notes,
		&a.CreatedBy,
		&a.UpdatedBy,
		&a.CancelledBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CompletedAt,
		&a.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOf(date.Time)
	a.Start = fromPgTime(start)
	a.End = fromPgTime(end)
	return &a, nil
}

// mapWriteError turns the exclusion constraint into a ConflictError so a
// race that slips past the locks still surfaces as a booking conflict.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return &ConflictError{}
	}
	return err
}

// Interface methods

func (s *pgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(s.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
}

func (s *pgStore) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(s.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (s *pgStore) LockPractitionerDay(ctx context.Context, practitionerID uuid.UUID, day time.Time) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		redisclient.LockKey(practitionerID, day))
	return err
}

func (s *pgStore) FindOverlapping(ctx context.Context, q OverlapQuery) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND appt_date = $2
		  AND status <> 'CANCELLED'
		  AND start_time < $4
		  AND end_time > $3
		  AND ($5::uuid IS NULL OR id <> $5)
		ORDER BY start_time
	`, q.PractitionerID, toPgDate(q.Date), toPgTime(q.Start), toPgRangeEnd(q.End), q.ExcludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *pgStore) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, practitioner_id, clinic_id, appt_date, start_time, end_time,
			status, booking_kind, visitor_name, visitor_phone, visitor_email,
			referral_case_id, course_id, auto_created_referral, calendar_event_id,
			cancellation_reason, body_annotation_ref, notes,
			created_by, updated_by, cancelled_by, created_at, updated_at, completed_at, cancelled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`, a.ID, a.PatientID, a.PractitionerID, a.ClinicID, toPgDate(a.Date), toPgTime(a.Start), toPgTime(a.End),
		a.Status, a.Kind, a.VisitorName, a.VisitorPhone, a.VisitorEmail,
		a.ReferralCaseID, a.CourseID, a.AutoCreatedReferral, a.CalendarEventID,
		a.CancellationReason, a.BodyAnnotationRef, a.Notes,
		a.CreatedBy, a.UpdatedBy, a.CancelledBy, a.CreatedAt, a.UpdatedAt, a.CompletedAt, a.CancelledAt)
	return mapWriteError(err)
}

func (s *pgStore) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments
		SET appt_date = $2,
		    start_time = $3,
		    end_time = $4,
		    status = $5,
		    referral_case_id = $6,
		    cancellation_reason = $7,
		    body_annotation_ref = $8,
		    updated_by = $9,
		    cancelled_by = $10,
		    updated_at = $11,
		    completed_at = $12,
		    cancelled_at = $13
		WHERE id = $1
	`, a.ID, toPgDate(a.Date), toPgTime(a.Start), toPgTime(a.End), a.Status, a.ReferralCaseID,
		a.CancellationReason, a.BodyAnnotationRef, a.UpdatedBy, a.CancelledBy,
		a.UpdatedAt, a.CompletedAt, a.CancelledAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *pgStore) CalendarEventID(ctx context.Context, id uuid.UUID) (*string, error) {
	var ref *string
	err := s.q.QueryRow(ctx, `
		SELECT calendar_event_id FROM appointments WHERE id = $1
	`, id).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *pgStore) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID *string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments SET calendar_event_id = $2 WHERE id = $1
	`, id, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *pgStore) RecordAudit(ctx context.Context, e AuditEntry) error {
	before, err := auditJSON(e.Before)
	if err != nil {
		return err
	}
	after, err := auditJSON(e.After)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, e.ActorID, e.Action, e.EntityType, e.EntityID, before, after, nullableTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func auditJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
