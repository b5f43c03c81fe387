package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/physio-scheduling/internal/course"
	"github.com/hackgods/physio-scheduling/internal/db"
)

// PgStore implements Store on a pool or a transaction.
type PgStore struct {
	*course.PgStore
	q db.Queryable
}

func NewPgStore(q db.Queryable) *PgStore {
	return &PgStore{PgStore: course.NewPgStore(q), q: q}
}

const caseCols = `id, code, patient_id, source_clinic_id, target_clinic_id, course_id, status,
	diagnosis, chief_complaint, present_history, pain_score,
	accepted_at, cancelled_at, created_by, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var pain *int16
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.PatientID,
		&c.SourceClinicID,
		&c.TargetClinicID,
		&c.CourseID,
		&c.Status,
		&c.Assessment.Diagnosis,
		&c.Assessment.ChiefComplaint,
		&c.Assessment.PresentHistory,
		&pain,
		&c.AcceptedAt,
		&c.CancelledAt,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	if pain != nil {
		p := int(*pain)
		c.Assessment.PainScore = &p
	}
	return &c, nil
}

func (s *PgStore) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(s.q.QueryRow(ctx, `SELECT `+caseCols+` FROM referral_cases WHERE id = $1`, id))
}

func (s *PgStore) GetCaseForUpdate(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(s.q.QueryRow(ctx, `SELECT `+caseCols+` FROM referral_cases WHERE id = $1 FOR UPDATE`, id))
}

func (s *PgStore) InsertCase(ctx context.Context, c *Case) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO referral_cases (
			id, code, patient_id, source_clinic_id, target_clinic_id, course_id, status,
			diagnosis, chief_complaint, present_history, pain_score,
			accepted_at, cancelled_at, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, c.ID, c.Code, c.PatientID, c.SourceClinicID, c.TargetClinicID, c.CourseID, c.Status,
		c.Assessment.Diagnosis, c.Assessment.ChiefComplaint, c.Assessment.PresentHistory, c.Assessment.PainScore,
		c.AcceptedAt, c.CancelledAt, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PgStore) UpdateCase(ctx context.Context, c *Case) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE referral_cases
		SET status = $2,
		    diagnosis = $3,
		    chief_complaint = $4,
		    present_history = $5,
		    pain_score = $6,
		    accepted_at = $7,
		    cancelled_at = $8,
		    updated_at = $9
		WHERE id = $1
	`, c.ID, c.Status, c.Assessment.Diagnosis, c.Assessment.ChiefComplaint, c.Assessment.PresentHistory,
		c.Assessment.PainScore, c.AcceptedAt, c.CancelledAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (s *PgStore) InsertStatusHistory(ctx context.Context, h *StatusHistory) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO referral_status_history (case_id, appointment_id, old_status, new_status, actor_id, reason, is_reversal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, h.CaseID, h.AppointmentID, h.OldStatus, h.NewStatus, h.ActorID, h.Reason, h.IsReversal, h.CreatedAt).Scan(&h.ID)
}

func (s *PgStore) NextSequence(ctx context.Context, name string) (int64, error) {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO sequence_counters (name, value) VALUES ($1, 0)
		ON CONFLICT (name) DO NOTHING
	`, name); err != nil {
		return 0, fmt.Errorf("ensure counter %s: %w", name, err)
	}

	var value int64
	if err := s.q.QueryRow(ctx, `SELECT value FROM sequence_counters WHERE name = $1 FOR UPDATE`, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("lock counter %s: %w", name, err)
	}

	value++
	if _, err := s.q.Exec(ctx, `UPDATE sequence_counters SET value = $2 WHERE name = $1`, name, value); err != nil {
		return 0, fmt.Errorf("bump counter %s: %w", name, err)
	}
	return value, nil
}

// ListHistory returns the case's status history, oldest first.
func (s *PgStore) ListHistory(ctx context.Context, caseID uuid.UUID) ([]StatusHistory, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, case_id, appointment_id, old_status, new_status, actor_id, COALESCE(reason, ''), is_reversal, created_at
		FROM referral_status_history
		WHERE case_id = $1
		ORDER BY id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.CaseID, &h.AppointmentID, &h.OldStatus, &h.NewStatus,
			&h.ActorID, &h.Reason, &h.IsReversal, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
