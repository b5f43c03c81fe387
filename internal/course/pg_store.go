package course

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/physio-scheduling/internal/db"
)

// PgStore implements Store on a pool or a transaction.
type PgStore struct {
	q db.Queryable
}

func NewPgStore(q db.Queryable) *PgStore {
	return &PgStore{q: q}
}

const courseCols = `id, patient_id, name, total_sessions, used_sessions, remaining_sessions,
	status, expires_on, created_at, updated_at`

func scanCourse(row pgx.Row) (*Course, error) {
	var c Course
	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.Name,
		&c.Total,
		&c.Used,
		&c.Remaining,
		&c.Status,
		&c.ExpiresOn,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	return s.getCourse(ctx, id, "")
}

func (s *PgStore) GetCourseForUpdate(ctx context.Context, id uuid.UUID) (*Course, error) {
	return s.getCourse(ctx, id, "FOR UPDATE")
}

func (s *PgStore) getCourse(ctx context.Context, id uuid.UUID, lock string) (*Course, error) {
	c, err := scanCourse(s.q.QueryRow(ctx, `SELECT `+courseCols+` FROM courses WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, `SELECT patient_id FROM course_shared_patients WHERE course_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load shared patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		c.SharedPatientIDs = append(c.SharedPatientIDs, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PgStore) UpdateCourseBalance(ctx context.Context, c *Course) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE courses
		SET used_sessions = $2,
		    remaining_sessions = $3,
		    status = $4,
		    updated_at = $5
		WHERE id = $1
	`, c.ID, c.Used, c.Remaining, c.Status, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCourseNotFound
	}
	return nil
}

func (s *PgStore) LastLedgerEntry(ctx context.Context, courseID, referenceID uuid.UUID) (*LedgerEntry, error) {
	var e LedgerEntry
	err := s.q.QueryRow(ctx, `
		SELECT id, course_id, reference_id, appointment_id, kind, remaining_after, actor_id, created_at
		FROM course_ledger
		WHERE course_id = $1 AND reference_id = $2
		ORDER BY id DESC
		LIMIT 1
	`, courseID, referenceID).Scan(
		&e.ID,
		&e.CourseID,
		&e.ReferenceID,
		&e.AppointmentID,
		&e.Kind,
		&e.RemainingAfter,
		&e.ActorID,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (s *PgStore) InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO course_ledger (course_id, reference_id, appointment_id, kind, remaining_after, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.CourseID, e.ReferenceID, e.AppointmentID, e.Kind, e.RemainingAfter, e.ActorID, e.CreatedAt).Scan(&e.ID)
}
