package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/course"
)

// Store is everything the synchronizer touches. All calls run on the
// caller's transaction so a case update, its history row and the course
// ledger movement commit or roll back together.
type Store interface {
	course.Store

	GetCase(ctx context.Context, id uuid.UUID) (*Case, error)
	GetCaseForUpdate(ctx context.Context, id uuid.UUID) (*Case, error)
	InsertCase(ctx context.Context, c *Case) error
	UpdateCase(ctx context.Context, c *Case) error
	InsertStatusHistory(ctx context.Context, h *StatusHistory) error

	// NextSequence locks the named counter row, increments it and returns
	// the new value.
	NextSequence(ctx context.Context, name string) (int64, error)
}

type SyncInput struct {
	CaseID        uuid.UUID
	AppointmentID uuid.UUID
	// CourseID is the appointment's course; the case's own course is used
	// when it is nil.
	CourseID   *uuid.UUID
	Trigger    Trigger
	ActorID    uuid.UUID
	Reason     string
	Assessment *Assessment
}

type SyncResult struct {
	Case    *Case
	Changed bool
	History *StatusHistory
	Ledger  *course.LedgerEntry
}

type NewCase struct {
	PatientID      uuid.UUID
	SourceClinicID uuid.UUID
	TargetClinicID uuid.UUID
	CourseID       *uuid.UUID
	AppointmentID  *uuid.UUID
	ActorID        uuid.UUID
}

// Synchronizer keeps a PN case in step with its linked appointment.
type Synchronizer struct {
	ledger       *course.Ledger
	homeClinicID uuid.UUID
	now          func() time.Time
}

func NewSynchronizer(ledger *course.Ledger, homeClinicID uuid.UUID, now func() time.Time) *Synchronizer {
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{ledger: ledger, homeClinicID: homeClinicID, now: now}
}

// Sync applies the case transition for in.Trigger together with the
// matching course debit or credit.
func (s *Synchronizer) Sync(ctx context.Context, st Store, in SyncInput) (*SyncResult, error) {
	c, err := st.GetCaseForUpdate(ctx, in.CaseID)
	if err != nil {
		return nil, fmt.Errorf("lock referral case: %w", err)
	}

	next, changed, err := NextStatus(c.Status, in.Trigger)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Case: c, Changed: changed}
	old := c.Status
	now := s.now()
	dirty := changed

	courseID := in.CourseID
	if courseID == nil {
		courseID = c.CourseID
	}
	op := course.Op{ReferenceID: c.ID, AppointmentID: &in.AppointmentID, ActorID: in.ActorID}
	if courseID != nil {
		op.CourseID = *courseID
	}

	switch in.Trigger {
	case TriggerCompleted:
		merged := c.Assessment.Merge(in.Assessment)
		if c.RequiresAssessment(s.homeClinicID) {
			if missing := merged.Missing(); len(missing) > 0 {
				return nil, &AssessmentRequiredError{CaseID: c.ID.String(), Missing: missing}
			}
		}
		if merged != c.Assessment {
			c.Assessment = merged
			dirty = true
		}
		if changed {
			c.Status = next
			c.AcceptedAt = &now
		}
		if courseID != nil {
			if res.Ledger, err = s.ledger.Debit(ctx, st, op); err != nil {
				return nil, err
			}
		}

	case TriggerReversed:
		if changed {
			c.Status = next
			c.Assessment = Assessment{}
			c.AcceptedAt = nil
		}
		if courseID != nil {
			if res.Ledger, err = s.ledger.Credit(ctx, st, op); err != nil {
				return nil, err
			}
		}

	case TriggerCancelled:
		if old == StatusAccepted && courseID != nil {
			if res.Ledger, err = s.ledger.Credit(ctx, st, op); err != nil {
				return nil, err
			}
		}
		if changed {
			c.Status = next
			c.CancelledAt = &now
		}
	}

	if dirty {
		c.UpdatedAt = now
		if err := st.UpdateCase(ctx, c); err != nil {
			return nil, fmt.Errorf("update referral case: %w", err)
		}
	}

	if changed {
		h := &StatusHistory{
			CaseID:        c.ID,
			AppointmentID: &in.AppointmentID,
			OldStatus:     old,
			NewStatus:     next,
			Reason:        in.Reason,
			IsReversal:    in.Trigger == TriggerReversed,
			CreatedAt:     now,
		}
		if in.ActorID != uuid.Nil {
			actor := in.ActorID
			h.ActorID = &actor
		}
		if err := st.InsertStatusHistory(ctx, h); err != nil {
			return nil, fmt.Errorf("insert referral history: %w", err)
		}
		res.History = h
	}

	return res, nil
}

// CreatePending opens a new PENDING case with the next PN code.
func (s *Synchronizer) CreatePending(ctx context.Context, st Store, in NewCase) (*Case, error) {
	now := s.now()

	seq, err := st.NextSequence(ctx, CounterName(now))
	if err != nil {
		return nil, fmt.Errorf("next pn sequence: %w", err)
	}

	c := &Case{
		ID:             uuid.New(),
		Code:           FormatCode(now, seq),
		PatientID:      in.PatientID,
		SourceClinicID: in.SourceClinicID,
		TargetClinicID: in.TargetClinicID,
		CourseID:       in.CourseID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var actor *uuid.UUID
	if in.ActorID != uuid.Nil {
		a := in.ActorID
		actor = &a
		c.CreatedBy = actor
	}

	if err := st.InsertCase(ctx, c); err != nil {
		return nil, fmt.Errorf("insert referral case: %w", err)
	}

	if err := st.InsertStatusHistory(ctx, &StatusHistory{
		CaseID:        c.ID,
		AppointmentID: in.AppointmentID,
		NewStatus:     StatusPending,
		ActorID:       actor,
		Reason:        "created with appointment booking",
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("insert referral history: %w", err)
	}

	return c, nil
}
