package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/db"
)

// PgContacts looks up registered patients. Walk-ins carry their contact
// details on the event.
type PgContacts struct {
	q db.Queryable
}

func NewPgContacts(q db.Queryable) *PgContacts {
	return &PgContacts{q: q}
}

func (c *PgContacts) Resolve(ctx context.Context, ev appointment.Event) (Recipient, error) {
	if ev.PatientID == nil {
		return Recipient{
			Name:  deref(ev.VisitorName),
			Phone: deref(ev.VisitorPhone),
			Email: deref(ev.VisitorEmail),
		}, nil
	}

	var r Recipient
	var email, phone, lineID *string
	err := c.q.QueryRow(ctx, `
		SELECT name, email, phone, line_id
		FROM patients
		WHERE id = $1
	`, *ev.PatientID).Scan(&r.Name, &email, &phone, &lineID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, fmt.Errorf("patient %s not found", *ev.PatientID)
	}
	if err != nil {
		return Recipient{}, err
	}
	r.Email, r.Phone, r.LineID = deref(email), deref(phone), deref(lineID)
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
