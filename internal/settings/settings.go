package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/db"
)

// Clinic is the per-clinic configuration stored as a JSON blob. Fields
// missing from the blob keep the defaults it was decoded over.
type Clinic struct {
	Open            string `json:"open"`
	Close           string `json:"close"`
	SlotMinutes     int    `json:"slot_minutes"`
	NotifyEmail     bool   `json:"notify_email"`
	NotifySMS       bool   `json:"notify_sms"`
	NotifyLine      bool   `json:"notify_line"`
	CalendarEnabled bool   `json:"calendar_enabled"`
}

func (c Clinic) Hours() (appointment.Hours, error) {
	open, err := appointment.ParseTimeOfDay(c.Open)
	if err != nil {
		return appointment.Hours{}, fmt.Errorf("open: %w", err)
	}
	closing, err := appointment.ParseTimeOfDay(c.Close)
	if err != nil {
		return appointment.Hours{}, fmt.Errorf("close: %w", err)
	}
	if c.SlotMinutes <= 0 {
		return appointment.Hours{}, fmt.Errorf("slot_minutes must be > 0, got %d", c.SlotMinutes)
	}
	if open >= closing {
		return appointment.Hours{}, fmt.Errorf("open %s is not before close %s", c.Open, c.Close)
	}
	return appointment.Hours{Open: open, Close: closing, Step: time.Duration(c.SlotMinutes) * time.Minute}, nil
}

// Defaults builds the fallback settings from process configuration.
func Defaults(cfg config.Config) Clinic {
	return Clinic{
		Open:        cfg.BusinessOpen,
		Close:       cfg.BusinessClose,
		SlotMinutes: cfg.SlotMinutes,
		NotifyEmail: cfg.SMTPHost != "",
		NotifySMS:   true,
	}
}

// Provider resolves the effective settings of a clinic.
type Provider interface {
	Clinic(ctx context.Context, clinicID uuid.UUID) (Clinic, error)
}

// HoursOf adapts a Provider to the slot generator's hours lookup.
func HoursOf(p Provider) appointment.HoursProvider {
	return hoursProvider{p}
}

type hoursProvider struct{ p Provider }

func (h hoursProvider) BusinessHours(ctx context.Context, clinicID uuid.UUID) (appointment.Hours, error) {
	c, err := h.p.Clinic(ctx, clinicID)
	if err != nil {
		return appointment.Hours{}, err
	}
	return c.Hours()
}

// Static serves the same settings for every clinic.
type Static struct {
	Settings Clinic
}

func (s Static) Clinic(context.Context, uuid.UUID) (Clinic, error) {
	return s.Settings, nil
}

// PgProvider reads clinic_settings.settings and overlays it on defaults.
type PgProvider struct {
	q        db.Queryable
	defaults Clinic
}

func NewPgProvider(q db.Queryable, defaults Clinic) *PgProvider {
	return &PgProvider{q: q, defaults: defaults}
}

func (p *PgProvider) Clinic(ctx context.Context, clinicID uuid.UUID) (Clinic, error) {
	var blob []byte
	err := p.q.QueryRow(ctx, `SELECT settings FROM clinic_settings WHERE clinic_id = $1`, clinicID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return p.defaults, nil
	}
	if err != nil {
		return Clinic{}, fmt.Errorf("load clinic settings: %w", err)
	}
	return decode(p.defaults, blob)
}

func decode(defaults Clinic, blob []byte) (Clinic, error) {
	c := defaults
	if len(blob) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(blob, &c); err != nil {
		return Clinic{}, fmt.Errorf("decode clinic settings: %w", err)
	}
	return c, nil
}
