package notify

import (
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/internal/settings"
)

// HandlerFromConfig wires the notifiers the environment has credentials
// for. Channels without credentials fall back to logging.
func HandlerFromConfig(cfg config.Config, q db.Queryable, refs CalendarRefStore, sp settings.Provider, log zerolog.Logger) *Handler {
	var sender SMSSender = LogSender{Log: log}
	if cfg.SMSIRAPIKey != "" {
		sender = NewSMSIRSender(cfg.SMSIRAPIKey, cfg.SMSIRSecretKey, cfg.SMSIRTemplateID)
	}

	notifiers := []Notifier{
		NewSMSNotifier(sender, cfg.SMSRegion),
		LineNotifier{Log: log},
	}
	if cfg.SMTPHost != "" {
		notifiers = append(notifiers, NewEmailNotifier(EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	}

	return NewHandler(HandlerOptions{
		Calendar:  LogCalendar{Log: log},
		Refs:      refs,
		Notifiers: notifiers,
		Contacts:  NewPgContacts(q),
		Settings:  sp,
		Location:  cfg.ClinicTimezone,
		Timeout:   cfg.NotifyTimeout,
		Logger:    log,
	})
}
