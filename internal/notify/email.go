package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

var ErrNoAddress = errors.New("recipient has no address for this channel")

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailNotifier sends over SMTP.
type EmailNotifier struct {
	cfg  EmailConfig
	dial func(m *gomail.Message) error
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailNotifier{cfg: cfg, dial: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To.Email)
	if to == "" {
		return ErrNoAddress
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	if msg.To.Name != "" {
		m.SetAddressHeader("To", to, msg.To.Name)
	} else {
		m.SetHeader("To", to)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- n.dial(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
