package notify

import (
	"context"
	"fmt"

	"github.com/arsmn/go-smsir/smsir"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

// SMSSender is the gateway behind SMSNotifier.
type SMSSender interface {
	Send(ctx context.Context, phone string, msg Message) error
}

// SMSNotifier normalises the recipient phone before handing off to the
// gateway.
type SMSNotifier struct {
	sender SMSSender
	region string
}

func NewSMSNotifier(sender SMSSender, region string) *SMSNotifier {
	return &SMSNotifier{sender: sender, region: region}
}

func (n *SMSNotifier) Channel() Channel { return ChannelSMS }

func (n *SMSNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.To.Phone == "" {
		return ErrNoAddress
	}
	phone, err := appointment.NormalizePhone(msg.To.Phone, n.region)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, phone, msg)
}

// SMSIRSender sends through sms.ir template messages. The template is
// expected to take a "message" parameter.
type SMSIRSender struct {
	client     *smsir.Client
	templateID string
}

func NewSMSIRSender(apiKey, secretKey, templateID string) *SMSIRSender {
	return &SMSIRSender{
		client:     smsir.NewClient().WithAuthentication(apiKey, secretKey),
		templateID: templateID,
	}
}

func (s *SMSIRSender) Send(ctx context.Context, phone string, msg Message) error {
	req := &smsir.UltraFastSendRequest{
		Mobile:     phone,
		TemplateID: s.templateID,
		Parameters: []smsir.UltraFastParameter{
			{Key: "message", Value: msg.Body},
		},
	}
	if _, err := s.client.Verification.UltraFastSend(ctx, req); err != nil {
		return fmt.Errorf("sms.ir send failed: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of a gateway. Used in dev.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, phone string, msg Message) error {
	s.Log.Info().Str("phone", phone).Str("event", string(msg.Event)).Str("body", msg.Body).Msg("sms")
	return nil
}

// LineNotifier records LINE messages in the log. Delivery through the LINE
// API is not wired yet.
type LineNotifier struct {
	Log zerolog.Logger
}

func (n LineNotifier) Channel() Channel { return ChannelLine }

func (n LineNotifier) Notify(_ context.Context, msg Message) error {
	if msg.To.LineID == "" {
		return ErrNoAddress
	}
	n.Log.Info().Str("line_id", msg.To.LineID).Str("event", string(msg.Event)).Str("body", msg.Body).Msg("line")
	return nil
}
