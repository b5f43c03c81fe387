package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

const (
	subjectPrefix = "clinic."
	// SubjectAll matches every appointment event subject.
	SubjectAll    = subjectPrefix + "appointment.>"
	workerQueue   = "notify-worker"
)

func Subject(t appointment.EventType) string {
	return subjectPrefix + string(t)
}

// NATSPublisher is the Emitter used when side effects run in a separate
// worker process.
type NATSPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

func NewNATSPublisher(nc *nats.Conn, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, log: log}
}

func (p *NATSPublisher) Emit(_ context.Context, ev appointment.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("event", string(ev.Type)).Msg("marshal event")
		return
	}
	if err := p.nc.Publish(Subject(ev.Type), data); err != nil {
		p.log.Warn().
			Err(err).
			Str("appointment_id", ev.AppointmentID.String()).
			Str("event", string(ev.Type)).
			Msg("publish event")
	}
}

// Subscribe feeds every appointment event on nc to h. Workers share one
// queue group so each event is handled once.
func Subscribe(nc *nats.Conn, h EventHandler, log zerolog.Logger) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(SubjectAll, workerQueue, func(msg *nats.Msg) {
		var ev appointment.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding undecodable event")
			return
		}
		h.Handle(context.Background(), ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectAll, err)
	}
	return sub, nil
}
