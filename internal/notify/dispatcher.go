package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
)

type EventHandler interface {
	Handle(ctx context.Context, ev appointment.Event)
}

// Dispatcher is the in-process Emitter: each event is handled on its own
// goroutine so the request that produced it never waits on side effects.
type Dispatcher struct {
	handler EventHandler
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(handler EventHandler, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{handler: handler, log: log}
}

func (d *Dispatcher) Emit(ctx context.Context, ev appointment.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().
			Str("appointment_id", ev.AppointmentID.String()).
			Str("event", string(ev.Type)).
			Msg("dispatcher closed, dropping event")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.handler.Handle(ctx, ev)
	}()
}

// Close stops accepting events and waits for in-flight ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
