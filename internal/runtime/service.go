package runtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/EricP-Engramic/engramic/internal/bus"
	"github.com/EricP-Engramic/engramic/internal/metrics"
)

// Service is a named long-lived component with a construct step (handled by
// its constructor), a Start step (subscribe topics, launch background
// tasks), and a Stop step (drain, release), per spec.md §4.1.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Metrics() metrics.Packet
}

// dispatchBuffer bounds how many delivered-but-not-yet-handled messages a
// service's dispatch loop may queue across all of its subscriptions before
// Base.Subscribe's relay starts blocking the originating bus.Bus goroutine.
const dispatchBuffer = 256

// dispatchEntry pairs one delivered Message with the handler it was
// subscribed under, so the dispatch loop can invoke the right handler.
type dispatchEntry struct {
	msg     bus.Message
	handler bus.Handler
}

// Base is embedded by every concrete service: it wires up the scheduler,
// the bus handle, and a logger, so services only implement their own
// subscribe/handle logic. It is also the single dispatch point spec.md §5
// requires: every handler a service subscribes through Base.Subscribe runs
// on one dedicated goroutine, never concurrently with any other handler the
// same service has subscribed.
type Base struct {
	ServiceName string
	Bus         *bus.Bus
	Scheduler   *Scheduler
	Log         zerolog.Logger

	dispatch chan dispatchEntry
}

// NewBase constructs the shared scaffolding for a service named name and
// starts its dispatch loop, tied to the Scheduler's lifetime.
func NewBase(name string, b *bus.Bus, log zerolog.Logger) Base {
	dispatch := make(chan dispatchEntry, dispatchBuffer)
	scheduler := NewScheduler(context.Background())
	scheduler.RunBackground(func(ctx context.Context) {
		for {
			select {
			case entry := <-dispatch:
				entry.handler(entry.msg)
			case <-ctx.Done():
				return
			}
		}
	})

	return Base{
		ServiceName: name,
		Bus:         b,
		Scheduler:   scheduler,
		Log:         log.With().Str("service", name).Logger(),
		dispatch:    dispatch,
	}
}

// Name returns the service's name.
func (b Base) Name() string { return b.ServiceName }

// Subscribe registers handler for topic on this service's single dispatch
// loop rather than on bus.Bus's own per-subscription goroutine: the relay
// closure only enqueues, so handler — whatever topic it is subscribed
// under — never runs at the same time as any other handler this service
// has subscribed (§5). Every service calls this instead of Bus.Subscribe
// directly.
func (b *Base) Subscribe(topic bus.Topic, handler bus.Handler) {
	b.Bus.Subscribe(topic, func(msg bus.Message) {
		select {
		case b.dispatch <- dispatchEntry{msg: msg, handler: handler}:
		case <-b.Scheduler.Context().Done():
		}
	})
}
