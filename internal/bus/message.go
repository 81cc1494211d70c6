package bus

import (
	"context"
	"time"
)

// Message is one payload published on a topic. Payload is the native Go
// value in-process; over the wire it is re-encoded as JSON (see broker.go).
// Context carries whatever trace was in flight when the message was
// published — context.Background() for a plain Publish call — so a subscriber can continue
// correlating a span across the service boundary instead of starting an
// unrelated one (SPEC_FULL.md §B).
type Message struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
	Context   context.Context
}

// Ctx returns m.Context, or context.Background() if it was never set (e.g.
// a Message built directly by a test rather than delivered by a Bus).
func (m Message) Ctx() context.Context {
	if m.Context == nil {
		return context.Background()
	}
	return m.Context
}

// Handler processes one delivered Message. Bus.Subscribe itself only
// guarantees in-order, one-at-a-time delivery to a single subscription; it
// does not coordinate across a service's several subscriptions. Services
// get §5's "handlers never run concurrently with each other within one
// service" guarantee by registering through runtime.Base.Subscribe, which
// relays delivery onto one shared per-service dispatch loop instead of
// invoking Handler directly from Bus's own goroutine.
type Handler func(Message)
