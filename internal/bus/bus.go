package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 64

// subscription delivers messages to one handler in publish order, on its own
// goroutine, so a slow handler never blocks other subscribers of the same
// topic and never runs concurrently with itself.
type subscription struct {
	ch      chan Message
	handler Handler
}

// Bus is the in-process publish/subscribe fast path used when publisher and
// subscriber live in the same process (the common case — every built-in
// service runs inside one Host). Delivery is at-most-once and best-effort:
// Publish never blocks, and a subscriber whose buffer is full silently drops
// the message, matching spec.md §4.2.
type Bus struct {
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[Topic][]*subscription

	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
}

// New constructs a Bus. Call Close when the owning Host shuts down to stop
// every subscriber goroutine.
func New(log zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		log:    log,
		subs:   make(map[Topic][]*subscription),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers handler to receive every message published on topic
// from this point forward. Handlers are invoked on a dedicated goroutine per
// subscription, one message at a time, in publish order — but that
// goroutine belongs to the subscription, not to the caller: two separate
// Subscribe calls from the same service deliver independently and can
// invoke their handlers concurrently with each other. Built-in services
// never call this directly; they go through runtime.Base.Subscribe, whose
// relay handler funnels delivery onto one shared per-service dispatch loop
// so every handler that service owns is serialized against the others.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	sub := &subscription{ch: make(chan Message, subscriberBuffer), handler: handler}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case msg := <-sub.ch:
				sub.handler(msg)
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

// Publish delivers msg.Payload to every current subscriber of topic.
// Non-blocking: a full subscriber buffer causes that subscriber (and only
// that one) to drop the message.
func (b *Bus) Publish(topic Topic, payload any) {
	b.PublishWithContext(context.Background(), topic, payload)
}

// PublishWithContext behaves like Publish, but stamps msg.Context with ctx
// so a subscriber can pick up a trace already in progress (SPEC_FULL.md §B)
// instead of starting an unrelated span.
func (b *Bus) PublishWithContext(ctx context.Context, topic Topic, payload any) {
	msg := Message{Topic: topic, Payload: payload, Context: ctx}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			b.log.Warn().Str("topic", string(topic)).Msg("subscriber buffer full, dropping message")
		}
	}
}

// Close stops every subscriber goroutine and waits for them to exit.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
