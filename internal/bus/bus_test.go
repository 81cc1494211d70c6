package bus

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	received := make(chan Message, 1)
	b.Subscribe(Acknowledge, func(m Message) { received <- m })

	b.Publish(Acknowledge, "hello")

	select {
	case m := <-received:
		assert.Equal(t, Acknowledge, m.Topic)
		assert.Equal(t, "hello", m.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBus_PreservesPublishOrderPerSubscriber(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	received := make(chan Message, 10)
	b.Subscribe(Status, func(m Message) { received <- m })

	for i := 0; i < 5; i++ {
		b.Publish(Status, i)
	}

	for i := 0; i < 5; i++ {
		select {
		case m := <-received:
			assert.Equal(t, i, m.Payload)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestBus_MultipleSubscribersAllReceive(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	a := make(chan Message, 1)
	c := make(chan Message, 1)
	b.Subscribe(Shutdown, func(m Message) { a <- m })
	b.Subscribe(Shutdown, func(m Message) { c <- m })

	b.Publish(Shutdown, nil)

	for _, ch := range []chan Message{a, c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery to all subscribers")
		}
	}
}

func TestTopic_ValidRejectsUnknown(t *testing.T) {
	assert.True(t, Acknowledge.Valid())
	assert.False(t, Topic("NOT_A_REAL_TOPIC").Valid())
}

func TestFrame_RoundTripsThroughWire(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, Frame{Topic: Status, Payload: []byte(`{"ok":true}`)}))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, Status, got.Topic)
	assert.Equal(t, `{"ok":true}`, string(got.Payload))
}
