package bus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBroker_ForwardsPublishedFrameToSubscribers(t *testing.T) {
	broker, err := NewBroker("tcp://127.0.0.1:0", "tcp://127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer broker.Close()

	pullAddr := broker.pullListener.Addr().String()
	pubAddr := broker.pubListener.Addr().String()

	go broker.Run()
	time.Sleep(20 * time.Millisecond) // let both accept loops start

	client, err := Dial("tcp://"+pullAddr, "tcp://"+pubAddr, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	time.Sleep(20 * time.Millisecond) // let the broker register the pub connection

	require.NoError(t, client.Publish(Acknowledge, map[string]string{"ping": "pong"}))

	frame, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, Acknowledge, frame.Topic)
	require.Contains(t, string(frame.Payload), "pong")
}

func TestNewBroker_FailsOnUnbindableAddress(t *testing.T) {
	broker, err := NewBroker("tcp://127.0.0.1:0", "tcp://127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer broker.Close()

	pullAddr := broker.pullListener.Addr().String()
	_, err = NewBroker("tcp://"+pullAddr, "tcp://127.0.0.1:0", zerolog.Nop())
	require.Error(t, err)
}
