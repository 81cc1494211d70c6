package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Client is a cross-process connection to a Broker: it dials the broker's
// pull address to publish frames and the broker's pub address to receive
// every frame the broker forwards. Used when a service runs in a separate
// process from the one hosting the broker; in-process services use Bus
// directly instead.
type Client struct {
	log zerolog.Logger

	pullConn net.Conn
	pullMu   sync.Mutex

	subConn net.Conn
	reader  *bufio.Reader
}

// Dial connects to a running Broker's pull and pub addresses.
func Dial(pullAddr, pubAddr string, log zerolog.Logger) (*Client, error) {
	pullConn, err := net.Dial("tcp", stripScheme(pullAddr))
	if err != nil {
		return nil, fmt.Errorf("dial broker pull address %s: %w", pullAddr, err)
	}
	subConn, err := net.Dial("tcp", stripScheme(pubAddr))
	if err != nil {
		pullConn.Close()
		return nil, fmt.Errorf("dial broker pub address %s: %w", pubAddr, err)
	}
	return &Client{
		log:      log,
		pullConn: pullConn,
		subConn:  subConn,
		reader:   bufio.NewReader(subConn),
	}, nil
}

// Publish JSON-encodes payload and sends it as a frame on topic.
func (c *Client) Publish(topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for topic %s: %w", topic, err)
	}
	c.pullMu.Lock()
	defer c.pullMu.Unlock()
	return writeFrame(c.pullConn, Frame{Topic: topic, Payload: data})
}

// Recv blocks until the next frame arrives from the broker's pub stream.
func (c *Client) Recv() (Frame, error) {
	return readFrame(c.reader)
}

// Close closes both connections.
func (c *Client) Close() error {
	c.pullConn.Close()
	c.subConn.Close()
	return nil
}
