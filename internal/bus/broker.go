package bus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/EricP-Engramic/engramic/internal/metrics"
)

// BrokerMetric names the counters a Broker tracks, grounded on the teacher's
// base_message_service.py MessageMetric enum.
type BrokerMetric string

const (
	MetricMessageReceived BrokerMetric = "message_received"
	MetricMessageSent     BrokerMetric = "message_sent"
)

// Frame is one topic+payload pair as it travels the wire: two
// length-prefixed byte strings, mirroring ZMQ's multipart frames since no Go
// ZMQ client exists anywhere in the example pack (see DESIGN.md).
type Frame struct {
	Topic   Topic
	Payload []byte
}

// writeFrame writes a length-prefixed topic followed by a length-prefixed
// payload: [u32 topicLen][topic bytes][u32 payloadLen][payload bytes].
func writeFrame(w io.Writer, f Frame) error {
	topic := []byte(f.Topic)
	if err := binary.Write(w, binary.BigEndian, uint32(len(topic))); err != nil {
		return err
	}
	if _, err := w.Write(topic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(f.Payload))); err != nil {
		return err
	}
	if _, err := w.Write(f.Payload); err != nil {
		return err
	}
	return nil
}

func readFrame(r io.Reader) (Frame, error) {
	var topicLen uint32
	if err := binary.Read(r, binary.BigEndian, &topicLen); err != nil {
		return Frame{}, err
	}
	topic := make([]byte, topicLen)
	if _, err := io.ReadFull(r, topic); err != nil {
		return Frame{}, err
	}
	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return Frame{}, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Topic: Topic(topic), Payload: payload}, nil
}

// Broker is the cross-process message fabric's transport: it binds a pull
// listener (inbound from publishers) and a pub listener (outbound to
// subscribers), and its only job is to forward every frame it receives on
// the pull side to every connection on the pub side, counting each
// direction. Grounded on base_message_service.py's bind/forward shape; bind
// failure on either address is fatal, matching spec.md §4.2.
type Broker struct {
	log     zerolog.Logger
	metrics *metrics.Typed[BrokerMetric]

	pullListener net.Listener
	pubListener  net.Listener

	mu        sync.RWMutex
	pubConns  map[net.Conn]struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewBroker binds the pull and pub listeners. Either bind failure is
// returned immediately and is fatal at the call site, matching spec.md
// §4.2's "bind failure on either port is fatal."
func NewBroker(pullAddr, pubAddr string, log zerolog.Logger) (*Broker, error) {
	pullListener, err := net.Listen("tcp", stripScheme(pullAddr))
	if err != nil {
		return nil, fmt.Errorf("bind pull address %s: %w", pullAddr, err)
	}
	pubListener, err := net.Listen("tcp", stripScheme(pubAddr))
	if err != nil {
		pullListener.Close()
		return nil, fmt.Errorf("bind pub address %s: %w", pubAddr, err)
	}

	tracker := metrics.NewTyped[BrokerMetric]()
	b := &Broker{
		log:          log,
		metrics:      &tracker,
		pullListener: pullListener,
		pubListener:  pubListener,
		pubConns:     make(map[net.Conn]struct{}),
		done:         make(chan struct{}),
	}
	return b, nil
}

// stripScheme trims a "tcp://" prefix and turns a bare "*" host into an
// empty host, since net.Listen wants "host:port" (Go's listen convention for
// "bind all interfaces" is an empty host, not "*").
func stripScheme(addr string) string {
	const scheme = "tcp://"
	if len(addr) >= len(scheme) && addr[:len(scheme)] == scheme {
		addr = addr[len(scheme):]
	}
	if len(addr) > 0 && addr[0] == '*' {
		addr = addr[1:]
	}
	return addr
}

// Run accepts connections on both listeners until Close is called. Pull
// connections are read for frames which are immediately forwarded to every
// connected pub connection. This call blocks; run it in its own goroutine.
func (b *Broker) Run() {
	go b.acceptPubConns()
	b.acceptPullConns()
}

func (b *Broker) acceptPubConns() {
	for {
		conn, err := b.pubListener.Accept()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
				b.log.Error().Err(err).Msg("pub listener accept failed")
				return
			}
		}
		b.mu.Lock()
		b.pubConns[conn] = struct{}{}
		b.mu.Unlock()
	}
}

func (b *Broker) acceptPullConns() {
	for {
		conn, err := b.pullListener.Accept()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
				b.log.Error().Err(err).Msg("pull listener accept failed")
				return
			}
		}
		go b.handlePullConn(conn)
	}
}

func (b *Broker) handlePullConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				b.log.Warn().Err(err).Msg("bus transport error reading frame")
			}
			return
		}
		b.metrics.Inc(MetricMessageReceived)
		b.forward(frame)
	}
}

func (b *Broker) forward(frame Frame) {
	b.mu.RLock()
	conns := make([]net.Conn, 0, len(b.pubConns))
	for c := range b.pubConns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, conn := range conns {
		if err := writeFrame(conn, frame); err != nil {
			b.log.Warn().Err(err).Msg("bus transport error forwarding frame; dropping subscriber")
			b.mu.Lock()
			delete(b.pubConns, conn)
			b.mu.Unlock()
			continue
		}
		b.metrics.Inc(MetricMessageSent)
	}
}

// Metrics returns a snapshot-and-reset packet of this broker's counters, for
// embedding in a STATUS message.
func (b *Broker) Metrics() metrics.Packet {
	return b.metrics.GetAndResetPacket()
}

// Close stops accepting new connections and closes every pub connection.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.pullListener.Close()
		b.pubListener.Close()
		b.mu.Lock()
		for c := range b.pubConns {
			c.Close()
		}
		b.mu.Unlock()
	})
	return nil
}
