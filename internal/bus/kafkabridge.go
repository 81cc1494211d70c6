package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaMirror republishes selected bus topics to an external Kafka topic for
// downstream consumers outside the process tree. It is NOT the intra-host
// bus — the in-process Bus and cross-process Broker remain the only path
// between engramic services — this is a one-way outbound copy Storage can
// enable, grounded on the teacher's internal/orchestrator/kafka.go writer
// usage (SPEC_FULL.md §B).
type KafkaMirror struct {
	log    zerolog.Logger
	writer *kafka.Writer
}

// NewKafkaMirror constructs a mirror that writes to topic across brokers.
func NewKafkaMirror(brokers []string, topic string, log zerolog.Logger) *KafkaMirror {
	return &KafkaMirror{
		log: log,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Mirror publishes one bus message to the Kafka topic, keyed by the source
// topic name so partitioning groups lifecycle events of the same kind.
func (m *KafkaMirror) Mirror(ctx context.Context, topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mirrored payload for topic %s: %w", topic, err)
	}
	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(topic),
		Value: data,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("topic", string(topic)).Msg("kafka mirror write failed")
	}
	return err
}

// Close flushes and closes the underlying writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
