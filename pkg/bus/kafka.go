package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes to Kafka topics with the pure-Go segmentio client. One
// writer serves every topic; the topic is set per message.
type Kafka struct {
	writer kafkaMessageWriter
	closed atomic.Bool
}

// NewKafka creates a Kafka bus. bootstrap is a comma-separated list of
// host:port; empty means DefaultKafkaBroker.
func NewKafka(bootstrap string) *Kafka {
	brokers := Brokers(bootstrap)
	if len(brokers) == 0 {
		brokers = []string{DefaultKafkaBroker}
	}
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// NewKafkaWith is only for tests to inject a fake writer.
func NewKafkaWith(w kafkaMessageWriter) *Kafka {
	return &Kafka{writer: w}
}

// Send publishes an unkeyed payload.
func (k *Kafka) Send(ctx context.Context, topic string, payload []byte) error {
	return k.Publish(ctx, Message{Topic: topic, Payload: payload})
}

// Publish writes msgs in one batch.
func (k *Kafka) Publish(ctx context.Context, msgs ...Message) error {
	if k.closed.Load() {
		return ErrClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{
			Topic:   m.Topic,
			Value:   m.Payload,
			Headers: []kafka.Header{{Key: HeaderCommand, Value: []byte(CommandProcess)}},
		}
		if m.Key != "" {
			out[i].Key = []byte(m.Key)
		}
	}
	if err := k.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (k *Kafka) Close() error {
	if k.closed.Swap(true) {
		return nil
	}
	return k.writer.Close()
}
