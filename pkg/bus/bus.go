// Package bus publishes encoded record events to a message broker. Kafka and
// NATS transports are provided, plus an in-memory bus for tests and dry runs.
package bus

import (
	"context"
	"errors"
	"strings"
)

// Every message carries HeaderCommand=CommandProcess so consumers can route
// on it.
const (
	HeaderCommand  = "command"
	CommandProcess = "process"
	HeaderKey      = "key"
)

// DefaultKafkaBroker is used when KAFKA_BROKER is unset.
const DefaultKafkaBroker = "localhost:9092"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("bus: closed")

// Bus sends a payload to a topic.
type Bus interface {
	Send(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Message is a keyed payload. Key is the record ID; transports use it for
// partitioning where they support it.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// Publisher is a Bus that can also send keyed messages.
type Publisher interface {
	Bus
	Publish(ctx context.Context, msgs ...Message) error
}

// Brokers splits a comma-separated broker list, dropping empty entries.
func Brokers(list string) []string {
	var out []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
