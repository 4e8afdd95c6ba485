package bus

import (
	"context"
	"sync"
)

// Memory keeps every message in process.
type Memory struct {
	mu     sync.Mutex
	msgs   []Message
	closed bool
	// Fail, if set, is returned by every send.
	Fail error
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory { return &Memory{} }

// Send records an unkeyed payload.
func (m *Memory) Send(ctx context.Context, topic string, payload []byte) error {
	return m.Publish(ctx, Message{Topic: topic, Payload: payload})
}

// Publish records msgs.
func (m *Memory) Publish(ctx context.Context, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.Fail != nil {
		return m.Fail
	}
	for _, msg := range msgs {
		msg.Payload = append([]byte(nil), msg.Payload...)
		m.msgs = append(m.msgs, msg)
	}
	return nil
}

// Messages returns a copy of everything sent so far, optionally filtered to
// one topic.
func (m *Memory) Messages(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.msgs {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Close marks the bus closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
