package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// natsConn is the part of *nats.Conn the bus uses.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATS publishes each topic as a subject. Trace context from ctx travels in
// the message headers.
type NATS struct {
	nc natsConn
}

// DialNATS connects to url (nats.DefaultURL when empty).
func DialNATS(url string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("autocrawl"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Send publishes an unkeyed payload.
func (n *NATS) Send(ctx context.Context, topic string, payload []byte) error {
	return n.Publish(ctx, Message{Topic: topic, Payload: payload})
}

// Publish sends msgs and flushes so that errors surface here.
func (n *NATS) Publish(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		if err := n.nc.PublishMsg(natsMessage(ctx, m)); err != nil {
			return fmt.Errorf("nats publish %s: %w", m.Topic, err)
		}
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func natsMessage(ctx context.Context, m Message) *nats.Msg {
	msg := &nats.Msg{Subject: m.Topic, Data: m.Payload, Header: nats.Header{}}
	msg.Header.Set(HeaderCommand, CommandProcess)
	if m.Key != "" {
		msg.Header.Set(HeaderKey, m.Key)
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg
}

// Close drains the connection.
func (n *NATS) Close() error { return n.nc.Drain() }

// Subscribe delivers the raw payloads published on topic. Trace context is
// extracted from the headers and passed to the handler.
func Subscribe(nc *nats.Conn, topic string, handler func(context.Context, Message)) (*nats.Subscription, error) {
	return nc.Subscribe(topic, func(msg *nats.Msg) {
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, Message{Topic: msg.Subject, Key: msg.Header.Get(HeaderKey), Payload: msg.Data})
	})
}
