package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/autocrawl/engine/events"
	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/pkg/bus"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// BusOptions configures a Bus sink.
type BusOptions struct {
	RunID  string
	Logger *slog.Logger
	// Breaker guards the transport; nil means resilience.DefaultBreakerOpts.
	Breaker *resilience.Breaker
}

// Bus publishes the topic events of every record. A record already
// published in this process is skipped unless its price changed, in which
// case only a change_log event is sent.
type Bus struct {
	b       bus.Bus
	runID   string
	logger  *slog.Logger
	breaker *resilience.Breaker
	prices  map[string]uint64
}

// NewBus wraps a transport.
func NewBus(b bus.Bus, opts BusOptions) *Bus {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker == nil {
		logger := opts.Logger
		bo := resilience.DefaultBreakerOpts
		bo.OnChange = func(from, to resilience.State) {
			logger.Warn("bus.breaker", "from", from.String(), "to", to.String())
		}
		opts.Breaker = resilience.NewBreaker(bo)
	}
	return &Bus{b: b, runID: opts.RunID, logger: opts.Logger, breaker: opts.Breaker, prices: make(map[string]uint64)}
}

// Write publishes recs and returns how many records produced events.
func (s *Bus) Write(ctx context.Context, recs []record.Record) (int, error) {
	var msgs []bus.Message
	pending := make(map[string]uint64, len(recs))
	for _, r := range recs {
		prev, seen := s.prices[r.ID]
		if p, ok := pending[r.ID]; ok {
			prev, seen = p, true
		}
		switch {
		case !seen:
			for _, ev := range events.ForRecord(r, s.runID) {
				msgs = append(msgs, bus.Message{Topic: ev.Topic, Key: ev.Key, Payload: ev.Payload})
			}
		case prev != r.Price:
			ev := events.ChangeLog(events.Change{
				ID: r.ID, OldPrice: prev, NewPrice: r.Price, Currency: r.Currency.String(), RunID: s.runID,
			})
			msgs = append(msgs, bus.Message{Topic: ev.Topic, Key: ev.Key, Payload: ev.Payload})
			s.logger.Info("bus.price_changed", "id", r.ID, "old", prev, "new", r.Price)
		default:
			continue
		}
		pending[r.ID] = r.Price
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		return publish(ctx, s.b, msgs)
	})
	if err != nil {
		return 0, fmt.Errorf("bus sink: %w", err)
	}
	for id, p := range pending {
		s.prices[id] = p
	}
	return len(pending), nil
}

func publish(ctx context.Context, b bus.Bus, msgs []bus.Message) error {
	if p, ok := b.(bus.Publisher); ok {
		return p.Publish(ctx, msgs...)
	}
	for _, m := range msgs {
		if err := b.Send(ctx, m.Topic, m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the transport.
func (s *Bus) Close() error { return s.b.Close() }
