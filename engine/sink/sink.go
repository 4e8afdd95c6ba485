// Package sink holds the outputs of the writer stage: the append-only CSV
// file, the message bus and a Postgres table.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/WessleyAI/autocrawl/engine/record"
)

// Sink accepts batches of validated records. Write reports how many records
// of the batch were newly stored; records a sink already holds are skipped
// without error.
type Sink interface {
	Write(ctx context.Context, recs []record.Record) (int, error)
	Close() error
}

// Multi writes to a primary sink and, best effort, to secondary ones. Only
// the primary's outcome is reported; secondary failures are logged.
type Multi struct {
	primary     Sink
	secondaries []Sink
	logger      *slog.Logger
	// OnSecondaryError, if set, is called for every failed secondary write.
	OnSecondaryError func(err error)
}

// NewMulti creates a fan-out sink. A nil logger means slog.Default().
func NewMulti(logger *slog.Logger, primary Sink, secondaries ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{primary: primary, secondaries: secondaries, logger: logger}
}

// Write stores recs in the primary, then offers the same batch to every
// secondary.
func (m *Multi) Write(ctx context.Context, recs []record.Record) (int, error) {
	n, err := m.primary.Write(ctx, recs)
	if err != nil {
		return n, err
	}
	for _, s := range m.secondaries {
		if _, serr := s.Write(ctx, recs); serr != nil {
			m.logger.Warn("sink.secondary_failed", "err", serr, "records", len(recs))
			if m.OnSecondaryError != nil {
				m.OnSecondaryError(serr)
			}
		}
	}
	return n, nil
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	errs := []error{m.primary.Close()}
	for _, s := range m.secondaries {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
