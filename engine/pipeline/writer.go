package pipeline

import (
	"context"
	"time"

	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/pkg/fn"
)

// write is stage C, the only goroutine touching the sink. Batches flush when
// full, on the FlushEvery tick and when the record channel closes.
func (r *run) write(ctx context.Context) {
	// Records already accepted are still flushed after cancellation.
	ctx = context.WithoutCancel(ctx)

	var tick <-chan time.Time
	if r.opts.FlushEvery > 0 {
		t := time.NewTicker(r.opts.FlushEvery)
		defer t.Stop()
		tick = t.C
	}

	batch := make([]record.Record, 0, r.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(ctx, batch)
		batch = batch[:0]
	}
	for {
		select {
		case rec, ok := <-r.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-tick:
			flush()
		}
	}
}

// flush writes one batch, one sink call per source so written and
// duplicate counts stay attributable.
func (r *run) flush(ctx context.Context, batch []record.Record) {
	var order []string
	groups := make(map[string][]record.Record)
	for _, rec := range batch {
		if _, ok := groups[rec.Source]; !ok {
			order = append(order, rec.Source)
		}
		groups[rec.Source] = append(groups[rec.Source], rec)
	}
	for _, src := range order {
		r.flushSource(ctx, src, groups[src])
	}
}

// flushSource retries per SinkRetry; a group that still fails is dropped.
func (r *run) flushSource(ctx context.Context, src string, recs []record.Record) {
	opts := r.opts.SinkRetry
	opts.OnRetry = chainRetry(opts.OnRetry, func(attempt int, err error) {
		r.log.Warn("writer.retry", "source", src, "records", len(recs), "attempt", attempt, "err", err)
	})
	res := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[int] {
		return fn.FromPair(r.deps.Sink.Write(ctx, recs))
	})
	n, err := res.Unwrap()
	if err != nil {
		r.log.Error("writer.batch_dropped", "source", src, "records", len(recs), "err", err)
		r.drop(src, DropSink, len(recs))
		return
	}

	r.tally.add(func(s *Summary) { s.Written += n })
	r.deps.Metrics.RecordsWritten(src, n)
	r.drop(src, DropDuplicate, len(recs)-n)
	r.log.Debug("writer.flushed", "source", src, "records", len(recs), "written", n)
}

// chainRetry runs the engine's own hook, then the caller's.
func chainRetry(caller, own func(int, error)) func(int, error) {
	if caller == nil {
		return own
	}
	return func(attempt int, err error) {
		own(attempt, err)
		caller(attempt, err)
	}
}
