package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/engine/source"
	"github.com/WessleyAI/autocrawl/pkg/fetch"
	"github.com/WessleyAI/autocrawl/pkg/fn"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// detailWorker is one stage B consumer. It exits when the link channel is
// closed, when ctx is done, or after IdleRounds empty receives in a row while
// stage A has no live task.
func (r *run) detailWorker(ctx context.Context, id int) {
	timer := time.NewTimer(r.opts.RecvTimeout)
	defer timer.Stop()

	idle := 0
	for {
		timer.Reset(r.opts.RecvTimeout)
		select {
		case <-ctx.Done():
			return
		case it, ok := <-r.links:
			if !ok {
				return
			}
			idle = 0
			r.deps.Metrics.SetQueue("links", len(r.links))
			if !r.detail(ctx, it) {
				return
			}
		case <-timer.C:
			if r.listing.Load() > 0 {
				idle = 0
				continue
			}
			idle++
			if idle >= r.opts.IdleRounds {
				r.log.Debug("detail.idle_exit", "worker", id, "rounds", idle)
				return
			}
		}
	}
}

// detail fetches and validates one advert and hands it to the writer. It
// returns false only when ctx ended.
func (r *run) detail(ctx context.Context, it item) bool {
	name := it.src.Name()
	opts := r.opts.Retry
	if opts.Retryable == nil {
		opts.Retryable = fetch.Temporary
	}
	opts.OnRetry = chainRetry(opts.OnRetry, func(attempt int, err error) {
		r.log.Info("detail.retry", "source", name, "id", it.link.ID, "attempt", attempt, "err", err)
	})

	res := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[record.Record] {
		return fn.FromPair(it.src.HandleRequest(ctx, it.link))
	})
	rec, err := res.Unwrap()
	if err != nil {
		if ctx.Err() != nil {
			r.drop(name, DropAbandoned, 1)
			return false
		}
		reason := reasonFor(err)
		r.drop(name, reason, 1)
		r.log.Warn("detail.failed", "source", name, "id", it.link.ID, "url", it.link.URL, "reason", reason, "err", err)
		return true
	}

	if err := record.Validate(rec); err != nil {
		r.drop(name, DropIncomplete, 1)
		r.log.Info(err.Error(), "source", name, "url", it.link.URL, "field", record.Field(err))
		return true
	}
	r.tally.add(func(s *Summary) { s.Records++ })
	r.deps.Metrics.RecordAccepted(name)

	select {
	case r.records <- rec:
		r.deps.Metrics.SetQueue("records", len(r.records))
	case <-ctx.Done():
		r.drop(name, DropAbandoned, 1)
		return false
	}

	pause := r.opts.DetailPause + it.src.Config().DetailWait.Duration()
	return resilience.SleepFor(ctx, pause) == nil
}

// reasonFor maps a stage error to its drop reason.
func reasonFor(err error) string {
	var fe *fetch.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !fetch.IsTransport(err):
		return DropAbandoned
	case errors.As(err, &fe) && fe.Kind == fetch.KindDecode:
		return DropDecode
	case fetch.IsTransport(err):
		return DropTransport
	case errors.Is(err, record.ErrIncomplete):
		return DropIncomplete
	case errors.Is(err, source.ErrParse):
		return DropParse
	default:
		return DropParse
	}
}
