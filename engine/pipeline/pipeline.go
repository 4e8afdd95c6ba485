// Package pipeline drives source adapters through the three crawl stages:
// listing expansion (A), detail fetch (B) and batched writes (C). Stages are
// connected by bounded channels, so a slow writer throttles the detail pool
// and a slow detail pool throttles the listing walkers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/engine/record"
	"github.com/WessleyAI/autocrawl/engine/sink"
	"github.com/WessleyAI/autocrawl/engine/source"
	"github.com/WessleyAI/autocrawl/pkg/fn"
	"github.com/WessleyAI/autocrawl/pkg/metrics"
)

// Drop reasons reported in Summary.Drops and the drops metric.
const (
	DropTransport  = "transport"
	DropDecode     = "decode"
	DropParse      = "parse"
	DropIncomplete = "incomplete"
	DropDuplicate  = "duplicate"
	DropAbandoned  = "abandoned"
	DropSink       = "sink"
)

// ErrNoSink is returned by New when Deps carries no sink.
var ErrNoSink = errors.New("pipeline: no sink")

// Source is the part of a source adapter the engine drives.
// *source.Adapter implements it.
type Source interface {
	Name() string
	Config() source.Config
	GetHTML(ctx context.Context, params map[string]string, page int) (string, error)
	TotalNumber(html string) (int, error)
	NumberOfPages(total int) int
	ParseListing(html string) source.Listing
	ListedIDs(ctx context.Context, params map[string]string, page int) source.Listing
	HandleRequest(ctx context.Context, link source.LinkRef) (record.Record, error)
}

var _ Source = (*source.Adapter)(nil)

// Job is one source with its planned searches.
type Job struct {
	Source   Source
	Searches []planner.Search
}

// Deps holds the engine's collaborators.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Sink    sink.Sink
}

// Options tunes concurrency, pacing and batching.
type Options struct {
	ListingWorkers int
	DetailWorkers  int
	QueueSize      int // capacity of both inter-stage channels

	// A detail worker exits after IdleRounds consecutive receives that each
	// waited RecvTimeout without a link while no listing task was running.
	RecvTimeout time.Duration
	IdleRounds  int
	DetailPause time.Duration

	BatchSize  int
	FlushEvery time.Duration // 0 flushes on size and shutdown only

	// Retry applies to detail fetches. Retryable defaults to fetch.Temporary.
	// An OnRetry hook runs after the engine's own retry log line.
	Retry fn.RetryOpts
	// SinkRetry applies to batch writes; OnRetry is chained the same way.
	SinkRetry fn.RetryOpts
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		ListingWorkers: 4,
		DetailWorkers:  8,
		QueueSize:      250,
		RecvTimeout:    time.Second,
		IdleRounds:     5,
		DetailPause:    100 * time.Millisecond,
		BatchSize:      50,
		FlushEvery:     5 * time.Second,
		Retry:          fn.DefaultRetry,
		SinkRetry:      fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Second},
	}
}

// Engine runs crawl jobs. One Engine may run several times, one at a time,
// over the same sink.
type Engine struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

// New validates opts, filling zero fields from DefaultOptions.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Sink == nil {
		return nil, ErrNoSink
	}
	def := DefaultOptions()
	fill := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&opts.ListingWorkers, def.ListingWorkers)
	fill(&opts.DetailWorkers, def.DetailWorkers)
	fill(&opts.QueueSize, def.QueueSize)
	fill(&opts.IdleRounds, def.IdleRounds)
	fill(&opts.BatchSize, def.BatchSize)
	if opts.RecvTimeout <= 0 {
		opts.RecvTimeout = def.RecvTimeout
	}
	if opts.DetailPause < 0 || opts.FlushEvery < 0 {
		return nil, fmt.Errorf("pipeline: negative pause or flush interval")
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = def.Retry
	}
	if opts.SinkRetry.MaxAttempts <= 0 {
		opts.SinkRetry = def.SinkRetry
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{deps: deps, opts: opts, log: logger}, nil
}

// item is a link together with the source that must fetch it.
type item struct {
	src  Source
	link source.LinkRef
}

// run is the state shared by the stages of one Run call.
type run struct {
	*Engine
	tally *tally

	links   chan item
	records chan record.Record

	// Live listing tasks. Detail workers only count idle rounds while it is
	// zero.
	listing atomic.Int64

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// Run crawls every job to completion and returns the run totals. Errors
// inside the stages are counted as drops; the only error returned is the
// context's when ctx ends the run early.
func (e *Engine) Run(ctx context.Context, jobs ...Job) (Summary, error) {
	start := time.Now()
	r := &run{
		Engine:  e,
		tally:   newTally(),
		links:   make(chan item, e.opts.QueueSize),
		records: make(chan record.Record, e.opts.QueueSize),
		seen:    make(map[string]struct{}),
	}

	// Stage A stops early when no detail worker is left to consume.
	listCtx, stopListing := context.WithCancel(ctx)
	defer stopListing()

	listingDone := make(chan struct{})
	go func() {
		defer close(listingDone)
		r.listAll(listCtx, jobs)
	}()

	var workers sync.WaitGroup
	for i := 0; i < e.opts.DetailWorkers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			r.detailWorker(ctx, id)
		}(i)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		r.write(ctx)
	}()

	workers.Wait()
	close(r.records)

	select {
	case <-listingDone:
	default:
		e.log.Warn("pipeline.listing_abandoned", "reason", "no detail workers left")
		stopListing()
	}
	// Whatever stage A still buffered or sends before it notices the
	// cancellation will never be fetched.
	for it := range r.links {
		r.drop(it.src.Name(), DropAbandoned, 1)
	}
	<-listingDone
	<-writerDone

	sum := r.tally.summary(time.Since(start))
	e.log.Info("pipeline.done",
		"searches", sum.Searches,
		"pages", sum.Pages,
		"links", sum.Links,
		"records", sum.Records,
		"written", sum.Written,
		"drops", sum.Drops,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
	)
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (r *run) drop(src, reason string, n int) {
	if n <= 0 {
		return
	}
	r.tally.drop(reason, n)
	r.deps.Metrics.Drop(src, reason, n)
}

// Summary holds the totals of one Run.
type Summary struct {
	Searches int
	Pages    int
	Links    int
	Records  int
	Written  int
	Drops    map[string]int
	Elapsed  time.Duration
}

// Dropped is the sum of every drop reason.
func (s Summary) Dropped() int {
	n := 0
	for _, v := range s.Drops {
		n += v
	}
	return n
}

// Reasons returns the drop reasons in alphabetical order.
func (s Summary) Reasons() []string {
	out := make([]string, 0, len(s.Drops))
	for k := range s.Drops {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Add merges o into s.
func (s *Summary) Add(o Summary) {
	s.Searches += o.Searches
	s.Pages += o.Pages
	s.Links += o.Links
	s.Records += o.Records
	s.Written += o.Written
	s.Elapsed += o.Elapsed
	if len(o.Drops) > 0 && s.Drops == nil {
		s.Drops = make(map[string]int, len(o.Drops))
	}
	for k, v := range o.Drops {
		s.Drops[k] += v
	}
}

type tally struct {
	mu  sync.Mutex
	sum Summary
}

func newTally() *tally {
	return &tally{sum: Summary{Drops: make(map[string]int)}}
}

func (t *tally) add(f func(*Summary)) {
	t.mu.Lock()
	f(&t.sum)
	t.mu.Unlock()
}

func (t *tally) drop(reason string, n int) {
	t.add(func(s *Summary) { s.Drops[reason] += n })
}

func (t *tally) summary(elapsed time.Duration) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.sum
	out.Drops = make(map[string]int, len(t.sum.Drops))
	for k, v := range t.sum.Drops {
		out.Drops[k] = v
	}
	out.Elapsed = elapsed
	return out
}
