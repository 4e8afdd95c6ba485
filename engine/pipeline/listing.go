package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/engine/source"
)

var tracer = otel.Tracer("autocrawl/pipeline")

// listAll is stage A: one task per search, at most ListingWorkers at a time.
// It closes the link channel once every task has returned.
func (r *run) listAll(ctx context.Context, jobs []Job) {
	defer close(r.links)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ListingWorkers)
jobs:
	for _, job := range jobs {
		for _, search := range job.Searches {
			if gctx.Err() != nil {
				break jobs
			}
			// Counted before the task starts so idle detection never sees
			// zero between two queued searches.
			r.listing.Add(1)
			g.Go(func() error {
				defer r.listing.Add(-1)
				r.walk(gctx, job.Source, search)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// walk fetches page 1 of search, derives the page count from it and emits the
// links of every page in order. Page 1 is parsed from the body already
// fetched.
func (r *run) walk(ctx context.Context, src Source, search planner.Search) {
	name := src.Name()
	ctx, span := tracer.Start(ctx, "pipeline.search")
	defer span.End()
	span.SetAttributes(attribute.String("source", name), attribute.String("search.id", search.ID()))

	r.tally.add(func(s *Summary) { s.Searches++ })
	r.deps.Metrics.Searched(name)
	log := r.log.With("source", name, "search", search.ID())

	html, err := src.GetHTML(ctx, search, 1)
	if err != nil {
		if ctx.Err() == nil {
			r.drop(name, reasonFor(err), 1)
			log.Warn("listing.fetch_failed", "page", 1, "err", err)
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}
	first := src.ParseListing(html)
	if first.Kind == source.KindSingle {
		r.pageDone(name)
		r.emit(ctx, src, first.Refs())
		return
	}

	total, err := src.TotalNumber(html)
	if err != nil {
		r.drop(name, DropParse, 1)
		log.Warn("listing.total_failed", "err", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	pages := src.NumberOfPages(total)
	span.SetAttributes(attribute.Int("total", total), attribute.Int("pages", pages))
	log.Debug("listing.planned", "total", total, "pages", pages)

	wait := src.Config().ListingWait
	for page := 1; page <= pages; page++ {
		listing := first
		if page > 1 {
			if wait.Sleep(ctx) != nil {
				return
			}
			listing = src.ListedIDs(ctx, search, page)
		}
		if listing.Kind == source.KindError {
			if ctx.Err() != nil {
				return
			}
			r.drop(name, reasonFor(listing.Err), 1)
			log.Warn("listing.page_failed", "page", page, "err", listing.Err)
			continue
		}
		r.pageDone(name)
		if !r.emit(ctx, src, listing.Refs()) {
			return
		}
	}
}

func (r *run) pageDone(name string) {
	r.tally.add(func(s *Summary) { s.Pages++ })
	r.deps.Metrics.PageWalked(name)
}

// emit sends every link not yet seen in this run. It returns false when ctx
// ended before all links were handed over; the rest count as abandoned.
func (r *run) emit(ctx context.Context, src Source, links []source.LinkRef) bool {
	name := src.Name()
	for i, l := range links {
		if !r.firstSight(l.ID) {
			r.drop(name, DropDuplicate, 1)
			continue
		}
		select {
		case r.links <- item{src: src, link: l}:
			r.tally.add(func(s *Summary) { s.Links++ })
			r.deps.Metrics.LinksEmitted(name, 1)
			r.deps.Metrics.SetQueue("links", len(r.links))
		case <-ctx.Done():
			r.drop(name, DropAbandoned, len(links)-i)
			return false
		}
	}
	return true
}

func (r *run) firstSight(id string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	return true
}
