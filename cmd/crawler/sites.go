package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"

	"github.com/WessleyAI/autocrawl/cmd/crawler/autouncle"
	"github.com/WessleyAI/autocrawl/cmd/crawler/carsbg"
	"github.com/WessleyAI/autocrawl/cmd/crawler/mobilebg"
	"github.com/WessleyAI/autocrawl/engine/equipment"
	"github.com/WessleyAI/autocrawl/engine/pipeline"
	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/engine/source"
	"github.com/WessleyAI/autocrawl/pkg/config"
	"github.com/WessleyAI/autocrawl/pkg/fetch"
	"github.com/WessleyAI/autocrawl/pkg/metrics"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// site is everything the CLI needs to build one adapter.
type site struct {
	config  func() source.Config
	dialect func() planner.Dialect
	catalog func() *equipment.Catalog
	parser  func(*equipment.Catalog) source.Parser
}

var sites = map[string]site{
	mobilebg.Name: {
		config:  mobilebg.Config,
		dialect: mobilebg.Dialect,
		catalog: mobilebg.Catalog,
		parser:  func(eq *equipment.Catalog) source.Parser { return mobilebg.NewParser(eq) },
	},
	carsbg.Name: {
		config:  carsbg.Config,
		dialect: carsbg.Dialect,
		catalog: carsbg.Catalog,
		parser:  func(eq *equipment.Catalog) source.Parser { return carsbg.NewParser(eq) },
	},
	autouncle.Name: {
		config:  autouncle.Config,
		dialect: autouncle.Dialect,
		catalog: autouncle.Catalog,
		parser:  func(eq *equipment.Catalog) source.Parser { return autouncle.NewParser(eq) },
	},
}

func siteNames() []string {
	names := make([]string, 0, len(sites))
	for n := range sites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupSite(name string) (site, error) {
	s, ok := sites[name]
	if !ok {
		return site{}, fmt.Errorf("unknown source %q (known: %v)", name, siteNames())
	}
	return s, nil
}

// catalogFor returns the equipment catalog of a configured source: the file
// named in its entry, or the built-in one.
func catalogFor(s site, sc config.Source) (*equipment.Catalog, error) {
	if sc.Equipment == "" {
		return s.catalog(), nil
	}
	return equipment.Load(sc.Equipment)
}

// plan expands every intent of sc into searches.
func plan(s site, sc config.Source) ([]planner.Search, error) {
	var out []planner.Search
	for _, in := range sc.Intents {
		searches, err := planner.Expand(in, s.dialect())
		if err != nil {
			return nil, fmt.Errorf("%s: intent %q: %w", sc.Name, in.Name, err)
		}
		out = append(out, searches...)
	}
	return out, nil
}

// sourceLimiter returns one limiter for the whole process with each enabled
// source's rate_per_second set on the host of its base URL. Other hosts are
// not limited.
func sourceLimiter(cfg config.Config) (*resilience.HostLimiter, error) {
	limiter := resilience.NewHostLimiter(0, 1)
	for _, sc := range cfg.Enabled() {
		s, err := lookupSite(sc.Name)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(s.config().BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: base url: %w", sc.Name, err)
		}
		limiter.SetRate(u.Host, sc.RatePerSecond)
	}
	return limiter, nil
}

// buildJobs turns the enabled sources of cfg into pipeline jobs. Every
// adapter shares one fetch client; rate limits stay per host.
func buildJobs(cfg config.Config, met *metrics.Registry, logger *slog.Logger) ([]pipeline.Job, error) {
	limiter, err := sourceLimiter(cfg)
	if err != nil {
		return nil, err
	}
	client := fetch.New(fetch.Options{
		Timeout: cfg.Timeouts.Request,
		Limiter: limiter,
		Observe: func(o fetch.Observation) { met.ObserveFetch(o.Host, o.Status, o.Duration, o.Err) },
	})

	var jobs []pipeline.Job
	for _, sc := range cfg.Enabled() {
		s, err := lookupSite(sc.Name)
		if err != nil {
			return nil, err
		}
		eq, err := catalogFor(s, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sc.Name, err)
		}
		scfg := s.config()
		if sc.ListingWait != nil {
			scfg.ListingWait = *sc.ListingWait
		}
		if sc.DetailWait != nil {
			scfg.DetailWait = *sc.DetailWait
		}
		adapter, err := source.New(scfg, s.parser(eq), client)
		if err != nil {
			return nil, err
		}
		searches, err := plan(s, sc)
		if err != nil {
			return nil, err
		}
		logger.Info("source.planned", "source", sc.Name, "searches", len(searches), "equipment", eq.Len())
		jobs = append(jobs, pipeline.Job{Source: adapter, Searches: searches})
	}
	return jobs, nil
}
