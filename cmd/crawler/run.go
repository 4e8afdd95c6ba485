package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/autocrawl/engine/pipeline"
	"github.com/WessleyAI/autocrawl/engine/sink"
	"github.com/WessleyAI/autocrawl/pkg/bus"
	"github.com/WessleyAI/autocrawl/pkg/config"
	"github.com/WessleyAI/autocrawl/pkg/metrics"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

func runCmd(flags *rootFlags) *cobra.Command {
	var (
		watch  time.Duration
		output string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl every enabled source",
		Long: `Run plans the searches of every enabled source, crawls them and appends
new adverts to the output CSV. With --watch the crawl repeats at the given
interval; price changes seen across passes are published as change_log
events when a bus is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output = output
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return crawl(ctx, cfg, watch, logger)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "repeat the crawl at this interval (0 runs once)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV file (overrides the config)")
	return cmd
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return config.Config{}, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// crawl runs one pass, or passes every watch interval until ctx ends.
func crawl(ctx context.Context, cfg config.Config, watch time.Duration, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With("run", runID)

	met := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := met.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Warn("metrics.serve_failed", "err", err)
			}
		}()
	}

	jobs, err := buildJobs(cfg, met, logger)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("no enabled sources in config")
	}

	out, err := openSinks(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn("sink.close_failed", "err", cerr)
		}
	}()

	engine, err := pipeline.New(pipeline.Deps{Logger: logger, Metrics: met, Sink: out}, engineOptions(cfg))
	if err != nil {
		return err
	}

	var total pipeline.Summary
	for pass := 1; ; pass++ {
		sum, err := engine.Run(ctx, jobs...)
		total.Add(sum)
		logSummary(logger, pass, sum)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("crawl.interrupted", "written", total.Written)
				return nil
			}
			return err
		}
		if watch <= 0 {
			return nil
		}
		logger.Info("crawl.sleeping", "next", time.Now().Add(watch).Format(time.TimeOnly))
		if err := resilience.SleepFor(ctx, watch); err != nil {
			logger.Info("crawl.stopped", "passes", pass, "written", total.Written)
			return nil
		}
	}
}

func engineOptions(cfg config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.ListingWorkers = cfg.Workers.Listing
	opts.DetailWorkers = cfg.Workers.Detail
	opts.RecvTimeout = cfg.Engine.RecvTimeout
	opts.IdleRounds = cfg.Engine.IdleRounds
	opts.BatchSize = cfg.Engine.BatchSize
	opts.FlushEvery = cfg.Engine.FlushEvery
	opts.DetailPause = cfg.Engine.DetailPause
	opts.Retry.MaxAttempts = cfg.Retry.Attempts
	opts.Retry.InitialWait = cfg.Retry.Backoff
	return opts
}

// openSinks opens the CSV file and whichever mirrors the config enables.
// Only the CSV decides whether a batch counts as written.
func openSinks(ctx context.Context, cfg config.Config, runID string, logger *slog.Logger) (sink.Sink, error) {
	if dir := filepath.Dir(cfg.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("output dir: %w", err)
		}
	}
	csv, err := sink.OpenCSV(cfg.Output)
	if err != nil {
		return nil, err
	}
	logger.Info("sink.csv", "path", csv.Path(), "known", csv.Len())

	var mirrors []sink.Sink
	closeAll := func() {
		for _, m := range mirrors {
			m.Close()
		}
		csv.Close()
	}

	b, err := openBus(cfg.Bus)
	if err != nil {
		closeAll()
		return nil, err
	}
	if b != nil {
		mirrors = append(mirrors, sink.NewBus(b, sink.BusOptions{RunID: runID, Logger: logger}))
		logger.Info("sink.bus", "kind", cfg.Bus.Kind)
	}

	if cfg.Postgres.DSN != "" {
		pg, err := sink.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			closeAll()
			return nil, err
		}
		mirrors = append(mirrors, pg)
		logger.Info("sink.postgres", "table", cfg.Postgres.Table)
	}

	if len(mirrors) == 0 {
		return csv, nil
	}
	return sink.NewMulti(logger, csv, mirrors...), nil
}

func openBus(c config.Bus) (bus.Bus, error) {
	switch strings.ToLower(c.Kind) {
	case config.BusKafka:
		return bus.NewKafka(c.KafkaBroker), nil
	case config.BusNATS:
		n, err := bus.DialNATS(c.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		return n, nil
	default:
		return nil, nil
	}
}

func logSummary(logger *slog.Logger, pass int, s pipeline.Summary) {
	args := []any{
		"pass", pass,
		"searches", s.Searches,
		"pages", s.Pages,
		"links", s.Links,
		"records", s.Records,
		"written", s.Written,
		"dropped", s.Dropped(),
		"elapsed", s.Elapsed.Round(time.Second),
	}
	for _, r := range s.Reasons() {
		args = append(args, "drop_"+r, s.Drops[r])
	}
	logger.Info("crawl.summary", args...)
}
