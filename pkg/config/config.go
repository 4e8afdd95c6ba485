// Package config loads the crawler configuration: a YAML file layered over
// defaults, then a .env file and process environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Bus kinds.
const (
	BusNone  = "none"
	BusKafka = "kafka"
	BusNATS  = "nats"
)

// Environment overrides.
const (
	EnvKafkaBroker = "KAFKA_BROKER"
	EnvNATSURL     = "NATS_URL"
	EnvPostgresDSN = "POSTGRES_DSN"
	EnvOutput      = "CRAWLER_OUTPUT"
	EnvLogLevel    = "LOG_LEVEL"
)

// Config is the full crawler configuration.
type Config struct {
	Output      string   `yaml:"output"`
	Sources     []Source `yaml:"sources"`
	Workers     Workers  `yaml:"workers"`
	Timeouts    Timeouts `yaml:"timeouts"`
	Engine      Engine   `yaml:"engine"`
	Retry       Retry    `yaml:"retry"`
	Bus         Bus      `yaml:"bus"`
	Postgres    Postgres `yaml:"postgres"`
	MetricsAddr string   `yaml:"metrics_addr"`
	LogLevel    string   `yaml:"log_level"`
}

// Source enables one adapter and lists the intents it should crawl. Zero
// waits keep the adapter's own pacing.
type Source struct {
	Name          string             `yaml:"name"`
	Enabled       *bool              `yaml:"enabled"`
	Intents       []planner.Intent   `yaml:"intents"`
	ListingWait   *resilience.Window `yaml:"listing_wait"`
	DetailWait    *resilience.Window `yaml:"detail_wait"`
	RatePerSecond float64            `yaml:"rate_per_second"`
	Equipment     string             `yaml:"equipment"` // optional catalog file replacing the built-in one
}

// IsEnabled reports whether the source should run. Sources are enabled
// unless switched off explicitly.
func (s Source) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type Workers struct {
	Listing int `yaml:"listing"`
	Detail  int `yaml:"detail"`
}

type Timeouts struct {
	Request time.Duration `yaml:"request"`
}

type Engine struct {
	RecvTimeout time.Duration `yaml:"recv_timeout"`
	IdleRounds  int           `yaml:"idle_rounds"`
	BatchSize   int           `yaml:"batch_size"`
	FlushEvery  time.Duration `yaml:"flush_every"`
	DetailPause time.Duration `yaml:"detail_pause"`
}

type Retry struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type Bus struct {
	Kind        string `yaml:"kind"`
	KafkaBroker string `yaml:"kafka_broker"`
	NATSURL     string `yaml:"nats_url"`
}

type Postgres struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output:   "data/listings.csv",
		Workers:  Workers{Listing: 4, Detail: 8},
		Timeouts: Timeouts{Request: 8 * time.Second},
		Engine: Engine{
			RecvTimeout: time.Second,
			IdleRounds:  5,
			BatchSize:   50,
			FlushEvery:  5 * time.Second,
			DetailPause: 100 * time.Millisecond,
		},
		Retry:       Retry{Attempts: 2, Backoff: 2 * time.Second},
		Bus:         Bus{Kind: BusNone, KafkaBroker: "localhost:9092", NATSURL: "nats://127.0.0.1:4222"},
		Postgres:    Postgres{Table: "listings"},
		MetricsAddr: ":9094",
		LogLevel:    "info",
	}
}

// Load reads path (if non-empty) over the defaults, applies .env and the
// environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	// A missing .env is normal.
	_ = godotenv.Load()
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvKafkaBroker, &c.Bus.KafkaBroker)
	set(EnvNATSURL, &c.Bus.NATSURL)
	set(EnvPostgresDSN, &c.Postgres.DSN)
	set(EnvOutput, &c.Output)
	set(EnvLogLevel, &c.LogLevel)
}

// Validate rejects configurations the crawler cannot start with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Output != "", "output is empty")
	check(c.Workers.Listing > 0, "workers.listing must be positive")
	check(c.Workers.Detail > 0, "workers.detail must be positive")
	check(c.Timeouts.Request > 0, "timeouts.request must be positive")
	check(c.Engine.RecvTimeout > 0, "engine.recv_timeout must be positive")
	check(c.Engine.IdleRounds > 0, "engine.idle_rounds must be positive")
	check(c.Engine.BatchSize > 0, "engine.batch_size must be positive")
	check(c.Engine.FlushEvery >= 0, "engine.flush_every is negative")
	check(c.Retry.Attempts >= 1, "retry.attempts must be at least 1")
	check(c.Retry.Backoff >= 0, "retry.backoff is negative")
	switch c.Bus.Kind {
	case "", BusNone:
	case BusKafka:
		check(c.Bus.KafkaBroker != "", "bus.kafka_broker is empty")
	case BusNATS:
		check(c.Bus.NATSURL != "", "bus.nats_url is empty")
	default:
		check(false, "bus.kind %q is not one of none, kafka, nats", c.Bus.Kind)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		check(s.Name != "", "sources[%d]: name is empty", i)
		check(!seen[s.Name], "sources[%d]: duplicate source %q", i, s.Name)
		seen[s.Name] = true
		check(s.RatePerSecond >= 0, "sources[%d]: rate_per_second is negative", i)
		for _, w := range []*resilience.Window{s.ListingWait, s.DetailWait} {
			if w != nil {
				check(w.Min >= 0 && w.Max >= w.Min, "sources[%d]: wait window %v..%v is invalid", i, w.Min, w.Max)
			}
		}
		if s.IsEnabled() {
			check(len(s.Intents) > 0, "sources[%d]: %s has no intents", i, s.Name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Enabled returns the sources that should run, in file order.
func (c Config) Enabled() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// Source returns the named source entry.
func (c Config) Source(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}
