package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/autocrawl/engine/planner"
	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

const sample = `
output: out/cars.csv
workers:
  listing: 2
  detail: 6
engine:
  batch_size: 25
  recv_timeout: 500ms
bus:
  kind: kafka
sources:
  - name: mobile.bg
    intents:
      - name: all
        from_year: 2018
        to_year: 2019
    listing_wait: {min: 1s, max: 3s}
    rate_per_second: 2
  - name: cars.bg
    enabled: false
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawler.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverDefaults(t *testing.T) {
	t.Setenv(EnvKafkaBroker, "")
	t.Setenv(EnvOutput, "")
	cfg, err := Load(writeFile(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "out/cars.csv" || cfg.Workers.Detail != 6 || cfg.Engine.BatchSize != 25 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Engine.RecvTimeout != 500*time.Millisecond {
		t.Errorf("recv_timeout = %v", cfg.Engine.RecvTimeout)
	}
	if cfg.Engine.IdleRounds != 5 || cfg.Retry.Attempts != 2 || cfg.Timeouts.Request != 8*time.Second {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Bus.KafkaBroker != "localhost:9092" {
		t.Errorf("kafka broker = %q", cfg.Bus.KafkaBroker)
	}
	enabled := cfg.Enabled()
	if len(enabled) != 1 || enabled[0].Name != "mobile.bg" {
		t.Fatalf("enabled = %+v", enabled)
	}
	w := enabled[0].ListingWait
	if w == nil || w.Min != time.Second || w.Max != 3*time.Second {
		t.Errorf("listing_wait = %+v", w)
	}
	if intents := enabled[0].Intents; len(intents) != 1 || intents[0].FromYear != 2018 {
		t.Errorf("intents = %+v", intents)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvKafkaBroker: "kafka:29092",
		EnvPostgresDSN: "postgres://crawler@db/cars",
		EnvOutput:      "  ",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Bus.KafkaBroker != "kafka:29092" || cfg.Postgres.DSN != "postgres://crawler@db/cars" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Output != "data/listings.csv" {
		t.Errorf("blank env value should not override, output = %q", cfg.Output)
	}
}

func TestLoad_EnvWins(t *testing.T) {
	t.Setenv(EnvOutput, "/tmp/override.csv")
	cfg, err := Load(writeFile(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "/tmp/override.csv" {
		t.Fatalf("output = %q", cfg.Output)
	}
}

var (
	oneIntent       = []planner.Intent{{Name: "all", FromYear: 2020}}
	windowBackwards = resilience.Window{Min: 2 * time.Second, Max: time.Second}
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"workers", func(c *Config) { c.Workers.Detail = 0 }, "workers.detail"},
		{"bus kind", func(c *Config) { c.Bus.Kind = "redis" }, "bus.kind"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"duplicate", func(c *Config) {
			c.Sources = []Source{{Name: "a", Intents: oneIntent}, {Name: "a", Intents: oneIntent}}
		}, "duplicate source"},
		{"no intents", func(c *Config) { c.Sources = []Source{{Name: "a"}} }, "no intents"},
		{"window", func(c *Config) {
			c.Sources = []Source{{Name: "a", Intents: oneIntent, DetailWait: &windowBackwards}}
		}, "wait window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := Load(writeFile(t, "workers: [")); err == nil {
		t.Error("bad yaml should fail")
	}
	if _, err := Load(writeFile(t, "workers:\n  listing: -1\n")); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
