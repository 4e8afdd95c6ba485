// Command crawler collects used-car adverts from mobile.bg, cars.bg and
// autouncle.ro into a CSV file, optionally mirroring them to Kafka or NATS
// and Postgres.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	config   string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl used-car adverts into CSV",
		Long: `crawler walks the search results of mobile.bg, cars.bg and autouncle.ro,
fetches every advert, and appends one normalized row per vehicle to a CSV
file. Adverts already present in the file are skipped.

Example:
  crawler run --config crawler.yaml
  crawler plan --config crawler.yaml
  crawler equipment mobile.bg 37`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides the config)")

	root.AddCommand(
		runCmd(&flags),
		planCmd(&flags),
		equipmentCmd(),
		tailCmd(&flags),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "crawler", version)
		},
	}
}

// newLogger returns a slog logger backed by a charmbracelet handler.
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	h := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(h)
}
