package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/autocrawl/engine/events"
	"github.com/WessleyAI/autocrawl/pkg/bus"
)

func tailCmd(flags *rootFlags) *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "tail [topic...]",
		Short: "Print the events a run publishes to NATS",
		Long: `Tail subscribes to the event topics on NATS and prints every message as
one JSON line. Without arguments every topic is followed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				natsURL = cfg.Bus.NATSURL
			}
			topics := args
			if len(topics) == 0 {
				topics = events.Topics
			}

			nc, err := nats.Connect(natsURL, nats.Name("autocrawl-tail"))
			if err != nil {
				return fmt.Errorf("nats: %w", err)
			}
			defer nc.Drain()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p := &printer{w: cmd.OutOrStdout(), errw: cmd.ErrOrStderr()}
			for _, t := range topics {
				if _, err := bus.Subscribe(nc, t, p.print); err != nil {
					return fmt.Errorf("subscribe %s: %w", t, err)
				}
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS URL (defaults to the config's bus.nats_url)")
	return cmd
}

// printer writes decoded events as JSON lines. NATS delivers each
// subscription on its own goroutine.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	errw io.Writer
}

type tailLine struct {
	Topic string `json:"topic"`
	Key   string `json:"key,omitempty"`
	Event any    `json:"event"`
}

func (p *printer) print(_ context.Context, m bus.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := events.Decode(m.Topic, m.Payload)
	if err != nil {
		fmt.Fprintf(p.errw, "%s: %v\n", m.Topic, err)
		return
	}
	line, err := json.Marshal(tailLine{Topic: m.Topic, Key: m.Key, Event: v})
	if err != nil {
		fmt.Fprintf(p.errw, "%s: %v\n", m.Topic, err)
		return
	}
	fmt.Fprintf(p.w, "%s\n", line)
}
