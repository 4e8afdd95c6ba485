package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// Window is a randomized wait between Min and Max.
type Window struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Duration draws a wait uniformly from [Min, Max]. A Max below Min collapses
// the window to Min; a zero window yields zero.
func (w Window) Duration() time.Duration {
	if w.Min < 0 {
		w.Min = 0
	}
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + rand.N(w.Max-w.Min+1)
}

// Sleep waits for a drawn Duration or until ctx is done.
func (w Window) Sleep(ctx context.Context) error {
	return SleepFor(ctx, w.Duration())
}

// SleepFor waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
func SleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
