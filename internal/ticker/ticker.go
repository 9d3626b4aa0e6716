// Package ticker is a count-up interval scheduler. It reports elapsed whole
// intervals to a tick callback and calls a completion callback once the
// configured count is reached.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickFunc receives the elapsed count. The context is cancelled when the
// timer is stopped, so callbacks that block must select on it.
type TickFunc func(ctx context.Context, elapsed int)

type Config struct {
	// Seconds is the number of intervals until completion.
	Seconds int
	// Interval is the wall time of one counted second.
	Interval time.Duration
	// Clock defaults to the wall clock. Tests pass a clock.Mock.
	Clock clock.Clock
}

type Timer struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start launches the scheduler. onTick sees 0 first, then 1..Seconds, and
// onDone is called once with Seconds after the final tick.
func Start(ctx context.Context, cfg Config, onTick, onDone TickFunc) *Timer {
	ctx, cancel := context.WithCancel(ctx)

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	t := &Timer{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Created before returning so a mock clock advanced right after Start
	// still reaches it.
	tk := clk.Ticker(interval)
	go t.run(ctx, tk, cfg.Seconds, onTick, onDone)

	return t
}

func (t *Timer) run(ctx context.Context, tk *clock.Ticker, seconds int, onTick, onDone TickFunc) {
	defer close(t.done)
	defer tk.Stop()

	onTick(ctx, 0)

	for elapsed := 1; elapsed <= seconds; elapsed++ {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}
		if ctx.Err() != nil {
			return
		}
		onTick(ctx, elapsed)
	}

	if ctx.Err() != nil {
		return
	}
	onDone(ctx, seconds)
}

// Stop halts the scheduler and waits for its goroutine to exit. No callback
// runs after Stop returns.
func (t *Timer) Stop() {
	t.stopOnce.Do(t.cancel)
	<-t.done
}
