package systems

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zeusync/worldcore/internal/core/observability/log"
)

// Loop drives an Executor at a fixed rate.
type Loop[G Context] struct {
	exec     *Executor[G]
	state    G
	interval time.Duration
	logger   log.Log
	ticks    atomic.Uint64
}

// NewLoop runs exec against state once per interval.
func NewLoop[G Context](exec *Executor[G], state G, interval time.Duration, logger log.Log) *Loop[G] {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Loop[G]{
		exec:     exec,
		state:    state,
		interval: interval,
		logger:   logger.With(log.String("component", "tick_loop")),
	}
}

// Step runs a single tick and reports how long it took.
func (l *Loop[G]) Step() time.Duration {
	start := time.Now()
	l.exec.Run(l.state)
	l.ticks.Add(1)
	return time.Since(start)
}

// Ticks returns how many ticks have run.
func (l *Loop[G]) Ticks() uint64 {
	return l.ticks.Load()
}

// Run ticks until ctx is cancelled. A tick that takes longer than the
// interval is logged; the ticker drops the ticks it missed.
func (l *Loop[G]) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("Tick loop started", log.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Tick loop stopped", log.Uint64("ticks", l.ticks.Load()))
			return nil
		case <-ticker.C:
			if took := l.Step(); took > l.interval {
				l.logger.Warn("Tick overran its budget",
					log.Duration("took", took),
					log.Duration("budget", l.interval),
					log.Uint64("tick", l.ticks.Load()))
			}
		}
	}
}
