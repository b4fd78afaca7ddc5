package poll

import (
	"context"
	"log"
	"time"
)

// Loop runs Fetch on a fixed interval and hands each successful result to
// Apply. There is no backoff and no jitter: a failed cycle is logged and the
// next tick simply tries again. Cycles run on a single goroutine, so they
// never overlap.
type Loop[T any] struct {
	Name     string
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	Apply    func(T)

	// Trigger forces an immediate cycle and restarts the interval. It may be
	// nil. Use Nudge to send on it without blocking.
	Trigger <-chan struct{}

	// OnError, when set, sees every fetch error after it is logged.
	OnError func(error)
}

// Run blocks until ctx is cancelled. The first cycle runs immediately.
// A result whose fetch completes after ctx is cancelled is dropped rather
// than applied.
func (l *Loop[T]) Run(ctx context.Context) error {
	if l.Interval <= 0 {
		l.Interval = time.Second
	}
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.Trigger:
			ticker.Reset(l.Interval)
		}
		l.cycle(ctx)
	}
}

func (l *Loop[T]) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := l.Fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("[POLL] %s: %v", l.Name, err)
		if l.OnError != nil {
			l.OnError(err)
		}
		return
	}
	if l.Apply != nil {
		l.Apply(res)
	}
}

// NewTrigger returns a channel suitable for Loop.Trigger. Its single slot
// coalesces bursts of nudges into one extra cycle.
func NewTrigger() chan struct{} {
	return make(chan struct{}, 1)
}

// Nudge requests an immediate cycle without blocking.
func Nudge(trigger chan<- struct{}) {
	select {
	case trigger <- struct{}{}:
	default:
	}
}
