// Package refresh drives board refreshes from a poll ticker and backend push
// events through one coalescing trigger.
package refresh

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 20 * time.Second

// Trigger requests a refresh. Requests made while one is already pending
// collapse into it.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates a trigger with no pending request.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Notify requests a refresh without blocking.
func (t *Trigger) Notify() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// Source is a long-running producer of refresh requests, such as a backend
// notifier. It should return when ctx is cancelled.
type Source func(ctx context.Context) error

// Loop runs fn on every coalesced request. fn never overlaps itself, and a
// burst of requests during a run causes at most one trailing run.
type Loop struct {
	trigger  *Trigger
	interval time.Duration
	fn       func(ctx context.Context) error
	sources  []Source
}

// NewLoop creates a loop polling every interval. interval <= 0 uses DefaultInterval.
func NewLoop(trigger *Trigger, interval time.Duration, fn func(ctx context.Context) error, sources ...Source) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{trigger: trigger, interval: interval, fn: fn, sources: sources}
}

// Run refreshes once immediately, then on every tick and notification, until
// ctx is cancelled. A source failing with anything but cancellation stops
// the loop and is returned.
func (l *Loop) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				l.trigger.Notify()
			}
		}
	})

	g.Go(func() error {
		l.trigger.Notify()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-l.trigger.ch:
				if err := l.fn(ctx); err != nil && ctx.Err() == nil {
					log.Printf("ERROR: refresh: %v", err)
				}
			}
		}
	})

	for _, src := range l.sources {
		src := src
		g.Go(func() error {
			if err := src(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
