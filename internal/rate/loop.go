package rate

import (
	"context"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"github.com/benbjohnson/clock"
)

// LoopOptions configures a Loop.
type LoopOptions struct {
	Interval time.Duration
	// Clock drives the ticker; defaults to the wall clock.
	Clock clock.Clock
	// Now reads event time; defaults to event.Now.
	Now func() event.Timestamp
	// Engaged reports whether the consumer is actively measuring.
	// Defaults to always engaged.
	Engaged func() bool
	// OnTick receives every snapshot on the loop goroutine.
	OnTick func(Snapshot)
}

// Loop ticks an Aggregator at a fixed interval.
type Loop struct {
	agg    *Aggregator
	ticker *clock.Ticker
	opts   LoopOptions
}

// NewLoop creates the ticker immediately so that no tick is lost between
// construction and Run.
func NewLoop(agg *Aggregator, opts LoopOptions) (*Loop, error) {
	if opts.Interval <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, opts.Interval)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Now == nil {
		opts.Now = event.Now
	}
	if opts.Engaged == nil {
		opts.Engaged = func() bool { return true }
	}

	return &Loop{
		agg:    agg,
		ticker: opts.Clock.Ticker(opts.Interval),
		opts:   opts,
	}, nil
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.ticker.C:
			snap := l.agg.Tick(l.opts.Now(), l.opts.Engaged())
			if l.opts.OnTick != nil {
				l.opts.OnTick(snap)
			}
		}
	}
}
