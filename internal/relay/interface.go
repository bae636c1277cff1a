// Package relay decouples a producer from a slower transport through a
// bounded FIFO queue serviced by one background goroutine.
//
// A Sender forwards queued values into a blocking Sink; a Receiver pulls
// values from a blocking Source and buffers them for a non-blocking Drain.
// Both apply blocking backpressure when their queue is full and never
// drop an accepted value.
package relay

import (
	"time"

	"codeberg.org/mutker/inputrate/internal/logger"
)

// Sink is a blocking transport write. An error is terminal.
type Sink[T any] interface {
	Send(v T) error
}

// Source is a blocking transport read. An error is terminal. Close must
// unblock a pending Recv.
type Source[T any] interface {
	Recv() (T, error)
	Close() error
}

// Stats reports how many values passed through a relay.
type Stats struct {
	Accepted  uint64
	Forwarded uint64
}

const defaultGrace = 2 * time.Second

type options struct {
	log   logger.Logger
	grace time.Duration
}

// Option configures a Sender or Receiver.
type Option func(*options)

// WithLogger sets the logger used by the background goroutine.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithGrace bounds how long Sender.Stop waits for a blocked transport
// write before closing the sink to break it.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:   logger.Nop(),
		grace: defaultGrace,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
