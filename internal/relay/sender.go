package relay

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/report"
)

// Sender owns a bounded queue and the goroutine that forwards its values,
// in arrival order, into a blocking Sink.
type Sender[T any] struct {
	sink  Sink[T]
	queue chan T
	quit  chan struct{}
	done  chan struct{}
	log   logger.Logger
	grace time.Duration

	running   atomic.Bool
	started   atomic.Bool
	stopOnce  sync.Once
	stopErr   error
	err       error // set by run before done is closed
	panicked  *report.Panic
	accepted  atomic.Uint64
	forwarded atomic.Uint64
}

// NewSender creates a stopped Sender with room for capacity values.
func NewSender[T any](sink Sink[T], capacity int, opts ...Option) (*Sender[T], error) {
	if capacity <= 0 {
		return nil, errors.New().WithData(ErrInvalidCapacity, capacity)
	}

	o := buildOptions(opts)

	return &Sender[T]{
		sink:  sink,
		queue: make(chan T, capacity),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   o.log,
		grace: o.grace,
	}, nil
}

// Start launches the relay goroutine. Calling it more than once is a no-op.
func (s *Sender[T]) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.running.Store(true)
	go s.run()
}

// Send enqueues v. It blocks while the queue is full and fails only once
// the relay has been stopped or its transport has broken.
func (s *Sender[T]) Send(v T) error {
	select {
	case <-s.quit:
		return ErrClosed
	case <-s.done:
		return s.brokenErr()
	default:
	}

	select {
	case s.queue <- v:
		s.accepted.Add(1)
		return nil
	case <-s.quit:
		return ErrClosed
	case <-s.done:
		return s.brokenErr()
	}
}

// Stop flags the goroutine to finish, lets it forward what is still
// buffered and waits for it to exit. A transport write still blocked after
// the grace period is broken by closing the sink. A panic raised by the
// sink is raised again here. Stop is idempotent.
func (s *Sender[T]) Stop() error {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.quit)

		if !s.started.Load() {
			return
		}

		timer := time.NewTimer(s.grace)
		defer timer.Stop()

		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		if closer, ok := s.sink.(io.Closer); ok {
			s.log.Warn().Dur("grace", s.grace).Msg("Transport write still blocked, closing sink")
			if err := closer.Close(); err != nil {
				s.stopErr = errors.New().Wrap(ErrStopFailed, err)
			}
		}
		<-s.done
	})

	if s.started.Load() && s.panicked != nil {
		panic(s.panicked)
	}

	return s.stopErr
}

// Err returns the transport error that ended the relay goroutine, if any.
func (s *Sender[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Done is closed once the relay goroutine has exited.
func (s *Sender[T]) Done() <-chan struct{} {
	return s.done
}

// Stats returns the accepted and forwarded counts.
func (s *Sender[T]) Stats() Stats {
	return Stats{
		Accepted:  s.accepted.Load(),
		Forwarded: s.forwarded.Load(),
	}
}

// Running reports whether the relay goroutine is still forwarding.
func (s *Sender[T]) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return s.running.Load()
	}
}

// Len is the number of values currently buffered.
func (s *Sender[T]) Len() int {
	return len(s.queue)
}

func (s *Sender[T]) brokenErr() error {
	if s.panicked != nil {
		return errors.New().Wrap(errors.ErrChannelBroken, s.panicked)
	}
	if s.err == nil {
		return ErrClosed
	}

	return errors.New().Wrap(errors.ErrChannelBroken, s.err)
}

func (s *Sender[T]) run() {
	defer close(s.done)
	defer report.Recover(&s.panicked)

	for {
		select {
		case v := <-s.queue:
			if !s.forward(v) {
				return
			}
		case <-s.quit:
			s.drain()
			return
		}
	}
}

// drain forwards whatever is still buffered after Stop, best effort.
func (s *Sender[T]) drain() {
	for {
		select {
		case v := <-s.queue:
			if !s.forward(v) {
				return
			}
		default:
			s.log.Debug().Uint64("forwarded", s.forwarded.Load()).Msg("Relay drained")
			return
		}
	}
}

func (s *Sender[T]) forward(v T) bool {
	if err := s.sink.Send(v); err != nil {
		s.err = err
		s.log.Debug().Err(err).Msg("Transport write failed, relay exiting")
		return false
	}
	s.forwarded.Add(1)

	return true
}
