package relay

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/report"
)

// Receiver owns the goroutine that reads a blocking Source and republishes
// each value into a bounded queue the consumer drains without blocking.
type Receiver[T any] struct {
	source Source[T]
	queue  chan T
	quit   chan struct{}
	done   chan struct{}
	log    logger.Logger

	running  atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	mu       sync.Mutex
	err      error
	panicked *report.Panic
	received atomic.Uint64
	drained  atomic.Uint64
}

// NewReceiver creates a stopped Receiver with room for capacity values.
func NewReceiver[T any](source Source[T], capacity int, opts ...Option) (*Receiver[T], error) {
	if capacity <= 0 {
		return nil, errors.New().WithData(ErrInvalidCapacity, capacity)
	}

	o := buildOptions(opts)

	return &Receiver[T]{
		source: source,
		queue:  make(chan T, capacity),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    o.log,
	}, nil
}

// Start launches the receive goroutine. Calling it more than once is a no-op.
func (r *Receiver[T]) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.running.Store(true)
	go r.run()
}

// Drain appends every value buffered at the time of the call to dst, in
// arrival order, and returns without blocking.
func (r *Receiver[T]) Drain(dst []T) []T {
	// Only the consumer takes from the queue, so n receives never block.
	n := len(r.queue)
	for i := 0; i < n; i++ {
		dst = append(dst, <-r.queue)
	}
	r.drained.Add(uint64(n))

	return dst
}

// Stop clears the running flag, closes the source to unblock a pending
// read and waits for the goroutine to exit. A panic raised by the source is
// raised again here. Stop is idempotent.
func (r *Receiver[T]) Stop() error {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.quit)

		if err := r.source.Close(); err != nil {
			r.stopErr = errors.New().Wrap(ErrStopFailed, err)
		}

		if r.started.Load() {
			<-r.done
		}
	})

	if r.started.Load() && r.panicked != nil {
		panic(r.panicked)
	}

	return r.stopErr
}

// Err returns the transport error that ended the goroutine, if any.
func (r *Receiver[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the receive goroutine has exited.
func (r *Receiver[T]) Done() <-chan struct{} {
	return r.done
}

// Stats returns how many values were received from the source and how
// many of them the consumer has drained.
func (r *Receiver[T]) Stats() Stats {
	return Stats{
		Accepted:  r.received.Load(),
		Forwarded: r.drained.Load(),
	}
}

func (r *Receiver[T]) run() {
	defer close(r.done)
	defer report.Recover(&r.panicked)

	for r.running.Load() {
		v, err := r.source.Recv()
		if err != nil {
			if r.running.Load() {
				r.mu.Lock()
				r.err = err
				r.mu.Unlock()
				r.log.Debug().Err(err).Msg("Transport read failed, receiver exiting")
			}
			return
		}
		r.received.Add(1)

		select {
		case r.queue <- v:
		case <-r.quit:
			return
		}
	}
}
