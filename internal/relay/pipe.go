package relay

import "sync"

// Pipe is an in-memory bounded transport satisfying both Sink and Source.
// Values buffered before Close are still delivered to Recv.
type Pipe[T any] struct {
	ch     chan T
	closed chan struct{}
	once   sync.Once
}

// NewPipe creates a Pipe holding at most capacity values.
func NewPipe[T any](capacity int) *Pipe[T] {
	return &Pipe[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Send blocks until v is buffered or the pipe is closed.
func (p *Pipe[T]) Send(v T) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.ch <- v:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

// Recv blocks until a value is available or the pipe is closed and empty.
func (p *Pipe[T]) Recv() (T, error) {
	select {
	case v := <-p.ch:
		return v, nil
	case <-p.closed:
		select {
		case v := <-p.ch:
			return v, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	}
}

// Close wakes every blocked Send and Recv. It is idempotent.
func (p *Pipe[T]) Close() error {
	p.once.Do(func() {
		close(p.closed)
	})

	return nil
}
