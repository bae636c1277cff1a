package source

import (
	"runtime"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/report"
	"go.uber.org/multierr"
)

// Options configures a Source.
type Options struct {
	Class event.DeviceClass
	Sink  Sink
	Hook  Hook
	// Clock defaults to event.Now.
	Clock func() event.Timestamp
	// Surfaces defaults to the platform surface.
	Surfaces SurfaceFactory
	Logger   logger.Logger
}

// Source owns the capture goroutine and its surface.
type Source struct {
	class    event.DeviceClass
	sink     Sink
	hook     Hook
	clock    func() event.Timestamp
	surfaces SurfaceFactory
	log      logger.Logger

	started  atomic.Bool
	captured atomic.Uint64
	done     chan struct{}

	mu       sync.Mutex
	surface  Surface
	stopping bool

	stopOnce sync.Once
	err      error // set by run before done is closed
	panicked *report.Panic
}

// New creates a stopped Source.
func New(opts Options) *Source {
	s := &Source{
		class:    opts.Class,
		sink:     opts.Sink,
		hook:     opts.Hook,
		clock:    opts.Clock,
		surfaces: opts.Surfaces,
		log:      opts.Logger,
		done:     make(chan struct{}),
	}

	if s.clock == nil {
		s.clock = event.Now
	}
	if s.surfaces == nil {
		s.surfaces = NewPlatformSurface
	}
	if s.log == nil {
		s.log = logger.Nop()
	}

	return s
}

// Start launches the capture goroutine and waits until its surface is
// created and registered. Initialization failures are returned and leave
// the source stopped.
func (s *Source) Start() error {
	errFactory := errors.New()

	if s.sink == nil {
		return errFactory.New(ErrNoSink)
	}
	if !s.started.CompareAndSwap(false, true) {
		return errFactory.New(ErrAlreadyStarted)
	}

	ready := make(chan error, 1)
	go s.run(ready)

	select {
	case err := <-ready:
		if err != nil {
			<-s.done
			return err
		}
	case <-s.done:
		if s.panicked != nil {
			panic(s.panicked)
		}
		if err := <-ready; err != nil {
			return err
		}
	}

	s.log.Debug().Str("device", s.class.String()).Msg("Capture started")

	return nil
}

// Stop posts a close notification to the surface and waits for the
// capture goroutine to exit. It returns the error that ended capture, if
// any, and raises again a panic that ended it. Stop is idempotent and safe
// to call before Start.
func (s *Source) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		surface := s.surface
		s.mu.Unlock()

		if !s.started.Load() {
			return
		}

		if surface != nil {
			if err := surface.Close(); err != nil {
				s.log.Warn().Err(err).Msg("Failed to post close notification")
			}
		}
		<-s.done

		s.log.Debug().Uint64("captured", s.captured.Load()).Msg("Capture stopped")
	})

	select {
	case <-s.done:
		if s.panicked != nil {
			panic(s.panicked)
		}
		return s.err
	default:
		return nil
	}
}

// Done is closed once the capture goroutine has exited.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Captured is the number of timestamps handed to the sink.
func (s *Source) Captured() uint64 {
	return s.captured.Load()
}

func (s *Source) run(ready chan<- error) {
	errFactory := errors.New()
	defer close(s.done)
	defer report.Recover(&s.panicked)

	// The surface and its message queue belong to this thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	surface, err := s.surfaces()
	if err != nil {
		if !errors.HasCode(err, ErrUnsupported) {
			err = errFactory.Wrap(ErrInitFailed, err)
		}
		ready <- err
		return
	}

	if err := surface.Register(s.class); err != nil {
		ready <- multierr.Append(errFactory.Wrap(ErrRegisterFailed, err), surface.Destroy())
		return
	}

	s.mu.Lock()
	s.surface = surface
	stopping := s.stopping
	s.mu.Unlock()

	ready <- nil

	// Stop ran while the surface was being created and found nothing to
	// close.
	if stopping {
		_ = surface.Close()
	}

	err = s.loop(surface)
	if derr := surface.Destroy(); derr != nil {
		err = multierr.Append(err, errFactory.Wrap(ErrSurfaceFailed, derr))
	}
	s.err = err
}

func (s *Source) loop(surface Surface) error {
	errFactory := errors.New()

	for {
		msg, err := surface.Next()
		ts := s.clock()
		if err != nil {
			return errFactory.Wrap(ErrSurfaceFailed, err)
		}

		switch msg.Kind {
		case KindClose:
			return nil
		case KindInput:
			if msg.Class != s.class {
				break
			}
			if err := s.sink.Send(ts); err != nil {
				s.log.Debug().Err(err).Msg("Sink failed, capture exiting")
				return errFactory.Wrap(ErrSinkFailed, err)
			}
			s.captured.Add(1)
		}

		if s.hook != nil && s.hook(msg, ts) == Suppress {
			continue
		}
		surface.Dispatch(msg)
	}
}
