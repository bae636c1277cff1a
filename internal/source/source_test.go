package source_test

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/report"
	"codeberg.org/mutker/inputrate/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSurface replays queued messages and records what the source does.
type fakeSurface struct {
	queue chan source.Message

	mu          sync.Mutex
	trace       *[]string
	registered  []event.DeviceClass
	dispatched  int
	destroyed   bool
	registerErr error
}

func newFakeSurface(trace *[]string) *fakeSurface {
	return &fakeSurface{queue: make(chan source.Message, 64), trace: trace}
}

func (f *fakeSurface) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.trace = append(*f.trace, s)
}

func (f *fakeSurface) Register(class event.DeviceClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, class)
	return f.registerErr
}

func (f *fakeSurface) Next() (source.Message, error) {
	return <-f.queue, nil
}

func (f *fakeSurface) Dispatch(msg source.Message) {
	f.mu.Lock()
	f.dispatched++
	f.mu.Unlock()
	f.record("dispatch")
}

func (f *fakeSurface) Close() error {
	f.queue <- source.Message{Kind: source.KindClose}
	return nil
}

func (f *fakeSurface) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	return nil
}

func (f *fakeSurface) factory() source.SurfaceFactory {
	return func() (source.Surface, error) { return f, nil }
}

type recordingSink struct {
	mu    sync.Mutex
	trace *[]string
	got   []event.Timestamp
	fail  error
}

func (r *recordingSink) Send(ts event.Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, ts)
	*r.trace = append(*r.trace, "send")
	return nil
}

func (r *recordingSink) values() []event.Timestamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Timestamp(nil), r.got...)
}

func counterClock() func() event.Timestamp {
	var n atomic.Int64
	return func() event.Timestamp {
		return event.Timestamp(n.Add(1))
	}
}

func TestSourceForwardsMatchingClassInOrder(t *testing.T) {
	var trace []string
	surface := newFakeSurface(&trace)
	sink := &recordingSink{trace: &trace}

	src := source.New(source.Options{
		Class:    event.ClassMouse,
		Sink:     sink,
		Clock:    counterClock(),
		Surfaces: surface.factory(),
	})
	require.NoError(t, src.Start())

	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassMouse}
	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassKeyboard}
	surface.queue <- source.Message{Kind: source.KindOther}
	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassMouse}

	require.Eventually(t, func() bool {
		return src.Captured() == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, src.Stop())

	// One clock reading per dequeued message, so the second mouse event is
	// the fourth reading.
	assert.Equal(t, []event.Timestamp{1, 4}, sink.values())
	assert.Equal(t, []event.DeviceClass{event.ClassMouse}, surface.registered)
	assert.True(t, surface.destroyed)

	// Input is forwarded before default handling runs.
	assert.Equal(t, []string{"send", "dispatch", "dispatch", "dispatch", "send", "dispatch"}, trace)
}

func TestSourceHookSuppressesDispatch(t *testing.T) {
	var trace []string
	surface := newFakeSurface(&trace)
	sink := &recordingSink{trace: &trace}

	var seen atomic.Int32
	src := source.New(source.Options{
		Class: event.ClassKeyboard,
		Sink:  sink,
		Hook: func(msg source.Message, _ event.Timestamp) source.Verdict {
			seen.Add(1)
			if msg.Kind == source.KindInput {
				return source.Suppress
			}
			return source.PassThrough
		},
		Surfaces: surface.factory(),
	})
	require.NoError(t, src.Start())

	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassKeyboard}
	surface.queue <- source.Message{Kind: source.KindOther}

	require.Eventually(t, func() bool { return seen.Load() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, src.Stop())

	assert.Len(t, sink.values(), 1)
	assert.Equal(t, 1, surface.dispatched)
}

func TestSourceInitFailures(t *testing.T) {
	t.Run("surface", func(t *testing.T) {
		src := source.New(source.Options{
			Sink: &recordingSink{trace: new([]string)},
			Surfaces: func() (source.Surface, error) {
				return nil, io.ErrUnexpectedEOF
			},
		})
		err := src.Start()
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, source.ErrInitFailed))
		assert.NoError(t, src.Stop())
	})

	t.Run("register", func(t *testing.T) {
		surface := newFakeSurface(new([]string))
		surface.registerErr = io.ErrClosedPipe

		src := source.New(source.Options{
			Sink:     &recordingSink{trace: new([]string)},
			Surfaces: surface.factory(),
		})
		err := src.Start()
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, source.ErrRegisterFailed))
		assert.True(t, surface.destroyed)
	})

	t.Run("no sink", func(t *testing.T) {
		err := source.New(source.Options{}).Start()
		assert.True(t, errors.HasCode(err, source.ErrNoSink))
	})
}

func TestSourceSinkFailureEndsCapture(t *testing.T) {
	var trace []string
	surface := newFakeSurface(&trace)
	sink := &recordingSink{trace: &trace, fail: io.ErrClosedPipe}

	src := source.New(source.Options{Sink: sink, Surfaces: surface.factory()})
	require.NoError(t, src.Start())

	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassMouse}

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not exit after sink failure")
	}

	err := src.Stop()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, source.ErrSinkFailed))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.True(t, surface.destroyed)

	// Stop is idempotent.
	assert.Equal(t, err, src.Stop())
}

func TestSourceStartTwice(t *testing.T) {
	surface := newFakeSurface(new([]string))
	src := source.New(source.Options{Sink: &recordingSink{trace: new([]string)}, Surfaces: surface.factory()})

	require.NoError(t, src.Start())
	assert.True(t, errors.HasCode(src.Start(), source.ErrAlreadyStarted))
	require.NoError(t, src.Stop())
}

func TestSourceStopBeforeStart(t *testing.T) {
	src := source.New(source.Options{Sink: &recordingSink{trace: new([]string)}})
	assert.NoError(t, src.Stop())
}

type panickingSink struct{}

func (panickingSink) Send(event.Timestamp) error {
	panic("sink exploded")
}

func TestSourceStopRaisesCapturePanic(t *testing.T) {
	surface := newFakeSurface(new([]string))
	src := source.New(source.Options{Sink: panickingSink{}, Surfaces: surface.factory()})
	require.NoError(t, src.Start())

	surface.queue <- source.Message{Kind: source.KindInput, Class: event.ClassMouse}

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not exit after the sink panicked")
	}

	defer func() {
		p, ok := recover().(*report.Panic)
		require.True(t, ok)
		assert.Equal(t, "sink exploded", p.Value)
	}()
	_ = src.Stop()
	t.Fatal("Stop did not raise the capture panic")
}

func TestSourceStartRaisesInitPanic(t *testing.T) {
	src := source.New(source.Options{
		Sink:     &recordingSink{trace: new([]string)},
		Surfaces: func() (source.Surface, error) { panic("no window") },
	})

	assert.PanicsWithError(t, "no window", func() { _ = src.Start() })
}

// brokenSurface fails to read its message queue.
type brokenSurface struct {
	*fakeSurface
}

func (b *brokenSurface) Next() (source.Message, error) {
	return source.Message{}, io.ErrUnexpectedEOF
}

func TestSourceSurfaceReadFailureEndsCapture(t *testing.T) {
	surface := &brokenSurface{fakeSurface: newFakeSurface(new([]string))}
	sink := &recordingSink{trace: new([]string)}

	src := source.New(source.Options{
		Sink:     sink,
		Surfaces: func() (source.Surface, error) { return surface, nil },
	})
	require.NoError(t, src.Start())

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not exit after a failed read")
	}

	err := src.Stop()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, source.ErrSurfaceFailed))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, sink.values())
	assert.True(t, surface.destroyed)
}

func TestSuppressInput(t *testing.T) {
	assert.Equal(t, source.Suppress, source.SuppressInput(source.Message{Kind: source.KindInput}, 0))
	assert.Equal(t, source.PassThrough, source.SuppressInput(source.Message{Kind: source.KindOther}, 0))
	assert.Equal(t, source.PassThrough, source.SuppressInput(source.Message{Kind: source.KindClose}, 0))
}
