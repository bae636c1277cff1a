package relay_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/relay"
	"codeberg.org/mutker/inputrate/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedSink blocks every Send until the gate is opened.
type gatedSink struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
	mu      sync.Mutex
	got     []int
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
}

func (s *gatedSink) Send(v int) error {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, v)
	return nil
}

func (s *gatedSink) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.got...)
}

type failingSink struct{ after int }

func (s *failingSink) Send(int) error {
	if s.after == 0 {
		return io.ErrClosedPipe
	}
	s.after--
	return nil
}

type blockingSink struct {
	closed chan struct{}
	once   sync.Once
}

func (s *blockingSink) Send(int) error {
	<-s.closed
	return io.ErrClosedPipe
}

func (s *blockingSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type panickingSink struct{}

func (panickingSink) Send(int) error {
	panic("sink exploded")
}

type panickingSource struct{}

func (panickingSource) Recv() (int, error) {
	panic("source exploded")
}

func (panickingSource) Close() error { return nil }

func TestSenderRejectsInvalidCapacity(t *testing.T) {
	_, err := relay.NewSender[int](newGatedSink(), 0)
	require.Error(t, err)

	_, err = relay.NewReceiver[int](relay.NewPipe[int](1), -1)
	require.Error(t, err)
}

func TestSenderPreservesOrder(t *testing.T) {
	pipe := relay.NewPipe[int](128)
	sender, err := relay.NewSender[int](pipe, 4)
	require.NoError(t, err)
	sender.Start()

	for i := 0; i < 100; i++ {
		require.NoError(t, sender.Send(i))
	}
	require.NoError(t, sender.Stop())

	for i := 0; i < 100; i++ {
		v, err := pipe.Recv()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	assert.Equal(t, relay.Stats{Accepted: 100, Forwarded: 100}, sender.Stats())
}

func TestSenderBackpressureBlocksInsteadOfDropping(t *testing.T) {
	sink := newGatedSink()
	sender, err := relay.NewSender[int](sink, 2)
	require.NoError(t, err)
	sender.Start()

	require.NoError(t, sender.Send(1))
	<-sink.entered // the relay goroutine now holds 1 and is blocked on the sink

	require.NoError(t, sender.Send(2))
	require.NoError(t, sender.Send(3))
	require.Equal(t, 2, sender.Len())

	sent := make(chan error, 1)
	go func() { sent <- sender.Send(4) }()

	require.Never(t, func() bool { return len(sent) > 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"send into a full queue must block")

	close(sink.gate)
	require.NoError(t, <-sent)
	require.NoError(t, sender.Stop())

	assert.Equal(t, []int{1, 2, 3, 4}, sink.values())
	assert.Equal(t, relay.Stats{Accepted: 4, Forwarded: 4}, sender.Stats())
}

func TestSenderStopDrainsBufferedValues(t *testing.T) {
	sink := newGatedSink()
	sender, err := relay.NewSender[int](sink, 8)
	require.NoError(t, err)

	// Values queued before Start are forwarded once the goroutine runs.
	for i := 0; i < 5; i++ {
		require.NoError(t, sender.Send(i))
	}
	sender.Start()
	close(sink.gate)

	require.NoError(t, sender.Stop())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, sink.values())
	assert.ErrorIs(t, sender.Send(5), relay.ErrClosed)
	assert.False(t, sender.Running())
}

func TestSenderStopIsIdempotent(t *testing.T) {
	sender, err := relay.NewSender[int](relay.NewPipe[int](1), 1)
	require.NoError(t, err)
	sender.Start()

	require.NoError(t, sender.Stop())
	require.NoError(t, sender.Stop())

	unstarted, err := relay.NewSender[int](relay.NewPipe[int](1), 1)
	require.NoError(t, err)
	require.NoError(t, unstarted.Stop())
}

func TestSenderTransportFailureIsTerminal(t *testing.T) {
	sender, err := relay.NewSender[int](&failingSink{after: 2}, 4)
	require.NoError(t, err)
	sender.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Send(i))
	}

	select {
	case <-sender.Done():
	case <-time.After(time.Second):
		t.Fatal("relay goroutine did not exit after transport failure")
	}

	assert.ErrorIs(t, sender.Err(), io.ErrClosedPipe)
	err = sender.Send(99)
	assert.ErrorIs(t, err, relay.ErrBroken)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.EqualValues(t, 2, sender.Stats().Forwarded)
	require.NoError(t, sender.Stop())
}

func TestSenderStopBreaksBlockedWriteAfterGrace(t *testing.T) {
	sink := &blockingSink{closed: make(chan struct{})}
	sender, err := relay.NewSender[int](sink, 1, relay.WithGrace(20*time.Millisecond))
	require.NoError(t, err)
	sender.Start()
	require.NoError(t, sender.Send(1))

	stopped := make(chan error, 1)
	go func() { stopped <- sender.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return in bounded time")
	}
}

func TestReceiverDrainIsNonBlockingAndOrdered(t *testing.T) {
	pipe := relay.NewPipe[int](16)
	receiver, err := relay.NewReceiver[int](pipe, 16)
	require.NoError(t, err)
	receiver.Start()

	assert.Empty(t, receiver.Drain(nil))

	for i := 0; i < 10; i++ {
		require.NoError(t, pipe.Send(i))
	}

	var got []int
	require.Eventually(t, func() bool {
		got = receiver.Drain(got)
		return len(got) == 10
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)

	require.NoError(t, receiver.Stop())
	assert.Equal(t, relay.Stats{Accepted: 10, Forwarded: 10}, receiver.Stats())
}

func TestReceiverStopUnblocksPendingRead(t *testing.T) {
	receiver, err := relay.NewReceiver[int](relay.NewPipe[int](1), 1)
	require.NoError(t, err)
	receiver.Start()

	stopped := make(chan error, 1)
	go func() { stopped <- receiver.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return in bounded time")
	}
	assert.NoError(t, receiver.Err())
}

func TestReceiverStopUnblocksFullQueue(t *testing.T) {
	pipe := relay.NewPipe[int](4)
	receiver, err := relay.NewReceiver[int](pipe, 1)
	require.NoError(t, err)
	receiver.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, pipe.Send(i))
	}
	require.Eventually(t, func() bool { return receiver.Stats().Accepted >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, receiver.Stop())
}

func TestReceiverTransportFailureStopsGrowth(t *testing.T) {
	pipe := relay.NewPipe[int](4)
	receiver, err := relay.NewReceiver[int](pipe, 4)
	require.NoError(t, err)

	require.NoError(t, pipe.Send(7))
	require.NoError(t, pipe.Close())
	receiver.Start()

	<-receiver.Done()
	assert.ErrorIs(t, receiver.Err(), relay.ErrClosed)
	assert.Equal(t, []int{7}, receiver.Drain(nil))
	assert.Empty(t, receiver.Drain(nil))
	require.NoError(t, receiver.Stop())
}

func TestEndToEndThroughBothRelays(t *testing.T) {
	pipe := relay.NewPipe[int](3)
	sender, err := relay.NewSender[int](pipe, 2)
	require.NoError(t, err)
	receiver, err := relay.NewReceiver[int](pipe, 2)
	require.NoError(t, err)
	sender.Start()
	receiver.Start()

	const total = 1000
	go func() {
		for i := 0; i < total; i++ {
			if err := sender.Send(i); err != nil {
				return
			}
		}
	}()

	var got []int
	require.Eventually(t, func() bool {
		got = receiver.Drain(got)
		return len(got) == total
	}, 5*time.Second, time.Millisecond)

	for i, v := range got {
		require.Equal(t, i, v)
	}

	require.NoError(t, sender.Stop())
	require.NoError(t, receiver.Stop())
}

func TestSenderStopRaisesSinkPanic(t *testing.T) {
	sender, err := relay.NewSender[int](panickingSink{}, 1)
	require.NoError(t, err)
	sender.Start()
	require.NoError(t, sender.Send(1))

	<-sender.Done()

	err = sender.Send(2)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrChannelBroken))

	defer func() {
		p, ok := recover().(*report.Panic)
		require.True(t, ok)
		assert.Equal(t, "sink exploded", p.Value)
		assert.Contains(t, string(p.Stack), "Send")
	}()
	_ = sender.Stop()
	t.Fatal("Stop did not raise the sink panic")
}

func TestReceiverStopRaisesSourcePanic(t *testing.T) {
	receiver, err := relay.NewReceiver[int](panickingSource{}, 1)
	require.NoError(t, err)
	receiver.Start()

	<-receiver.Done()

	defer func() {
		p, ok := recover().(*report.Panic)
		require.True(t, ok)
		assert.Equal(t, "source exploded", p.Error())
	}()
	_ = receiver.Stop()
	t.Fatal("Stop did not raise the source panic")
}
