//go:build !windows

package channel_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeStopWhileReadPendingBreaksSender(t *testing.T) {
	tx, sender, receiver := newBridge(t, 4)
	defer tx.Close()

	require.NoError(t, sender.Send(1))
	var got []event.Timestamp
	require.Eventually(t, func() bool {
		got = receiver.Drain(got)
		return len(got) == 1
	}, 5*time.Second, time.Millisecond)

	// The receive goroutine is now parked in a pipe read.
	stopped := make(chan error, 1)
	go func() { stopped <- receiver.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the pending read")
	}
	assert.NoError(t, receiver.Err())

	// With no reader left, the next transport write fails and the relay
	// stops accepting values.
	var err error
	require.Eventually(t, func() bool {
		err = sender.Send(2)
		return err != nil
	}, 5*time.Second, time.Millisecond)
	assert.True(t, errors.HasCode(err, errors.ErrChannelBroken))
	assert.True(t, errors.HasCode(sender.Err(), errors.ErrChannelBroken))
	assert.False(t, sender.Running())

	require.NoError(t, sender.Stop())
}
