package event_test

import (
	"math"
	"testing"
	"time"
	"unsafe"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	for _, ts := range []event.Timestamp{
		0,
		1,
		-1,
		event.Timestamp(1500 * time.Microsecond),
		math.MaxInt64,
		math.MinInt64,
		event.Now(),
	} {
		assert.Equal(t, ts, event.Decode(event.Encode(ts)), ts.String())
	}
}

func TestRecordSizeIsFixed(t *testing.T) {
	var r event.Record
	assert.Equal(t, event.RecordSize, len(r))
	assert.EqualValues(t, event.RecordSize, unsafe.Sizeof(event.Timestamp(0)))
}

func TestNowIsMonotonic(t *testing.T) {
	prev := event.Now()
	for i := 0; i < 1000; i++ {
		next := event.Now()
		require.False(t, next.Before(prev), "clock went backwards: %v < %v", next, prev)
		prev = next
	}
}

func TestTimestampArithmetic(t *testing.T) {
	base := event.Timestamp(0)
	later := base.Add(250 * time.Millisecond)

	assert.Equal(t, 250*time.Millisecond, later.Sub(base))
	assert.True(t, base.Before(later))
	assert.False(t, later.Before(later))
}

func TestParseDeviceClass(t *testing.T) {
	c, err := event.ParseDeviceClass("Mouse")
	require.NoError(t, err)
	assert.Equal(t, event.ClassMouse, c)
	assert.EqualValues(t, 0x02, c.Usage())

	c, err = event.ParseDeviceClass("keyboard")
	require.NoError(t, err)
	assert.Equal(t, event.ClassKeyboard, c)
	assert.EqualValues(t, 0x06, c.Usage())
	assert.EqualValues(t, 0x01, c.UsagePage())

	_, err = event.ParseDeviceClass("joystick")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidDevice))
}
