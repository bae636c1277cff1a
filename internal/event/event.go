// Package event defines the timestamped input event that flows through the
// capture pipeline and its fixed-width wire record.
package event

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
)

// Timestamp is a reading of the system-wide monotonic clock in
// nanoseconds. Readings taken in different processes on the same host are
// directly comparable.
type Timestamp int64

// Now reads the monotonic clock.
func Now() Timestamp {
	return Timestamp(monotonicNanos())
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t - u)
}

// Add returns t+d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d)
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t < u
}

func (t Timestamp) String() string {
	return time.Duration(t).String()
}

// RecordSize is the encoded size of a Timestamp on every channel. Both
// executables are built against this constant; there is no runtime
// negotiation, so changing it requires rebuilding both in lockstep.
const RecordSize = 8

// Record is the wire form of a Timestamp.
type Record [RecordSize]byte

// Encode writes t into a Record.
func Encode(t Timestamp) Record {
	var r Record
	binary.LittleEndian.PutUint64(r[:], uint64(t))
	return r
}

// Decode is the inverse of Encode.
func Decode(r Record) Timestamp {
	return Timestamp(binary.LittleEndian.Uint64(r[:]))
}

// DeviceClass identifies the single class of raw input a source listens to.
type DeviceClass uint8

const (
	ClassMouse DeviceClass = iota
	ClassKeyboard
)

// UsagePage and Usage return the HID generic-desktop identifiers of c.
func (c DeviceClass) UsagePage() uint16 {
	return 0x01
}

func (c DeviceClass) Usage() uint16 {
	switch c {
	case ClassKeyboard:
		return 0x06
	default:
		return 0x02
	}
}

func (c DeviceClass) String() string {
	switch c {
	case ClassMouse:
		return "mouse"
	case ClassKeyboard:
		return "keyboard"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// ParseDeviceClass maps a configured device name onto a DeviceClass.
func ParseDeviceClass(name string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mouse":
		return ClassMouse, nil
	case "keyboard":
		return ClassKeyboard, nil
	default:
		return 0, errors.New().WithData(errors.ErrInvalidDevice, name)
	}
}
