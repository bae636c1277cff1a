// Package source captures raw input notifications for one device class on
// a dedicated OS thread and forwards a timestamp per event.
package source

import "codeberg.org/mutker/inputrate/internal/event"

// Kind classifies a message taken from a Surface.
type Kind int

const (
	// KindOther is any message the source does not interpret.
	KindOther Kind = iota
	// KindInput is a raw input notification.
	KindInput
	// KindClose asks the capture loop to finish.
	KindClose
)

// Message is one notification dequeued from a Surface.
type Message struct {
	Kind Kind
	// Class is the device class of a KindInput message.
	Class event.DeviceClass
	// Native carries the platform message for Dispatch.
	Native any
}

// Surface is a hidden, message-only endpoint owned by the capture thread.
// Every method except Close must be called from the thread that created
// the surface.
type Surface interface {
	// Register subscribes the surface to class, replacing any earlier
	// registration, and keeps delivering input while unfocused.
	Register(class event.DeviceClass) error
	// Next blocks until a message is available.
	Next() (Message, error)
	// Dispatch runs the default handling of msg.
	Dispatch(msg Message)
	// Close posts a close notification into the surface queue. It is safe
	// to call from any goroutine.
	Close() error
	// Destroy releases the surface.
	Destroy() error
}

// SurfaceFactory creates a Surface on the calling thread.
type SurfaceFactory func() (Surface, error)

// Sink receives captured timestamps. Send may block; an error ends capture.
type Sink interface {
	Send(ts event.Timestamp) error
}

// Verdict is the answer of a Hook.
type Verdict int

const (
	// PassThrough lets the source run default handling.
	PassThrough Verdict = iota
	// Suppress skips default handling for the message.
	Suppress
)

// Hook inspects every message after input has been forwarded and before
// default handling.
type Hook func(msg Message, ts event.Timestamp) Verdict

// SuppressInput is a Hook that skips default handling of input messages,
// for a process that owns every input notification it receives.
func SuppressInput(msg Message, _ event.Timestamp) Verdict {
	if msg.Kind == KindInput {
		return Suppress
	}
	return PassThrough
}
