// Package channel carries fixed-size event records between two processes
// over an anonymous unidirectional pipe.
//
// Every message is exactly event.RecordSize bytes with no framing, version
// or checksum; both executables must be built against the same layout.
// Any I/O failure is terminal for the channel instance.
package channel

import (
	"bufio"
	"io"
	"sync"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
)

// New creates a pipe sized for roughly capacityHint records and returns
// its two ends.
func New(capacityHint int) (*Sender, *Receiver, error) {
	errFactory := errors.New()

	if capacityHint <= 0 {
		return nil, nil, errFactory.WithData(ErrInvalidCapacity, capacityHint)
	}

	r, w, err := newPipe(capacityHint * event.RecordSize)
	if err != nil {
		return nil, nil, errFactory.Wrap(ErrCreateFailed, err)
	}

	return newSender(newHandle(w)), newReceiver(newHandle(r)), nil
}

// AdoptSender reconstructs the writing end inherited from the parent.
func AdoptSender(value string) (*Sender, error) {
	f, err := adopt(value)
	if err != nil {
		return nil, err
	}

	return newSender(newHandle(f)), nil
}

// AdoptReceiver reconstructs the reading end inherited from the parent.
func AdoptReceiver(value string) (*Receiver, error) {
	f, err := adopt(value)
	if err != nil {
		return nil, err
	}

	return newReceiver(newHandle(f)), nil
}

// Sender is the writing end of a channel.
type Sender struct {
	handle *Handle
	mu     sync.Mutex
	w      *bufio.Writer
	broken error
}

func newSender(h *Handle) *Sender {
	return &Sender{
		handle: h,
		w:      bufio.NewWriterSize(h.file, event.RecordSize),
	}
}

// Send writes one record and flushes it. On failure the value is returned
// inside a *SendError and the channel stays broken.
func (s *Sender) Send(ts event.Timestamp) error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return &SendError{Value: ts, Err: errFactory.Wrap(errors.ErrChannelBroken, s.broken)}
	}

	if _, err := s.handle.usable(); err != nil {
		return &SendError{Value: ts, Err: err}
	}

	rec := event.Encode(ts)
	if _, err := s.w.Write(rec[:]); err != nil {
		s.broken = err
		return &SendError{Value: ts, Err: errFactory.Wrap(errors.ErrChannelBroken, err)}
	}
	if err := s.w.Flush(); err != nil {
		s.broken = err
		return &SendError{Value: ts, Err: errFactory.Wrap(errors.ErrChannelBroken, err)}
	}

	return nil
}

// Handle exposes the OS handle for transfer to a child process.
func (s *Sender) Handle() *Handle {
	return s.handle
}

// Close releases the writing end; the reader then observes end of stream.
// It does not wait for a Send in progress.
func (s *Sender) Close() error {
	return s.handle.Release()
}

// Receiver is the reading end of a channel. Recv must be called from a
// single goroutine.
type Receiver struct {
	handle *Handle
	r      *bufio.Reader
	rec    event.Record
	broken error
}

func newReceiver(h *Handle) *Receiver {
	return &Receiver{
		handle: h,
		r:      bufio.NewReader(h.file),
	}
}

// Recv reads exactly one record. A short read or end of stream, including
// a clean shutdown of the peer, is reported as a closed channel.
func (r *Receiver) Recv() (event.Timestamp, error) {
	errFactory := errors.New()

	if r.broken != nil {
		return 0, errFactory.Wrap(errors.ErrChannelClosed, r.broken)
	}

	if _, err := r.handle.usable(); err != nil {
		return 0, err
	}

	if _, err := io.ReadFull(r.r, r.rec[:]); err != nil {
		r.broken = err
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = errFactory.Wrap(ErrShortRecord, err)
		}
		return 0, errFactory.Wrap(errors.ErrChannelClosed, err)
	}

	return event.Decode(r.rec), nil
}

// Handle exposes the OS handle for transfer to a child process.
func (r *Receiver) Handle() *Handle {
	return r.handle
}

// Close releases the reading end and wakes a pending Recv where the
// platform supports interrupting it.
func (r *Receiver) Close() error {
	return r.handle.Release()
}
