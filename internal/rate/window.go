// Package rate turns a stream of event timestamps into a per-window event
// count, a short trailing average of that count and an optional history.
package rate

import (
	"time"

	"codeberg.org/mutker/inputrate/internal/event"
)

// DefaultSpan is the length of the sliding window.
const DefaultSpan = time.Second

// Window holds timestamps in arrival order and forgets those older than
// its span.
type Window struct {
	span time.Duration
	buf  []event.Timestamp
	head int
}

func NewWindow(span time.Duration) *Window {
	if span <= 0 {
		span = DefaultSpan
	}

	return &Window{span: span}
}

// Push appends timestamps at the tail.
func (w *Window) Push(ts ...event.Timestamp) {
	w.buf = append(w.buf, ts...)
}

// Evict removes head entries strictly older than now minus the span and
// returns how many were removed. An entry exactly at the boundary stays.
func (w *Window) Evict(now event.Timestamp) int {
	cutoff := now.Add(-w.span)

	start := w.head
	for w.head < len(w.buf) && w.buf[w.head].Before(cutoff) {
		w.head++
	}
	removed := w.head - start

	// Reclaim the consumed prefix once it dominates the buffer.
	if w.head > 0 && w.head >= len(w.buf)/2 {
		n := copy(w.buf, w.buf[w.head:])
		w.buf = w.buf[:n]
		w.head = 0
	}

	return removed
}

// Len is the number of timestamps inside the window.
func (w *Window) Len() int {
	return len(w.buf) - w.head
}

// Values returns a copy of the timestamps inside the window.
func (w *Window) Values() []event.Timestamp {
	return append([]event.Timestamp(nil), w.buf[w.head:]...)
}

func (w *Window) Span() time.Duration {
	return w.span
}
