// Package history keeps the append-only log of rate samples taken while
// the consumer is engaged. Entries live only as long as the process.
package history

import (
	"fmt"
	"time"

	"codeberg.org/mutker/inputrate/internal/event"
)

// Saturation is the inter-arrival delta at and above which interval
// samples are reported as saturated.
const Saturation = time.Second

// Sample is one history entry.
type Sample struct {
	Time event.Timestamp
	// Value is events per window in rate mode and milliseconds in
	// interval mode.
	Value     float64
	Saturated bool
}

func (s Sample) String() string {
	if s.Saturated {
		return ">= " + Saturation.String()
	}

	return fmt.Sprintf("%g", s.Value)
}

// Log is an append-only history.
type Log interface {
	Append(s Sample) error
	Len() int
	// Samples returns a copy of every entry in append order.
	Samples() ([]Sample, error)
	Close() error
}
