package rate

import (
	"sync"
	"time"

	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/history"
	"codeberg.org/mutker/inputrate/internal/logger"
)

// Poller hands over everything received so far without blocking.
type Poller interface {
	Drain(dst []event.Timestamp) []event.Timestamp
}

// Snapshot is the state after one tick.
type Snapshot struct {
	Time       event.Timestamp
	Rate       int
	Average    float64
	Drained    int
	HistoryLen int
}

// Options configures an Aggregator.
type Options struct {
	Span        time.Duration
	History     history.Log
	HistoryMode history.Mode
	Logger      logger.Logger
}

// Aggregator owns the window, the trailing average and the history. Tick
// is called from the consumer loop; the accessors are safe from any
// goroutine.
type Aggregator struct {
	poller  Poller
	window  *Window
	hist    history.Log
	mode    history.Mode
	log     logger.Logger
	scratch []event.Timestamp

	// Arrival of the newest event seen, for interval samples.
	last    event.Timestamp
	hasLast bool

	mu       sync.RWMutex
	avg      Average
	snapshot Snapshot
	histErr  error
}

func NewAggregator(poller Poller, opts Options) *Aggregator {
	a := &Aggregator{
		poller: poller,
		window: NewWindow(opts.Span),
		hist:   opts.History,
		mode:   opts.HistoryMode,
		log:    opts.Logger,
	}

	if a.log == nil {
		a.log = logger.Nop()
	}
	if a.hist == nil || a.mode == "" {
		a.mode = history.ModeOff
	}

	return a
}

// Tick drains the poller, slides the window to now and records a sample.
// History is appended only while engaged.
func (a *Aggregator) Tick(now event.Timestamp, engaged bool) Snapshot {
	a.scratch = a.poller.Drain(a.scratch[:0])
	drained := a.scratch

	a.window.Push(drained...)
	a.window.Evict(now)
	rate := a.window.Len()

	if engaged {
		a.record(now, rate, drained)
	}
	if n := len(drained); n > 0 {
		a.last = drained[n-1]
		a.hasLast = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.avg.Push(rate)
	a.snapshot = Snapshot{
		Time:       now,
		Rate:       rate,
		Average:    a.avg.Value(),
		Drained:    len(drained),
		HistoryLen: a.historyLen(),
	}

	return a.snapshot
}

func (a *Aggregator) record(now event.Timestamp, rate int, drained []event.Timestamp) {
	switch a.mode {
	case history.ModeRate:
		a.append(history.Sample{Time: now, Value: float64(rate)})
	case history.ModeInterval:
		prev, ok := a.last, a.hasLast
		for _, ts := range drained {
			if ok {
				a.append(intervalSample(ts, ts.Sub(prev)))
			}
			prev, ok = ts, true
		}
	}
}

func intervalSample(ts event.Timestamp, d time.Duration) history.Sample {
	if d >= history.Saturation {
		return history.Sample{Time: ts, Value: float64(history.Saturation.Milliseconds()), Saturated: true}
	}

	return history.Sample{Time: ts, Value: float64(d) / float64(time.Millisecond)}
}

func (a *Aggregator) append(s history.Sample) {
	if err := a.hist.Append(s); err != nil {
		a.mu.Lock()
		first := a.histErr == nil
		a.histErr = err
		a.mu.Unlock()

		if first {
			a.log.Error().Err(err).Msg("Failed to append history sample")
		}
	}
}

func (a *Aggregator) historyLen() int {
	if a.mode == history.ModeOff {
		return 0
	}

	return a.hist.Len()
}

// Rate is the number of events inside the window at the last tick.
func (a *Aggregator) Rate() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.Rate
}

// Average is the trailing average of the last AverageSlots rate samples.
func (a *Aggregator) Average() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.Average
}

// Snapshot returns the state after the last tick.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// History returns a copy of the historical log.
func (a *Aggregator) History() ([]history.Sample, error) {
	if a.mode == history.ModeOff {
		return nil, nil
	}

	return a.hist.Samples()
}

// HistoryErr returns the last error from appending to the history.
func (a *Aggregator) HistoryErr() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.histErr
}
