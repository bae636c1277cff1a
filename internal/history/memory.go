package history

import "sync"

type memoryLog struct {
	mu      sync.RWMutex
	samples []Sample
}

// NewMemory returns a Log backed by a slice with capacity reserved up
// front.
func NewMemory(capacity int) Log {
	return &memoryLog{samples: make([]Sample, 0, capacity)}
}

func (m *memoryLog) Append(s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *memoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

func (m *memoryLog) Samples() ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sample(nil), m.samples...), nil
}

func (*memoryLog) Close() error {
	return nil
}

type noopLog struct{}

func (noopLog) Append(Sample) error        { return nil }
func (noopLog) Len() int                   { return 0 }
func (noopLog) Samples() ([]Sample, error) { return nil, nil }
func (noopLog) Close() error               { return nil }
