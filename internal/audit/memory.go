package audit

import (
	"context"
	"sync"
)

// MemoryRecorder keeps the most recent records in a fixed-size ring.
// Suited to development and the status endpoint; records do not survive a
// restart.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

var _ Recorder = (*MemoryRecorder)(nil)

// DefaultMemorySize is the ring capacity when none is configured.
const DefaultMemorySize = 256

// NewMemory creates a ring holding up to size records.
func NewMemory(size int) *MemoryRecorder {
	if size < 1 {
		size = DefaultMemorySize
	}
	return &MemoryRecorder{records: make([]Record, size)}
}

// Record stores rec, overwriting the oldest entry once the ring is full.
func (m *MemoryRecorder) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[m.next] = rec
	m.next++
	if m.next == len(m.records) {
		m.next = 0
		m.full = true
	}
	return nil
}

// Tail returns up to n records, newest first.
func (m *MemoryRecorder) Tail(_ context.Context, n int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.next
	if m.full {
		stored = len(m.records)
	}
	if n > stored {
		n = stored
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Record, 0, n)
	idx := m.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(m.records) - 1
		}
		out = append(out, m.records[idx])
	}
	return out, nil
}

// Close is a no-op for the in-memory ring.
func (m *MemoryRecorder) Close() error {
	return nil
}
