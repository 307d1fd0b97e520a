package compute

import (
	"sync"

	"github.com/san-kum/dynsph/internal/dynamo"
)

// Memory accounts the bytes reserved on one side (host or device).
// A zero limit means unbounded.
type Memory struct {
	side  string
	limit int64

	mu   sync.Mutex
	used int64
	peak int64
}

func NewMemory(side string, limit int64) *Memory {
	return &Memory{side: side, limit: limit}
}

func (m *Memory) Side() string { return m.side }
func (m *Memory) Limit() int64 { return m.limit }

func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func (m *Memory) Peak() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reserve accounts bytes or fails with *dynamo.AllocError without side effects.
func (m *Memory) Reserve(bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 && m.used+bytes > m.limit {
		return &dynamo.AllocError{Side: m.side, Requested: bytes, Used: m.used, Limit: m.limit}
	}
	m.used += bytes
	if m.used > m.peak {
		m.peak = m.used
	}
	return nil
}

func (m *Memory) Release(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= bytes
	if m.used < 0 {
		m.used = 0
	}
}
