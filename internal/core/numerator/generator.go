package numerator

import (
	"context"
	"sync"
	"time"
)

// Generator generates sequential document numbers.
// Implementations live in the infrastructure layer; Memory serves
// tests and the in-memory store.
type Generator interface {
	// GetNextNumber generates the next document number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., SINV-2026-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber sets the current number value (for migration purposes).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}

// Memory is a process-local Generator. Numbers restart with the process.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemory creates an empty in-memory generator.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

// GetNextNumber implements Generator. Strategies make no difference in memory.
func (m *Memory) GetNextNumber(_ context.Context, cfg Config, _ *Options, period time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.Key(period)
	m.values[key]++
	return cfg.Format(period, m.values[key]), nil
}

// SetNextNumber implements Generator.
func (m *Memory) SetNextNumber(_ context.Context, cfg Config, period time.Time, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[cfg.Key(period)] = value
	return nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*Memory)(nil)
