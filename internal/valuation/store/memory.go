package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"pawnval/internal/valuation/models"
)

// DefaultMemoryCapacity bounds the in-process history when no capacity is set.
const DefaultMemoryCapacity = 10_000

// Memory keeps the most recent records in process. Once capacity is reached
// each new record overwrites the oldest one.
type Memory struct {
	mu       sync.RWMutex
	records  []Record
	next     int
	capacity int
	nextID   int64
}

// MemoryOption configures a Memory history.
type MemoryOption func(*Memory)

// WithCapacity caps the number of retained records. Non-positive values keep
// the default.
func WithCapacity(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.capacity = n
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{capacity: DefaultMemoryCapacity}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Record(_ context.Context, est *models.Estimate) error {
	if est == nil {
		return fmt.Errorf("estimate is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r := fromEstimate(est)
	r.ID = m.nextID
	if len(m.records) < m.capacity {
		m.records = append(m.records, r)
		return nil
	}
	m.records[m.next] = r
	m.next = (m.next + 1) % m.capacity
	return nil
}

// Len reports how many records are retained.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Recent returns up to limit records for q, newest first.
func (m *Memory) Recent(_ context.Context, q models.Query, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	n := len(m.records)
	// m.next is the oldest slot once the buffer has wrapped, and zero before.
	for i := 1; i <= n && len(out) < limit; i++ {
		r := m.records[(m.next-i+n)%n]
		if r.Query == q {
			r.Sources = slices.Clone(r.Sources)
			out = append(out, r)
		}
	}
	return out, nil
}
