package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"pawnval/internal/valuation/metrics"
	"pawnval/internal/valuation/models"
)

// DefaultCapacity bounds the in-process cache.
const DefaultCapacity = 10_000

type entry struct {
	est      *models.Estimate
	storedAt time.Time
}

// Memory is an in-process cache with a fixed TTL and least-recently-used
// eviction once capacity is reached.
type Memory struct {
	entries *lru.Cache[models.Query, entry]
	ttl     time.Duration
	clock   func() time.Time
	metrics *metrics.Metrics
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock injects the time source used for expiry.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithMetrics records hits and misses under the "memory" tier.
func WithMetrics(mt *metrics.Metrics) MemoryOption {
	return func(m *Memory) {
		m.metrics = mt
	}
}

// NewMemory creates a Memory cache. Non-positive ttl or capacity fall back to
// the defaults.
func NewMemory(ttl time.Duration, capacity int, opts ...MemoryOption) (*Memory, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[models.Query, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	m := &Memory{
		entries: entries,
		ttl:     ttl,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the unexpired estimate for q or ErrNotFound. A hit refreshes the
// entry's recency, not its expiry.
func (m *Memory) Get(_ context.Context, q models.Query) (*models.Estimate, error) {
	e, ok := m.entries.Get(q)
	if !ok {
		m.metrics.RecordCacheLookup("memory", "miss")
		return nil, ErrNotFound
	}
	if m.clock().Sub(e.storedAt) >= m.ttl {
		m.entries.Remove(q)
		m.metrics.RecordCacheLookup("memory", "miss")
		return nil, ErrNotFound
	}
	m.metrics.RecordCacheLookup("memory", "hit")
	return e.est, nil
}

// Set stores est as of now.
func (m *Memory) Set(ctx context.Context, q models.Query, est *models.Estimate) error {
	return m.SetAt(ctx, q, est, m.clock())
}

// SetAt stores est as if it had been inserted at storedAt, so entries copied
// from a slower tier keep their original expiry.
func (m *Memory) SetAt(_ context.Context, q models.Query, est *models.Estimate, storedAt time.Time) error {
	if est == nil {
		return fmt.Errorf("estimate is required")
	}
	m.entries.Add(q, entry{est: est, storedAt: storedAt})
	return nil
}

// Len reports the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	return m.entries.Len()
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.entries.Purge()
}
