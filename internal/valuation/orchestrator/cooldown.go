package orchestrator

import (
	"sync"
	"time"
)

// cooldowns tracks sources that asked us to back off. A source is skipped by
// every query until its cooldown elapses.
type cooldowns struct {
	mu    sync.RWMutex
	until map[string]time.Time
	clock func() time.Time
}

func newCooldowns(clock func() time.Time) *cooldowns {
	return &cooldowns{
		until: make(map[string]time.Time),
		clock: clock,
	}
}

// arm starts (or extends) a cooldown for source. A shorter cooldown never
// cuts an existing one short.
func (c *cooldowns) arm(source string, d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := c.clock().Add(d)
	if cur, ok := c.until[source]; ok && cur.After(until) {
		return cur
	}
	c.until[source] = until
	return until
}

// remaining reports how long source still has to wait, or zero.
func (c *cooldowns) remaining(source string) time.Duration {
	c.mu.RLock()
	until, ok := c.until[source]
	c.mu.RUnlock()
	if !ok {
		return 0
	}

	left := until.Sub(c.clock())
	if left > 0 {
		return left
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock
	if until, ok := c.until[source]; ok && !until.After(c.clock()) {
		delete(c.until, source)
	}
	return 0
}
