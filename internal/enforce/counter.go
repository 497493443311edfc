package enforce

import (
	"maps"
	"sync"
)

// ResourceUsageCounter holds the running totals for one session. Totals only
// grow; they reset by discarding the counter when the session ends.
type ResourceUsageCounter struct {
	mu     sync.Mutex
	totals map[string]int64
}

func NewResourceUsageCounter() *ResourceUsageCounter {
	return &ResourceUsageCounter{totals: make(map[string]int64)}
}

// Increment adds one to a resource total and returns the new value.
func (c *ResourceUsageCounter) Increment(resource string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[resource]++
	return c.totals[resource]
}

// Total returns the current value for a resource.
func (c *ResourceUsageCounter) Total(resource string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[resource]
}

// Snapshot copies all totals, for logging and event payloads.
func (c *ResourceUsageCounter) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.totals)
}
