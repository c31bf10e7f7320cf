package billing

import "sync"

// ConsumedSet tracks payment transactions that have already funded an
// action. Entries are never removed: once a hash funds a dispatch it stays
// burned even if the dispatched contract call later fails.
type ConsumedSet struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

// NewConsumedSet creates an empty set.
func NewConsumedSet() *ConsumedSet {
	return &ConsumedSet{hashes: make(map[string]struct{})}
}

// Contains reports whether txHash has been consumed.
func (c *ConsumedSet) Contains(txHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.hashes[txHash]
	return ok
}

// Add inserts txHash if absent. Returns false if it was already present,
// in which case the caller lost the race and must not dispatch.
func (c *ConsumedSet) Add(txHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hashes[txHash]; ok {
		return false
	}
	c.hashes[txHash] = struct{}{}
	return true
}

// Len reports the number of consumed hashes.
func (c *ConsumedSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hashes)
}
