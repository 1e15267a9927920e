package intent

import (
	"sync"
	"time"
)

// Cell is the single-slot owner of the current Intent. All reads return a
// copy taken under the lock, so a concurrent Replace can never produce a
// torn value. There is exactly one Cell per agent.
type Cell struct {
	mu      sync.RWMutex
	current Intent
	present bool
}

// NewCell returns an empty cell.
func NewCell() *Cell {
	return &Cell{}
}

// Replace installs a new current intent atomically.
func (c *Cell) Replace(in Intent) {
	c.mu.Lock()
	c.current = in
	c.present = true
	c.mu.Unlock()
}

// Clear drops the current intent.
func (c *Cell) Clear() {
	c.mu.Lock()
	c.present = false
	c.current = Intent{}
	c.mu.Unlock()
}

// Snapshot returns the stored intent regardless of staleness.
// ok is false when no intent has ever been installed (or it was cleared).
func (c *Cell) Snapshot() (Intent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.present
}

// Current returns the intent only while it is fresh. A stale intent is
// treated as absent, which makes the agent fall back to instinct alone.
func (c *Cell) Current(now time.Time) (Intent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.present || c.current.Stale(now) {
		return Intent{}, false
	}
	return c.current, true
}
