package perception

import (
	"context"
	"sync"
	"time"

	"vrcagent/internal/logging"
)

// Source produces Observation snapshots. Implementations wrap the external
// capture pipeline (screenshot + vision model, microphone + ASR).
type Source interface {
	Observe(ctx context.Context) (Observation, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Observation, error)

// Observe implements Source.
func (f SourceFunc) Observe(ctx context.Context) (Observation, error) {
	return f(ctx)
}

// CachedObserver keeps exactly one capture running in the background and
// serves the most recent snapshot without blocking. The tick loop must never
// wait on a vision or ASR round trip.
type CachedObserver struct {
	source     Source
	heardLatch time.Duration

	mu         sync.Mutex
	last       Observation
	hasLast    bool
	latchText  string
	latchUntil time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCachedObserver wraps source with snapshot caching and a heard-text
// latch of the given duration.
func NewCachedObserver(source Source, heardLatch time.Duration) *CachedObserver {
	return &CachedObserver{source: source, heardLatch: heardLatch}
}

// Start launches the background capture goroutine.
func (c *CachedObserver) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if ctx.Err() != nil {
				return
			}
			obs, err := c.source.Observe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Capture failure is non-fatal: the loop keeps using the cache.
				logging.PerceptionWarn("observe failed, keeping cached snapshot: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(250 * time.Millisecond):
				}
				continue
			}
			c.accept(obs)
		}
	}()
}

func (c *CachedObserver) accept(obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obs.Heard != "" {
		c.latchText = obs.Heard
		c.latchUntil = obs.CapturedAt.Add(c.heardLatch)
	}
	c.last = obs
	c.hasLast = true
}

// Latest returns the most recent observation without blocking.
// Heard text observed within the latch window is merged back in so a replan
// triggered slightly later still sees it. ok is false until the first
// capture completes.
func (c *CachedObserver) Latest(now time.Time) (Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasLast {
		return Observation{}, false
	}
	obs := c.last
	if obs.Heard == "" && c.latchText != "" && now.Before(c.latchUntil) {
		obs.Heard = c.latchText
	}
	return obs, true
}

// WaitFirst blocks until the first observation is available or ctx expires.
// Used once at startup so the gate has something to compare against.
func (c *CachedObserver) WaitFirst(ctx context.Context) (Observation, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if obs, ok := c.Latest(time.Now()); ok {
			return obs, nil
		}
		select {
		case <-ctx.Done():
			return Observation{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the background capture and waits for it to finish.
func (c *CachedObserver) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
