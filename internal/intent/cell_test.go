package intent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellEmpty(t *testing.T) {
	c := NewCell()
	_, ok := c.Snapshot()
	assert.False(t, ok)
	_, ok = c.Current(time.Now())
	assert.False(t, ok)
}

func TestCellReplaceAndClear(t *testing.T) {
	c := NewCell()
	now := time.Now()
	c.Replace(Intent{ID: "a", Goal: "explore", CreatedAt: now, TTL: time.Minute})

	got, ok := c.Current(now)
	require.True(t, ok)
	assert.Equal(t, "explore", got.Goal)

	c.Replace(Intent{ID: "b", Goal: "greet", CreatedAt: now, TTL: time.Minute})
	got, ok = c.Current(now)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID, "replace is wholesale")

	c.Clear()
	_, ok = c.Snapshot()
	assert.False(t, ok)
}

func TestCellStaleTreatedAsAbsent(t *testing.T) {
	c := NewCell()
	created := time.Now()
	c.Replace(Intent{ID: "a", CreatedAt: created, TTL: time.Second})

	_, ok := c.Current(created.Add(2 * time.Second))
	assert.False(t, ok, "stale intent must read as absent")

	// Snapshot still sees it, so the gate can detect expiry.
	_, ok = c.Snapshot()
	assert.True(t, ok)
}

func TestCellConcurrentReplaceAndRead(t *testing.T) {
	c := NewCell()
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Replace(Intent{
					ID:        fmt.Sprintf("w%d-%d", n, j),
					Goal:      "observe",
					CreatedAt: now,
					TTL:       time.Minute,
				})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if in, ok := c.Current(now); ok {
					// A read must never see a half-written intent.
					assert.NotEmpty(t, in.ID)
					assert.Equal(t, "observe", in.Goal)
				}
			}
		}()
	}
	wg.Wait()
}
