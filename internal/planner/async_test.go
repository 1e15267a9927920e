package planner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// blockingPlanner blocks each call until released and records the states it
// was asked to plan against.
type blockingPlanner struct {
	mu      sync.Mutex
	states  []State
	release chan struct{}
	calls   atomic.Int32
	fail    bool
}

func newBlockingPlanner() *blockingPlanner {
	return &blockingPlanner{release: make(chan struct{})}
}

func (p *blockingPlanner) PlanIntent(ctx context.Context, state State) (Plan, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.states = append(p.states, state)
	p.mu.Unlock()
	select {
	case <-p.release:
	case <-ctx.Done():
		return Plan{}, ctx.Err()
	}
	if p.fail {
		return Plan{}, fmt.Errorf("backend down")
	}
	return Plan{Goal: "planned:" + state.Scene, AllowMove: true}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestAsyncSingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newBlockingPlanner()
	var results []Plan
	var mu sync.Mutex
	a := NewAsync(context.Background(), p, func(plan Plan) {
		mu.Lock()
		results = append(results, plan)
		mu.Unlock()
	})
	defer a.Close()

	assert.True(t, a.Request(State{Scene: "s1"}))
	waitFor(t, func() bool { return p.calls.Load() == 1 })
	assert.True(t, a.Busy())

	// A burst of triggers while the call is outstanding coalesces into at
	// most one follow-up, planned against the newest state.
	for i := 2; i <= 6; i++ {
		assert.False(t, a.Request(State{Scene: fmt.Sprintf("s%d", i)}))
	}

	close(p.release)
	waitFor(t, func() bool { return !a.Busy() })

	require.Equal(t, int32(2), p.calls.Load(), "five triggers, one follow-up call")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	assert.Equal(t, "planned:s1", results[0].Goal)
	assert.Equal(t, "planned:s6", results[1].Goal)
}

func TestAsyncFailureSkipsResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newBlockingPlanner()
	p.fail = true
	var called atomic.Int32
	a := NewAsync(context.Background(), p, func(Plan) { called.Add(1) })
	defer a.Close()

	assert.True(t, a.Request(State{Scene: "s1"}))
	close(p.release)
	waitFor(t, func() bool { return !a.Busy() })

	assert.Equal(t, int32(0), called.Load(), "failed plans never reach the cell")
}

func TestAsyncCloseDiscardsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newBlockingPlanner()
	var called atomic.Int32
	a := NewAsync(context.Background(), p, func(Plan) { called.Add(1) })

	assert.True(t, a.Request(State{Scene: "s1"}))
	waitFor(t, func() bool { return p.calls.Load() == 1 })
	a.Close()

	assert.Equal(t, int32(0), called.Load())
}

func TestAsyncSequentialRequests(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newBlockingPlanner()
	close(p.release) // never block
	var called atomic.Int32
	a := NewAsync(context.Background(), p, func(Plan) { called.Add(1) })
	defer a.Close()

	a.Request(State{Scene: "s1"})
	waitFor(t, func() bool { return !a.Busy() })
	a.Request(State{Scene: "s2"})
	waitFor(t, func() bool { return !a.Busy() })

	assert.Equal(t, int32(2), called.Load())
}
