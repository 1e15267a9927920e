package planner

import (
	"context"
	"sync"

	"vrcagent/internal/logging"
)

// Async runs planner calls in the background with at-most-one in flight.
// A request made while a call is outstanding replaces the pending slot
// instead of queueing, so N triggers during one call collapse into at most
// one follow-up call carrying the newest state.
type Async struct {
	planner Planner

	// onResult receives every successful plan. Failures are logged and
	// swallowed: the agent degrades to instinct-only operation.
	onResult func(Plan)

	mu       sync.Mutex
	inFlight bool
	pending  *State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAsync wraps planner. onResult is called from the background goroutine;
// it must be safe to call concurrently with the tick loop (the intent cell
// already is).
func NewAsync(ctx context.Context, planner Planner, onResult func(Plan)) *Async {
	ctx, cancel := context.WithCancel(ctx)
	return &Async{
		planner:  planner,
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Request asks for a plan against the given state. Returns true when a call
// was started, false when it was coalesced into the pending slot.
func (a *Async) Request(state State) bool {
	a.mu.Lock()
	if a.inFlight {
		// Coalesce: keep only the newest state for the follow-up call.
		a.pending = &state
		a.mu.Unlock()
		logging.GateDebug("planner busy, request coalesced")
		return false
	}
	a.inFlight = true
	a.mu.Unlock()

	a.launch(state)
	return true
}

// Busy reports whether a call is currently outstanding.
func (a *Async) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

func (a *Async) launch(state State) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		plan, err := a.planner.PlanIntent(a.ctx, state)
		if a.ctx.Err() != nil {
			// Shutdown: discard whatever came back.
			a.finish()
			return
		}
		if err != nil {
			logging.PlannerError("plan failed, continuing on instinct: %v", err)
		} else {
			a.onResult(plan)
		}
		a.finish()
	}()
}

// finish clears the in-flight flag and fires the single pending request,
// if any.
func (a *Async) finish() {
	a.mu.Lock()
	next := a.pending
	a.pending = nil
	if next == nil || a.ctx.Err() != nil {
		a.inFlight = false
		a.mu.Unlock()
		return
	}
	// Stay in-flight across the handoff so a racing Request still coalesces.
	a.mu.Unlock()
	a.launch(*next)
}

// Close cancels any outstanding call and waits for the goroutine to exit.
func (a *Async) Close() {
	a.cancel()
	a.wg.Wait()
}
