// Package dispatch merges the instinct and intent action streams, applies
// operator overrides, and feeds the result to an output sink one action at
// a time.
package dispatch

import (
	"context"
	"sync"

	"vrcagent/internal/action"
	"vrcagent/internal/logging"

	"github.com/google/uuid"
)

// Input carries one tick's worth of candidate actions, grouped by source.
type Input struct {
	Instinct []action.Action
	Intent   []action.Action
	Override []action.Action

	// AllowMove gates locomotion. When false, move actions from instinct
	// and intent are dropped; overrides still pass.
	AllowMove bool
}

// Merge resolves conflicts per actuator: override beats intent beats
// instinct. Sources never interleave on the same actuator, so an intent
// that wants to walk silences instinct's hesitation steps but leaves its
// look jitter alone.
func Merge(in Input) []action.Dispatched {
	occupied := make(map[action.Actuator]action.Source)
	claim := func(src action.Source, actions []action.Action) {
		for _, a := range actions {
			act := a.Actuator()
			if act == action.ActuatorWait {
				continue // waits pace a script, they occupy nothing
			}
			if _, taken := occupied[act]; !taken {
				occupied[act] = src
			}
		}
	}
	claim(action.SourceOverride, in.Override)
	claim(action.SourceIntent, in.Intent)
	claim(action.SourceInstinct, in.Instinct)

	var out []action.Dispatched
	appendFrom := func(src action.Source, actions []action.Action) {
		for _, a := range actions {
			act := a.Actuator()
			if act != action.ActuatorWait && occupied[act] != src {
				continue
			}
			if a.Kind == action.KindMove && !in.AllowMove && src != action.SourceOverride {
				logging.DispatchWarn("move suppressed, allow_move=false")
				continue
			}
			out = append(out, action.Dispatched{Action: a, Source: src})
		}
	}
	// Overrides run first, then the plan, then whatever instinct still owns.
	appendFrom(action.SourceOverride, in.Override)
	appendFrom(action.SourceIntent, in.Intent)
	appendFrom(action.SourceInstinct, in.Instinct)
	return out
}

// Dispatcher executes merged actions against a sink. There is one actuator
// set, so execution is serialized: a script from one loop runs as a
// contiguous block and a concurrent caller waits its turn instead of
// interleaving actions mid-script.
type Dispatcher struct {
	sink Sink

	mu sync.Mutex // one script at a time on the actuators
}

// New builds a dispatcher over the given sink.
func New(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Dispatch merges and executes one call's actions sequentially. Sink errors
// are logged and the action dropped; a broken output never stalls the loop.
// The returned list is what actually executed, for the memory summary.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) []action.Dispatched {
	merged := Merge(in)
	if len(merged) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	executed := make([]action.Dispatched, 0, len(merged))
	for _, m := range merged {
		if ctx.Err() != nil {
			return executed
		}
		m.ID = uuid.New().String()
		if err := d.sink.Execute(m.Action); err != nil {
			logging.DispatchWarn("drop %s from %s: %v", m.Action.Kind, m.Source, err)
			continue
		}
		logging.DispatchDebug("%s %s id=%s", m.Source, m.Action.Kind, m.ID)
		executed = append(executed, m)
	}
	return executed
}
