package intent

import (
	"time"

	"vrcagent/internal/logging"
	"vrcagent/internal/perception"
)

// Reason says why the gate asked for a replan.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonSceneChange Reason = "scene_change"
	ReasonHeard       Reason = "heard"
	ReasonTTLExpired  Reason = "ttl_expired"
)

// Gate decides, per tick, whether the planner should run. It is not
// goroutine-safe; only the tick loop calls it.
type Gate struct {
	cell *Cell

	// similarity below this threshold counts as a scene change
	sceneThreshold float64

	lastScene string // scene of the last accepted (planned-against) observation
	lastHeard string
}

// NewGate builds a gate over the shared intent cell.
func NewGate(cell *Cell, sceneThreshold float64) *Gate {
	return &Gate{cell: cell, sceneThreshold: sceneThreshold}
}

// SetSceneThreshold updates the scene-change sensitivity (config reload).
func (g *Gate) SetSceneThreshold(v float64) {
	if v >= 0 && v <= 1 {
		g.sceneThreshold = v
	}
}

// ShouldReplan evaluates the trigger conditions against the latest
// observation. An absent intent alone never triggers: the gate wants a
// qualifying event (scene change, fresh heard text) or the expiry of an
// intent that actually existed.
func (g *Gate) ShouldReplan(obs perception.Observation, now time.Time) Reason {
	if obs.Heard != "" && obs.Heard != g.lastHeard {
		return ReasonHeard
	}

	if g.lastScene != "" && obs.Scene != "" {
		if sim := SceneSimilarity(g.lastScene, obs.Scene); sim < g.sceneThreshold {
			logging.GateDebug("scene similarity %.2f below %.2f", sim, g.sceneThreshold)
			return ReasonSceneChange
		}
	}

	if cur, present := g.cell.Snapshot(); present && cur.Stale(now) {
		return ReasonTTLExpired
	}

	return ReasonNone
}

// Accept records the observation a planner call was issued for, so the next
// tick compares against what the planner actually saw.
func (g *Gate) Accept(obs perception.Observation) {
	g.lastScene = obs.Scene
	g.lastHeard = obs.Heard
}
