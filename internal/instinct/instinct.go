// Package instinct generates low-latency, planner-independent micro-behavior:
// look jitter, hesitation, small steps. It keeps the avatar alive while the
// planner is slow, absent, or failing.
package instinct

import (
	"math/rand"
	"sync"

	"vrcagent/internal/action"
	"vrcagent/internal/config"
	"vrcagent/internal/intent"
	"vrcagent/internal/logging"
)

// degToDX converts a view angle to mouse-delta units for the current
// look mapping. Empirical.
func degToDX(deg float64) int {
	if deg < 0 {
		deg = -deg
	}
	v := int(deg*9 + 0.5)
	if v < 1 {
		v = 1
	}
	return v
}

// Generator produces the per-tick instinct actions. Safe for a single
// goroutine; the instinct loop owns it.
type Generator struct {
	mu  sync.Mutex
	cfg config.RuntimeConfig
	rng *rand.Rand

	lastSig string
	lastDX  int
}

// NewGenerator builds a generator with the given tunables and RNG seed.
// Tests pass a fixed seed; production passes time-based entropy.
func NewGenerator(cfg config.RuntimeConfig, seed int64) *Generator {
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// SetTunables swaps the runtime tunables (config reload).
func (g *Generator) SetTunables(cfg config.RuntimeConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// Tick produces the instinct actions for this tick. cur is the current
// intent (fresh or the default fallback), heard is latched heard text, and
// forceKeepalive suppresses hesitation when the avatar has been still too
// long. An empty slice is a valid no-op tick.
func (g *Generator) Tick(cur intent.Intent, heard string, forceKeepalive bool) []action.Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg := g.cfg

	// Human-like hesitation: sometimes "thinks" and does almost nothing.
	if !forceKeepalive && g.rng.Float64() < clamp01(cfg.HesitateIdleProb) {
		return nil
	}
	if !forceKeepalive && g.rng.Float64() < clamp01(cfg.HesitatePauseProb) {
		return []action.Action{{Kind: action.KindWait, Seconds: round2(g.randBetween(0.3, 0.8))}}
	}

	var actions []action.Action

	// Micro pause before any movement.
	if g.rng.Float64() < 0.25 {
		actions = append(actions, action.Action{Kind: action.KindWait, Seconds: round2(g.randBetween(0.08, 0.28))})
	}

	jitterMin := cfg.LookJitterMinDeg
	if jitterMin < 0.2 {
		jitterMin = 0.2
	}
	jitterMax := cfg.LookJitterMaxDeg
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}
	baseDeg := g.randBetween(jitterMin, jitterMax) * (0.8 + 0.4*cur.Curiosity)
	baseDX := degToDX(baseDeg)
	if g.rng.Intn(2) == 0 {
		baseDX = -baseDX
	}
	maxDX := degToDX(jitterMax * 1.35)

	baseDY := g.rng.Intn(9) - 4 // -4..4
	if cur.Goal == "observe" || cur.Goal == "listen" {
		baseDY = g.rng.Intn(12) - 5 // -5..6
	}

	// Fresh heard text biases toward orienting behavior.
	if heard != "" && g.rng.Float64() < 0.45 {
		dx := g.softCapDX(baseDX*3/2, maxDX)
		if g.rng.Float64() < clamp01(cfg.LookOvershootProb) {
			// Overshoot then pull back to mimic human correction.
			pullback := int(float64(-dx) * g.randBetween(0.28, 0.42))
			actions = append(actions,
				action.Action{Kind: action.KindLook, DX: dx},
				action.Action{Kind: action.KindWait, Seconds: 0.06},
				action.Action{Kind: action.KindLook, DX: pullback},
			)
		} else {
			actions = append(actions, action.Action{Kind: action.KindLook, DX: dx})
		}
	} else {
		actions = append(actions, action.Action{Kind: action.KindLook, DX: g.softCapDX(baseDX, maxDX), DY: baseDY})
	}

	// Not every thought produces movement.
	moveProb := clamp01(cfg.SmallStepMoveProb + cur.ActivityLevel*0.2)
	if cur.AllowMove && g.rng.Float64() < moveProb {
		if g.rng.Float64() < 0.28 {
			actions = append(actions, action.Action{Kind: action.KindWait, Seconds: round2(g.randBetween(0.25, 0.5))})
		} else {
			dirs := []string{"w", "a", "s", "d"}
			actions = append(actions, action.Action{
				Kind:      action.KindMove,
				Direction: dirs[g.rng.Intn(len(dirs))],
				Seconds:   round2(g.randBetween(0.12, 0.25)),
			})
		}
	}

	// Keep the payload tiny and avoid exact repetition.
	if len(actions) > 3 {
		actions = actions[:3]
	}
	sig := action.Signature(actions)
	if sig != "" && sig == g.lastSig {
		actions = g.mutate(actions, maxDX)
		sig = action.Signature(actions)
		logging.InstinctDebug("mutated repeated instinct script")
	}
	g.lastSig = sig
	return actions
}

// softCapDX prevents abrupt turn spikes and identical alternating jitter.
func (g *Generator) softCapDX(dx, maxDX int) int {
	capped := dx
	if capped > maxDX {
		capped = maxDX
	} else if capped < -maxDX {
		capped = -maxDX
	}
	deltaCap := maxDX / 2
	if deltaCap < 4 {
		deltaCap = 4
	}
	delta := capped - g.lastDX
	if delta > deltaCap {
		capped = g.lastDX + deltaCap
	} else if delta < -deltaCap {
		capped = g.lastDX - deltaCap
	}
	g.lastDX = capped
	return capped
}

func (g *Generator) mutate(actions []action.Action, maxDX int) []action.Action {
	mutated := make([]action.Action, len(actions))
	copy(mutated, actions)
	for i, a := range mutated {
		if a.Kind == action.KindLook {
			jitters := []int{-3, -2, 2, 3}
			a.DX = g.softCapDX(a.DX+jitters[g.rng.Intn(len(jitters))], maxDX)
			a.DY += g.rng.Intn(3) - 1
			mutated[i] = a
			return mutated
		}
	}
	// No look action present: inject a tiny one instead of repeating.
	dx := 6
	if g.rng.Intn(2) == 0 {
		dx = -6
	}
	mutated = append(mutated, action.Action{Kind: action.KindLook, DX: g.softCapDX(dx, maxDX)})
	if len(mutated) > 3 {
		mutated = mutated[:3]
	}
	return mutated
}

func (g *Generator) randBetween(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
