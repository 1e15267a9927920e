package instinct

import (
	"testing"

	"vrcagent/internal/action"
	"vrcagent/internal/config"
	"vrcagent/internal/intent"

	"github.com/stretchr/testify/assert"
)

func testCfg() config.RuntimeConfig {
	return config.RuntimeConfig{
		HesitateIdleProb:  0.16,
		HesitatePauseProb: 0.24,
		LookJitterMinDeg:  1.0,
		LookJitterMaxDeg:  3.0,
		LookOvershootProb: 0.20,
		SmallStepMoveProb: 0.26,
	}
}

func TestTickDeterministicWithSeed(t *testing.T) {
	cur := intent.Default()
	a := NewGenerator(testCfg(), 42)
	b := NewGenerator(testCfg(), 42)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Tick(cur, "", false), b.Tick(cur, "", false))
	}
}

func TestTickActionBudget(t *testing.T) {
	g := NewGenerator(testCfg(), 7)
	cur := intent.Default()
	for i := 0; i < 500; i++ {
		acts := g.Tick(cur, "someone talking", false)
		assert.LessOrEqual(t, len(acts), 3)
	}
}

func TestTickRespectsAllowMove(t *testing.T) {
	g := NewGenerator(testCfg(), 7)
	cur := intent.Default()
	cur.AllowMove = false
	for i := 0; i < 500; i++ {
		for _, a := range g.Tick(cur, "", false) {
			assert.NotEqual(t, action.KindMove, a.Kind)
		}
	}
}

func TestTickForceKeepaliveNeverHesitates(t *testing.T) {
	cfg := testCfg()
	cfg.HesitateIdleProb = 1.0
	g := NewGenerator(cfg, 7)
	cur := intent.Default()

	// Full hesitation yields nothing on normal ticks.
	assert.Empty(t, g.Tick(cur, "", false))
	// Keepalive pushes through anyway.
	assert.NotEmpty(t, g.Tick(cur, "", true))
}

func TestTickLookDeltaBounded(t *testing.T) {
	g := NewGenerator(testCfg(), 11)
	cur := intent.Default()
	maxDX := degToDX(3.0 * 1.35)
	for i := 0; i < 500; i++ {
		for _, a := range g.Tick(cur, "hey", false) {
			if a.Kind == action.KindLook {
				assert.LessOrEqual(t, a.DX, maxDX)
				assert.GreaterOrEqual(t, a.DX, -maxDX)
			}
		}
	}
}

func TestTickAvoidsExactRepetition(t *testing.T) {
	cfg := testCfg()
	// Remove randomness sources that already break repetition.
	cfg.HesitateIdleProb = 0
	cfg.HesitatePauseProb = 0
	cfg.SmallStepMoveProb = 0
	g := NewGenerator(cfg, 3)
	cur := intent.Default()

	prev := ""
	repeats := 0
	for i := 0; i < 200; i++ {
		sig := action.Signature(g.Tick(cur, "", true))
		if prev != "" && sig == prev {
			repeats++
		}
		prev = sig
	}
	// Mutation works on raw deltas while signatures bucket them, so the odd
	// repeat slips through. A run of them means mutation is broken.
	assert.Less(t, repeats, 20)
}

func TestDegToDX(t *testing.T) {
	assert.Equal(t, 9, degToDX(1.0))
	assert.Equal(t, 27, degToDX(3.0))
	assert.Equal(t, 9, degToDX(-1.0))
	assert.Equal(t, 1, degToDX(0.01), "tiny angles still move")
}

func TestSoftCapDX(t *testing.T) {
	g := NewGenerator(testCfg(), 1)

	// From rest, a spike is held to the delta cap of maxDX/2 = 10.
	assert.Equal(t, 10, g.softCapDX(100, 20))
	// Reversal from 10 steps down by at most 10.
	assert.Equal(t, 0, g.softCapDX(-100, 20))
	// Small deltas pass through.
	assert.Equal(t, 6, g.softCapDX(6, 20))
	// Ramping up from 6 reaches the hard cap.
	assert.Equal(t, 16, g.softCapDX(100, 20))
	assert.Equal(t, 20, g.softCapDX(100, 20))
}
