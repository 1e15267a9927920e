package intent

import (
	"testing"
	"time"

	"vrcagent/internal/perception"

	"github.com/stretchr/testify/assert"
)

func obsAt(scene, heard string) perception.Observation {
	return perception.Observation{Scene: scene, Heard: heard, CapturedAt: time.Now()}
}

func freshIntent(created time.Time, ttl time.Duration) Intent {
	return Intent{ID: "i1", Goal: "observe", CreatedAt: created, TTL: ttl}
}

func TestGateHeardTriggers(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("plaza", ""))

	reason := g.ShouldReplan(obsAt("plaza", "hello there"), time.Now())
	assert.Equal(t, ReasonHeard, reason)
}

func TestGateSameHeardDoesNotRetrigger(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("plaza", "hello there"))

	reason := g.ShouldReplan(obsAt("plaza", "hello there"), time.Now())
	assert.Equal(t, ReasonNone, reason)
}

func TestGateSceneChangeTriggers(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("a sunny plaza full of dancing avatars", ""))

	reason := g.ShouldReplan(obsAt("a dark cave, dripping water, nobody around", ""), time.Now())
	assert.Equal(t, ReasonSceneChange, reason)
}

func TestGateSimilarSceneDoesNotTrigger(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("two players standing near a mirror, one waving", ""))

	reason := g.ShouldReplan(obsAt("two players standing by a mirror, one is waving", ""), time.Now())
	assert.Equal(t, ReasonNone, reason)
}

func TestGateEmptySceneNeverCountsAsChange(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("a sunny plaza", ""))

	// Vision dropout produces empty scenes; they must not look like changes.
	reason := g.ShouldReplan(obsAt("", ""), time.Now())
	assert.Equal(t, ReasonNone, reason)
}

func TestGateTTLExpiry(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	now := time.Now()
	cell.Replace(freshIntent(now, 30*time.Second))
	g.Accept(obsAt("plaza", ""))

	// Unchanged scene, intent still fresh.
	assert.Equal(t, ReasonNone, g.ShouldReplan(obsAt("plaza", ""), now.Add(29*time.Second)))

	// Staleness boundary is inclusive.
	assert.Equal(t, ReasonTTLExpired, g.ShouldReplan(obsAt("plaza", ""), now.Add(30*time.Second)))

	// Expiry triggers even with an identical scene.
	assert.Equal(t, ReasonTTLExpired, g.ShouldReplan(obsAt("plaza", ""), now.Add(31*time.Second)))
}

func TestGateAbsentIntentNoEventNoReplan(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("plaza", ""))

	reason := g.ShouldReplan(obsAt("plaza", ""), time.Now())
	assert.Equal(t, ReasonNone, reason)
}

func TestGateThresholdReload(t *testing.T) {
	cell := NewCell()
	g := NewGate(cell, 0.58)
	g.Accept(obsAt("two players standing near a mirror, one waving", ""))
	next := obsAt("two players standing by a mirror, one is waving", "")

	assert.Equal(t, ReasonNone, g.ShouldReplan(next, time.Now()))

	g.SetSceneThreshold(0.99)
	assert.Equal(t, ReasonSceneChange, g.ShouldReplan(next, time.Now()))

	g.SetSceneThreshold(1.5) // out of range, ignored
	assert.Equal(t, ReasonSceneChange, g.ShouldReplan(next, time.Now()))
}
