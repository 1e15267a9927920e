// Package intent holds the planner-derived goal state and the gate that
// decides when the planner should run again.
package intent

import (
	"time"

	"vrcagent/internal/action"
)

// Intent is a planner-derived goal with a validity window. It is replaced
// wholesale when a new planner result arrives and is never mutated in place.
type Intent struct {
	ID            string
	Goal          string  // short behavior descriptor, e.g. "observe", "explore"
	ActivityLevel float64 // 0..1, scales movement cadence
	Curiosity     float64 // 0..1, scales look jitter
	AllowMove     bool
	Say           string          // line to mirror into chat, may be empty
	Actions       []action.Action // sparse planner-requested actions
	CreatedAt     time.Time
	TTL           time.Duration
}

// Stale reports whether the intent's validity window has passed.
func (i Intent) Stale(now time.Time) bool {
	return now.After(i.CreatedAt.Add(i.TTL)) || now.Equal(i.CreatedAt.Add(i.TTL))
}

// Default returns the fallback intent used before the first planner result.
func Default() Intent {
	return Intent{
		Goal:          "observe",
		ActivityLevel: 0.35,
		Curiosity:     0.55,
		AllowMove:     true,
	}
}
