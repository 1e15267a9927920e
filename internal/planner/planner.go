// Package planner invokes the LLM backend that turns an observation
// snapshot into an Intent. Calls are slow and unreliable by nature; the
// async wrapper keeps them off the tick loop entirely.
package planner

import (
	"context"

	"vrcagent/internal/action"
)

// Plan is the raw planner result before it becomes the current Intent.
type Plan struct {
	Goal          string          `json:"intent"`
	ActivityLevel float64         `json:"activity_level"`
	Curiosity     float64         `json:"curiosity"`
	AllowMove     bool            `json:"allow_move"`
	Say           string          `json:"speak"`
	Actions       []action.Action `json:"actions"`
}

// IntentState is the compact view of the current intent sent to the model.
type IntentState struct {
	Goal          string  `json:"intent"`
	ActivityLevel float64 `json:"activity_level"`
	Curiosity     float64 `json:"curiosity"`
	AllowMove     bool    `json:"allow_move"`
}

// MemoryLine is a truncated memory row included in the state payload.
type MemoryLine struct {
	Scene   string `json:"scene,omitempty"`
	Say     string `json:"speak,omitempty"`
	Actions string `json:"actions,omitempty"`
}

// State is the token-budgeted payload the planner sees. Intent control does
// not need a full scene dump, so fields are truncated at build time.
type State struct {
	Time            string       `json:"time"`
	Scene           string       `json:"scene"`
	Heard           string       `json:"heard"`
	IntentState     IntentState  `json:"intent_state"`
	ShortTermMemory []MemoryLine `json:"short_term_memory"`
	LongTermMemory  []MemoryLine `json:"long_term_memory"`
}

// Planner produces a Plan from a state snapshot over a bounded network call.
type Planner interface {
	PlanIntent(ctx context.Context, state State) (Plan, error)
}

// Truncate caps a string at n runes for state payload building.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
