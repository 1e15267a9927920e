package planner

import (
	"encoding/json"
	"strings"
	"unicode"

	"vrcagent/internal/action"
)

// maxPlanActions bounds how many actions a single plan may carry.
const maxPlanActions = 8

// ParsePlan decodes the model output into a normalized Plan. Models
// occasionally wrap the JSON in prose or fences, so a failed strict parse
// falls back to the first {...} block.
func ParsePlan(raw string) Plan {
	raw = strings.TrimSpace(raw)
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		block := firstJSONBlock(raw)
		if block == "" || json.Unmarshal([]byte(block), &plan) != nil {
			return Normalize(Plan{AllowMove: true})
		}
	}
	return Normalize(plan)
}

// firstJSONBlock extracts the outermost {...} span, if any.
func firstJSONBlock(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// Normalize clamps and defaults plan fields so downstream code never sees
// out-of-range values.
func Normalize(plan Plan) Plan {
	plan.Goal = strings.TrimSpace(plan.Goal)
	if plan.Goal == "" {
		plan.Goal = "observe"
	}
	// Rune-wise: goals come back in CJK often enough that a byte slice
	// would split a character.
	plan.Goal = Truncate(plan.Goal, 40)
	if plan.ActivityLevel <= 0 {
		plan.ActivityLevel = 0.35
	} else if plan.ActivityLevel > 1 {
		plan.ActivityLevel = 1
	}
	if plan.Curiosity <= 0 {
		plan.Curiosity = 0.55
	} else if plan.Curiosity > 1 {
		plan.Curiosity = 1
	}
	plan.Say = strings.TrimSpace(plan.Say)
	plan.Actions = normalizeActions(plan.Actions, plan.Say)
	return plan
}

func normalizeActions(actions []action.Action, say string) []action.Action {
	if len(actions) > maxPlanActions {
		actions = actions[:maxPlanActions]
	}
	out := make([]action.Action, 0, len(actions))
	for _, a := range actions {
		if a.Kind == "" {
			continue
		}
		if a.Kind == action.KindChat {
			a.Text = RepairChatText(a.Text, say)
			if a.Text == "" {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// RepairChatText filters garbage chat payloads: too-short strings and
// mostly-numeric noise (models sometimes emit things like "4145") fall back
// to the spoken line, and everything is capped at 140 runes.
func RepairChatText(text, fallback string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 4 || mostlyDigits(text) {
		text = strings.TrimSpace(fallback)
	}
	runes := []rune(text)
	if len(runes) > 140 {
		runes = runes[:140]
	}
	return string(runes)
}

func mostlyDigits(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits)/float64(total) >= 0.8
}
