package planner

import (
	"fmt"

	"vrcagent/internal/config"
)

// NewFromConfig builds the configured planner provider.
func NewFromConfig(cfg *config.Config) (Planner, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout(),
			MaxRetries: cfg.LLM.MaxRetries,
		}, cfg.Prompt.Planner), nil
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout(),
			MaxRetries: cfg.LLM.MaxRetries,
		}, cfg.Prompt.Planner), nil
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.LLM.Provider)
	}
}

// buildSystemPrompt appends the fixed output contract to the configured
// persona prompt. The schema lines are what keep the model emitting plans
// the parser understands.
func buildSystemPrompt(persona string) string {
	return persona + "\n\n" +
		"Return one strict JSON object with keys:\n" +
		`{"intent": string, "activity_level": number(0-1), "curiosity": number(0-1), ` +
		`"allow_move": boolean, "speak": string, "actions": array}` + "\n" +
		"Action schema:\n" +
		`- move: {"type":"move","direction":"w|a|s|d","seconds":0.3}` + "\n" +
		`- jump: {"type":"jump"}` + "\n" +
		`- toggle_crouch: {"type":"toggle_crouch"}` + "\n" +
		`- toggle_prone: {"type":"toggle_prone"}` + "\n" +
		`- chat_send: {"type":"chat_send","text":"..."}` + "\n" +
		`- look: {"type":"look","dx":20,"dy":-10}` + "\n" +
		`- wait: {"type":"wait","seconds":0.5}` + "\n" +
		"Rules:\n" +
		"- Keep output concise; prefer 0-5 actions.\n" +
		"- When nearby players are visible, provide a short `speak` line.\n" +
		"- If short_term_memory shows a very recent chat_send, skip chat this turn.\n" +
		"- Do not repeat the same action sequence every tick.\n" +
		"- Do NOT output any text outside the JSON object."
}
