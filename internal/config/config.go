// Package config holds all vrcagent configuration.
// Config is a plain YAML file; the API key may also come from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all vrcagent configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM planner backend
	LLM LLMConfig `yaml:"llm"`

	// OSC output sink
	OSC OSCConfig `yaml:"osc"`

	// Control loop tuning
	Runtime RuntimeConfig `yaml:"runtime"`

	// Long-term memory store
	Memory MemoryConfig `yaml:"memory"`

	// Planner system prompt
	Prompt PromptConfig `yaml:"prompt"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the planner backend.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // openai, gemini
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// Timeout returns the per-call planner timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// OSCConfig configures the UDP sink that drives VRChat.
type OSCConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Chatbox messages longer than this are truncated before send.
	ChatMaxRunes int `yaml:"chat_max_runes"`
}

// Addr returns the host:port dial target for the sink.
func (c OSCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RuntimeConfig tunes the dual-rate control loop.
// Durations are plain seconds so presets and hand edits stay readable.
type RuntimeConfig struct {
	TickIntervalSec float64 `yaml:"tick_interval_sec"` // slow tick: gate + dispatch cadence
	DryRun          bool    `yaml:"dry_run"`
	ObserveOnly     bool    `yaml:"observe_only"`
	IntentTTLSec    float64 `yaml:"intent_ttl_sec"`

	// Instinct loop cadence and texture
	IdleIntervalMinSec float64 `yaml:"idle_interval_min_sec"`
	IdleIntervalMaxSec float64 `yaml:"idle_interval_max_sec"`
	HesitateIdleProb   float64 `yaml:"hesitate_idle_prob"`
	HesitatePauseProb  float64 `yaml:"hesitate_pause_prob"`
	LookJitterMinDeg   float64 `yaml:"look_jitter_min_deg"`
	LookJitterMaxDeg   float64 `yaml:"look_jitter_max_deg"`
	LookOvershootProb  float64 `yaml:"look_overshoot_prob"`
	SmallStepMoveProb  float64 `yaml:"small_step_move_prob"`

	// Replan gate
	SceneSimilarityThreshold float64 `yaml:"scene_similarity_threshold"`
	HeardLatchSec            float64 `yaml:"heard_latch_sec"`

	// Social cadence
	AutoChatCooldownSec float64 `yaml:"auto_chat_cooldown_sec"`
}

// TickInterval returns the slow-loop tick interval, floored at 200ms.
func (c RuntimeConfig) TickInterval() time.Duration {
	sec := c.TickIntervalSec
	if sec < 0.2 {
		sec = 0.2
	}
	return time.Duration(sec * float64(time.Second))
}

// IntentTTL returns the intent validity window, floored at 1s.
func (c RuntimeConfig) IntentTTL() time.Duration {
	sec := c.IntentTTLSec
	if sec < 1.0 {
		sec = 1.0
	}
	return time.Duration(sec * float64(time.Second))
}

// HeardLatch returns how long heard text stays visible to the gate.
func (c RuntimeConfig) HeardLatch() time.Duration {
	sec := c.HeardLatchSec
	if sec <= 0 {
		sec = 10.0
	}
	return time.Duration(sec * float64(time.Second))
}

// MemoryConfig configures the long-term memory store.
type MemoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
	MaxRecords   int    `yaml:"max_records"`
	RetrieveTopK int    `yaml:"retrieve_top_k"`

	// Optional semantic retrieval via Google GenAI embeddings.
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures embedding-based memory retrieval.
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// PromptConfig holds the planner system prompt.
type PromptConfig struct {
	Planner string `yaml:"planner"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vrcagent",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:   "openai",
			BaseURL:    "https://api.siliconflow.cn/v1",
			Model:      "deepseek-ai/DeepSeek-V3.2-Exp",
			TimeoutSec: 90,
			MaxRetries: 3,
		},
		OSC: OSCConfig{
			Host:         "127.0.0.1",
			Port:         9000,
			ChatMaxRunes: 144,
		},
		Runtime: RuntimeConfig{
			TickIntervalSec:          2.0,
			DryRun:                   true,
			IntentTTLSec:             2.8,
			IdleIntervalMinSec:       0.22,
			IdleIntervalMaxSec:       0.55,
			HesitateIdleProb:         0.16,
			HesitatePauseProb:        0.24,
			LookJitterMinDeg:         1.0,
			LookJitterMaxDeg:         3.0,
			LookOvershootProb:        0.20,
			SmallStepMoveProb:        0.26,
			SceneSimilarityThreshold: 0.58,
			HeardLatchSec:            10.0,
			AutoChatCooldownSec:      14.0,
		},
		Memory: MemoryConfig{
			Enabled:      true,
			DatabasePath: ".vrcagent/memory.db",
			MaxRecords:   1000,
			RetrieveTopK: 5,
			Embedding: EmbeddingConfig{
				Model: "gemini-embedding-001",
			},
		},
		Prompt: PromptConfig{
			Planner: "You are a low-frequency intent controller for a VRChat agent.",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a config file, fills defaults for missing fields, and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets the environment supply secrets so they never have
// to live in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("VRCAGENT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("SILICONFLOW_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Memory.Embedding.APIKey == "" {
			c.Memory.Embedding.APIKey = key
		}
	}
}

// Validate checks startup-fatal conditions. Everything else degrades at runtime.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("missing API key: set llm.api_key or VRCAGENT_API_KEY")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q (want openai or gemini)", c.LLM.Provider)
	}
	if c.OSC.Port <= 0 || c.OSC.Port > 65535 {
		return fmt.Errorf("invalid osc port %d", c.OSC.Port)
	}
	if c.Runtime.IdleIntervalMaxSec < c.Runtime.IdleIntervalMinSec {
		return fmt.Errorf("idle_interval_max_sec %.2f below idle_interval_min_sec %.2f",
			c.Runtime.IdleIntervalMaxSec, c.Runtime.IdleIntervalMinSec)
	}
	if c.Runtime.SceneSimilarityThreshold < 0 || c.Runtime.SceneSimilarityThreshold > 1 {
		return fmt.Errorf("scene_similarity_threshold must be in [0,1]")
	}
	return nil
}
