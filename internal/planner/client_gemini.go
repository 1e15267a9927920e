package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vrcagent/internal/logging"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// GeminiClient implements Planner against the generativelanguage API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	system     string
	httpClient *http.Client
}

// NewGeminiClient creates a Gemini provider with the given system prompt.
func NewGeminiClient(cfg GeminiConfig, systemPrompt string) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		system:     buildSystemPrompt(systemPrompt),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// PlanIntent sends the state snapshot and parses the returned plan.
func (c *GeminiClient) PlanIntent(ctx context.Context, state State) (Plan, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return Plan{}, fmt.Errorf("API key not configured")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to marshal state: %w", err)
	}

	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: c.system}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: string(payload)}}},
		},
		GenerationConfig: geminiGenConfig{Temperature: 0.2, MaxOutputTokens: 4096},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * 1200 * time.Millisecond
			logging.PlannerWarn("gemini call failed, retry in %s: %v", delay, lastErr)
			select {
			case <-ctx.Done():
				return Plan{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		content, err := c.doOnce(ctx, url, jsonData)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return Plan{}, ctx.Err()
			}
			if !isTransient(err) {
				return Plan{}, fmt.Errorf("gemini request failed: %w", err)
			}
			continue
		}
		return ParsePlan(content), nil
	}
	return Plan{}, fmt.Errorf("gemini planner failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *GeminiClient) doOnce(ctx context.Context, url string, jsonData []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transientf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transientf("failed to read response: %w", err)
	}
	logging.Planner("generateContent status=%d elapsed=%s", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", transientf("retryable status %d: %s", resp.StatusCode, truncateBody(body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates in response")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
