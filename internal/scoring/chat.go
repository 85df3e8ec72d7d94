package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quotewire/internal/config"
)

// Scorer rates a quote between 0 and 1.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// ChatScorer asks an OpenAI-compatible chat completions endpoint for a score.
type ChatScorer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ Scorer = (*ChatScorer)(nil)

func NewChatScorer(cfg config.ScoringConfig) *ChatScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChatScorer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.Prompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatScorer) Score(ctx context.Context, text string) (float64, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return 0, fmt.Errorf("scorer misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": fmt.Sprintf("Evaluate this quote: '%s'", text)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal scoring payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send scoring request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("scorer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode scoring response: %w", err)
	}
	if len(out.Choices) == 0 {
		return 0, fmt.Errorf("scorer returned no choices")
	}
	return parseScore(out.Choices[0].Message.Content)
}

func parseScore(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("scorer returned %q: %w", raw, err)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("score %v out of range", v)
	}
	return v, nil
}
