package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPCompleter implements Completer against an OpenAI-compatible
// chat completions endpoint (POST {APIURL}/v1/chat/completions).
//
// Works with Ollama, llama.cpp server, vLLM, and hosted OpenAI-compatible
// gateways. Transient failures are retried with linear backoff.
type HTTPCompleter struct {
	config *Config
	client *http.Client
}

// NewHTTP creates a chat completion client. A nil config uses defaults.
func NewHTTP(config *Config) *HTTPCompleter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 2 * time.Second
	}

	return &HTTPCompleter{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt as a single user message and returns the
// first choice's content.
func (h *HTTPCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	var lastErr error
	for attempt := 1; attempt <= h.config.MaxRetries; attempt++ {
		text, retryable, err := h.completeOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable || attempt == h.config.MaxRetries {
			break
		}

		wait := time.Duration(attempt) * h.config.RetryBackoff
		log.Printf("⚠️  Generation attempt %d/%d failed: %v (retrying in %s)",
			attempt, h.config.MaxRetries, err, wait)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", h.config.MaxRetries, lastErr)
}

func (h *HTTPCompleter) completeOnce(ctx context.Context, prompt string) (string, bool, error) {
	reqBody := chatRequest{
		Model:    h.config.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	url := h.config.APIURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("generation service unavailable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return "", false, fmt.Errorf("generation error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", false, fmt.Errorf("no choices returned")
	}

	return result.Choices[0].Message.Content, false, nil
}
