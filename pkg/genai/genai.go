// Package genai provides text generation clients for graph summarization
// and query arbitration.
package genai

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Completer generates a text completion for a prompt.
//
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds generation client configuration.
type Config struct {
	// APIURL is the base URL of an OpenAI-compatible API, without the
	// /v1/chat/completions path.
	APIURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the model identifier sent with each request.
	Model string

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the base wait between retries.
	RetryBackoff time.Duration

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns settings for a locally hosted OpenAI-compatible server.
func DefaultConfig() *Config {
	return &Config{
		APIURL:       "http://localhost:11434",
		Model:        "gemma3",
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
		Timeout:      120 * time.Second,
	}
}

// ParseTitleSummary extracts "Title:" and "Summary:" lines from model
// output. Missing lines fall back to placeholder values so a malformed
// generation never aborts a summarization run.
func ParseTitleSummary(text string) (title, summary string) {
	title = "Unknown"
	summary = "No summary generated."

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "Title:"); ok {
			title = strings.TrimSpace(after)
		} else if after, ok := strings.CutPrefix(line, "Summary:"); ok {
			summary = strings.TrimSpace(after)
		}
	}
	return title, summary
}

// ParseCommunityChoice extracts "Community_ID:" and "Reasoning:" lines
// from model output. A missing or non-numeric id parses as -1.
func ParseCommunityChoice(text string) (id int, reasoning string) {
	id = -1

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "Community_ID:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(after)); err == nil {
				id = n
			}
		} else if after, ok := strings.CutPrefix(line, "Reasoning:"); ok {
			reasoning = strings.TrimSpace(after)
		}
	}
	return id, reasoning
}
