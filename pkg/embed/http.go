package embed

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

// HTTPEmbedder implements Embedder against an inference-API style endpoint.
//
// The endpoint accepts {"inputs": "<text>"} and returns either a flat
// float array or a single-row nested array:
//
//	[0.1, 0.2, ...]      or      [[0.1, 0.2, ...]]
//
// Transient failures (network errors, HTTP 5xx) are retried with linear
// backoff. HTTP 503 commonly means the model is still loading, so it
// waits twice as long before retrying.
//
// Example:
//
//	embedder := embed.NewHTTP(nil)
//	vec, err := embedder.Embed(ctx, "sequence alignment tool")
type HTTPEmbedder struct {
	config *Config
	client *http.Client
}

// NewHTTP creates an HTTP embedding client. A nil config uses defaults.
func NewHTTP(config *Config) *HTTPEmbedder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 2 * time.Second
	}

	return &HTTPEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Dimensions returns the configured embedding dimensionality.
func (h *HTTPEmbedder) Dimensions() int {
	return h.config.Dimensions
}

// Model returns the configured model identifier.
func (h *HTTPEmbedder) Model() string {
	return h.config.Model
}

// EmbedBatch embeds each text in order. A text that fails after all
// retries yields a nil entry at its position instead of aborting the
// batch. Only context cancellation aborts early.
func (h *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("⚠️  Skipping embedding %d/%d: %v", i+1, len(texts), err)
			continue
		}
		vecs[i] = vec
	}
	return vecs, nil
}

type embedRequest struct {
	Inputs string `json:"inputs"`
}

// Embed generates an embedding for a single text.
//
// Returns an error when the text is empty or when every retry attempt
// fails. The last attempt's error is returned wrapped.
func (h *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	var lastErr error
	for attempt := 1; attempt <= h.config.MaxRetries; attempt++ {
		vec, retryable, err := h.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		if attempt == h.config.MaxRetries {
			break
		}

		wait := time.Duration(attempt) * h.config.RetryBackoff
		if isModelLoading(err) {
			wait *= 2
		}
		log.Printf("⚠️  Embedding attempt %d/%d failed: %v (retrying in %s)",
			attempt, h.config.MaxRetries, err, wait)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", h.config.MaxRetries, lastErr)
}

// modelLoadingError marks HTTP 503 responses for backoff escalation.
type modelLoadingError struct{ body string }

func (e *modelLoadingError) Error() string {
	return fmt.Sprintf("model loading (503): %s", e.body)
}

func isModelLoading(err error) bool {
	_, ok := err.(*modelLoadingError)
	return ok
}

// embedOnce performs one request. The second return reports whether the
// failure is transient and worth retrying.
func (h *HTTPEmbedder) embedOnce(ctx context.Context, text string) ([]float32, bool, error) {
	jsonData, err := json.Marshal(embedRequest{Inputs: text})
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.config.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("embedding service unavailable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, true, &modelLoadingError{body: string(body)}
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	vec, err := parseEmbedding(body)
	if err != nil {
		return nil, false, err
	}
	return vec, false, nil
}

// parseEmbedding accepts both flat and single-row nested float arrays.
func parseEmbedding(body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	return nil, fmt.Errorf("unexpected embedding response format: %s", truncate(string(body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
