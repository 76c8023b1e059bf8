// Package embed provides embedding generation clients for vector search.
package embed

import (
	"context"
	"time"
)

// Embedder generates vector embeddings for text.
//
// Implementations must be safe for concurrent use. A failed embedding run
// degrades to an empty vector rather than an error where the caller can
// meaningfully continue without it (callers decide, the interface only
// reports the failure).
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the expected embedding dimensionality.
	Dimensions() int
}

// Config holds embedding client configuration.
type Config struct {
	// APIURL is the full URL of the embedding endpoint.
	APIURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the embedding model identifier, informational only.
	Model string

	// Dimensions is the expected output dimensionality.
	Dimensions int

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the base wait between retries. Attempt n waits
	// n * RetryBackoff; model-loading responses (HTTP 503) wait double.
	RetryBackoff time.Duration

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns settings for a locally hosted MiniLM-class model.
func DefaultConfig() *Config {
	return &Config{
		APIURL:       "http://localhost:8080/embed",
		Model:        "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions:   384,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
		Timeout:      30 * time.Second,
	}
}
