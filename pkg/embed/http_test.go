package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIURL:       url,
		APIKey:       "test-key",
		Dimensions:   4,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestHTTPEmbedder_FlatResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Inputs)

		json.NewEncoder(w).Encode([]float32{0.1, 0.2, 0.3, 0.4})
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
	assert.Equal(t, 4, embedder.Dimensions())
}

func TestHTTPEmbedder_NestedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{1, 2, 3, 4}})
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vec)
}

func TestHTTPEmbedder_BatchSkipsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Inputs == "bad" {
			http.Error(w, "no", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]float32{1, 2, 3, 4})
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	vecs, err := embedder.EmbedBatch(context.Background(), []string{"ok", "bad", "ok"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.NotNil(t, vecs[0])
	assert.Nil(t, vecs[1])
	assert.NotNil(t, vecs[2])
}

func TestHTTPEmbedder_EmptyText(t *testing.T) {
	embedder := NewHTTP(testConfig("http://unused"))
	_, err := embedder.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestHTTPEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]float32{1, 2, 3, 4})
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPEmbedder_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPEmbedder_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	embedder := NewHTTP(testConfig(server.URL))
	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPEmbedder_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryBackoff = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	embedder := NewHTTP(cfg)
	_, err := embedder.Embed(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
