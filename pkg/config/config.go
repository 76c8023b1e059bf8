// Package config handles toolgraph configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--tools, --mode, etc.)
//  2. Environment variables (TOOLGRAPH_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables (all use TOOLGRAPH_ prefix):
//
// Store:
//   - TOOLGRAPH_DATA_DIR="./data"
//   - TOOLGRAPH_ENCRYPTION_ENABLED=false
//   - TOOLGRAPH_ENCRYPTION_PASSWORD=""
//
// Collaborators:
//   - TOOLGRAPH_EMBEDDING_API_URL, TOOLGRAPH_EMBEDDING_API_KEY
//   - TOOLGRAPH_LLM_API_URL, TOOLGRAPH_LLM_API_KEY, TOOLGRAPH_LLM_MODEL
//
// Detection:
//   - TOOLGRAPH_SIMILARITY_THRESHOLD=0.7
//   - TOOLGRAPH_EMBEDDING_DIMENSIONS=384
//   - TOOLGRAPH_RESOLUTION_LEVEL1=1.0
//   - TOOLGRAPH_RESOLUTION_LEVEL2_TOOLS=1.2
//   - TOOLGRAPH_RESOLUTION_LEVEL2_WORKFLOWS=1.0
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all toolgraph configuration.
//
// The configuration is an explicit value passed at construction to every
// component that needs it; there is no global settings object. The zero
// value is not usable - start from Default(), LoadFromEnv() or LoadFromFile().
type Config struct {
	// Store settings
	Store StoreConfig `yaml:"store"`

	// Embedding collaborator settings
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Generative LLM collaborator settings
	LLM LLMConfig `yaml:"llm"`

	// Graph projection and community detection settings
	Detection DetectionConfig `yaml:"detection"`

	// Retrieval settings
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// StoreConfig holds graph store settings.
type StoreConfig struct {
	// DataDir is the directory for Badger data files.
	// Empty string selects the in-memory engine (tests).
	DataDir string `yaml:"data_dir"`

	// EncryptionEnabled turns on AES encryption at rest for the store.
	EncryptionEnabled bool `yaml:"encryption_enabled"`

	// EncryptionPassword is the master password for key derivation.
	// Required when EncryptionEnabled is true.
	// Env: TOOLGRAPH_ENCRYPTION_PASSWORD
	EncryptionPassword string `yaml:"encryption_password"`

	// LowMemory enables memory-constrained Badger settings.
	LowMemory bool `yaml:"low_memory"`
}

// EmbeddingConfig holds embedding-inference collaborator settings.
type EmbeddingConfig struct {
	// APIURL is the inference endpoint returning raw embedding vectors.
	APIURL string `yaml:"api_url"`

	// APIKey is the bearer token for the endpoint.
	APIKey string `yaml:"api_key"`

	// Model is recorded for logging; the endpoint pins the actual model.
	Model string `yaml:"model"`

	// Dimensions is the expected embedding dimensionality.
	// Vectors of any other length are excluded from every graph.
	Dimensions int `yaml:"dimensions"`

	// MaxRetries is the attempt budget per call before degrading to empty.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base backoff; attempt n waits n * RetryBackoff.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig holds generative LLM collaborator settings.
type LLMConfig struct {
	// APIURL is an OpenAI-compatible chat completions base URL.
	APIURL string `yaml:"api_url"`

	// APIKey is the bearer token for the endpoint.
	APIKey string `yaml:"api_key"`

	// Model is the completion model name.
	Model string `yaml:"model"`

	// MaxRetries is the attempt budget per call before degrading to a sentinel.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base backoff between attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// DetectionConfig holds projection and community detection settings.
type DetectionConfig struct {
	// SimilarityThreshold is the strict lower bound for semantic edges.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// CooccurrenceWeight scales workflow co-occurrence counts.
	CooccurrenceWeight float64 `yaml:"cooccurrence_weight"`

	// IOWeight scales shared input/output format counts.
	IOWeight float64 `yaml:"io_weight"`

	// ResolutionLevel1 tunes Level-1 clustering granularity.
	// Lower values favor fewer, larger communities.
	ResolutionLevel1 float64 `yaml:"resolution_level1"`

	// ResolutionLevel2Tools tunes per-community tool sub-clustering.
	// Higher than level 1 to favor finer functional groups.
	ResolutionLevel2Tools float64 `yaml:"resolution_level2_tools"`

	// ResolutionLevel2Workflows tunes per-community workflow sub-clustering.
	ResolutionLevel2Workflows float64 `yaml:"resolution_level2_workflows"`

	// SummaryMemberCap limits member descriptions per summarization prompt.
	SummaryMemberCap int `yaml:"summary_member_cap"`

	// Seed makes partition runs reproducible. 0 picks a random seed.
	Seed int64 `yaml:"seed"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	// LocalTopK is the default nearest-neighbor count for local search.
	LocalTopK int `yaml:"local_top_k"`

	// HybridTopK is the default nearest-neighbor count for hybrid search.
	HybridTopK int `yaml:"hybrid_top_k"`

	// WorkflowSampleLimit caps the workflows returned per local-search hit.
	WorkflowSampleLimit int `yaml:"workflow_sample_limit"`
}

// Default returns the built-in configuration.
//
// The defaults mirror the shipped pipeline: 384-dimension embeddings,
// 0.7 semantic threshold, level resolutions 1.0 / 1.2 / 1.0, 3-attempt
// retry budget on both collaborators.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataDir: "./data",
		},
		Embedding: EmbeddingConfig{
			APIURL:       "",
			Model:        "all-MiniLM-L6-v2",
			Dimensions:   384,
			MaxRetries:   3,
			RetryBackoff: time.Second,
			Timeout:      10 * time.Second,
		},
		LLM: LLMConfig{
			APIURL:       "",
			Model:        "gemini-2.5-flash",
			MaxRetries:   3,
			RetryBackoff: 2 * time.Second,
			Timeout:      60 * time.Second,
		},
		Detection: DetectionConfig{
			SimilarityThreshold:       0.7,
			CooccurrenceWeight:        1.0,
			IOWeight:                  0.5,
			ResolutionLevel1:          1.0,
			ResolutionLevel2Tools:     1.2,
			ResolutionLevel2Workflows: 1.0,
			SummaryMemberCap:          50,
			Seed:                      0,
		},
		Retrieval: RetrievalConfig{
			LocalTopK:           3,
			HybridTopK:          5,
			WorkflowSampleLimit: 3,
		},
	}
}

// LoadFromEnv builds a Config from defaults overridden by TOOLGRAPH_* environment variables.
func LoadFromEnv() *Config {
	cfg := Default()
	applyEnvVars(cfg)
	return cfg
}

// LoadFromFile loads a YAML config file, then applies environment overrides.
//
// A missing file is not an error; defaults plus env vars are returned instead,
// so the CLI works without any config file present.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnvVars(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvVars(cfg)
	return cfg, nil
}

func applyEnvVars(cfg *Config) {
	cfg.Store.DataDir = getEnv("TOOLGRAPH_DATA_DIR", cfg.Store.DataDir)
	cfg.Store.EncryptionEnabled = getEnvBool("TOOLGRAPH_ENCRYPTION_ENABLED", cfg.Store.EncryptionEnabled)
	cfg.Store.EncryptionPassword = getEnv("TOOLGRAPH_ENCRYPTION_PASSWORD", cfg.Store.EncryptionPassword)
	cfg.Store.LowMemory = getEnvBool("TOOLGRAPH_LOW_MEMORY", cfg.Store.LowMemory)

	cfg.Embedding.APIURL = getEnv("TOOLGRAPH_EMBEDDING_API_URL", cfg.Embedding.APIURL)
	cfg.Embedding.APIKey = getEnv("TOOLGRAPH_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getEnv("TOOLGRAPH_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = getEnvInt("TOOLGRAPH_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.MaxRetries = getEnvInt("TOOLGRAPH_EMBEDDING_MAX_RETRIES", cfg.Embedding.MaxRetries)

	cfg.LLM.APIURL = getEnv("TOOLGRAPH_LLM_API_URL", cfg.LLM.APIURL)
	cfg.LLM.APIKey = getEnv("TOOLGRAPH_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("TOOLGRAPH_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MaxRetries = getEnvInt("TOOLGRAPH_LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Detection.SimilarityThreshold = getEnvFloat("TOOLGRAPH_SIMILARITY_THRESHOLD", cfg.Detection.SimilarityThreshold)
	cfg.Detection.ResolutionLevel1 = getEnvFloat("TOOLGRAPH_RESOLUTION_LEVEL1", cfg.Detection.ResolutionLevel1)
	cfg.Detection.ResolutionLevel2Tools = getEnvFloat("TOOLGRAPH_RESOLUTION_LEVEL2_TOOLS", cfg.Detection.ResolutionLevel2Tools)
	cfg.Detection.ResolutionLevel2Workflows = getEnvFloat("TOOLGRAPH_RESOLUTION_LEVEL2_WORKFLOWS", cfg.Detection.ResolutionLevel2Workflows)

	cfg.Retrieval.LocalTopK = getEnvInt("TOOLGRAPH_LOCAL_TOP_K", cfg.Retrieval.LocalTopK)
	cfg.Retrieval.HybridTopK = getEnvInt("TOOLGRAPH_HYBRID_TOP_K", cfg.Retrieval.HybridTopK)
}

// Validate checks the configuration for invalid or conflicting settings.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Detection.SimilarityThreshold < -1 || c.Detection.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [-1, 1], got %g", c.Detection.SimilarityThreshold)
	}
	if c.Detection.ResolutionLevel1 <= 0 || c.Detection.ResolutionLevel2Tools <= 0 || c.Detection.ResolutionLevel2Workflows <= 0 {
		return fmt.Errorf("resolution parameters must be positive")
	}
	if c.Store.EncryptionEnabled && c.Store.EncryptionPassword == "" {
		return fmt.Errorf("encryption is enabled but no password was provided")
	}
	if c.Retrieval.LocalTopK <= 0 || c.Retrieval.HybridTopK <= 0 {
		return fmt.Errorf("retrieval top-k values must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
