// Package embedding turns text into feature vectors for concept matching.
// Supports a deterministic local backend, Ollama and Google GenAI.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"starweave/internal/logging"
)

// ErrEmbedding marks a failed embedding call. Callers substitute a
// fallback vector rather than abort.
var ErrEmbedding = errors.New("embedding failed")

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is implemented by engines backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "local", "ollama" or "genai"
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions is the vector size expected by the concept registry.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key,omitempty" json:"-"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"`

	// TaskType for GenAI: "SEMANTIC_SIMILARITY", "CLASSIFICATION", ...
	TaskType string `yaml:"task_type" json:"task_type"`
}

// DefaultConfig returns the offline defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "local",
		Dimensions:     LocalDimensions,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)
	logging.EmbeddingDebug("Engine config: provider=%s, dimensions=%d, ollama_endpoint=%s, ollama_model=%s, genai_model=%s, task_type=%s",
		cfg.Provider, cfg.Dimensions, cfg.OllamaEndpoint, cfg.OllamaModel, cfg.GenAIModel, cfg.TaskType)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "local", "":
		engine = NewLocalEngine()
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.Dimensions)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType, cfg.Dimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'local', 'ollama' or 'genai')", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// EmbedOrFallback embeds text and, on any failure or a vector of the wrong
// size, returns an all-zero vector of dim together with the cause. A zero
// vector matches no concept, so the input takes the unmatched path.
func EmbedOrFallback(ctx context.Context, engine Engine, text string, dim int) ([]float32, error) {
	vec, err := engine.Embed(ctx, text)
	if err == nil && len(vec) != dim {
		err = fmt.Errorf("%w: %s returned %d dimensions, want %d", ErrEmbedding, engine.Name(), len(vec), dim)
	}
	if err != nil {
		if !errors.Is(err, ErrEmbedding) {
			err = fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		logging.EmbeddingWarn("Falling back to zero vector: %v", err)
		return make([]float32, dim), err
	}
	return vec, nil
}
