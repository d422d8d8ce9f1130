package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int32
}

var genaiTaskTypes = map[string]bool{
	"SEMANTIC_SIMILARITY":  true,
	"CLASSIFICATION":       true,
	"CLUSTERING":           true,
	"RETRIEVAL_DOCUMENT":   true,
	"RETRIEVAL_QUERY":      true,
	"CODE_RETRIEVAL_QUERY": true,
	"QUESTION_ANSWERING":   true,
	"FACT_VERIFICATION":    true,
}

// NewGenAIEngine creates a new GenAI embedding engine. The model is asked to
// truncate its output to dimensions; zero means the model default of 768.
func NewGenAIEngine(apiKey, model, taskType string, dimensions int) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if !genaiTaskTypes[taskType] {
		taskType = "SEMANTIC_SIMILARITY"
	}
	if dimensions <= 0 {
		dimensions = 768
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{
		client:     client,
		model:      model,
		taskType:   taskType,
		dimensions: int32(dimensions),
	}, nil
}

func (e *GenAIEngine) config() *genai.EmbedContentConfig {
	dims := e.dimensions
	return &genai.EmbedContentConfig{
		TaskType:             e.taskType,
		OutputDimensionality: &dims,
	}
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, e.config())
	if err != nil {
		return nil, fmt.Errorf("%w: GenAI embed failed: %w", ErrEmbedding, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: GenAI returned %d embeddings for %d texts", ErrEmbedding, len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions returns the requested output dimensionality.
func (e *GenAIEngine) Dimensions() int {
	return int(e.dimensions)
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
