package embedding

import (
	"context"
	"math"
)

// LocalDimensions is the vector size of the local engine.
const LocalDimensions = 3

// LocalEngine is an offline, deterministic embedder. The vector depends only
// on the text length, which is enough to drive the concept pipeline without
// a model server.
type LocalEngine struct{}

// NewLocalEngine creates the local engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// Embed returns a unit vector seeded by the text's length in bytes.
func (e *LocalEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := float64(len(text)) / 100
	vec := []float64{
		math.Min(0.5+seed*0.1, 1),
		math.Max(-0.2+seed*0.05, -1),
		math.Min(0.4-seed*0.02, 1),
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch embeds each text in turn.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns LocalDimensions.
func (e *LocalEngine) Dimensions() int {
	return LocalDimensions
}

// Name returns the engine name.
func (e *LocalEngine) Name() string {
	return "local"
}
