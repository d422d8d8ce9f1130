package system

import (
	"context"
	"errors"
	"sync"
)

// --- fakeEngine ---

// fakeEngine returns canned vectors keyed by input text. Unknown text fails.
type fakeEngine struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func newFakeEngine(vectors map[string][]float32) *fakeEngine {
	return &fakeEngine{vectors: vectors}
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if v, ok := f.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return nil, errors.New("no vector for input")
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

// --- fakeClock ---

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// --- fixedRandom ---

type fixedRandom float64

func (r fixedRandom) Float64() float64 { return float64(r) }
