package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.EmbeddingProvider = (*MockEmbedder)(nil)

const defaultDim = 32

// MockEmbedder returns deterministic vectors derived from a hash of the text.
type MockEmbedder struct {
	// EmbedTextsFunc replaces the default behaviour when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	Dim            int

	mu        sync.Mutex
	callCount int
	embedded  []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: defaultDim}
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.embedded = append(m.embedded, texts...)
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, m.Dim)
	}
	return out, nil
}

// CallCount returns the number of EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Embedded returns every text seen so far, in call order.
func (m *MockEmbedder) Embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.embedded...)
}

// Vector is the deterministic unit vector the mock assigns to text.
func Vector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultDim
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	var sum float64
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000.0 + 0.001
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
