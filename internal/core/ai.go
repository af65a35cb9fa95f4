package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoEmbedding is returned when a provider answers without a usable vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// EmbeddingProvider turns document chunks into vectors. Implementations return
// exactly one vector per input, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LLMProvider produces an answer for a system and user prompt pair.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// EmbedQuery embeds a single search query with p, preferring its query mode
// when it has one.
func EmbedQuery(ctx context.Context, p EmbeddingProvider, text string) ([]float32, error) {
	if qe, ok := p.(QueryEmbedder); ok {
		v, err := qe.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return nil, ErrNoEmbedding
		}
		return v, nil
	}

	vecs, err := p.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", ErrNoEmbedding, len(vecs))
	}
	if len(vecs[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return vecs[0], nil
}
