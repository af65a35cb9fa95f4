package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core"
)

// NewEmbeddingProvider builds the embedder selected by EMBED_PROVIDER.
// The returned close func releases the underlying client.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.EmbeddingProvider, func() error, error) {
	switch cfg.EmbedProvider {
	case config.EmbedProviderGemini:
		e, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder: %w", err)
		}
		return e, e.Close, nil
	case config.EmbedProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.EmbedHost, cfg.AIAPIKey, cfg.EmbedModel, logger)
		if err != nil {
			return nil, nil, err
		}
		return e, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
}
