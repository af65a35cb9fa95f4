package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docflow/internal/core"
)

var (
	_ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
	_ core.QueryEmbedder     = (*GeminiEmbedder)(nil)
)

// geminiMaxBatch is the most contents one BatchEmbedContents call accepts.
const geminiMaxBatch = 100

// GeminiEmbedder embeds chunks as retrieval documents and questions as
// retrieval queries, so both sides land in the same space.
type GeminiEmbedder struct {
	client *genai.Client
	docs   *genai.EmbeddingModel
	query  *genai.EmbeddingModel
	logger *slog.Logger
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	docs := cl.EmbeddingModel(modelName)
	docs.TaskType = genai.TaskTypeRetrievalDocument
	query := cl.EmbeddingModel(modelName)
	query.TaskType = genai.TaskTypeRetrievalQuery

	return &GeminiEmbedder{
		client: cl,
		docs:   docs,
		query:  query,
		logger: logger.With("component", "gemini-embedder", "model", modelName),
	}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts sends texts in requests of at most geminiMaxBatch contents and
// returns one vector per text in input order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		part := texts[start:min(start+geminiMaxBatch, len(texts))]

		batch := g.docs.NewBatch()
		for _, t := range part {
			batch.AddContent(genai.Text(t))
		}
		resp, err := g.docs.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != len(part) {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), len(part))
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	g.logger.Debug("embedded texts", "count", len(out))
	return out, nil
}

// EmbedQuery embeds a search question.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.query.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed query: %w", err)
	}
	if resp.Embedding == nil {
		return nil, core.ErrNoEmbedding
	}
	return resp.Embedding.Values, nil
}
