package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

const DefaultTopK = 5

// RetrievalService builds grounding context for a query from a tenant's vectors.
type RetrievalService struct {
	embedder    core.EmbeddingProvider
	index       core.VectorIndex
	defaultTopK int
	logger      *slog.Logger
}

func NewRetrievalService(embedder core.EmbeddingProvider, index core.VectorIndex, defaultTopK int, logger *slog.Logger) *RetrievalService {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
		logger:      logger.With("component", "retrieval"),
	}
}

// GetContext embeds query, searches the tenant namespace and joins the matched
// chunks in ranked order. No matches is a valid, empty result.
func (s *RetrievalService) GetContext(ctx context.Context, tenantID, query string, topK int) (*models.RetrievalContext, error) {
	if tenantID == "" {
		return nil, &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Message: "must not be empty"}
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	vec, err := core.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ns := models.NamespaceForTenant(tenantID)
	matches, err := s.index.Query(ctx, ns, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ns, err)
	}

	out := &models.RetrievalContext{DocumentIDs: []string{}}
	if len(matches) == 0 {
		s.logger.Debug("Retrieval: no matches", "namespace", ns)
		return out, nil
	}

	contents := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	top := matches[0].Score
	for _, m := range matches {
		contents = append(contents, m.Metadata.Content)
		if _, ok := seen[m.Metadata.DocumentID]; !ok && m.Metadata.DocumentID != "" {
			seen[m.Metadata.DocumentID] = struct{}{}
			out.DocumentIDs = append(out.DocumentIDs, m.Metadata.DocumentID)
		}
		top = max(top, m.Score)
	}
	out.Context = strings.Join(contents, "\n")
	pct := top * 100
	out.TopScorePercent = &pct

	s.logger.Debug("Retrieval: context built", "namespace", ns, "matches", len(matches), "documents", len(out.DocumentIDs))
	return out, nil
}
