package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/core/mock"
	"github.com/markdave123-py/docflow/internal/models"
)

func entry(id, docID, content string) models.VectorEntry {
	return models.VectorEntry{
		ID:        id,
		Embedding: mock.Vector(content, 0),
		Metadata:  models.VectorMetadata{DocumentID: docID, Content: content, Source: docID},
	}
}

func TestGetContext_EmptyNamespaceIsValid(t *testing.T) {
	svc := NewRetrievalService(mock.NewMockEmbedder(), mock.NewMemoryVectorIndex(), 5, quietLogger())

	rc, err := svc.GetContext(context.Background(), "t1", "what is the leave policy?", 0)
	require.NoError(t, err)
	assert.Equal(t, "", rc.Context)
	assert.Empty(t, rc.DocumentIDs)
	assert.Nil(t, rc.TopScorePercent)
}

func TestGetContext_JoinsRankedChunksAndDedupsDocuments(t *testing.T) {
	index := mock.NewMemoryVectorIndex()
	ctx := context.Background()
	require.NoError(t, index.Upsert(ctx, "tenant-t1", []models.VectorEntry{
		entry("v1", "d1", "annual leave is 25 days"),
		entry("v2", "d1", "sick leave is unlimited"),
		entry("v3", "d2", "expenses are reimbursed monthly"),
	}))
	require.NoError(t, index.Upsert(ctx, "tenant-t2", []models.VectorEntry{
		entry("v9", "x", "annual leave is 25 days"),
	}))

	svc := NewRetrievalService(mock.NewMockEmbedder(), index, 5, quietLogger())
	rc, err := svc.GetContext(ctx, "t1", "annual leave is 25 days", 5)
	require.NoError(t, err)

	lines := strings.Split(rc.Context, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "annual leave is 25 days", lines[0], "exact match ranks first")
	assert.ElementsMatch(t, []string{"d1", "d2"}, rc.DocumentIDs)
	assert.Equal(t, "d1", rc.DocumentIDs[0])
	require.NotNil(t, rc.TopScorePercent)
	assert.InDelta(t, 100.0, *rc.TopScorePercent, 0.01)
	assert.NotContains(t, rc.DocumentIDs, "x", "other tenants are never searched")
}

func TestGetContext_RespectsTopK(t *testing.T) {
	index := mock.NewMemoryVectorIndex()
	require.NoError(t, index.Upsert(context.Background(), "tenant-t1", []models.VectorEntry{
		entry("v1", "d1", "a"), entry("v2", "d2", "b"), entry("v3", "d3", "c"),
	}))
	svc := NewRetrievalService(mock.NewMockEmbedder(), index, 2, quietLogger())

	rc, err := svc.GetContext(context.Background(), "t1", "a", 0)
	require.NoError(t, err)
	assert.Len(t, rc.DocumentIDs, 2, "default top_k applies")
}

func TestGetContext_Errors(t *testing.T) {
	emb := mock.NewMockEmbedder()
	index := mock.NewMemoryVectorIndex()
	svc := NewRetrievalService(emb, index, 5, quietLogger())

	_, err := svc.GetContext(context.Background(), "t1", "  ", 5)
	var ve *core.ValidationError
	assert.True(t, errors.As(err, &ve))

	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{}, nil
	}
	_, err = svc.GetContext(context.Background(), "t1", "q", 5)
	assert.ErrorIs(t, err, core.ErrNoEmbedding)
	emb.EmbedTextsFunc = nil

	index.QueryErr = errors.New("index down")
	_, err = svc.GetContext(context.Background(), "t1", "q", 5)
	assert.ErrorContains(t, err, "index down")
}
