package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/core/mock"
	"github.com/markdave123-py/docflow/internal/models"
)

type embedFixture struct {
	repo     *mock.MemoryRepository
	index    *mock.MemoryVectorIndex
	embedder *mock.MockEmbedder
	task     *EmbeddingTask
}

func newEmbedFixture() *embedFixture {
	f := &embedFixture{
		repo:     mock.NewMemoryRepository(),
		index:    mock.NewMemoryVectorIndex(),
		embedder: mock.NewMockEmbedder(),
	}
	cfg := DefaultIngestConfig()
	cfg.BatchSize = 2
	f.task = NewEmbeddingTask(f.repo, f.index, f.embedder, cfg, quietLogger())
	return f
}

func (f *embedFixture) seed(status models.DocumentStatus, text string) {
	f.repo.Put(&models.Document{
		ID: "d1", TenantID: "t1", Title: "handbook", Tags: []string{"hr"},
		Status: status, ExtractedText: text,
	})
}

const ns = "tenant-t1"

func TestEmbeddingTask_IndexesChunksAndCompletes(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusEmbedding, makeText(2400))

	res := f.task.Process(context.Background(), "d1")
	require.Equal(t, OutcomeSuccess, res.Outcome, "%v", res.Err)

	assert.Equal(t, models.StatusCompleted, f.repo.Status("d1"))
	entries := f.index.Entries(ns, "d1")
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "handbook", e.Metadata.Source)
		assert.Equal(t, []string{"hr"}, e.Metadata.Tags)
		assert.Equal(t, mock.Vector(e.Metadata.Content, 0), e.Embedding)
	}
	assert.Equal(t, 2, f.embedder.CallCount(), "3 chunks in batches of 2")
}

func TestEmbeddingTask_AcceptsPendingValidation(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusPendingValidation, "short text")

	res := f.task.Process(context.Background(), "d1")
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.StatusCompleted, f.repo.Status("d1"))
}

func TestEmbeddingTask_ReembedReplacesVectors(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusEmbedding, makeText(2400))
	require.Equal(t, OutcomeSuccess, f.task.Process(context.Background(), "d1").Outcome)
	require.Len(t, f.index.Entries(ns, "d1"), 3)

	f.seed(models.StatusEmbedding, "a much shorter replacement")
	require.Equal(t, OutcomeSuccess, f.task.Process(context.Background(), "d1").Outcome)

	entries := f.index.Entries(ns, "d1")
	require.Len(t, entries, 1)
	assert.Equal(t, "a much shorter replacement", entries[0].Metadata.Content)
}

func TestEmbeddingTask_EmptyTextIsUnrecoverable(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusPendingValidation, "  ")

	res := f.task.Process(context.Background(), "d1")
	assert.Equal(t, OutcomeUnrecoverable, res.Outcome)

	require.NoError(t, f.task.MarkFailed(context.Background(), "d1", res.Err))
	d, err := f.repo.GetDocumentByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessingFailed, d.Status)
	assert.True(t, strings.HasPrefix(d.FailedReason, "Embedding: "))
	assert.Equal(t, models.StageEmbedding, d.FailedStage)
}

func TestEmbeddingTask_TransientEmbedderFailureLeavesNoPartialVectors(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusEmbedding, makeText(2400))

	var calls int32
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			return nil, core.Transient(errors.New("rate limited"))
		}
		out := make([][]float32, len(texts))
		for i, tx := range texts {
			out[i] = mock.Vector(tx, 0)
		}
		return out, nil
	}

	res := f.task.Process(context.Background(), "d1")
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.Empty(t, f.index.Entries(ns, "d1"))
	assert.Equal(t, models.StatusEmbedding, f.repo.Status("d1"))
}

func TestEmbeddingTask_SizeMismatchIsUnrecoverable(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusEmbedding, "one chunk")
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{}, nil
	}

	res := f.task.Process(context.Background(), "d1")
	assert.Equal(t, OutcomeUnrecoverable, res.Outcome)
	assert.ErrorContains(t, res.Err, "embed size mismatch")
}

func TestEmbeddingTask_IndexFailureClassified(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusEmbedding, "text")
	f.index.UpsertErr = core.Transient(errors.New("connection refused"))

	res := f.task.Process(context.Background(), "d1")
	assert.Equal(t, OutcomeTransient, res.Outcome)
}

func TestEmbeddingTask_SkipsOtherStates(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusOCRProcessing, "text")

	assert.Equal(t, OutcomeSkipped, f.task.Process(context.Background(), "d1").Outcome)
	require.NoError(t, f.task.MarkFailed(context.Background(), "d1", errors.New("x")))
	assert.Equal(t, models.StatusOCRProcessing, f.repo.Status("d1"))
}

func TestEmbeddingTask_DropsVectorsWhenDocumentDeletedMidRun(t *testing.T) {
	f := newEmbedFixture()
	f.seed(models.StatusPendingValidation, "short text")

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// The row goes away after the task claimed it but before it completes.
		if err := f.repo.DeleteDocument(ctx, "d1", models.StatusEmbedding); err != nil {
			return nil, err
		}
		out := make([][]float32, len(texts))
		for i, tx := range texts {
			out[i] = mock.Vector(tx, 0)
		}
		return out, nil
	}

	res := f.task.Process(context.Background(), "d1")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrDocumentNotFound)
	assert.Empty(t, f.index.Entries(ns, "d1"))
	assert.Zero(t, f.index.Count(ns))
}
