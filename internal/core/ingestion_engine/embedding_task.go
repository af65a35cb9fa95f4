package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ Handler = (*EmbeddingTask)(nil)

// EmbeddingTask chunks the confirmed text, embeds every chunk and replaces the
// document's vectors in its tenant namespace.
type EmbeddingTask struct {
	db       core.DbClient
	index    core.VectorIndex
	embedder core.EmbeddingProvider
	cfg      *IngestConfig
	logger   *slog.Logger
}

func NewEmbeddingTask(db core.DbClient, index core.VectorIndex, embedder core.EmbeddingProvider, cfg *IngestConfig, logger *slog.Logger) *EmbeddingTask {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingTask{
		db:       db,
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "embedding"),
	}
}

func (t *EmbeddingTask) Kind() models.TaskKind { return models.TaskEmbedding }

func (t *EmbeddingTask) Process(ctx context.Context, documentID string) Result {
	doc, res, ok := loadDocument(ctx, t.db, documentID)
	if !ok {
		return res
	}

	switch doc.Status {
	case models.StatusPendingValidation, models.StatusEmbedding:
	default:
		return Skipped(fmt.Sprintf("nothing to embed in status %s", doc.Status))
	}

	if strings.TrimSpace(doc.ExtractedText) == "" {
		return Failed(core.Unrecoverable(models.StageEmbedding, core.ErrEmptyText))
	}
	if doc.Status == models.StatusPendingValidation {
		if res, ok := advance(ctx, t.db, doc, models.StatusEmbedding); !ok {
			return res
		}
	}

	ns := models.NamespaceForTenant(doc.TenantID)

	// Old vectors go first so a re-embed never leaves stale chunks behind.
	if err := t.index.DeleteByDocument(ctx, ns, doc.ID); err != nil {
		return Failed(fmt.Errorf("delete previous vectors: %w", err))
	}

	chunks := Chunk(doc.ExtractedText, t.cfg.ChunkSize, t.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return Failed(core.Unrecoverable(models.StageEmbedding, core.ErrNoChunks))
	}

	vectors, err := t.embed(ctx, chunks)
	if err != nil {
		return Failed(err)
	}

	entries := make([]models.VectorEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.VectorEntry{
			ID:        uuid.NewString(),
			Embedding: vectors[i],
			Metadata: models.VectorMetadata{
				Source:     doc.Title,
				Content:    c,
				DocumentID: doc.ID,
				Tags:       doc.Tags,
			},
		}
	}
	if err := t.index.Upsert(ctx, ns, entries); err != nil {
		return Failed(fmt.Errorf("upsert vectors: %w", err))
	}

	if res, ok := advance(ctx, t.db, doc, models.StatusCompleted); !ok {
		if errors.Is(res.Err, core.ErrDocumentNotFound) {
			t.dropOrphans(ctx, ns, doc.ID)
		}
		return res
	}
	t.logger.Info("Embedding: document indexed", "document_id", doc.ID, "namespace", ns, "chunks", len(chunks))
	return Succeeded()
}

// dropOrphans removes vectors written for a document whose row was deleted
// while the task ran.
func (t *EmbeddingTask) dropOrphans(ctx context.Context, ns, documentID string) {
	if err := t.index.DeleteByDocument(ctx, ns, documentID); err != nil {
		t.logger.Error("Embedding: vectors of deleted document left behind", "document_id", documentID, "namespace", ns, "error", err)
		return
	}
	t.logger.Info("Embedding: document deleted mid-run, vectors dropped", "document_id", documentID, "namespace", ns)
}

// embed sends chunks in batches with bounded concurrency and keeps their order.
func (t *EmbeddingTask) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.EmbedConcurrency)

	for start := 0; start < len(chunks); start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			batch := chunks[start:end]
			vecs, err := t.embedder.EmbedTexts(gctx, batch)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(batch) {
				return core.Unrecoverable(models.StageEmbedding,
					fmt.Errorf("embed size mismatch: got %d vectors for %d chunks", len(vecs), len(batch)))
			}
			for i, v := range vecs {
				if len(v) == 0 {
					return core.Unrecoverable(models.StageEmbedding, fmt.Errorf("empty embedding for chunk %d", start+i))
				}
				vectors[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// MarkFailed moves the document to PROCESSING_FAILED with an "Embedding: " reason.
func (t *EmbeddingTask) MarkFailed(ctx context.Context, documentID string, cause error) error {
	status, err := markFailed(ctx, t.db, documentID, models.StageEmbedding, cause,
		map[models.DocumentStatus]models.DocumentStatus{models.StatusPendingValidation: models.StatusEmbedding},
		models.StatusEmbedding)
	if err != nil {
		return fmt.Errorf("mark embedding failure for %s: %w", documentID, err)
	}
	if status.IsFailed() {
		t.logger.Info("Embedding: document marked failed", "document_id", documentID, "status", status)
	}
	return nil
}
