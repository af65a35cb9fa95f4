package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ Handler = (*OCRTask)(nil)

// OCRTask fetches the uploaded bytes, extracts text and parks the document in
// PENDING_VALIDATION for a human to confirm.
type OCRTask struct {
	db          core.DbClient
	blobs       core.ObjectClient
	extractor   core.DocumentExtractor
	queue       core.TaskQueue
	autoConfirm bool
	logger      *slog.Logger
}

// NewOCRTask builds the OCR handler. queue is only used when autoConfirm is set.
func NewOCRTask(db core.DbClient, blobs core.ObjectClient, extractor core.DocumentExtractor, queue core.TaskQueue, autoConfirm bool, logger *slog.Logger) *OCRTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRTask{
		db:          db,
		blobs:       blobs,
		extractor:   extractor,
		queue:       queue,
		autoConfirm: autoConfirm && queue != nil,
		logger:      logger.With("component", "ocr"),
	}
}

func (t *OCRTask) Kind() models.TaskKind { return models.TaskOCR }

func (t *OCRTask) Process(ctx context.Context, documentID string) Result {
	doc, res, ok := loadDocument(ctx, t.db, documentID)
	if !ok {
		return res
	}

	switch doc.Status {
	case models.StatusUploading, models.StatusUploaded, models.StatusOCRProcessing:
	default:
		return Skipped(fmt.Sprintf("nothing to extract in status %s", doc.Status))
	}

	var data []byte
	if doc.Status == models.StatusUploading {
		var err error
		if data, err = t.fetch(ctx, doc); err != nil {
			return Failed(err)
		}
		if res, ok := advance(ctx, t.db, doc, models.StatusUploaded); !ok {
			return res
		}
	}
	if doc.Status == models.StatusUploaded {
		if res, ok := advance(ctx, t.db, doc, models.StatusOCRProcessing); !ok {
			return res
		}
	}
	if data == nil {
		var err error
		if data, err = t.fetch(ctx, doc); err != nil {
			return Failed(err)
		}
	}

	text, err := t.extractor.ExtractText(ctx, data, doc.ContentType)
	if err != nil {
		return Failed(err)
	}
	if strings.TrimSpace(text) == "" {
		return Failed(core.Unrecoverable(models.StageOCR, core.ErrEmptyText))
	}

	doc.ExtractedText = text
	if res, ok := advance(ctx, t.db, doc, models.StatusPendingValidation); !ok {
		return res
	}
	t.logger.Info("OCR: text extracted", "document_id", doc.ID, "chars", len(text))

	t.releaseSource(ctx, doc)

	if t.autoConfirm {
		// Auto-confirm goes through the same compare-and-set as a human confirm.
		if err := t.confirm(ctx, doc); err != nil {
			t.logger.Warn("OCR: auto-confirm failed, document left for manual confirmation", "document_id", doc.ID, "error", err)
		}
	}
	return Succeeded()
}

func (t *OCRTask) fetch(ctx context.Context, doc *models.Document) ([]byte, error) {
	if doc.SourceRef == "" {
		return nil, core.Unrecoverable(models.StageOCR, core.ErrSourceMissing)
	}
	data, err := t.blobs.GetFile(ctx, doc.SourceRef)
	if errors.Is(err, core.ErrSourceMissing) {
		return nil, core.Unrecoverable(models.StageOCR, core.ErrSourceMissing)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// releaseSource drops the raw upload once its text is safely persisted.
// A failed delete keeps source_ref so the blob can still be cleaned up later.
func (t *OCRTask) releaseSource(ctx context.Context, doc *models.Document) {
	if err := t.blobs.DeleteFile(ctx, doc.SourceRef); err != nil && !errors.Is(err, core.ErrSourceMissing) {
		t.logger.Warn("OCR: could not delete source blob", "document_id", doc.ID, "source_ref", doc.SourceRef, "error", err)
		return
	}
	if err := t.db.ClearSourceRef(ctx, doc.ID); err != nil {
		t.logger.Warn("OCR: could not clear source_ref", "document_id", doc.ID, "error", err)
		return
	}
	doc.SourceRef = ""
}

func (t *OCRTask) confirm(ctx context.Context, doc *models.Document) error {
	if res, ok := advance(ctx, t.db, doc, models.StatusEmbedding); !ok {
		return res.Err
	}
	if err := t.queue.Enqueue(ctx, models.TaskMessage{Kind: models.TaskEmbedding, DocumentID: doc.ID}); err != nil {
		// Leave the document where a human can pick it up again.
		doc.Status = models.StatusPendingValidation
		if rerr := t.db.UpdateDocument(ctx, doc, models.StatusEmbedding); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// MarkFailed records the terminal OCR failure. A document still UPLOADING
// becomes UPLOAD_FAILED, any later OCR state PROCESSING_FAILED.
func (t *OCRTask) MarkFailed(ctx context.Context, documentID string, cause error) error {
	status, err := markFailed(ctx, t.db, documentID, models.StageOCR, cause,
		map[models.DocumentStatus]models.DocumentStatus{models.StatusUploaded: models.StatusOCRProcessing},
		models.StatusUploading, models.StatusOCRProcessing)
	if err != nil {
		return fmt.Errorf("mark ocr failure for %s: %w", documentID, err)
	}
	if status.IsFailed() {
		t.logger.Info("OCR: document marked failed", "document_id", documentID, "status", status)
	}
	return nil
}
