package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/core/lifecycle"
	"github.com/markdave123-py/docflow/internal/models"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100

	resumeBackoff = 50 * time.Millisecond
)

// DocumentService is the lifecycle controller. Every operation is scoped by
// tenant, validates the current status, persists the new one with a
// compare-and-set and only then enqueues background work.
type DocumentService struct {
	db     core.DbClient
	blobs  core.ObjectClient
	index  core.VectorIndex
	queue  core.TaskQueue
	logger *slog.Logger
}

func NewDocumentService(db core.DbClient, blobs core.ObjectClient, index core.VectorIndex, queue core.TaskQueue, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		db:     db,
		blobs:  blobs,
		index:  index,
		queue:  queue,
		logger: logger.With("component", "documents"),
	}
}

type UploadRequest struct {
	TenantID    string
	SourceRef   string
	Title       string
	ContentType string
	Tags        []string
}

// ContentUpdate replaces a document's text. Nil Title or Tags keep the current values.
type ContentUpdate struct {
	Text  string
	Title *string
	Tags  []string
}

// StoreUpload writes raw upload bytes to the blob source and returns the
// source_ref to hand to StartUpload.
func (s *DocumentService) StoreUpload(ctx context.Context, tenantID, filename, contentType string, data io.Reader) (string, error) {
	if tenantID == "" {
		return "", &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	ref, err := s.blobs.UploadFile(ctx, objectKey(tenantID, filename), data, contentType)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return ref, nil
}

// StartUpload records a new document in UPLOADING and enqueues OCR for it.
func (s *DocumentService) StartUpload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if strings.TrimSpace(req.SourceRef) == "" {
		return nil, &core.ValidationError{Field: "source_ref", Message: "is required"}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = path.Base(req.SourceRef)
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Title:       title,
		ContentType: req.ContentType,
		Tags:        normalizeTags(req.Tags),
		Status:      models.StatusUploading,
		SourceRef:   req.SourceRef,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.queue.Enqueue(ctx, models.TaskMessage{Kind: models.TaskOCR, DocumentID: doc.ID}); err != nil {
		// No earlier state to restore; park it where RetryUpload can pick it up.
		failed := doc.Clone()
		if ferr := lifecycle.Fail(failed, models.StageOCR, err); ferr == nil {
			if uerr := s.db.UpdateDocument(ctx, failed, models.StatusUploading); uerr != nil {
				s.logger.Error("Documents: could not park unqueued upload", "document_id", doc.ID, "error", uerr)
			}
		}
		return nil, fmt.Errorf("start upload %s: %w", doc.ID, err)
	}

	s.logger.Info("Documents: upload accepted", "document_id", doc.ID, "tenant_id", doc.TenantID)
	return doc, nil
}

// RetryUpload re-runs OCR for an UPLOAD_FAILED document whose source still exists.
func (s *DocumentService) RetryUpload(ctx context.Context, tenantID, id string) (*models.Document, error) {
	const op = "retry_upload"
	doc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusUploadFailed {
		return nil, invalidState(op, doc, models.StatusUploaded)
	}
	if err := s.ensureSource(ctx, doc); err != nil {
		return nil, err
	}
	return s.advance(ctx, op, doc, models.StatusUploaded, models.TaskOCR, nil)
}

// ConfirmAndEmbed accepts the human-reviewed text and enqueues embedding.
func (s *DocumentService) ConfirmAndEmbed(ctx context.Context, tenantID, id, confirmedText string) (*models.Document, error) {
	const op = "confirm"
	if strings.TrimSpace(confirmedText) == "" {
		return nil, &core.ValidationError{Field: "confirmed_text", Message: "must not be empty"}
	}
	doc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusPendingValidation {
		return nil, invalidState(op, doc, models.StatusEmbedding)
	}
	return s.advance(ctx, op, doc, models.StatusEmbedding, models.TaskEmbedding, func(d *models.Document) {
		d.ExtractedText = confirmedText
	})
}

// RetryProcessing re-enters the stage a PROCESSING_FAILED document failed in:
// OCR through UPLOADED, embedding through PENDING_VALIDATION.
func (s *DocumentService) RetryProcessing(ctx context.Context, tenantID, id string) (*models.Document, error) {
	const op = "retry_processing"
	doc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusProcessingFailed {
		return nil, invalidState(op, doc, models.StatusPendingValidation)
	}

	stage, err := lifecycle.ResolveFailedStage(doc)
	if err != nil {
		return nil, err
	}
	target, kind := lifecycle.RetryPlan(stage)
	if stage == models.StageOCR {
		if err := s.ensureSource(ctx, doc); err != nil {
			return nil, err
		}
	}
	return s.advance(ctx, op, doc, target, kind, nil)
}

// UpdateContent overwrites text, and optionally title and tags, then re-embeds.
// Rejected while a task owns the document.
func (s *DocumentService) UpdateContent(ctx context.Context, tenantID, id string, upd ContentUpdate) (*models.Document, error) {
	const op = "update_content"
	if strings.TrimSpace(upd.Text) == "" {
		return nil, &core.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, &core.ValidationError{Field: "title", Message: "must not be blank"}
	}
	doc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.IsInFlight() {
		return nil, invalidState(op, doc, models.StatusEmbedding)
	}

	staleSource := doc.SourceRef
	updated, err := s.advance(ctx, op, doc, models.StatusEmbedding, models.TaskEmbedding, func(d *models.Document) {
		d.ExtractedText = upd.Text
		if upd.Title != nil {
			d.Title = strings.TrimSpace(*upd.Title)
		}
		if upd.Tags != nil {
			d.Tags = normalizeTags(upd.Tags)
		}
		d.SourceRef = ""
	})
	if err != nil {
		return nil, err
	}
	if staleSource != "" {
		// The new text supersedes whatever the upload would have produced.
		if derr := s.blobs.DeleteFile(ctx, staleSource); derr != nil && !errors.Is(derr, core.ErrSourceMissing) {
			s.logger.Warn("Documents: could not delete superseded upload", "document_id", id, "source_ref", staleSource, "error", derr)
		}
	}
	return updated, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	return s.load(ctx, tenantID, id)
}

// ListDocuments pages through a tenant's documents, newest first.
func (s *DocumentService) ListDocuments(ctx context.Context, tenantID string, offset, limit int) ([]models.Document, int, error) {
	if tenantID == "" {
		return nil, 0, &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	return s.db.ListDocumentsByTenant(ctx, tenantID, offset, limit)
}

// ListPendingValidation returns the documents waiting for a human to confirm their text.
func (s *DocumentService) ListPendingValidation(ctx context.Context, tenantID string) ([]models.Document, error) {
	if tenantID == "" {
		return nil, &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	return s.db.ListDocumentsByStatus(ctx, tenantID, models.StatusPendingValidation)
}

// DeleteDocument removes the row, then purges the document's vectors and its
// upload blob. The row delete is guarded by the status read here, so a task
// that picked the document up in the meantime makes the delete fail instead
// of racing it.
func (s *DocumentService) DeleteDocument(ctx context.Context, tenantID, id string) error {
	const op = "delete"
	doc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if doc.Status.IsInFlight() {
		return &core.InvalidStateError{DocumentID: doc.ID, Operation: op, Current: doc.Status}
	}

	if err := s.db.DeleteDocument(ctx, doc.ID, doc.Status); err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			current := doc.Status
			if cur, gerr := s.db.GetDocumentByID(ctx, doc.ID); gerr == nil {
				current = cur.Status
			}
			return &core.InvalidStateError{DocumentID: doc.ID, Operation: op, Current: current}
		}
		return fmt.Errorf("delete document %s: %w", doc.ID, err)
	}

	ns := models.NamespaceForTenant(doc.TenantID)
	if err := s.index.DeleteByDocument(ctx, ns, doc.ID); err != nil {
		s.logger.Error("Documents: vectors of deleted document left behind", "document_id", doc.ID, "namespace", ns, "error", err)
		return fmt.Errorf("delete vectors of %s: %w", doc.ID, err)
	}
	if doc.SourceRef != "" {
		if err := s.blobs.DeleteFile(ctx, doc.SourceRef); err != nil && !errors.Is(err, core.ErrSourceMissing) {
			s.logger.Warn("Documents: could not delete source of deleted document", "document_id", doc.ID, "source_ref", doc.SourceRef, "error", err)
		}
	}
	s.logger.Info("Documents: deleted", "document_id", doc.ID, "tenant_id", doc.TenantID)
	return nil
}

// ResumeInFlight re-enqueues work for documents a previous process left
// mid-pipeline. Documents waiting for a human are left alone. It blocks until
// every document has a queue slot, so callers run it off the serving path.
func (s *DocumentService) ResumeInFlight(ctx context.Context) (int, error) {
	plan := []struct {
		status models.DocumentStatus
		kind   models.TaskKind
	}{
		{models.StatusUploading, models.TaskOCR},
		{models.StatusUploaded, models.TaskOCR},
		{models.StatusOCRProcessing, models.TaskOCR},
		{models.StatusEmbedding, models.TaskEmbedding},
	}

	resumed := 0
	for _, p := range plan {
		docs, err := s.db.ListDocumentsByStatus(ctx, "", p.status)
		if err != nil {
			return resumed, fmt.Errorf("list %s documents: %w", p.status, err)
		}
		for _, d := range docs {
			if err := s.enqueueWhenFree(ctx, models.TaskMessage{Kind: p.kind, DocumentID: d.ID}); err != nil {
				return resumed, fmt.Errorf("resume %s: %w", d.ID, err)
			}
			resumed++
		}
	}
	if resumed > 0 {
		s.logger.Info("Documents: resumed interrupted work", "count", resumed)
	}
	return resumed, nil
}

// enqueueWhenFree keeps offering msg while the queue reports full. A backlog
// larger than the queue then drains at the pace of the workers.
func (s *DocumentService) enqueueWhenFree(ctx context.Context, msg models.TaskMessage) error {
	for {
		err := s.queue.Enqueue(ctx, msg)
		if !errors.Is(err, core.ErrQueueFull) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resumeBackoff):
		}
	}
}

// load fetches id and hides documents of other tenants.
func (s *DocumentService) load(ctx context.Context, tenantID, id string) (*models.Document, error) {
	if tenantID == "" {
		return nil, &core.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if id == "" {
		return nil, &core.ValidationError{Field: "id", Message: "is required"}
	}
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID {
		return nil, core.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) ensureSource(ctx context.Context, doc *models.Document) error {
	if doc.SourceRef == "" {
		return core.Unrecoverable(models.StageOCR, core.ErrSourceMissing)
	}
	ok, err := s.blobs.Exists(ctx, doc.SourceRef)
	if err != nil {
		return fmt.Errorf("check source of %s: %w", doc.ID, err)
	}
	if !ok {
		return core.Unrecoverable(models.StageOCR, core.ErrSourceMissing)
	}
	return nil
}

// advance applies mutate, moves doc to target, persists it with a
// compare-and-set and enqueues kind. If the queue refuses the task the
// previous row is written back so the document is never stranded.
func (s *DocumentService) advance(ctx context.Context, op string, doc *models.Document, target models.DocumentStatus, kind models.TaskKind, mutate func(*models.Document)) (*models.Document, error) {
	prev := doc.Clone()
	next := doc.Clone()
	if mutate != nil {
		mutate(next)
	}
	if err := lifecycle.Transition(next, target); err != nil {
		return nil, invalidState(op, prev, target)
	}

	if err := s.db.UpdateDocument(ctx, next, prev.Status); err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			return nil, s.conflict(ctx, op, prev, target)
		}
		return nil, fmt.Errorf("%s %s: %w", op, doc.ID, err)
	}

	if err := s.queue.Enqueue(ctx, models.TaskMessage{Kind: kind, DocumentID: next.ID}); err != nil {
		if rerr := s.db.UpdateDocument(ctx, prev.Clone(), next.Status); rerr != nil {
			s.logger.Error("Documents: could not restore after enqueue failure",
				"document_id", doc.ID, "status", next.Status, "error", rerr)
		}
		return nil, fmt.Errorf("%s %s: %w", op, doc.ID, err)
	}

	s.logger.Info("Documents: status changed", "operation", op, "document_id", doc.ID,
		"from", prev.Status, "to", next.Status, "task", kind)
	return next, nil
}

// conflict reports a lost compare-and-set with the status that won.
func (s *DocumentService) conflict(ctx context.Context, op string, prev *models.Document, target models.DocumentStatus) error {
	current := prev.Status
	if cur, err := s.db.GetDocumentByID(ctx, prev.ID); err == nil {
		current = cur.Status
	}
	return &core.InvalidStateError{DocumentID: prev.ID, Operation: op, Current: current, Attempted: target}
}

func invalidState(op string, doc *models.Document, attempted models.DocumentStatus) error {
	return &core.InvalidStateError{DocumentID: doc.ID, Operation: op, Current: doc.Status, Attempted: attempted}
}

// normalizeTags trims, drops blanks and de-duplicates while keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// objectKey creates a consistent blob key layout.
func objectKey(tenantID, filename string) string {
	filename = strings.TrimSpace(path.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "" || filename == "." || filename == "/" {
		filename = "upload"
	}
	return path.Join("tenants", tenantID, "uploads", uuid.NewString(), filename)
}
