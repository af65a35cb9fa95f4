package core

import (
	"context"
	"io"

	"github.com/markdave123-py/docflow/internal/models"
)

// DbClient defines the persistence operations of the document pipeline.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Document, int, error)
	ListDocumentsByStatus(ctx context.Context, tenantID string, status models.DocumentStatus) ([]models.Document, error)

	// UpdateDocument writes every mutable field of doc, but only while the stored
	// status still equals expected. A lost race returns ErrStatusConflict.
	UpdateDocument(ctx context.Context, doc *models.Document, expected models.DocumentStatus) error
	ClearSourceRef(ctx context.Context, id string) error
	// DeleteDocument removes the row only while its status still equals expected.
	DeleteDocument(ctx context.Context, id string, expected models.DocumentStatus) error

	Close() error
}

// ObjectClient is the blob source the pipeline reads uploaded bytes from.
// Missing objects are reported with an error wrapping ErrSourceMissing.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (ref string, err error)
	GetFile(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
	DeleteFile(ctx context.Context, ref string) error
}

// VectorIndex is a namespaced embedding store. Implementations must be safe
// for concurrent use by many workers.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, entries []models.VectorEntry) error
	// DeleteByDocument removes every entry of documentID. An unknown namespace is not an error.
	DeleteByDocument(ctx context.Context, namespace, documentID string) error
	// Query returns at most topK matches ordered by descending score.
	Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]models.VectorMatch, error)
}

// TaskQueue accepts background work without waiting for it to run.
type TaskQueue interface {
	Enqueue(ctx context.Context, msg models.TaskMessage) error
}
