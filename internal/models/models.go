package models

import (
	"time"
)

// DocumentStatus is the persisted lifecycle state of a document.
type DocumentStatus string

const (
	StatusUploading         DocumentStatus = "UPLOADING"
	StatusUploadFailed      DocumentStatus = "UPLOAD_FAILED"
	StatusUploaded          DocumentStatus = "UPLOADED"
	StatusOCRProcessing     DocumentStatus = "OCR_PROCESSING"
	StatusPendingValidation DocumentStatus = "PENDING_VALIDATION"
	StatusEmbedding         DocumentStatus = "EMBEDDING"
	StatusCompleted         DocumentStatus = "COMPLETED"
	StatusProcessingFailed  DocumentStatus = "PROCESSING_FAILED"
)

// IsFailed reports whether s is one of the recoverable failure states.
func (s DocumentStatus) IsFailed() bool {
	return s == StatusUploadFailed || s == StatusProcessingFailed
}

// IsInFlight reports whether a background task owns the document in state s.
func (s DocumentStatus) IsInFlight() bool {
	return s == StatusUploading || s == StatusOCRProcessing || s == StatusEmbedding
}

// FailedStage names the pipeline stage that produced a failure.
type FailedStage string

const (
	StageNone      FailedStage = ""
	StageOCR       FailedStage = "OCR"
	StageEmbedding FailedStage = "EMBEDDING"
)

// ReasonPrefix is the tag written in front of failed_reason for this stage.
func (s FailedStage) ReasonPrefix() string {
	switch s {
	case StageOCR:
		return "OCR: "
	case StageEmbedding:
		return "Embedding: "
	}
	return ""
}

// Document represents one uploaded artifact and its pipeline state.
type Document struct {
	ID            string         `db:"id" json:"id"`
	TenantID      string         `db:"tenant_id" json:"tenant_id"`
	Title         string         `db:"title" json:"title"`
	ContentType   string         `db:"content_type" json:"content_type"`
	Tags          []string       `db:"tags" json:"tags"`
	Status        DocumentStatus `db:"status" json:"status"`
	SourceRef     string         `db:"source_ref" json:"source_ref,omitempty"` // blob key or URL, empty once released
	ExtractedText string         `db:"extracted_text" json:"extracted_text,omitempty"`
	FailedReason  string         `db:"failed_reason" json:"failed_reason,omitempty"`
	FailedStage   FailedStage    `db:"failed_stage" json:"failed_stage,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy that shares no slices with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	return &c
}

// TaskKind selects the background unit of work for a document.
type TaskKind string

const (
	TaskOCR       TaskKind = "ocr"
	TaskEmbedding TaskKind = "embedding"
)

// TaskMessage is the queued unit of work. Everything else is re-read from the
// repository when the task starts.
type TaskMessage struct {
	Kind       TaskKind `json:"kind"`
	DocumentID string   `json:"document_id"`
}

// VectorMetadata is stored next to every embedding in the vector index.
type VectorMetadata struct {
	Source     string   `json:"source"`
	Content    string   `json:"content"`
	DocumentID string   `json:"document_id"`
	Tags       []string `json:"tags,omitempty"`
}

// VectorEntry is one embedded chunk.
type VectorEntry struct {
	ID        string         `db:"vector_id" json:"vector_id"`
	Embedding []float32      `db:"embedding" json:"embedding"`
	Metadata  VectorMetadata `db:"metadata" json:"metadata"`
}

// VectorMatch is a similarity search hit.
type VectorMatch struct {
	ID       string         `json:"vector_id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

// RetrievalContext is the grounding material handed to the chat layer.
type RetrievalContext struct {
	Context         string   `json:"context"`
	DocumentIDs     []string `json:"document_ids"`
	TopScorePercent *float64 `json:"top_score_percent"`
}

// NamespaceForTenant derives the vector namespace that isolates a tenant's chunks.
func NamespaceForTenant(tenantID string) string {
	return "tenant-" + tenantID
}
