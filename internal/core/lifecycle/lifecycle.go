// Package lifecycle holds the document state machine. Every status change in
// the pipeline goes through Transition or Fail so illegal edges are rejected
// with a typed error instead of being written.
package lifecycle

import (
	"strings"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var edges = map[models.DocumentStatus][]models.DocumentStatus{
	models.StatusUploading:         {models.StatusUploaded, models.StatusUploadFailed},
	models.StatusUploaded:          {models.StatusOCRProcessing, models.StatusEmbedding},
	models.StatusOCRProcessing:     {models.StatusPendingValidation, models.StatusProcessingFailed},
	models.StatusPendingValidation: {models.StatusEmbedding},
	models.StatusEmbedding:         {models.StatusCompleted, models.StatusProcessingFailed},
	models.StatusCompleted:         {models.StatusEmbedding},
	// failure states are left only through an explicit retry or a content update
	models.StatusUploadFailed:     {models.StatusUploaded, models.StatusEmbedding},
	models.StatusProcessingFailed: {models.StatusUploaded, models.StatusPendingValidation, models.StatusEmbedding},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to models.DocumentStatus) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves doc to a non-failure status and clears any failure reason.
func Transition(doc *models.Document, to models.DocumentStatus) error {
	if to.IsFailed() || !CanTransition(doc.Status, to) {
		return &core.InvalidStateError{DocumentID: doc.ID, Current: doc.Status, Attempted: to}
	}
	doc.Status = to
	doc.FailedReason = ""
	doc.FailedStage = models.StageNone
	return nil
}

// Fail moves doc into its failure state for stage and records the tagged reason.
// A document still UPLOADING becomes UPLOAD_FAILED, anything else PROCESSING_FAILED.
func Fail(doc *models.Document, stage models.FailedStage, cause error) error {
	to := models.StatusProcessingFailed
	if doc.Status == models.StatusUploading {
		to = models.StatusUploadFailed
	}
	if !CanTransition(doc.Status, to) {
		return &core.InvalidStateError{DocumentID: doc.ID, Current: doc.Status, Attempted: to}
	}
	doc.Status = to
	doc.FailedStage = stage
	doc.FailedReason = FailureReason(stage, cause)
	return nil
}

// FailureReason renders cause with the stage tag, e.g. "OCR: source missing".
func FailureReason(stage models.FailedStage, cause error) string {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	prefix := stage.ReasonPrefix()
	if strings.HasPrefix(msg, prefix) {
		return msg
	}
	return prefix + msg
}

// ResolveFailedStage decides which stage a PROCESSING_FAILED document failed in.
// The explicit failed_stage column wins; rows written without it fall back to
// the reason tag. Anything else is an AmbiguousFailureError.
func ResolveFailedStage(doc *models.Document) (models.FailedStage, error) {
	switch doc.FailedStage {
	case models.StageOCR, models.StageEmbedding:
		return doc.FailedStage, nil
	}
	switch {
	case strings.HasPrefix(doc.FailedReason, models.StageOCR.ReasonPrefix()):
		return models.StageOCR, nil
	case strings.HasPrefix(doc.FailedReason, models.StageEmbedding.ReasonPrefix()):
		return models.StageEmbedding, nil
	}
	return models.StageNone, &core.AmbiguousFailureError{DocumentID: doc.ID, Reason: doc.FailedReason}
}

// RetryPlan is the re-entry status and the task to enqueue for a failed stage.
func RetryPlan(stage models.FailedStage) (models.DocumentStatus, models.TaskKind) {
	if stage == models.StageOCR {
		return models.StatusUploaded, models.TaskOCR
	}
	return models.StatusPendingValidation, models.TaskEmbedding
}
