package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var allStatuses = []models.DocumentStatus{
	models.StatusUploading,
	models.StatusUploadFailed,
	models.StatusUploaded,
	models.StatusOCRProcessing,
	models.StatusPendingValidation,
	models.StatusEmbedding,
	models.StatusCompleted,
	models.StatusProcessingFailed,
}

func TestCanTransition_OnlyDeclaredEdges(t *testing.T) {
	allowed := map[[2]models.DocumentStatus]struct{}{
		{models.StatusUploading, models.StatusUploaded}:                 {},
		{models.StatusUploading, models.StatusUploadFailed}:             {},
		{models.StatusUploaded, models.StatusOCRProcessing}:             {},
		{models.StatusUploaded, models.StatusEmbedding}:                 {},
		{models.StatusOCRProcessing, models.StatusPendingValidation}:    {},
		{models.StatusOCRProcessing, models.StatusProcessingFailed}:     {},
		{models.StatusPendingValidation, models.StatusEmbedding}:        {},
		{models.StatusEmbedding, models.StatusCompleted}:                {},
		{models.StatusEmbedding, models.StatusProcessingFailed}:         {},
		{models.StatusCompleted, models.StatusEmbedding}:                {},
		{models.StatusUploadFailed, models.StatusUploaded}:              {},
		{models.StatusUploadFailed, models.StatusEmbedding}:             {},
		{models.StatusProcessingFailed, models.StatusUploaded}:          {},
		{models.StatusProcessingFailed, models.StatusPendingValidation}: {},
		{models.StatusProcessingFailed, models.StatusEmbedding}:         {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			_, want := allowed[[2]models.DocumentStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition_IllegalEdgeReturnsInvalidStateError(t *testing.T) {
	doc := &models.Document{ID: "d1", Status: models.StatusOCRProcessing}

	err := Transition(doc, models.StatusEmbedding)
	require.Error(t, err)

	var ise *core.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, models.StatusOCRProcessing, ise.Current)
	assert.Equal(t, models.StatusEmbedding, ise.Attempted)
	assert.Equal(t, models.StatusOCRProcessing, doc.Status, "status must not change on rejection")
}

func TestTransition_RejectsFailureTargets(t *testing.T) {
	doc := &models.Document{ID: "d1", Status: models.StatusEmbedding}
	err := Transition(doc, models.StatusProcessingFailed)

	var ise *core.InvalidStateError
	require.True(t, errors.As(err, &ise))
}

func TestTransition_ClearsFailureReason(t *testing.T) {
	doc := &models.Document{
		ID:           "d1",
		Status:       models.StatusProcessingFailed,
		FailedReason: "Embedding: boom",
		FailedStage:  models.StageEmbedding,
	}
	require.NoError(t, Transition(doc, models.StatusPendingValidation))
	assert.Equal(t, models.StatusPendingValidation, doc.Status)
	assert.Empty(t, doc.FailedReason)
	assert.Equal(t, models.StageNone, doc.FailedStage)
}

func TestFail_UploadingBecomesUploadFailed(t *testing.T) {
	doc := &models.Document{ID: "d1", Status: models.StatusUploading}
	require.NoError(t, Fail(doc, models.StageOCR, core.ErrSourceMissing))

	assert.Equal(t, models.StatusUploadFailed, doc.Status)
	assert.Equal(t, "OCR: source missing", doc.FailedReason)
	assert.Equal(t, models.StageOCR, doc.FailedStage)
}

func TestFail_ProcessingStages(t *testing.T) {
	doc := &models.Document{ID: "d1", Status: models.StatusEmbedding}
	require.NoError(t, Fail(doc, models.StageEmbedding, errors.New("index unavailable")))
	assert.Equal(t, models.StatusProcessingFailed, doc.Status)
	assert.Equal(t, "Embedding: index unavailable", doc.FailedReason)

	doc = &models.Document{ID: "d2", Status: models.StatusCompleted}
	err := Fail(doc, models.StageEmbedding, errors.New("x"))
	var ise *core.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, models.StatusCompleted, doc.Status)
}

func TestFailureReason_DoesNotDoubleTag(t *testing.T) {
	err := core.Unrecoverable(models.StageOCR, core.ErrSourceMissing)
	assert.Equal(t, "OCR: source missing", FailureReason(models.StageOCR, err))
	assert.Equal(t, "Embedding: unknown error", FailureReason(models.StageEmbedding, nil))
}

func TestResolveFailedStage(t *testing.T) {
	cases := []struct {
		name  string
		doc   models.Document
		want  models.FailedStage
		ambig bool
	}{
		{name: "explicit column", doc: models.Document{FailedStage: models.StageEmbedding, FailedReason: "OCR: misleading"}, want: models.StageEmbedding},
		{name: "ocr tag", doc: models.Document{FailedReason: "OCR: extractor crashed"}, want: models.StageOCR},
		{name: "embedding tag", doc: models.Document{FailedReason: "Embedding: index down"}, want: models.StageEmbedding},
		{name: "untagged", doc: models.Document{FailedReason: "something broke"}, ambig: true},
		{name: "empty", doc: models.Document{}, ambig: true},
		{name: "tag not at start", doc: models.Document{FailedReason: "failed during OCR: x"}, ambig: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.doc.ID = "d1"
			stage, err := ResolveFailedStage(&tc.doc)
			if tc.ambig {
				var afe *core.AmbiguousFailureError
				require.True(t, errors.As(err, &afe))
				assert.Equal(t, tc.doc.FailedReason, afe.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, stage)
		})
	}
}

func TestRetryPlan(t *testing.T) {
	status, kind := RetryPlan(models.StageOCR)
	assert.Equal(t, models.StatusUploaded, status)
	assert.Equal(t, models.TaskOCR, kind)

	status, kind = RetryPlan(models.StageEmbedding)
	assert.Equal(t, models.StatusPendingValidation, status)
	assert.Equal(t, models.TaskEmbedding, kind)
}

