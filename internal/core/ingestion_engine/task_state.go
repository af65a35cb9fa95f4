package ingestion_engine

import (
	"context"
	"errors"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/core/lifecycle"
	"github.com/markdave123-py/docflow/internal/models"
)

// loadDocument re-reads the document at task start. ok is false when the
// task should stop with res.
func loadDocument(ctx context.Context, db core.DbClient, id string) (doc *models.Document, res Result, ok bool) {
	doc, err := db.GetDocumentByID(ctx, id)
	if errors.Is(err, core.ErrDocumentNotFound) {
		return nil, Skipped("document no longer exists"), false
	}
	if err != nil {
		return nil, Failed(err), false
	}
	return doc, Result{}, true
}

// advance moves doc to the next status and persists it with a compare-and-set
// on the status it was loaded with. Losing the race means another actor owns
// the document now, so the task stops quietly.
func advance(ctx context.Context, db core.DbClient, doc *models.Document, to models.DocumentStatus) (Result, bool) {
	prev := doc.Status
	if err := lifecycle.Transition(doc, to); err != nil {
		return Skipped(err.Error()), false
	}
	err := db.UpdateDocument(ctx, doc, prev)
	switch {
	case err == nil:
		return Result{}, true
	case errors.Is(err, core.ErrStatusConflict), errors.Is(err, core.ErrDocumentNotFound):
		return Result{Outcome: OutcomeSkipped, Err: err}, false
	}
	doc.Status = prev
	return Failed(err), false
}

// markFailed persists the failure state for stage. via is walked first when the
// document has not reached the stage's working status yet.
func markFailed(ctx context.Context, db core.DbClient, id string, stage models.FailedStage, cause error, via map[models.DocumentStatus]models.DocumentStatus, accepted ...models.DocumentStatus) (models.DocumentStatus, error) {
	doc, err := db.GetDocumentByID(ctx, id)
	if errors.Is(err, core.ErrDocumentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	prev := doc.Status
	if next, ok := via[doc.Status]; ok {
		if err := lifecycle.Transition(doc, next); err != nil {
			return prev, err
		}
	} else if !statusIn(doc.Status, accepted) {
		return prev, nil
	}

	if err := lifecycle.Fail(doc, stage, cause); err != nil {
		return prev, err
	}
	if err := db.UpdateDocument(ctx, doc, prev); err != nil {
		if errors.Is(err, core.ErrStatusConflict) || errors.Is(err, core.ErrDocumentNotFound) {
			return prev, nil
		}
		return prev, err
	}
	return doc.Status, nil
}

func statusIn(s models.DocumentStatus, set []models.DocumentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
