package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/docflow/internal/models"
)

// Ingestor runs document tasks in the background.
type Ingestor interface {
	Start(ctx context.Context)
	Enqueue(ctx context.Context, msg models.TaskMessage) error
	Shutdown(ctx context.Context) error
}

// Handler executes one kind of task. Process reports its outcome instead of
// panicking or returning errors upward; MarkFailed persists the terminal
// failure once retries are exhausted or the failure is unrecoverable.
type Handler interface {
	Kind() models.TaskKind
	Process(ctx context.Context, documentID string) Result
	MarkFailed(ctx context.Context, documentID string, cause error) error
}
