package mock

import (
	"context"
	"sync"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ core.TaskQueue = (*RecordingQueue)(nil)

// RecordingQueue records enqueued tasks without running them.
type RecordingQueue struct {
	mu   sync.Mutex
	msgs []models.TaskMessage

	// Err, when set, rejects every Enqueue.
	Err error
}

func (q *RecordingQueue) Enqueue(ctx context.Context, msg models.TaskMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *RecordingQueue) Messages() []models.TaskMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.TaskMessage(nil), q.msgs...)
}
