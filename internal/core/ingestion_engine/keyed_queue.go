package ingestion_engine

import (
	"sync"

	"github.com/markdave123-py/docflow/internal/models"
)

// keyedQueue tracks which documents have a task on a worker. Messages for a
// busy document are parked behind it instead of occupying a worker, and an
// identical message already parked is not parked twice.
type keyedQueue struct {
	mu     sync.Mutex
	parked map[string][]models.TaskMessage
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{parked: make(map[string][]models.TaskMessage)}
}

// claim marks msg's document busy and reports true, or parks msg and reports
// false when the document is already busy.
func (q *keyedQueue) claim(msg models.TaskMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	waiting, busy := q.parked[msg.DocumentID]
	if !busy {
		q.parked[msg.DocumentID] = nil
		return true
	}
	for _, m := range waiting {
		if m == msg {
			return false
		}
	}
	q.parked[msg.DocumentID] = append(waiting, msg)
	return false
}

// next hands over the oldest parked message for key. When none is left the
// key is released and ok is false.
func (q *keyedQueue) next(key string) (msg models.TaskMessage, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	waiting := q.parked[key]
	if len(waiting) == 0 {
		delete(q.parked, key)
		return models.TaskMessage{}, false
	}
	q.parked[key] = waiting[1:]
	return waiting[0], true
}

// release frees key and returns how many parked messages were discarded.
func (q *keyedQueue) release(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.parked[key])
	delete(q.parked, key)
	return n
}

// busy returns the number of documents with a task on a worker.
func (q *keyedQueue) busy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.parked)
}

// waiting returns the number of parked messages.
func (q *keyedQueue) waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, w := range q.parked {
		n += len(w)
	}
	return n
}
