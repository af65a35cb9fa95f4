package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/markdave123-py/docflow/internal/core"
	"github.com/markdave123-py/docflow/internal/models"
)

var _ Ingestor = (*Executor)(nil)
var _ core.TaskQueue = (*Executor)(nil)

// markFailedTimeout bounds the final status write when the task budget is already spent.
const markFailedTimeout = 30 * time.Second

// Executor is a bounded in-process task queue drained by an ants worker pool.
// Tasks for the same document never run concurrently: while one is on a
// worker, later ones wait beside the queue without holding a worker.
type Executor struct {
	cfg      *IngestConfig
	jobs     chan models.TaskMessage
	pool     *ants.Pool
	keys     *keyedQueue
	logger   *slog.Logger
	handlers map[models.TaskKind]Handler

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	running   sync.WaitGroup
}

func NewExecutor(cfg *IngestConfig, logger *slog.Logger, handlers ...Handler) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p any) {
		logger.Error("Executor: worker panic escaped task boundary", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	e := &Executor{
		cfg:      cfg,
		jobs:     make(chan models.TaskMessage, cfg.QueueSize),
		pool:     pool,
		keys:     newKeyedQueue(),
		logger:   logger.With("component", "executor"),
		handlers: make(map[models.TaskKind]Handler, len(handlers)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, h := range handlers {
		e.Register(h)
	}
	return e, nil
}

// Register adds or replaces the handler for h.Kind(). Call before Start.
func (e *Executor) Register(h Handler) {
	e.handlers[h.Kind()] = h
}

// Start launches the dispatcher. It returns immediately; later calls are no-ops.
func (e *Executor) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.logger.Info("Executor: starting", "workers", e.cfg.Workers, "queue_size", e.cfg.QueueSize)
		go e.dispatch(ctx)
	})
}

func (e *Executor) dispatch(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case msg := <-e.jobs:
			if !e.keys.claim(msg) {
				e.logger.Debug("Executor: document busy, task parked", "task", msg.Kind, "document_id", msg.DocumentID)
				continue
			}
			e.submit(msg)
		}
	}
}

// submit hands a claimed message to the pool. Submit blocks while every
// worker is busy, which keeps the queue as the only buffer.
func (e *Executor) submit(msg models.TaskMessage) {
	e.running.Add(1)
	if err := e.pool.Submit(func() {
		defer e.running.Done()
		e.drain(msg)
	}); err != nil {
		e.running.Done()
		dropped := e.keys.release(msg.DocumentID)
		e.logger.Error("Executor: dropping task", "task", msg.Kind, "document_id", msg.DocumentID, "parked_dropped", dropped, "error", err)
	}
}

// drain runs msg and then every task parked behind it for the same document.
func (e *Executor) drain(msg models.TaskMessage) {
	for {
		e.run(msg)

		select {
		case <-e.stop:
			if dropped := e.keys.release(msg.DocumentID); dropped > 0 {
				e.logger.Warn("Executor: parked tasks dropped on shutdown", "document_id", msg.DocumentID, "count", dropped)
			}
			return
		default:
		}

		next, ok := e.keys.next(msg.DocumentID)
		if !ok {
			return
		}
		msg = next
	}
}

// Enqueue hands msg to the queue. It waits up to the configured enqueue timeout
// for a free slot and then fails with core.ErrQueueFull.
func (e *Executor) Enqueue(ctx context.Context, msg models.TaskMessage) error {
	if _, ok := e.handlers[msg.Kind]; !ok {
		return fmt.Errorf("no handler registered for task %q", msg.Kind)
	}
	select {
	case <-e.stop:
		return core.ErrExecutorStopped
	default:
	}

	select {
	case e.jobs <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(e.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case e.jobs <- msg:
		return nil
	case <-timer.C:
		return core.ErrQueueFull
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", core.ErrQueueFull, ctx.Err())
	case <-e.stop:
		return core.ErrExecutorStopped
	}
}

// Pending reports how many tasks wait in the queue or behind a busy document.
func (e *Executor) Pending() int {
	return len(e.jobs) + e.keys.waiting()
}

// Shutdown stops accepting work, waits for running tasks and releases the pool.
// Tasks still queued are dropped; their documents keep their persisted status.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stop) })
	e.startOnce.Do(func() { close(e.done) })

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	idle := make(chan struct{})
	go func() {
		e.running.Wait()
		close(idle)
	}()

	var err error
	select {
	case <-idle:
	case <-ctx.Done():
		err = ctx.Err()
	}
	e.pool.Release()

	if dropped := e.Pending(); dropped > 0 {
		e.logger.Warn("Executor: queued tasks dropped on shutdown", "count", dropped)
	}
	e.logger.Info("Executor: stopped")
	return err
}

func (e *Executor) run(msg models.TaskMessage) {
	h := e.handlers[msg.Kind]
	log := e.logger.With("task", msg.Kind, "document_id", msg.DocumentID)

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TaskTimeout)
	defer cancel()

	ran := 0
	res := RetryWithBackoff(ctx, e.cfg.Retry, func(attempt int) Result {
		ran = attempt
		r := e.process(ctx, h, msg.DocumentID)
		if r.Outcome == OutcomeTransient {
			log.Warn("Executor: transient failure", "attempt", attempt, "max_attempts", e.cfg.Retry.MaxAttempts, "error", r.Err)
		}
		return r
	})

	switch res.Outcome {
	case OutcomeSuccess:
		log.Info("Executor: task completed")
		return
	case OutcomeSkipped:
		log.Debug("Executor: task skipped", "reason", res.Err)
		return
	}

	cause := res.Err
	if res.Outcome == OutcomeTransient {
		cause = fmt.Errorf("giving up after %d attempts: %w", ran, res.Err)
	}
	log.Error("Executor: task failed", "outcome", res.Outcome, "error", cause)

	markCtx := ctx
	if ctx.Err() != nil {
		var markCancel context.CancelFunc
		markCtx, markCancel = context.WithTimeout(context.Background(), markFailedTimeout)
		defer markCancel()
	}
	if err := h.MarkFailed(markCtx, msg.DocumentID, cause); err != nil {
		log.Error("Executor: could not record failure", "error", err)
	}
}

// process runs one attempt and turns a panic into an unrecoverable result.
func (e *Executor) process(ctx context.Context, h Handler, documentID string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Outcome: OutcomeUnrecoverable, Err: fmt.Errorf("task panicked: %v", p)}
		}
	}()
	return h.Process(ctx, documentID)
}
