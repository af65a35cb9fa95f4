package ingestion_engine

import (
	"time"
)

// IngestConfig tunes the background pipeline.
//
// Workers:          concurrent task runners in the pool.
// QueueSize:        capacity of the pending task queue; a full queue pushes back on Enqueue.
// EnqueueTimeout:   how long Enqueue waits for a free slot before ErrQueueFull.
// TaskTimeout:      budget for one task including all retry attempts.
// Retry:            backoff policy for transient failures.
// ChunkSize:        window size in characters.
// ChunkOverlap:     characters shared between consecutive windows (< ChunkSize).
// BatchSize:        chunks per embedding request.
// EmbedConcurrency: embedding requests in flight per document.
// AutoConfirm:      enqueue embedding right after OCR instead of waiting for a human.
type IngestConfig struct {
	Workers          int
	QueueSize        int
	EnqueueTimeout   time.Duration
	TaskTimeout      time.Duration
	Retry            RetryPolicy
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	EmbedConcurrency int
	AutoConfirm      bool
}

// DefaultIngestConfig returns the settings used when nothing is configured.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Workers:          4,
		QueueSize:        64,
		EnqueueTimeout:   2 * time.Second,
		TaskTimeout:      5 * time.Minute,
		Retry:            RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second},
		ChunkSize:        DefaultChunkSize,
		ChunkOverlap:     DefaultChunkOverlap,
		BatchSize:        16,
		EmbedConcurrency: 2,
	}
}

func (c *IngestConfig) normalize() {
	d := DefaultIngestConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = d.EnqueueTimeout
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	if ValidateChunking(c.ChunkSize, c.ChunkOverlap) != nil {
		c.ChunkSize, c.ChunkOverlap = d.ChunkSize, d.ChunkOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = d.EmbedConcurrency
	}
}
