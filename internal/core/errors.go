package core

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/docflow/internal/models"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrStatusConflict   = errors.New("document status changed concurrently")
	ErrSourceMissing    = errors.New("source missing")
	ErrEmptyText        = errors.New("extracted text is empty")
	ErrNoChunks         = errors.New("text produced no chunks")
	ErrQueueFull        = errors.New("task queue is full")
	ErrExecutorStopped  = errors.New("task executor stopped")
)

// ValidationError rejects bad input to a controller operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// InvalidStateError is returned when an operation is attempted from a status
// that does not allow it.
type InvalidStateError struct {
	DocumentID string
	Operation  string
	Current    models.DocumentStatus
	Attempted  models.DocumentStatus
}

func (e *InvalidStateError) Error() string {
	op := e.Operation
	if op == "" {
		op = "transition"
	}
	if e.Attempted == "" {
		return fmt.Sprintf("%s: document %s is %s", op, e.DocumentID, e.Current)
	}
	return fmt.Sprintf("%s: document %s cannot move from %s to %s", op, e.DocumentID, e.Current, e.Attempted)
}

// UnrecoverableError is terminal on first occurrence; retrying the same work cannot help.
type UnrecoverableError struct {
	Stage models.FailedStage
	Err   error
}

func (e *UnrecoverableError) Error() string {
	return e.Stage.ReasonPrefix() + e.Err.Error()
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// AmbiguousFailureError is raised when a failed document carries no stage tag,
// so the retry step cannot be determined.
type AmbiguousFailureError struct {
	DocumentID string
	Reason     string
}

func (e *AmbiguousFailureError) Error() string {
	return fmt.Sprintf("document %s: cannot determine failed stage from reason %q", e.DocumentID, e.Reason)
}

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Unrecoverable wraps err as an UnrecoverableError for stage. A nil err stays nil.
func Unrecoverable(stage models.FailedStage, err error) error {
	if err == nil {
		return nil
	}
	return &UnrecoverableError{Stage: stage, Err: err}
}
