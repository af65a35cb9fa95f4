package ingestion_engine

import (
	"errors"
)

// Outcome classifies how a task attempt ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeSkipped means the task found nothing to do: the document is gone
	// or has already moved past the state this task serves.
	OutcomeSkipped
	OutcomeTransient
	OutcomeUnrecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeTransient:
		return "transient"
	case OutcomeUnrecoverable:
		return "unrecoverable"
	}
	return "unknown"
}

// Result is what a task attempt hands back to the executor's retry policy.
type Result struct {
	Outcome Outcome
	Err     error
}

func Succeeded() Result {
	return Result{Outcome: OutcomeSuccess}
}

func Skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Err: errors.New(reason)}
}

// Failed classifies err into a transient or unrecoverable result.
func Failed(err error) Result {
	if err == nil {
		return Succeeded()
	}
	return Result{Outcome: Classify(err), Err: err}
}
