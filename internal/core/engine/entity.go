// Package engine implements the generic asynchronous job-collection engine
// every assistant module is built on: an ordered keyed store of entities that
// move pending -> processing -> completed|error, a lifecycle controller that
// dispatches work to a pluggable processor, and a selection helper for
// list-and-detail views.
package engine

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an entity. Transitions only move forward;
// terminal states are never left through Update.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status is completed or error.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// Entity is one trackable item in a store, parameterized by the module's
// input and result types. Input is immutable after creation. Result is set
// only when completed, ErrorInfo only when errored; never both.
type Entity[I, R any] struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Input     I         `json:"input"`
	Result    *R        `json:"result,omitempty"`
	ErrorInfo *string   `json:"error_info,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound is returned when an operation references an entity id
	// absent from the store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTransition is returned when a patch would move status
	// backward, or retry is requested from a non-error state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TimeoutReason is the ErrorInfo recorded when processing exceeds the
// controller's per-job bound.
const TimeoutReason = "processing timed out"

// InterruptedReason is the ErrorInfo recorded when a restored record is
// found pending or processing: the process that owned the job is gone.
const InterruptedReason = "processing interrupted"
