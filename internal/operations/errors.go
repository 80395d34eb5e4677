package operations

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueStopped is returned by Submit after Stop and resolves tasks
	// that were still queued when the queue stopped
	ErrQueueStopped = errors.New("job queue stopped")

	// ErrQueueFull is returned when the task buffer is exhausted
	ErrQueueFull = errors.New("job queue is full")

	// ErrJobNotFound is returned by JobStore lookups
	ErrJobNotFound = errors.New("job not found")

	// ErrTaskTimeout marks a task abandoned after its deadline
	ErrTaskTimeout = errors.New("task exceeded its time limit")
)

// PanicError carries a value recovered from a panicking task
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
