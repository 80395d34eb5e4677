package reports

import (
	"errors"
	"strings"
)

var (
	// ErrJobNotFound is returned for unknown report job IDs
	ErrJobNotFound = errors.New("report job not found")

	// ErrInvalidRequest wraps every request validation failure
	ErrInvalidRequest = errors.New("invalid report request")

	// ErrInvalidTransition is returned for status changes outside the state machine
	ErrInvalidTransition = errors.New("invalid report status transition")

	// ErrTerminalState is returned when a completed or failed job would change
	ErrTerminalState = errors.New("report job is in a terminal state")
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidRequestError lists the rejected fields of a report request
type InvalidRequestError struct {
	Fields []FieldError
}

func (e *InvalidRequestError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return ErrInvalidRequest.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}
