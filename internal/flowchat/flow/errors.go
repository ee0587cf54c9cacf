package flow

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid flow input")

// ValidationError reports a flow input rejected before any backend call.
type ValidationError struct {
	Flow   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Flow, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RemoteServiceError reports a failed flow invocation: transport errors,
// timeouts and responses that do not match the flow's output schema.
type RemoteServiceError struct {
	Flow string
	Err  error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("flow %s failed: %v", e.Flow, e.Err)
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}
