package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/inlinesql/internal/ir"
)

var (
	// ErrNoClient is returned when neither the call arguments nor the
	// engine provide a Client.
	ErrNoClient = errors.New("no client available")

	// ErrMissingArgument is returned when a bound slot has no argument.
	ErrMissingArgument = errors.New("missing argument")
)

// CallError is a failure realizing a plan.
//
// Err is the failure after error conversion: the client error itself when
// the plan widens, or whatever the registered error mapper returned.
// CallError unwraps to Err, so errors.Is and errors.As reach the original.
type CallError struct {
	// Function is the plan's function name.
	Function string

	// Op is the client operation that was running, empty for failures
	// before the client is reached.
	Op ir.ClientOp

	// CallID correlates the error with the call's log records.
	CallID string

	Err error
}

func (e *CallError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Function, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// PrepareError reports a plan the engine cannot realize.
type PrepareError struct {
	Function string
	Message  string
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s: %s", e.Function, e.Message)
}

// IsCallError returns true if err is or wraps a CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}
