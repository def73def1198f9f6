package command

import (
	"errors"
	"fmt"

	"github.com/dshills/courier/key"
)

// Dispatch failures are classified so callers can branch on the category
// with errors.Is while the structured detail stays reachable via errors.As.
var (
	// ErrNoHandler matches dispatches that found no handler for the key.
	ErrNoHandler = errors.New("command: no handler")

	// ErrMultipleHandlers matches dispatches that found more than one
	// active handler for the key.
	ErrMultipleHandlers = errors.New("command: multiple handlers")

	// ErrHandlerFailed matches dispatches that reached the handler path but
	// produced no result: middleware cancellation, an invalidated handler,
	// a handler error, or a handler panic.
	ErrHandlerFailed = errors.New("command: handler failed")
)

// Code classifies a RoutingError.
type Code int

const (
	// CodeNoHandler means no handler was registered for the command key.
	CodeNoHandler Code = iota + 1

	// CodeMultipleHandlers means routing was ambiguous.
	CodeMultipleHandlers

	// CodeHandlerFailed means the dispatch was cancelled or the handler
	// became invalid, returned an error, or panicked.
	CodeHandlerFailed
)

// String returns the snake_case name of the code.
func (c Code) String() string {
	switch c {
	case CodeNoHandler:
		return "no_handler"
	case CodeMultipleHandlers:
		return "multiple_handlers"
	case CodeHandlerFailed:
		return "handler_failed"
	default:
		return "unknown"
	}
}

// sentinel returns the errors.Is sentinel for the code.
func (c Code) sentinel() error {
	switch c {
	case CodeNoHandler:
		return ErrNoHandler
	case CodeMultipleHandlers:
		return ErrMultipleHandlers
	case CodeHandlerFailed:
		return ErrHandlerFailed
	default:
		return nil
	}
}

// RoutingError describes why a dispatch produced no result.
type RoutingError struct {
	Code    Code
	Key     key.Key
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q: %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("command %q: %s", e.Key, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *RoutingError) Is(target error) bool {
	return target != nil && target == e.Code.sentinel()
}
