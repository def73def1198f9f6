package routing

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for registration.
var (
	// ErrEmptyKey is returned when registering under an empty key.
	ErrEmptyKey = errors.New("routing: empty key")

	// ErrInvalidHandler is returned when a handler is nil or not invocable.
	ErrInvalidHandler = errors.New("routing: invalid handler")

	// ErrInvalidHook is returned when a hook callback is nil.
	ErrInvalidHook = errors.New("routing: invalid hook")

	// ErrHandlerPanic matches any PanicError via errors.Is.
	ErrHandlerPanic = errors.New("routing: handler panicked")
)

// PanicError wraps a recovered panic value as an error, preserving the
// stack captured at recovery time.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// NewPanicError captures the current stack around a recovered panic value.
// Call it from inside a deferred recover block.
func NewPanicError(value any) *PanicError {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	return &PanicError{Value: value, Stack: stack[:n]}
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("routing: handler panicked: %v", e.Value)
}

// Is allows errors.Is to match a PanicError against ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
