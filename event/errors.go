package event

import (
	"errors"
	"fmt"

	"github.com/dshills/courier/key"
)

var (
	// ErrCancelled is returned when a before-hook vetoes the broadcast. No
	// listener ran.
	ErrCancelled = errors.New("event: broadcast cancelled by middleware")

	// ErrUnresolvedKey is returned when no routing key can be derived from
	// the event.
	ErrUnresolvedKey = errors.New("event: cannot resolve event key")
)

// ListenerError wraps an error returned (or recovered) from a listener,
// identifying which subscription produced it.
type ListenerError struct {
	Key key.Key
	ID  uint64
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("event: listener %d on %q: %v", e.ID, e.Key, e.Err)
}

// Unwrap returns the listener's error.
func (e *ListenerError) Unwrap() error {
	return e.Err
}
