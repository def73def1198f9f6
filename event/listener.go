package event

import "context"

// Listener receives broadcast events.
//
// Listeners run sequentially in descending priority order; each one is
// awaited before the next starts. Returning an error aborts the rest of
// the round unless the broadcaster was built with WithErrorIsolation.
type Listener interface {
	Handle(ctx context.Context, evt any) error
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ctx context.Context, evt any) error

// Handle calls f.
func (f ListenerFunc) Handle(ctx context.Context, evt any) error {
	return f(ctx, evt)
}

var _ Listener = (ListenerFunc)(nil)
