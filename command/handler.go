package command

import "context"

// Handler executes a command and produces its result.
//
// Exactly one handler runs per dispatch. A nil result with a nil error is
// a valid outcome for commands that have no meaningful output.
type Handler interface {
	Handle(ctx context.Context, cmd any) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd any) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd any) (any, error) {
	return f(ctx, cmd)
}

var _ Handler = (HandlerFunc)(nil)
