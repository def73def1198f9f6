// Package courier is a high-level façade over the two delivery disciplines
// of the routing core: commands (exactly one handler, returns a result) and
// events (every listener, priority-ordered, no result). Most applications
// interact with this package by:
//  1. Creating a Courier via New() (optionally overriding the resolver,
//     logger, and failure policies)
//  2. Registering command handlers and subscribing event listeners
//  3. Dispatching commands and broadcasting events
//
// The façade delegates routing to command.Router and event.Broadcaster
// while keeping setup concise; both disciplines share the same resolver and
// logger so a type routes identically whether dispatched or broadcast. The
// underlying registries, with their hooks, metrics, and diagnostics, stay
// reachable through Commands() and Events().
package courier

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dshills/courier/command"
	"github.com/dshills/courier/event"
	"github.com/dshills/courier/key"
)

// Options configures the Courier instance.
type Options struct {
	// Resolver maps commands and events to routing keys. Defaults to
	// key.TypeResolver, which derives keys from Go types.
	Resolver key.Resolver

	// Logger receives diagnostic output from both disciplines. Defaults to
	// a no-op logger.
	Logger zerolog.Logger

	// RecoverPanics converts handler and listener panics into errors
	// instead of letting them unwind through the dispatch. On by default.
	RecoverPanics bool

	// IsolateListenerErrors makes broadcasts continue past failing
	// listeners and return their errors aggregated, instead of aborting
	// the round at the first failure.
	IsolateListenerErrors bool
}

// Courier aggregates a command router and an event broadcaster built on the
// same resolver and logger.
type Courier struct {
	commands *command.Router
	events   *event.Broadcaster
}

// New creates a Courier with optional overrides.
func New(optFns ...func(o *Options)) *Courier {
	opts := Options{
		Resolver:      key.TypeResolver{},
		Logger:        zerolog.Nop(),
		RecoverPanics: true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	eventOpts := []event.Option{
		event.WithResolver(opts.Resolver),
		event.WithLogger(opts.Logger),
		event.WithPanicRecovery(opts.RecoverPanics),
	}
	if opts.IsolateListenerErrors {
		eventOpts = append(eventOpts, event.WithErrorIsolation())
	}

	return &Courier{
		commands: command.New(
			command.WithResolver(opts.Resolver),
			command.WithLogger(opts.Logger),
			command.WithPanicRecovery(opts.RecoverPanics),
		),
		events: event.New(eventOpts...),
	}
}

// Commands returns the command router.
func (c *Courier) Commands() *command.Router {
	return c.commands
}

// Events returns the event broadcaster.
func (c *Courier) Events() *event.Broadcaster {
	return c.events
}

// Dispatch routes cmd to its single handler and returns the handler's
// result. See command.Router.Dispatch.
func (c *Courier) Dispatch(ctx context.Context, cmd any) (any, error) {
	return c.commands.Dispatch(ctx, cmd)
}

// Broadcast delivers evt to every subscribed listener in priority order.
// See event.Broadcaster.Broadcast.
func (c *Courier) Broadcast(ctx context.Context, evt any) error {
	return c.events.Broadcast(ctx, evt)
}
