package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/courier/key"
	"github.com/dshills/courier/routing"
)

// Option configures a Router at construction time.
type Option func(*config)

// config contains router construction settings.
type config struct {
	resolver key.Resolver
	log      zerolog.Logger
	recover  bool
}

func defaultConfig() config {
	return config{
		resolver: key.TypeResolver{},
		log:      zerolog.Nop(),
		recover:  true,
	}
}

// WithResolver sets the resolver that maps commands to routing keys.
func WithResolver(r key.Resolver) Option {
	return func(c *config) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithPanicRecovery controls whether handler panics are converted to
// errors. Recovery is on by default.
func WithPanicRecovery(enabled bool) Option {
	return func(c *config) {
		c.recover = enabled
	}
}

// Router dispatches each command to exactly one handler.
//
// Registration is last-wins: registering a handler for a command type
// replaces whatever was registered before it, so the single-handler
// invariant cannot be violated through Router methods. Hooks, metrics, and
// diagnostics live on the underlying registry, reachable via Registry.
type Router struct {
	reg      *routing.Registry[Handler]
	resolver key.Resolver
	log      zerolog.Logger
	recover  bool
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{
		reg:      routing.NewRegistry[Handler](routing.WithLogger(cfg.log)),
		resolver: cfg.resolver,
		log:      cfg.log,
		recover:  cfg.recover,
	}
}

// Register installs h as the only handler for the command type, replacing
// any existing registrations for the same key. It returns the entry ID.
func (r *Router) Register(cmdType any, h Handler) (uint64, error) {
	return r.reg.Replace(r.resolver.Resolve(cmdType), h)
}

// RegisterFunc installs fn as the only handler for the command type.
func (r *Router) RegisterFunc(cmdType any, fn func(ctx context.Context, cmd any) (any, error)) (uint64, error) {
	return r.Register(cmdType, HandlerFunc(fn))
}

// RegisterTyped installs a handler that receives the command as a concrete
// C instead of any. The routing key is derived from C, so a dispatched C
// value reaches fn directly; any other payload under the same key yields a
// HandlerFailed RoutingError.
func RegisterTyped[C any](r *Router, fn func(ctx context.Context, cmd C) (any, error)) (uint64, error) {
	if fn == nil {
		return 0, routing.ErrInvalidHandler
	}
	k := key.Of[C]()
	return r.reg.Replace(k, HandlerFunc(func(ctx context.Context, cmd any) (any, error) {
		c, ok := cmd.(C)
		if !ok {
			return nil, &RoutingError{
				Code:    CodeHandlerFailed,
				Key:     k,
				Message: fmt.Sprintf("command is not %s", k),
			}
		}
		return fn(ctx, c)
	}))
}

// Unregister removes every handler registered for the command type.
func (r *Router) Unregister(cmdType any) {
	r.reg.Clear(r.resolver.Resolve(cmdType))
}

// Count returns the number of live handlers for the command type. Anything
// other than one makes a dispatch for that type fail.
func (r *Router) Count(cmdType any) int {
	return r.reg.Count(r.resolver.Resolve(cmdType))
}

// Registry exposes the underlying registry for hooks, metrics, and
// diagnostics.
func (r *Router) Registry() *routing.Registry[Handler] {
	return r.reg
}

// Dispatch routes cmd to its single handler and returns the handler's
// result. Exactly one of the result and the error is meaningful: a non-nil
// error is always a *RoutingError describing why no result was produced.
//
// Before-hooks run ahead of handler lookup and may cancel the dispatch;
// after-hooks run on every path, success or failure, exactly once.
func (r *Router) Dispatch(ctx context.Context, cmd any) (any, error) {
	start := time.Now()

	k := r.resolver.Resolve(cmd)
	if k == "" {
		// Nothing can be registered under the empty key.
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeNoHandler,
			Key:     k,
			Message: "cannot resolve command key",
		})
	}

	var dispatchID string
	if r.reg.TraceEnabled() {
		dispatchID = uuid.NewString()
		r.log.Trace().
			Str("dispatch_id", dispatchID).
			Str("key", k.String()).
			Msg("dispatch start")
	}

	if !r.reg.RunBefore(ctx, k, cmd) {
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeHandlerFailed,
			Key:     k,
			Message: "cancelled by middleware",
		})
	}

	entries := r.reg.Snapshot(k)
	if len(entries) == 0 {
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeNoHandler,
			Key:     k,
			Message: "no handler registered",
		})
	}
	if len(entries) > 1 {
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeMultipleHandlers,
			Key:     k,
			Message: fmt.Sprintf("%d handlers registered", len(entries)),
		})
	}

	e := entries[0]
	if !e.Valid() {
		// Owner died between the snapshot and the invoke.
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeHandlerFailed,
			Key:     k,
			Message: "handler invalidated",
		})
	}

	result, err := r.invoke(ctx, e.Handler(), cmd)
	r.reg.Metrics().Record(k, time.Since(start))
	if err != nil {
		msg := "handler returned an error"
		if errors.Is(err, routing.ErrHandlerPanic) {
			msg = "handler panicked"
		}
		return nil, r.fail(ctx, cmd, &RoutingError{
			Code:    CodeHandlerFailed,
			Key:     k,
			Message: msg,
			Err:     err,
		})
	}

	if e.Once() {
		r.reg.Unregister(k, e.ID())
	}

	r.reg.RunAfter(ctx, k, cmd, result, nil)

	if dispatchID != "" {
		r.log.Trace().
			Str("dispatch_id", dispatchID).
			Str("key", k.String()).
			Dur("elapsed", time.Since(start)).
			Msg("dispatch complete")
	}
	return result, nil
}

// invoke runs the handler, converting a panic into an error when recovery
// is enabled.
func (r *Router) invoke(ctx context.Context, h Handler, cmd any) (result any, err error) {
	if r.recover {
		defer func() {
			if rec := recover(); rec != nil {
				err = routing.NewPanicError(rec)
			}
		}()
	}
	return h.Handle(ctx, cmd)
}

// fail logs the routing error, gives after-hooks their guaranteed run, and
// hands the error back to the caller.
func (r *Router) fail(ctx context.Context, cmd any, rerr *RoutingError) error {
	r.log.Error().
		Str("key", rerr.Key.String()).
		Str("code", rerr.Code.String()).
		Err(rerr.Err).
		Msg(rerr.Message)
	r.reg.RunAfter(ctx, rerr.Key, cmd, nil, rerr)
	return rerr
}
