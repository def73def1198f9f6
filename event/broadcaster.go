package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dshills/courier/key"
	"github.com/dshills/courier/routing"
)

// Option configures a Broadcaster at construction time.
type Option func(*config)

// config contains broadcaster construction settings.
type config struct {
	resolver key.Resolver
	log      zerolog.Logger
	isolate  bool
	recover  bool
}

func defaultConfig() config {
	return config{
		resolver: key.TypeResolver{},
		log:      zerolog.Nop(),
		recover:  true,
	}
}

// WithResolver sets the resolver that maps events to routing keys.
func WithResolver(r key.Resolver) Option {
	return func(c *config) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithLogger sets the logger for broadcast diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithErrorIsolation makes a listener failure log-and-continue instead of
// aborting the round. The round's errors are aggregated and returned
// together.
func WithErrorIsolation() Option {
	return func(c *config) {
		c.isolate = true
	}
}

// WithPanicRecovery controls whether listener panics are converted to
// errors. Recovery is on by default.
func WithPanicRecovery(enabled bool) Option {
	return func(c *config) {
		c.recover = enabled
	}
}

// Broadcaster delivers each event to every subscribed listener, one at a
// time, in descending priority order.
//
// Delivery works on a snapshot: subscribing or unsubscribing from inside a
// listener affects the next broadcast, never the one in flight. Hooks,
// metrics, and diagnostics live on the underlying registry, reachable via
// Registry.
type Broadcaster struct {
	reg      *routing.Registry[Listener]
	resolver key.Resolver
	log      zerolog.Logger
	isolate  bool
	recover  bool
}

// New creates an empty Broadcaster.
func New(opts ...Option) *Broadcaster {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Broadcaster{
		reg:      routing.NewRegistry[Listener](routing.WithLogger(cfg.log)),
		resolver: cfg.resolver,
		log:      cfg.log,
		isolate:  cfg.isolate,
		recover:  cfg.recover,
	}
}

// Subscribe adds a listener for the event type and returns the
// subscription ID. Options control priority, one-shot delivery, ownership,
// and filtering.
func (b *Broadcaster) Subscribe(eventType any, l Listener, opts ...routing.SubscribeOption) (uint64, error) {
	return b.reg.Register(b.resolver.Resolve(eventType), l, opts...)
}

// SubscribeFunc adds a plain function as a listener.
func (b *Broadcaster) SubscribeFunc(eventType any, fn func(ctx context.Context, evt any) error, opts ...routing.SubscribeOption) (uint64, error) {
	return b.Subscribe(eventType, ListenerFunc(fn), opts...)
}

// SubscribeTyped adds a listener that receives events as a concrete E.
// Events of any other dynamic type are filtered out before delivery, so
// they never consume a one-shot subscription.
func SubscribeTyped[E any](b *Broadcaster, fn func(ctx context.Context, evt E) error, opts ...routing.SubscribeOption) (uint64, error) {
	if fn == nil {
		return 0, routing.ErrInvalidHandler
	}
	opts = append([]routing.SubscribeOption{
		routing.WithFilter(func(evt any) bool {
			_, ok := evt.(E)
			return ok
		}),
	}, opts...)
	l := ListenerFunc(func(ctx context.Context, evt any) error {
		e, ok := evt.(E)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	})
	return b.reg.Register(key.Of[E](), l, opts...)
}

// Unsubscribe removes one subscription by ID and reports whether it
// existed.
func (b *Broadcaster) Unsubscribe(eventType any, id uint64) bool {
	return b.reg.Unregister(b.resolver.Resolve(eventType), id)
}

// UnsubscribeListener removes every subscription holding the given
// listener and returns how many were removed.
func (b *Broadcaster) UnsubscribeListener(eventType any, l Listener) int {
	return b.reg.UnregisterHandler(b.resolver.Resolve(eventType), l)
}

// Clear removes every subscription for the event type.
func (b *Broadcaster) Clear(eventType any) {
	b.reg.Clear(b.resolver.Resolve(eventType))
}

// Count returns the number of live subscriptions for the event type.
func (b *Broadcaster) Count(eventType any) int {
	return b.reg.Count(b.resolver.Resolve(eventType))
}

// Registry exposes the underlying registry for hooks, metrics, and
// diagnostics.
func (b *Broadcaster) Registry() *routing.Registry[Listener] {
	return b.reg
}

// Broadcast delivers evt to every live, matching subscription in
// descending priority order, awaiting each listener before invoking the
// next. Zero subscribers is not an error.
//
// By default a listener failure aborts the round and the *ListenerError
// propagates; with WithErrorIsolation the round continues and the
// aggregated errors are returned at the end. Either way after-hooks run
// exactly once with the round's outcome.
func (b *Broadcaster) Broadcast(ctx context.Context, evt any) error {
	start := time.Now()

	k := b.resolver.Resolve(evt)
	if k == "" {
		return ErrUnresolvedKey
	}

	var broadcastID string
	if b.reg.TraceEnabled() {
		broadcastID = uuid.NewString()
		b.log.Trace().
			Str("broadcast_id", broadcastID).
			Str("key", k.String()).
			Msg("broadcast start")
	}

	if !b.reg.RunBefore(ctx, k, evt) {
		b.reg.RunAfter(ctx, k, evt, nil, ErrCancelled)
		return ErrCancelled
	}

	entries := b.reg.Snapshot(k)

	var errs error
	var fired []uint64
	invoked := 0
	for _, e := range entries {
		// Owner may have died mid-round; filters see the concrete event.
		if !e.Valid() || !e.Matches(evt) {
			continue
		}
		invoked++

		err := b.invoke(ctx, e.Handler(), evt)
		if err == nil {
			if e.Once() {
				fired = append(fired, e.ID())
			}
			continue
		}

		lerr := &ListenerError{Key: k, ID: e.ID(), Err: err}
		if !b.isolate {
			errs = lerr
			break
		}
		b.log.Error().
			Str("key", k.String()).
			Uint64("id", e.ID()).
			Err(err).
			Msg("listener failed")
		errs = multierr.Append(errs, lerr)
	}

	// One-shots that fired are removed even when the round aborted later.
	for _, id := range fired {
		b.reg.Unregister(k, id)
	}

	b.reg.Metrics().Record(k, time.Since(start))
	b.reg.RunAfter(ctx, k, evt, nil, errs)

	if broadcastID != "" {
		b.log.Trace().
			Str("broadcast_id", broadcastID).
			Str("key", k.String()).
			Int("listeners", invoked).
			Dur("elapsed", time.Since(start)).
			Msg("broadcast complete")
	}
	return errs
}

// BroadcastAndWait delivers evt exactly like Broadcast. The name makes the
// awaiting contract explicit at call sites; there is no detached variant.
func (b *Broadcaster) BroadcastAndWait(ctx context.Context, evt any) error {
	return b.Broadcast(ctx, evt)
}

// invoke runs one listener, converting a panic into an error when recovery
// is enabled.
func (b *Broadcaster) invoke(ctx context.Context, l Listener, evt any) (err error) {
	if b.recover {
		defer func() {
			if rec := recover(); rec != nil {
				err = routing.NewPanicError(rec)
			}
		}()
	}
	return l.Handle(ctx, evt)
}
