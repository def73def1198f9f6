package routing

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dshills/courier/key"
)

// Registry is the subscription store shared by both delivery disciplines.
// It maps keys to priority-ordered subscriber buckets, carries the before
// and after hook chains, and accumulates optional per-key metrics.
//
// It is safe for concurrent use. Readers never iterate live buckets: every
// delivery works on a Snapshot, so registration state may change freely
// while a round is in flight.
type Registry[H any] struct {
	mu      sync.RWMutex
	buckets map[key.Key][]*Entry[H]

	// nextID assigns entry and hook identifiers. Per registry, so
	// independent registries never interfere.
	nextID atomic.Uint64

	hooks   hooks
	metrics *Metrics

	// Diagnostics. Advisory only: these never affect behavior or results.
	log     zerolog.Logger
	verbose atomic.Bool
	trace   atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[H any](opts ...Option) *Registry[H] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Registry[H]{
		buckets: make(map[key.Key][]*Entry[H]),
		metrics: newMetrics(cfg.metricsEnabled),
		log:     cfg.log,
	}
}

// Register stores a handler under the given key and returns the new entry's
// id. The bucket keeps descending-priority order with ties in registration
// order; since the bucket is already sorted, insertion scans from the tail
// for the right position instead of re-sorting.
//
// Registration fails fast with ErrInvalidHandler when the handler is nil or
// a typed nil; nothing is stored.
func (r *Registry[H]) Register(k key.Key, h H, opts ...SubscribeOption) (uint64, error) {
	if k == "" {
		return 0, ErrEmptyKey
	}
	if !callable(h) {
		return 0, ErrInvalidHandler
	}

	e := r.newEntry(h, opts)

	r.mu.Lock()
	r.buckets[k] = insertByPriority(r.buckets[k], e, (*Entry[H]).Priority)
	r.mu.Unlock()

	if r.verbose.Load() {
		r.log.Debug().
			Str("key", k.String()).
			Uint64("id", e.id).
			Int("priority", e.priority).
			Bool("once", e.once).
			Msg("subscriber registered")
	}

	return e.id, nil
}

// Replace atomically clears the key's bucket and registers h as its only
// entry. Single-handler disciplines use it to enforce cardinality at write
// time. A failed validation leaves the existing bucket untouched.
func (r *Registry[H]) Replace(k key.Key, h H, opts ...SubscribeOption) (uint64, error) {
	if k == "" {
		return 0, ErrEmptyKey
	}
	if !callable(h) {
		return 0, ErrInvalidHandler
	}

	e := r.newEntry(h, opts)

	r.mu.Lock()
	displaced := len(r.buckets[k])
	r.buckets[k] = []*Entry[H]{e}
	r.mu.Unlock()

	if r.verbose.Load() {
		r.log.Debug().
			Str("key", k.String()).
			Uint64("id", e.id).
			Int("displaced", displaced).
			Msg("handler replaced")
	}

	return e.id, nil
}

// newEntry builds an immutable entry from the subscribe options.
func (r *Registry[H]) newEntry(h H, opts []SubscribeOption) *Entry[H] {
	cfg := subscribeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Entry[H]{
		id:       r.nextID.Add(1),
		handler:  h,
		priority: cfg.priority,
		once:     cfg.once,
		owner:    cfg.owner,
		filter:   cfg.filter,
	}
}

// Unregister removes the entry with the given id from the key's bucket and
// reports whether anything was removed. A bucket that empties is deleted.
func (r *Registry[H]) Unregister(k key.Key, id uint64) bool {
	r.mu.Lock()
	removed := false
	bucket := r.buckets[k]
	for i, e := range bucket {
		if e.id == id {
			r.buckets[k] = append(bucket[:i], bucket[i+1:]...)
			removed = true
			break
		}
	}
	if removed && len(r.buckets[k]) == 0 {
		delete(r.buckets, k)
	}
	r.mu.Unlock()

	if removed && r.verbose.Load() {
		r.log.Debug().
			Str("key", k.String()).
			Uint64("id", id).
			Msg("subscriber unregistered")
	}

	return removed
}

// UnregisterHandler removes every entry under the key whose handler equals
// h and returns the number removed. Function handlers compare by code
// pointer; other handler types compare with == when comparable.
func (r *Registry[H]) UnregisterHandler(k key.Key, h H) int {
	r.mu.Lock()
	bucket := r.buckets[k]
	kept := bucket[:0]
	for _, e := range bucket {
		if !handlerEqual(e.handler, h) {
			kept = append(kept, e)
		}
	}
	removed := len(bucket) - len(kept)
	if len(kept) == 0 {
		delete(r.buckets, k)
	} else {
		r.buckets[k] = kept
	}
	r.mu.Unlock()

	if removed > 0 && r.verbose.Load() {
		r.log.Debug().
			Str("key", k.String()).
			Int("removed", removed).
			Msg("handler unregistered")
	}

	return removed
}

// Snapshot purges the key's bucket of invalid entries, then returns a copy
// of what remains, ordered for delivery. The copy is safe to iterate while
// registration state keeps changing; every dispatch takes one.
func (r *Registry[H]) Snapshot(k key.Key) []*Entry[H] {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.purgeLocked(k)
	if len(bucket) == 0 {
		return nil
	}

	// Return copy to prevent races with bucket mutation
	out := make([]*Entry[H], len(bucket))
	copy(out, bucket)
	return out
}

// Count returns the number of valid entries under the key, purging invalid
// ones on the way.
func (r *Registry[H]) Count(k key.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.purgeLocked(k))
}

// Keys returns every key with at least one valid entry, sorted. Like
// Snapshot and Count, it purges invalid entries as it reads.
func (r *Registry[H]) Keys() []key.Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]key.Key, 0, len(r.buckets))
	for k := range r.buckets {
		if len(r.purgeLocked(k)) > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Clear removes every entry under the key.
func (r *Registry[H]) Clear(k key.Key) {
	r.mu.Lock()
	_, existed := r.buckets[k]
	delete(r.buckets, k)
	r.mu.Unlock()

	if existed && r.verbose.Load() {
		r.log.Debug().Str("key", k.String()).Msg("key cleared")
	}
}

// ClearAll removes every entry under every key.
func (r *Registry[H]) ClearAll() {
	r.mu.Lock()
	r.buckets = make(map[key.Key][]*Entry[H])
	r.mu.Unlock()

	if r.verbose.Load() {
		r.log.Debug().Msg("registry cleared")
	}
}

// purgeLocked drops invalid entries from the key's bucket, deleting the
// bucket when it empties, and returns what is left. Caller must hold the
// write lock.
func (r *Registry[H]) purgeLocked(k key.Key) []*Entry[H] {
	bucket := r.buckets[k]
	if len(bucket) == 0 {
		return nil
	}

	kept := bucket[:0]
	for _, e := range bucket {
		if e.Valid() {
			kept = append(kept, e)
		}
	}

	if len(kept) == 0 {
		delete(r.buckets, k)
		return nil
	}
	r.buckets[k] = kept
	return kept
}

// AddBefore registers an interception callback. Higher priority runs first;
// a false return vetoes the operation.
func (r *Registry[H]) AddBefore(fn BeforeFunc, priority int) (uint64, error) {
	if fn == nil {
		return 0, ErrInvalidHook
	}
	id := r.nextID.Add(1)
	r.hooks.addBefore(id, priority, fn)
	return id, nil
}

// AddAfter registers an observation callback that runs after every
// operation, vetoed or not.
func (r *Registry[H]) AddAfter(fn AfterFunc, priority int) (uint64, error) {
	if fn == nil {
		return 0, ErrInvalidHook
	}
	id := r.nextID.Add(1)
	r.hooks.addAfter(id, priority, fn)
	return id, nil
}

// RemoveHook removes the hook with the given id from whichever chain holds
// it.
func (r *Registry[H]) RemoveHook(id uint64) bool {
	return r.hooks.remove(id)
}

// ClearHooks removes every hook from both chains.
func (r *Registry[H]) ClearHooks() {
	r.hooks.clear()
}

// RunBefore executes the before chain in priority order, stopping at the
// first veto.
func (r *Registry[H]) RunBefore(ctx context.Context, k key.Key, msg any) bool {
	ok := r.hooks.runBefore(ctx, k, msg)
	if !ok && r.trace.Load() {
		r.log.Trace().Str("key", k.String()).Msg("delivery vetoed by before hook")
	}
	return ok
}

// RunAfter executes the after chain with the operation's outcome. Every
// after hook runs regardless of vetoes, errors, or subscriber count.
func (r *Registry[H]) RunAfter(ctx context.Context, k key.Key, msg any, result any, err error) {
	r.hooks.runAfter(ctx, k, msg, result, err)
}

// Metrics returns the registry's metrics collector.
func (r *Registry[H]) Metrics() *Metrics {
	return r.metrics
}

// SetMetricsEnabled toggles metrics collection. Disabling clears all
// accumulated samples.
func (r *Registry[H]) SetMetricsEnabled(enabled bool) {
	r.metrics.SetEnabled(enabled)
}

// SetVerbose toggles debug-level lifecycle logging (registration, removal,
// clears). Advisory only.
func (r *Registry[H]) SetVerbose(enabled bool) {
	r.verbose.Store(enabled)
}

// Verbose reports whether lifecycle logging is on.
func (r *Registry[H]) Verbose() bool {
	return r.verbose.Load()
}

// SetTraceEnabled toggles trace-level per-operation logging. Advisory only.
func (r *Registry[H]) SetTraceEnabled(enabled bool) {
	r.trace.Store(enabled)
}

// TraceEnabled reports whether per-operation tracing is on.
func (r *Registry[H]) TraceEnabled() bool {
	return r.trace.Load()
}

// Logger returns the diagnostic logger.
func (r *Registry[H]) Logger() zerolog.Logger {
	return r.log
}

// insertByPriority inserts item into a list kept in descending priority
// order, scanning from the tail so equal priorities stay in insertion
// order. Subscriber buckets and hook chains share it.
func insertByPriority[T any](list []T, item T, priority func(T) int) []T {
	idx := len(list)
	for idx > 0 && priority(list[idx-1]) < priority(item) {
		idx--
	}
	return slices.Insert(list, idx, item)
}

// callable reports whether h can be invoked: non-nil, and for nilable kinds
// (funcs, pointers, interfaces), not a typed nil.
func callable(h any) bool {
	if h == nil {
		return false
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Slice:
		return !v.IsNil()
	default:
		return true
	}
}

// handlerEqual reports whether two handlers are the same for removal
// purposes. Funcs compare by code pointer, comparable types by value;
// everything else never matches.
func handlerEqual(a, b any) bool {
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return !va.IsValid() && !vb.IsValid()
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Func {
		return va.Pointer() == vb.Pointer()
	}
	if !va.Type().Comparable() {
		return false
	}
	return a == b
}
