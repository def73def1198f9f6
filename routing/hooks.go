package routing

import (
	"context"
	"sync"

	"github.com/dshills/courier/key"
)

// BeforeFunc is an interception callback that runs before delivery.
// Returning false vetoes the operation: no later before-hook runs and no
// handler is invoked. Hooks are synchronous; the dispatch does not await
// them.
type BeforeFunc func(ctx context.Context, k key.Key, msg any) bool

// AfterFunc observes a completed operation with its outcome. The after
// chain runs unconditionally, including for vetoed, failed, and
// zero-subscriber operations, and cannot alter the result.
type AfterFunc func(ctx context.Context, k key.Key, msg any, result any, err error)

// hookEntry is one registered hook callback.
type hookEntry[F any] struct {
	id       uint64
	priority int
	fn       F
}

// hooks holds the before and after interception chains. Each chain keeps
// descending-priority order with stable ties, mirroring subscriber buckets
// and sharing their insertion helper. A dedicated lock keeps hook traffic
// off the bucket lock.
type hooks struct {
	mu     sync.RWMutex
	before []hookEntry[BeforeFunc]
	after  []hookEntry[AfterFunc]
}

// addBefore inserts into the before chain in priority order.
func (h *hooks) addBefore(id uint64, priority int, fn BeforeFunc) {
	entry := hookEntry[BeforeFunc]{id: id, priority: priority, fn: fn}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = insertByPriority(h.before, entry, func(e hookEntry[BeforeFunc]) int { return e.priority })
}

// addAfter inserts into the after chain in priority order.
func (h *hooks) addAfter(id uint64, priority int, fn AfterFunc) {
	entry := hookEntry[AfterFunc]{id: id, priority: priority, fn: fn}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = insertByPriority(h.after, entry, func(e hookEntry[AfterFunc]) int { return e.priority })
}

// remove searches both chains for the id and removes at most one entry.
func (h *hooks) remove(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, e := range h.before {
		if e.id == id {
			h.before = append(h.before[:i], h.before[i+1:]...)
			return true
		}
	}
	for i, e := range h.after {
		if e.id == id {
			h.after = append(h.after[:i], h.after[i+1:]...)
			return true
		}
	}
	return false
}

// clear removes every hook from both chains.
func (h *hooks) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = nil
	h.after = nil
}

// runBefore runs the before chain in order and stops at the first veto.
func (h *hooks) runBefore(ctx context.Context, k key.Key, msg any) bool {
	h.mu.RLock()
	chain := make([]hookEntry[BeforeFunc], len(h.before))
	copy(chain, h.before)
	h.mu.RUnlock()

	for _, e := range chain {
		if !e.fn(ctx, k, msg) {
			return false
		}
	}
	return true
}

// runAfter runs every after hook. Nothing skips an after hook: execution is
// tied to the operation, not to its outcome.
func (h *hooks) runAfter(ctx context.Context, k key.Key, msg any, result any, err error) {
	h.mu.RLock()
	chain := make([]hookEntry[AfterFunc], len(h.after))
	copy(chain, h.after)
	h.mu.RUnlock()

	for _, e := range chain {
		e.fn(ctx, k, msg, result, err)
	}
}
