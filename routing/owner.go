package routing

import (
	"context"
	"sync/atomic"
)

// Owner gates an entry's validity on the liveness of some host object.
// Alive must be cheap and side-effect free; the registry calls it during
// every read that walks a bucket. The registry observes owners, it never
// retains them, so an Owner must not be the reason its host object stays
// reachable.
type Owner interface {
	Alive() bool
}

// OwnerFunc adapts a liveness predicate to the Owner interface.
type OwnerFunc func() bool

// Alive implements Owner.
func (f OwnerFunc) Alive() bool {
	return f()
}

// ContextOwner returns an Owner that is alive until ctx is done. It binds
// subscriptions to a request or component lifetime.
func ContextOwner(ctx context.Context) Owner {
	return OwnerFunc(func() bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
}

// Token is a revocable Owner handle. The zero value is alive; Revoke kills
// it permanently. Safe for concurrent use.
type Token struct {
	revoked atomic.Bool
}

// NewToken returns a live Token.
func NewToken() *Token {
	return &Token{}
}

// Alive implements Owner.
func (t *Token) Alive() bool {
	return !t.revoked.Load()
}

// Revoke permanently invalidates every entry bound to this token.
// Revoking twice is a no-op.
func (t *Token) Revoke() {
	t.revoked.Store(true)
}

var _ Owner = (*Token)(nil)
