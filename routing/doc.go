// Package routing provides the subscription registry underneath both of
// courier's delivery disciplines: single-handler command dispatch and
// multi-subscriber event broadcast.
//
// The registry maps message keys to priority-ordered subscriber entries and
// carries everything both disciplines need: lifecycle-aware invalidation,
// safe iteration while registrations change, one-shot semantics, before and
// after interception hooks, and per-key timing metrics.
//
// # Buckets and Ordering
//
// Each key owns a bucket of entries kept in descending priority order with
// ties in registration order. Registration inserts with a tail scan of the
// already sorted bucket rather than re-sorting. A bucket that empties is
// deleted, so there are never dangling empty keys.
//
// # Snapshots
//
// Delivery never iterates a live bucket. Every read that walks a bucket
// first purges entries whose owner has died, then hands back a copy:
//
//	for _, e := range reg.Snapshot(k) {
//	    if !e.Valid() || !e.Matches(msg) {
//	        continue
//	    }
//	    // invoke e.Handler()
//	}
//
// Subscribers may unregister themselves (or anything else) mid-round without
// disturbing the round's delivery list.
//
// # Owners
//
// An entry registered with WithOwner is valid only while its Owner reports
// alive. Owners are observed, never retained; the registry cannot keep a
// host object reachable. OwnerFunc, ContextOwner, and Token adapt common
// lifetime sources:
//
//	tok := routing.NewToken()
//	id, _ := reg.Register(k, handler, routing.WithOwner(tok))
//	tok.Revoke() // entry is now skipped and lazily purged
//
// # Hooks
//
// Before hooks run ahead of delivery in priority order and may veto by
// returning false. After hooks observe the outcome and run unconditionally,
// even for vetoed or zero-subscriber operations.
//
// # Metrics
//
// When enabled, the registry's Metrics collector accumulates per-key count,
// total, min, and max durations; the average is always derived. Disabling
// collection clears everything.
package routing
