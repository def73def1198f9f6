// Package event broadcasts events to every subscribed listener.
//
// A Broadcaster maps an event's routing key, derived from its Go type by
// default, to a priority-ordered set of listeners. Broadcast runs
// before-hooks, snapshots the subscriptions, invokes each listener in turn
// (awaiting every one), removes fired one-shots, records round timing, and
// runs after-hooks with the outcome.
//
// # Subscribing
//
//	type FileSaved struct{ Path string }
//
//	b := event.New()
//	event.SubscribeTyped(b, func(ctx context.Context, evt FileSaved) error {
//		refreshTree(evt.Path)
//		return nil
//	})
//	err := b.Broadcast(ctx, FileSaved{Path: "main.go"})
//
// Higher-priority listeners run first; equal priorities run in
// subscription order. One-shot, owner-scoped, and filtered subscriptions
// are available through routing.SubscribeOption values.
//
// # Failure Policy
//
// A listener error aborts the rest of the round and propagates as a
// *ListenerError. Building the broadcaster with WithErrorIsolation flips
// the policy: every listener still runs, failures are logged, and the
// aggregate error is returned after the round.
//
// # Snapshots
//
// Each broadcast iterates a snapshot taken when the round starts, so
// listeners may subscribe or unsubscribe freely, including themselves,
// without disturbing in-flight delivery.
package event
