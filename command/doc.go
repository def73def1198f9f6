// Package command routes commands to exactly one handler each.
//
// A Router maps a command's routing key, derived from its Go type by
// default, to a single Handler. Dispatch resolves the key, runs
// before-hooks, invokes the handler, records timing, and runs after-hooks
// with the outcome. When routing cannot produce a result the returned error
// is a *RoutingError classified as NoHandler, MultipleHandlers, or
// HandlerFailed.
//
// # Registration
//
// Registering a handler replaces any previous handler for the same key, so
// a command type never has two competing handlers:
//
//	type SaveFile struct{ Path string }
//
//	r := command.New()
//	command.RegisterTyped(r, func(ctx context.Context, cmd SaveFile) (any, error) {
//		return write(cmd.Path)
//	})
//	res, err := r.Dispatch(ctx, SaveFile{Path: "main.go"})
//
// # Errors
//
// Callers branch on the failure category with errors.Is, or reach the
// structured detail with errors.As:
//
//	if errors.Is(err, command.ErrNoHandler) {
//		// nothing registered for this command type
//	}
//	var rerr *command.RoutingError
//	if errors.As(err, &rerr) {
//		log.Printf("dispatch %s failed: %s", rerr.Key, rerr.Code)
//	}
//
// # Hooks and Metrics
//
// The registry behind the router is exposed via Registry for before/after
// hooks, per-key timing metrics, and diagnostic logging toggles.
package command
