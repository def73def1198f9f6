package routing

import "github.com/rs/zerolog"

// Option configures a Registry at construction time.
type Option func(*config)

// config contains registry construction settings.
type config struct {
	// log receives diagnostic output. Defaults to a no-op logger.
	log zerolog.Logger

	// metricsEnabled turns on metrics collection from the start.
	metricsEnabled bool
}

// defaultConfig returns the default registry configuration.
func defaultConfig() config {
	return config{
		log: zerolog.Nop(),
	}
}

// WithLogger sets the logger for diagnostic output.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMetricsEnabled turns on metrics collection at construction.
// Collection can also be toggled later with SetMetricsEnabled.
func WithMetricsEnabled() Option {
	return func(c *config) {
		c.metricsEnabled = true
	}
}

// SubscribeOption configures a single registration.
type SubscribeOption func(*subscribeConfig)

// subscribeConfig contains per-registration settings.
type subscribeConfig struct {
	// priority determines delivery order (higher values deliver first).
	priority int

	// once removes the entry after its first successful delivery.
	once bool

	// owner gates the entry's validity on host object liveness.
	owner Owner

	// filter is an optional delivery predicate.
	filter func(any) bool
}

// WithPriority sets the delivery priority. Higher values deliver first;
// entries with equal priority deliver in registration order. The default
// is 0.
func WithPriority(p int) SubscribeOption {
	return func(c *subscribeConfig) {
		c.priority = p
	}
}

// WithOnce removes the entry after its first successful delivery.
func WithOnce() SubscribeOption {
	return func(c *subscribeConfig) {
		c.once = true
	}
}

// WithOwner gates the entry's validity on owner liveness. Entries whose
// owner has died are skipped during delivery and lazily purged.
func WithOwner(o Owner) SubscribeOption {
	return func(c *subscribeConfig) {
		c.owner = o
	}
}

// WithFilter adds a delivery predicate. Messages that do not pass the
// filter are skipped without consuming the entry's one-shot. Filters
// compose: when applied more than once, every predicate must match.
func WithFilter(f func(any) bool) SubscribeOption {
	return func(c *subscribeConfig) {
		if f == nil {
			return
		}
		if prev := c.filter; prev != nil {
			c.filter = func(msg any) bool { return prev(msg) && f(msg) }
			return
		}
		c.filter = f
	}
}
