package routing

// Entry is a single registered subscriber: an immutable record of a handler,
// its delivery priority, and its lifecycle constraints. Entries are created
// by Registry.Register and never mutated afterward; removal is the only
// state change they participate in.
type Entry[H any] struct {
	id       uint64
	handler  H
	priority int
	once     bool
	owner    Owner
	filter   func(any) bool
}

// ID returns the entry's identifier, unique within its registry and
// monotonically increasing with registration order.
func (e *Entry[H]) ID() uint64 {
	return e.id
}

// Handler returns the registered handler.
func (e *Entry[H]) Handler() H {
	return e.handler
}

// Priority returns the delivery priority. Higher values deliver first.
func (e *Entry[H]) Priority() int {
	return e.priority
}

// Once reports whether the entry is removed after its first successful
// delivery.
func (e *Entry[H]) Once() bool {
	return e.once
}

// Owner returns the liveness gate, or nil when the entry is not owner-bound.
func (e *Entry[H]) Owner() Owner {
	return e.owner
}

// Valid reports whether the entry is still deliverable. An entry with no
// owner is always valid; an owner-bound entry is valid while its owner is
// alive. Invalid entries are skipped during delivery and lazily purged by
// registry reads.
func (e *Entry[H]) Valid() bool {
	return e.owner == nil || e.owner.Alive()
}

// Matches reports whether msg passes the entry's filter. Entries without a
// filter match everything. A filtered-out message is skipped without
// consuming the entry's one-shot.
func (e *Entry[H]) Matches(msg any) bool {
	return e.filter == nil || e.filter(msg)
}
