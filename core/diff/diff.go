// package diff tracks per-object, per-attribute dirty state between frames.
// The tracker holds only dirty-bit metadata keyed by handle; it never owns
// attribute values or GPU memory.
package diff

import "github.com/Carmen-Shannon/oxy-core/core/object_pool"

// Tracker maintains a dirty bitset per live handle. Bits map to schema member
// indices. A member mutated twice before a drain is reported once; the values
// read alongside the drain are the final ones, because the tracker stores no
// values of its own.
//
// Tracker is not safe for concurrent use. The Core confines it to the
// producer thread, matching the pool it shadows.
type Tracker struct {
	dirty map[object_pool.Handle]uint64
}

// NewTracker creates an empty tracker.
//
// Returns:
//   - *Tracker: the new tracker
func NewTracker() *Tracker {
	return &Tracker{
		dirty: make(map[object_pool.Handle]uint64, 64),
	}
}

// Mark flags one member dirty for the handle.
//
// Parameters:
//   - handle: the mutated object
//   - memberIndex: the schema member index of the mutated attribute
func (t *Tracker) Mark(handle object_pool.Handle, memberIndex int) {
	t.dirty[handle] |= 1 << uint(memberIndex)
}

// MarkBits ORs a whole bitset into the handle's dirty state. Used when a
// schema-wide invalidation (insert, pipeline reassignment, device recreation)
// must report every attribute on the next drain.
//
// Parameters:
//   - handle: the object
//   - bits: the bitset to set
func (t *Tracker) MarkBits(handle object_pool.Handle, bits uint64) {
	t.dirty[handle] |= bits
}

// Drain returns the handle's dirty bitset and clears it in the same step, so
// a mutation landing after the drain is captured for the next one and no
// update is ever lost or double-reported.
//
// Parameters:
//   - handle: the object to drain
//
// Returns:
//   - uint64: the dirty bitset at drain time, 0 if nothing changed
func (t *Tracker) Drain(handle object_pool.Handle) uint64 {
	bits := t.dirty[handle]
	if bits != 0 {
		delete(t.dirty, handle)
	}
	return bits
}

// Peek returns the handle's dirty bitset without clearing it.
//
// Parameters:
//   - handle: the object to inspect
//
// Returns:
//   - uint64: the current dirty bitset
func (t *Tracker) Peek(handle object_pool.Handle) uint64 {
	return t.dirty[handle]
}

// Forget drops all dirty state for a handle. Called on removal; a removed
// object owes no further updates.
//
// Parameters:
//   - handle: the removed object
func (t *Tracker) Forget(handle object_pool.Handle) {
	delete(t.dirty, handle)
}

// Len returns the number of handles with at least one dirty bit.
func (t *Tracker) Len() int {
	return len(t.dirty)
}
