package object_pool

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/core/attribute"
)

// Handle is the stable opaque identifier of a drawable object. Handles are
// issued from a process-wide monotonic counter and are never reused, so a
// stale handle can always be distinguished from a live one. Slot indices are
// reused; handles are not.
type Handle uint64

// NilHandle is the zero Handle. No live object ever carries it.
const NilHandle Handle = 0

var lastHandle atomic.Uint64

// nextHandle issues a new process-unique handle.
func nextHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// DrawObject is one drawable object: a pipeline assignment and the current
// attribute values laid out per the pipeline schema. The pool exclusively
// owns DrawObject data; the GPU-side copies are derived from it at flush.
type DrawObject struct {
	handle   Handle
	pipeline string
	schema   *attribute.Schema
	values   []attribute.Value

	// isNew marks an object whose next flush must emit a full New command:
	// freshly inserted, reassigned to another pipeline, or invalidated by
	// device resource recreation.
	isNew bool

	// everFlushed is set once any command for this object has reached the
	// GPU layer. Removal of a never-flushed object reclaims its slot
	// immediately since no in-flight frame can reference it.
	everFlushed bool
}

// Handle returns the object's stable identifier.
func (o *DrawObject) Handle() Handle {
	return o.handle
}

// Pipeline returns the key of the pipeline the object is assigned to.
func (o *DrawObject) Pipeline() string {
	return o.pipeline
}

// Schema returns the attribute layout of the object's pipeline.
func (o *DrawObject) Schema() *attribute.Schema {
	return o.schema
}

// Value returns the current value of the named attribute.
//
// Parameters:
//   - name: the attribute name
//
// Returns:
//   - attribute.Value: the current value
//   - bool: false if the schema does not declare the name
func (o *DrawObject) Value(name string) (attribute.Value, bool) {
	m, ok := o.schema.Member(name)
	if !ok {
		return attribute.Value{}, false
	}
	return o.values[m.Index], true
}

// Values returns the current values in schema declaration order. The returned
// slice is shared; callers must not modify it.
func (o *DrawObject) Values() []attribute.Value {
	return o.values
}

// IsNew reports whether the object's next flush must emit a full New command.
func (o *DrawObject) IsNew() bool {
	return o.isNew
}
