package attribute

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// UniformBlock is the CPU-side state of one per-pipeline uniform buffer:
// a schema, the current values, and dirty tracking. The first flush after
// construction uploads the whole block; later flushes upload only the merged
// span of changed members.
type UniformBlock struct {
	pipeline string
	schema   *Schema
	values   []Value
	dirty    uint64
	isNew    bool
}

// NewUniformBlock creates a uniform block for the given pipeline with all
// members zeroed and marked dirty.
//
// Parameters:
//   - pipeline: the pipeline key the block is bound to
//   - schema: the block layout
//
// Returns:
//   - *UniformBlock: the new block
func NewUniformBlock(pipeline string, schema *Schema) *UniformBlock {
	return &UniformBlock{
		pipeline: pipeline,
		schema:   schema,
		values:   schema.ZeroValues(),
		dirty:    schema.AllDirty(),
		isNew:    true,
	}
}

// Pipeline returns the pipeline key the block is bound to.
func (u *UniformBlock) Pipeline() string {
	return u.pipeline
}

// Schema returns the block layout.
func (u *UniformBlock) Schema() *Schema {
	return u.schema
}

// Set updates one member and marks it dirty. The prior value is untouched on error.
//
// Parameters:
//   - name: the member name
//   - v: the new value
//
// Returns:
//   - error: common.ErrTypeMismatch (wrapped) if the name is unknown or the value type disagrees
func (u *UniformBlock) Set(name string, v Value) error {
	m, ok := u.schema.Member(name)
	if !ok {
		return fmt.Errorf("uniform block %q has no member %q: %w", u.pipeline, name, common.ErrTypeMismatch)
	}
	if v.Type() != m.Type {
		return fmt.Errorf("uniform %q.%q is %s, got %s: %w", u.pipeline, name, m.Type, v.Type(), common.ErrTypeMismatch)
	}
	u.values[m.Index] = v
	u.dirty |= 1 << uint(m.Index)
	return nil
}

// Value returns the current value of one member.
//
// Parameters:
//   - name: the member name
//
// Returns:
//   - Value: the current value
//   - bool: false if the schema does not declare the name
func (u *UniformBlock) Value(name string) (Value, bool) {
	m, ok := u.schema.Member(name)
	if !ok {
		return Value{}, false
	}
	return u.values[m.Index], true
}

// IsNew reports whether the block has never been flushed.
func (u *UniformBlock) IsNew() bool {
	return u.isNew
}

// Dirty returns the current dirty bitset without clearing it.
func (u *UniformBlock) Dirty() uint64 {
	return u.dirty
}

// Values returns the current values in declaration order. The returned slice
// is shared; callers must not modify it.
func (u *UniformBlock) Values() []Value {
	return u.values
}

// MarkFlushed clears dirty state after the block's data has been drained into
// a command. Mutations after this call are captured for the next drain.
func (u *UniformBlock) MarkFlushed() {
	u.dirty = 0
	u.isNew = false
}

// MarkAllDirty flags every member dirty and resets the block to never-flushed,
// forcing the next flush to re-upload the whole block. Used on device resource
// recreation.
func (u *UniformBlock) MarkAllDirty() {
	u.dirty = u.schema.AllDirty()
	u.isNew = true
}
