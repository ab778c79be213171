// package command translates pool mutations and dirty attribute state into
// the ordered update command stream handed to the GPU resource layer each
// frame.
package command

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/core/object_pool"
)

// Op tags what a command does to its target resource.
type Op int

const (
	// OpNew allocates and initializes a resource region with full packed data.
	OpNew Op = iota

	// OpUpdate overwrites a contiguous byte span of an existing region.
	OpUpdate

	// OpDelete releases a region. Within one flush, a Delete freeing a slot is
	// always sequenced before a New reusing that slot index.
	OpDelete
)

// String returns the command tag name.
func (o Op) String() string {
	switch o {
	case OpNew:
		return "New"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("command.Op(%d)", int(o))
	}
}

// Target identifies which kind of GPU resource a command addresses.
type Target int

const (
	// TargetObject addresses a per-instance attribute buffer region, located
	// by pipeline key and slot index.
	TargetObject Target = iota

	// TargetUniform addresses a per-pipeline uniform buffer block.
	TargetUniform
)

// Command is one GPU resource update. Commands are plain data: producing them
// never touches the GPU, and the resource layer consumes them in order.
type Command struct {
	// Op is the command tag.
	Op Op

	// Target selects instance-buffer or uniform-buffer addressing.
	Target Target

	// Handle identifies the object for TargetObject commands; NilHandle for
	// uniform commands.
	Handle object_pool.Handle

	// Pipeline is the key of the pipeline whose buffer the command addresses.
	Pipeline string

	// Slot is the pool slot index for TargetObject commands, -1 for uniforms.
	Slot int

	// Stride is the packed byte size of one instance (or of the uniform
	// block). The resource layer uses it to size buffers.
	Stride int

	// BufferOffset is the absolute byte offset of the write within the
	// target buffer: slot*stride plus the span offset for updates.
	BufferOffset uint64

	// Data is the packed payload. Full stride for New, the merged dirty span
	// for Update, nil for Delete.
	Data []byte

	// Fields lists the changed attribute names carried by an Update, in
	// schema declaration order. Nil for New and Delete.
	Fields []string
}
