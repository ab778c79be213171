// package gpu applies ordered update command streams to GPU-side instance and
// uniform buffers, and reports frame completion back to the synchronizer.
package gpu

import (
	"github.com/Carmen-Shannon/oxy-core/core/command"
	"github.com/Carmen-Shannon/oxy-core/core/frame"
)

// ResourceLayer is the boundary between command generation and the device.
// Everything above it is plain data; implementations own buffer creation,
// growth, and destruction. A nil-device test double satisfies the same
// contract.
type ResourceLayer interface {
	// Execute applies one flush's command stream in order, then queues the
	// token for completion signaling once the device finishes the work.
	//
	// Parameters:
	//   - cmds: the ordered command stream for the frame
	//   - token: the frame's completion token
	//
	// Returns:
	//   - error: if a buffer could not be created or grown
	Execute(cmds []command.Command, token frame.Token) error

	// SignalOnComplete registers the function invoked with each frame's token
	// once the device has finished its work. The callback fires on the
	// layer's completion goroutine, never on the producer thread.
	//
	// Parameters:
	//   - fn: the completion callback
	SignalOnComplete(fn func(token frame.Token))

	// Invalidate releases every buffer the layer holds. Subsequent New
	// commands recreate them. Called after device loss or a resize that
	// requires resource recreation; the caller must have drained all
	// in-flight frames first.
	//
	// Returns:
	//   - error: if the device rejected the teardown
	Invalidate() error

	// Release stops the completion goroutine and frees all device resources.
	// The layer is unusable afterwards.
	Release()
}
