package core

import (
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-core/core/attribute"
	"github.com/Carmen-Shannon/oxy-core/core/window"
)

// coreConfig collects construction-time settings for the core.
type coreConfig struct {
	framesInFlight int
	poolCapacity   int
	packWorkers    int
	timeout        time.Duration
	drainTimeout   time.Duration
	profile        bool
	window         window.Window
}

// CoreBuilderOption is a functional option for configuring a core during construction.
// Use the With* functions to create options.
type CoreBuilderOption func(cfg *coreConfig)

// WithFramesInFlight sets how many frames may be in flight at once. Defaults
// to 2. Values below 1 are clamped to 1; 1 serializes CPU and GPU completely.
//
// Parameters:
//   - frames: the in-flight frame count
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithFramesInFlight(frames int) CoreBuilderOption {
	return func(cfg *coreConfig) {
		if frames < 1 {
			frames = 1
		}
		cfg.framesInFlight = frames
	}
}

// WithPoolCapacity sets a hard limit on scene slots. Defaults to unbounded.
//
// Parameters:
//   - capacity: the slot limit, 0 for unbounded
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithPoolCapacity(capacity int) CoreBuilderOption {
	return func(cfg *coreConfig) {
		cfg.poolCapacity = capacity
	}
}

// WithPackWorkers sets the worker count for parallel command packing. Defaults
// to NumCPU-1 (minimum 1).
//
// Parameters:
//   - workers: the worker count
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithPackWorkers(workers int) CoreBuilderOption {
	return func(cfg *coreConfig) {
		cfg.packWorkers = workers
	}
}

// WithSynchronizationTimeout sets the bound on BeginFrame's wait for a slot.
// Defaults to 5 seconds; it also bounds Drain unless WithDrainTimeout is given.
//
// Parameters:
//   - timeout: the wait bound, must be positive
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithSynchronizationTimeout(timeout time.Duration) CoreBuilderOption {
	return func(cfg *coreConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithDrainTimeout sets a separate bound for Recreate and Shutdown drains.
//
// Parameters:
//   - timeout: the wait bound, must be positive
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithDrainTimeout(timeout time.Duration) CoreBuilderOption {
	return func(cfg *coreConfig) {
		if timeout > 0 {
			cfg.drainTimeout = timeout
		}
	}
}

// WithProfiler enables periodic flush and memory statistics logging.
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithProfiler() CoreBuilderOption {
	return func(cfg *coreConfig) {
		cfg.profile = true
	}
}

// WithWindow binds the core to a window: its resize events schedule device
// resource recreation before the next frame.
//
// Parameters:
//   - win: the window whose resize callback drives recreation
//
// Returns:
//   - CoreBuilderOption: option function to apply
func WithWindow(win window.Window) CoreBuilderOption {
	return func(cfg *coreConfig) {
		cfg.window = win
	}
}

// PipelineOption configures one pipeline at registration time.
type PipelineOption func(key string, entry *pipelineEntry) error

// WithUniformBlock declares a per-pipeline uniform block with the given
// member layout. The block starts zeroed and uploads in full on first flush.
//
// Parameters:
//   - specs: uniform member declarations in layout order
//
// Returns:
//   - PipelineOption: option function to apply
func WithUniformBlock(specs ...attribute.Spec) PipelineOption {
	return func(key string, entry *pipelineEntry) error {
		schema, err := attribute.NewSchema(specs...)
		if err != nil {
			return fmt.Errorf("uniform block: %w", err)
		}
		entry.uniform = attribute.NewUniformBlock(key, schema)
		return nil
	}
}
