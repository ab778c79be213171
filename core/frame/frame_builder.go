package frame

import "time"

// synchronizerConfig carries construction-time settings that size internal
// structures and cannot change after creation.
type synchronizerConfig struct {
	slotCount int
}

// SynchronizerBuilderOption is a functional option for configuring a synchronizer during construction.
// Use the With* functions to create options.
type SynchronizerBuilderOption func(s *synchronizer, cfg *synchronizerConfig)

// WithSlotCount sets the number of in-flight frame slots. Defaults to 2.
// Values below 1 are clamped to 1.
//
// Parameters:
//   - count: the slot count
//
// Returns:
//   - SynchronizerBuilderOption: option function to apply
func WithSlotCount(count int) SynchronizerBuilderOption {
	return func(s *synchronizer, cfg *synchronizerConfig) {
		if count < 1 {
			count = 1
		}
		cfg.slotCount = count
	}
}

// WithBeginFrameTimeout sets how long BeginFrame waits for a slot to retire
// before failing. Defaults to 5 seconds.
//
// Parameters:
//   - timeout: the wait bound, must be positive
//
// Returns:
//   - SynchronizerBuilderOption: option function to apply
func WithBeginFrameTimeout(timeout time.Duration) SynchronizerBuilderOption {
	return func(s *synchronizer, cfg *synchronizerConfig) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRetireCallback registers the retire callback at construction time,
// equivalent to calling SetRetireCallback before first use.
//
// Parameters:
//   - fn: callback receiving the retired-through generation
//
// Returns:
//   - SynchronizerBuilderOption: option function to apply
func WithRetireCallback(fn func(retiredThrough uint64)) SynchronizerBuilderOption {
	return func(s *synchronizer, cfg *synchronizerConfig) {
		s.onRetire = fn
	}
}
