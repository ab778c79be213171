package common

import "errors"

// Sentinel errors shared across the core packages. Callers are expected to
// test them with errors.Is after unwrapping; every package in this module
// wraps these with fmt.Errorf("...: %w", ...) to add call-site context.
var (
	// ErrInvalidHandle indicates an unknown or stale object handle. A handle
	// becomes stale the moment Remove is called with it; slot retirement does
	// not resurrect it.
	ErrInvalidHandle = errors.New("invalid object handle")

	// ErrTypeMismatch indicates an attribute value whose semantic type
	// disagrees with the pipeline schema, or an attribute name the schema
	// does not declare.
	ErrTypeMismatch = errors.New("attribute type mismatch")

	// ErrCapacityExceeded indicates the object pool's configured hard slot
	// limit is exhausted.
	ErrCapacityExceeded = errors.New("pool capacity exceeded")

	// ErrResourceRecreationRequired is surfaced by BeginFrame after the
	// platform layer reports device-resource invalidation (window resize or
	// surface loss). It is not recoverable locally: the caller must let the
	// external layer recreate device resources and then call Recreate, which
	// forces a full re-upload.
	ErrResourceRecreationRequired = errors.New("device resource recreation required")

	// ErrSynchronizationTimeout indicates BeginFrame waited longer than the
	// configured bound for an idle frame slot. Fatal: a GPU submission is
	// stuck and the completion path is no longer draining slots.
	ErrSynchronizationTimeout = errors.New("frame synchronization timeout")
)
