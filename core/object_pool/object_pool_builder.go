package object_pool

// PoolBuilderOption is a functional option for configuring a pool during construction.
// Use the With* functions to create options.
type PoolBuilderOption func(p *pool)

// WithCapacity sets a hard slot limit. Insert fails with
// common.ErrCapacityExceeded once every slot (occupied or pending retirement)
// is in use. A value of 0 leaves the pool unbounded, which is the default.
//
// Parameters:
//   - capacity: the maximum number of slots, 0 for unbounded
//
// Returns:
//   - PoolBuilderOption: option function to apply
func WithCapacity(capacity int) PoolBuilderOption {
	return func(p *pool) {
		p.capacity = capacity
	}
}
