package command

// GeneratorBuilderOption is a functional option for configuring a generator during construction.
// Use the With* functions to create options.
type GeneratorBuilderOption func(g *generator)

// WithPackWorkers sets the number of worker goroutines used to pack object
// data in parallel during large flushes. Defaults to NumCPU-1 (minimum 1).
// A value of 1 disables parallel packing entirely.
//
// Parameters:
//   - workers: the worker count, minimum 1
//
// Returns:
//   - GeneratorBuilderOption: option function to apply
func WithPackWorkers(workers int) GeneratorBuilderOption {
	return func(g *generator) {
		if workers < 1 {
			workers = 1
		}
		g.packWorkers = workers
	}
}
