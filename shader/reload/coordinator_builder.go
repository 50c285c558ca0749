package reload

import "github.com/Carmen-Shannon/prism-go/shader/profiler"

// CoordinatorBuilderOption is a functional option for configuring a
// Coordinator. Use the With* functions to create options that are applied
// directly to the coordinator instance.
type CoordinatorBuilderOption func(*coordinator)

// WithMaxFramesInFlight sets how many frames must complete after a program
// is replaced before its GPU resources are released. Values <= 0 keep the
// default of 3.
//
// Parameters:
//   - frames: the deferred-release window in frames
//
// Returns:
//   - CoordinatorBuilderOption: option function to apply
func WithMaxFramesInFlight(frames int) CoordinatorBuilderOption {
	return func(c *coordinator) {
		if frames > 0 {
			c.maxFramesInFlight = uint64(frames)
		}
	}
}

// WithPreprocessWorkers sets the worker-pool size used to fan out
// preprocessing during the initial load. Zero disables the fan-out and
// resolves everything on the build thread.
//
// Parameters:
//   - n: the number of preprocessing workers
//
// Returns:
//   - CoordinatorBuilderOption: option function to apply
func WithPreprocessWorkers(n int) CoordinatorBuilderOption {
	return func(c *coordinator) {
		if n >= 0 {
			c.preprocessWorkers = n
		}
	}
}

// WithProfiler attaches a profiler that records build durations, failures
// and reload cycles.
//
// Parameters:
//   - p: the profiler to record into, nil to disable
//
// Returns:
//   - CoordinatorBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) CoordinatorBuilderOption {
	return func(c *coordinator) {
		c.prof = p
	}
}
