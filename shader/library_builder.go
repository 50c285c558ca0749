package shader

import (
	"time"

	"github.com/Carmen-Shannon/prism-go/shader/compiler"
)

// LibraryBuilderOption is a functional option for configuring a Library.
// Use the With* functions to create options that are applied directly to the
// library instance.
type LibraryBuilderOption func(*library)

// WithConfig replaces the entire configuration, normally with one returned
// by LoadConfig. Options applied after this one override individual fields.
//
// Parameters:
//   - cfg: the configuration to use
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithConfig(cfg Config) LibraryBuilderOption {
	return func(l *library) {
		l.cfg = cfg
	}
}

// WithEngineRoot sets the engine root directory paths are anchored to.
//
// Parameters:
//   - root: the engine root directory
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithEngineRoot(root string) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.EngineRoot = root
	}
}

// WithShaderRoot sets the shader subpath beneath the engine root that
// discovery walks.
//
// Parameters:
//   - root: the shader subpath (empty = the engine root itself)
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithShaderRoot(root string) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.ShaderRoot = root
	}
}

// WithIncludePaths appends include search directories for the preprocessor.
// Relative entries resolve against the engine root.
//
// Parameters:
//   - paths: directories in search order
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithIncludePaths(paths ...string) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.IncludePaths = append(l.cfg.IncludePaths, paths...)
	}
}

// WithDefines adds macro substitutions applied to every preprocessed source.
//
// Parameters:
//   - defines: macro name to replacement text
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithDefines(defines map[string]string) LibraryBuilderOption {
	return func(l *library) {
		if l.cfg.Defines == nil {
			l.cfg.Defines = make(map[string]string, len(defines))
		}
		for k, v := range defines {
			l.cfg.Defines[k] = v
		}
	}
}

// WithBackend injects a compiler backend instance, overriding the config's
// backend name. Required for the wgpu backend, which needs a device.
//
// Parameters:
//   - backend: the backend to compile and link with
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithBackend(backend compiler.CompilerBackend) LibraryBuilderOption {
	return func(l *library) {
		l.backendOverride = backend
	}
}

// WithMaxFramesInFlight sets the deferred-release window in frames.
//
// Parameters:
//   - frames: frames that must complete before a replaced program is released
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithMaxFramesInFlight(frames int) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.MaxFramesInFlight = frames
	}
}

// WithPreprocessWorkers sets the worker-pool size for initial-load
// preprocessing fan-out.
//
// Parameters:
//   - n: the number of workers (0 = resolve on the build thread)
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithPreprocessWorkers(n int) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.PreprocessWorkers = n
	}
}

// WithValidateIR toggles the compiler's IR validation pass.
//
// Parameters:
//   - enabled: whether to validate every compiled stage
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithValidateIR(enabled bool) LibraryBuilderOption {
	return func(l *library) {
		l.cfg.ValidateIR = enabled
	}
}

// WithProfiling enables build and cache telemetry, emitted through the
// common logger at the given interval on each EndFrame.
//
// Parameters:
//   - interval: minimum time between summary lines (<= 0 = one second)
//
// Returns:
//   - LibraryBuilderOption: option function to apply
func WithProfiling(interval time.Duration) LibraryBuilderOption {
	return func(l *library) {
		l.profilingEnabled = true
		if interval > 0 {
			l.profileInterval = interval
		}
	}
}
