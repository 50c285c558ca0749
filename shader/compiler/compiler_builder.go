package compiler

import "github.com/gogpu/naga/spirv"

// backendConfig holds the compile knobs shared by both backends.
type backendConfig struct {
	spirvVersion spirv.Version
	debug        bool
	validate     bool
}

func defaultBackendConfig() backendConfig {
	return backendConfig{
		spirvVersion: spirv.Version1_3,
	}
}

// BackendOption is a functional option for configuring a compiler backend
// at construction time.
type BackendOption func(*backendConfig)

// WithSPIRVVersion overrides the target SPIR-V version. Defaults to 1.3.
//
// Parameters:
//   - v: the SPIR-V version to target
//
// Returns:
//   - BackendOption: the option to apply
func WithSPIRVVersion(v spirv.Version) BackendOption {
	return func(cfg *backendConfig) {
		cfg.spirvVersion = v
	}
}

// WithDebugInfo enables debug information (names, line mappings) in the
// generated SPIR-V.
//
// Returns:
//   - BackendOption: the option to apply
func WithDebugInfo() BackendOption {
	return func(cfg *backendConfig) {
		cfg.debug = true
	}
}

// WithIRValidation toggles IR validation between lowering and code
// generation. Off by default: parse and lowering already reject malformed
// sources, and the extra pass costs build time on every reload.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - BackendOption: the option to apply
func WithIRValidation(enabled bool) BackendOption {
	return func(cfg *backendConfig) {
		cfg.validate = enabled
	}
}
