package shader

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/prism-go/common"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the library's construction-time settings. Values are settable
// through functional options on NewLibrary or loaded from a TOML file with
// LoadConfig; options applied after WithConfig override individual fields.
type Config struct {
	// EngineRoot is the engine root directory every path is anchored to. It
	// is made absolute once at construction, so the library behaves
	// identically regardless of the process working directory. Required.
	EngineRoot string `toml:"engine_root"`

	// ShaderRoot is the shader subpath beneath the engine root that
	// discovery walks. Empty means the engine root itself.
	ShaderRoot string `toml:"shader_root"`

	// Extensions maps file extensions (with leading dot) to stage names as
	// produced by common.StageKind.String (e.g. ".vert" = "vertex"). Empty
	// keeps the default table.
	Extensions map[string]string `toml:"extensions"`

	// IncludePaths are the directories searched for #include targets after
	// the including file's own directory. Relative entries resolve against
	// the engine root.
	IncludePaths []string `toml:"include_paths"`

	// Defines are macro substitutions applied to every preprocessed source,
	// used for feature toggles.
	Defines map[string]string `toml:"defines"`

	// Backend selects the compiler backend by name: "naga" (default) or
	// "wgpu". The wgpu backend needs a device and must be injected through
	// WithBackend instead.
	Backend string `toml:"backend"`

	// MaxFramesInFlight is how many frames must complete after a program is
	// replaced before its GPU resources are released.
	MaxFramesInFlight int `toml:"max_frames_in_flight"`

	// PreprocessWorkers sizes the worker pool that fans out preprocessing
	// during the initial load. Zero resolves everything on the build thread.
	PreprocessWorkers int `toml:"preprocess_workers"`

	// ValidateIR runs the compiler's IR validation pass on every stage,
	// trading build time for earlier, more precise diagnostics.
	ValidateIR bool `toml:"validate_ir"`
}

// DefaultConfig returns the configuration the library starts from before
// options or a TOML file are applied.
//
// Returns:
//   - Config: the defaults (naga backend, 3 frames in flight, NumCPU-1 workers)
func DefaultConfig() Config {
	return Config{
		Backend:           "naga",
		MaxFramesInFlight: 3,
		PreprocessWorkers: max(runtime.NumCPU()-1, 1),
	}
}

// LoadConfig reads a TOML configuration file layered over DefaultConfig.
//
// Parameters:
//   - path: the TOML file to read
//
// Returns:
//   - Config: the parsed configuration
//   - error: an error if the file cannot be read or parsed
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("shader: reading config %q: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("shader: parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// extensionTable converts the config's extension map into stage kinds. An
// empty map returns nil, which keeps the locator's default table.
func (c Config) extensionTable() (map[string]common.StageKind, error) {
	if len(c.Extensions) == 0 {
		return nil, nil
	}
	table := make(map[string]common.StageKind, len(c.Extensions))
	for ext, stageName := range c.Extensions {
		kind, ok := common.ParseStageKind(stageName)
		if !ok {
			return nil, fmt.Errorf("shader: config maps extension %q to unknown stage %q", ext, stageName)
		}
		table[ext] = kind
	}
	return table, nil
}
