package preprocessor

import "path/filepath"

// CacheBuilderOption is a functional option for configuring a preprocessor
// cache at construction time.
type CacheBuilderOption func(*cache)

// WithIncludePaths appends directories to search for #include targets after
// the including file's own directory. Relative paths are cleaned but not
// rebased; callers should pass absolute paths.
//
// Parameters:
//   - paths: directories in search order
//
// Returns:
//   - CacheBuilderOption: the option to apply
func WithIncludePaths(paths ...string) CacheBuilderOption {
	return func(c *cache) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			c.includePaths = append(c.includePaths, filepath.Clean(p))
		}
	}
}

// WithDefines seeds macro substitutions applied to every resolution. An
// in-source #define for the same name overrides the seeded value for the
// remainder of that resolution.
//
// Parameters:
//   - defines: macro name to replacement text
//
// Returns:
//   - CacheBuilderOption: the option to apply
func WithDefines(defines map[string]string) CacheBuilderOption {
	return func(c *cache) {
		for k, v := range defines {
			if k == "" {
				continue
			}
			c.defines[k] = v
		}
	}
}
