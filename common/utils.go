package common

import "path/filepath"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// CanonicalPath resolves a path against an anchor directory and cleans it,
// so the same file is always keyed identically regardless of how a caller
// spelled the path. Absolute inputs are cleaned as-is; relative inputs are
// joined to the anchor, never to the process working directory.
//
// Parameters:
//   - anchor: the absolute directory relative inputs resolve against
//   - path: the path to canonicalize
//
// Returns:
//   - string: the cleaned absolute path
func CanonicalPath(anchor, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(anchor, path)
}
