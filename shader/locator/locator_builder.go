package locator

import (
	"strings"

	"github.com/Carmen-Shannon/prism-go/common"
)

// LocatorBuilderOption is a functional option for configuring a Locator.
// Use the With* functions to create options that are applied directly to the locator instance.
type LocatorBuilderOption func(*locator)

// WithExtensionTable replaces the extension-to-stage table. Keys are
// normalized to lowercase with a leading dot.
//
// Parameters:
//   - table: extension (including leading dot) to stage kind mapping
//
// Returns:
//   - LocatorBuilderOption: option function to apply
func WithExtensionTable(table map[string]common.StageKind) LocatorBuilderOption {
	return func(l *locator) {
		if len(table) == 0 {
			return
		}
		normalized := make(map[string]common.StageKind, len(table))
		for ext, kind := range table {
			normalized[normalizeExt(ext)] = kind
		}
		l.extensions = normalized
	}
}

// WithExtension adds or overrides a single extension mapping on top of the
// current table.
//
// Parameters:
//   - ext: the file extension (with or without leading dot)
//   - kind: the stage kind the extension classifies as
//
// Returns:
//   - LocatorBuilderOption: option function to apply
func WithExtension(ext string, kind common.StageKind) LocatorBuilderOption {
	return func(l *locator) {
		l.extensions[normalizeExt(ext)] = kind
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
