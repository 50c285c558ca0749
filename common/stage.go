// package common contains common types that are used throughout this library. They are not interface-wrapped structs, just plain types that express
// commonly used data: stage kinds, content fingerprints, diagnostics, and the shared logger.
package common

import "strings"

// StageKind identifies one phase of a GPU program pipeline.
// The enumeration is closed: files whose extension maps to no kind are
// explicitly ignored by discovery rather than guessed at.
type StageKind int

const (
	// StageCompute indicates a standalone compute stage. A descriptor with a
	// compute stage must contain no graphics stages.
	StageCompute StageKind = iota

	// StageVertex is the vertex stage, mandatory for every graphics program.
	StageVertex

	// StageFragment is the fragment stage, mandatory for every graphics program.
	StageFragment

	// StageTessControl is the optional tessellation-control stage.
	StageTessControl

	// StageTessEval is the optional tessellation-evaluation stage.
	StageTessEval

	// StageGeometry is the optional geometry stage.
	StageGeometry
)

// stageNames maps each StageKind to the name used in diagnostics and config files.
var stageNames = map[StageKind]string{
	StageCompute:     "compute",
	StageVertex:      "vertex",
	StageFragment:    "fragment",
	StageTessControl: "tessellation-control",
	StageTessEval:    "tessellation-evaluation",
	StageGeometry:    "geometry",
}

// stagePipelineOrder positions each kind within a graphics pipeline so that
// descriptor stage lists are deterministic and follow execution order.
var stagePipelineOrder = map[StageKind]int{
	StageVertex:      0,
	StageTessControl: 1,
	StageTessEval:    2,
	StageGeometry:    3,
	StageFragment:    4,
	StageCompute:     5,
}

// String returns the diagnostic name for the stage kind (e.g. "vertex").
//
// Returns:
//   - string: the stage name, or "unknown" for an out-of-range value
func (k StageKind) String() string {
	if name, ok := stageNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the value is one of the declared stage kinds.
//
// Returns:
//   - bool: true if the kind is part of the closed enumeration
func (k StageKind) Valid() bool {
	_, ok := stageNames[k]
	return ok
}

// PipelineOrder returns the stage's position within pipeline execution order,
// used to keep a descriptor's stage files deterministically ordered.
//
// Returns:
//   - int: the ordering index (vertex first, fragment last among graphics stages)
func (k StageKind) PipelineOrder() int {
	if ord, ok := stagePipelineOrder[k]; ok {
		return ord
	}
	return len(stagePipelineOrder)
}

// Graphics reports whether the stage belongs to a graphics pipeline
// (everything except compute).
//
// Returns:
//   - bool: true for vertex, fragment, tessellation, and geometry stages
func (k StageKind) Graphics() bool {
	return k.Valid() && k != StageCompute
}

// ParseStageKind resolves a config-file stage name (as produced by String)
// back to its StageKind.
//
// Parameters:
//   - name: the stage name, case-insensitive (e.g. "vertex", "tessellation-control")
//
// Returns:
//   - StageKind: the matching kind
//   - bool: true if the name named a known stage
func ParseStageKind(name string) (StageKind, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for kind, n := range stageNames {
		if n == needle {
			return kind, true
		}
	}
	return 0, false
}

// DefaultExtensions returns the default extension-to-stage table. One
// extension per stage kind; include libraries conventionally use ".wgsl",
// which is deliberately absent so discovery ignores them.
//
// Returns:
//   - map[string]StageKind: a fresh copy safe for the caller to extend
func DefaultExtensions() map[string]StageKind {
	return map[string]StageKind{
		".vert": StageVertex,
		".frag": StageFragment,
		".tesc": StageTessControl,
		".tese": StageTessEval,
		".geom": StageGeometry,
		".comp": StageCompute,
	}
}

// StageFromExtension classifies a file extension using the supplied table.
//
// Parameters:
//   - ext: the extension including the leading dot, case-insensitive
//   - table: the extension table to consult (nil falls back to DefaultExtensions)
//
// Returns:
//   - StageKind: the classified stage kind
//   - bool: false if the extension is not part of the table
func StageFromExtension(ext string, table map[string]StageKind) (StageKind, bool) {
	if table == nil {
		table = DefaultExtensions()
	}
	kind, ok := table[strings.ToLower(ext)]
	return kind, ok
}
