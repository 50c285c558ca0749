package common

import (
	"fmt"
	"strings"
)

// Severity ranks a diagnostic for the consuming log stream.
type Severity int

const (
	// SeverityInfo marks informational diagnostics (successful builds, publishes).
	SeverityInfo Severity = iota

	// SeverityWarning marks recoverable oddities (binding index mismatches,
	// duplicate descriptor names, superseded reloads).
	SeverityWarning

	// SeverityError marks failures that left a descriptor without a new program.
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one entry in the library's structured diagnostics stream:
// severity, owning descriptor, the stage it concerns when stage-specific,
// and a human-readable message. Diagnostics are reported, never thrown;
// nothing in the library terminates the process.
type Diagnostic struct {
	// Severity ranks the diagnostic.
	Severity Severity

	// Descriptor is the symbolic name of the shader descriptor concerned.
	// Empty for diagnostics that precede descriptor grouping.
	Descriptor string

	// Stage identifies the pipeline stage concerned. Nil for diagnostics
	// that are not stage-specific (link failures, discovery problems).
	Stage *StageKind

	// Message is the human-readable description.
	Message string
}

// String renders the diagnostic for plain-text contexts and error wrapping.
//
// Returns:
//   - string: e.g. `error [TerrainForward/vertex]: expected ';'`
func (d Diagnostic) String() string {
	scope := d.Descriptor
	if d.Stage != nil {
		if scope != "" {
			scope += "/"
		}
		scope += d.Stage.String()
	}
	if scope == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Severity, scope, d.Message)
}

// Emit writes the diagnostic to the installed logger with structured
// attributes, mapped to the slog level matching its severity.
func (d Diagnostic) Emit() {
	attrs := make([]any, 0, 4)
	if d.Descriptor != "" {
		attrs = append(attrs, "descriptor", d.Descriptor)
	}
	if d.Stage != nil {
		attrs = append(attrs, "stage", d.Stage.String())
	}
	switch d.Severity {
	case SeverityError:
		Logger().Error(d.Message, attrs...)
	case SeverityWarning:
		Logger().Warn(d.Message, attrs...)
	default:
		Logger().Info(d.Message, attrs...)
	}
}

// StagePtr returns a pointer to the given stage kind, for populating the
// optional Stage field of a Diagnostic.
//
// Parameters:
//   - k: the stage kind
//
// Returns:
//   - *StageKind: a pointer to a copy of k
func StagePtr(k StageKind) *StageKind {
	return &k
}

// HasErrorDiagnostic reports whether any diagnostic in the slice carries
// SeverityError. Components that collect diagnostics instead of returning on
// the first failure use this to decide whether the operation succeeded.
//
// Parameters:
//   - diags: the diagnostics to scan
//
// Returns:
//   - bool: true if at least one entry is SeverityError
func HasErrorDiagnostic(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorKind is the closed enumeration of failure kinds the library reports.
type ErrorKind int

const (
	// ErrorKindDiscoveryIncomplete marks a descriptor missing a mandatory
	// stage; it is excluded from discovery results, never silently dropped.
	ErrorKindDiscoveryIncomplete ErrorKind = iota

	// ErrorKindCompileFailure marks one or more stages failing to compile;
	// the build aborts for that descriptor and any prior registry entry is kept.
	ErrorKindCompileFailure

	// ErrorKindLinkFailure marks stages that compiled but failed to link;
	// same retention policy as compile failures.
	ErrorKindLinkFailure

	// ErrorKindLookupMiss marks a GetByName on a name with no successful
	// build ever recorded; the consumer decides how severe that is.
	ErrorKindLookupMiss

	// ErrorKindReloadSuperseded marks a rebuild whose input was already
	// stale when it would have published; its result is discarded.
	ErrorKindReloadSuperseded
)

// String returns the diagnostic name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindDiscoveryIncomplete:
		return "discovery-incomplete"
	case ErrorKindCompileFailure:
		return "compile-failure"
	case ErrorKindLinkFailure:
		return "link-failure"
	case ErrorKindLookupMiss:
		return "lookup-miss"
	case ErrorKindReloadSuperseded:
		return "reload-superseded"
	default:
		return "unknown"
	}
}

// BuildError is the error type carried by every descriptor-scoped failure.
// It aggregates per-stage diagnostics so a caller sees all broken stages at
// once rather than only the first.
type BuildError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Descriptor is the symbolic name of the descriptor the failure is local to.
	Descriptor string

	// Diagnostics holds every collected diagnostic, in stage order.
	Diagnostics []Diagnostic
}

// NewBuildError constructs a BuildError for a descriptor with its collected
// diagnostics.
//
// Parameters:
//   - kind: the failure classification
//   - descriptor: the descriptor the failure is local to
//   - diags: the collected diagnostics
//
// Returns:
//   - *BuildError: the aggregated error
func NewBuildError(kind ErrorKind, descriptor string, diags []Diagnostic) *BuildError {
	return &BuildError{Kind: kind, Descriptor: descriptor, Diagnostics: diags}
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("%s: %s", e.Descriptor, e.Kind)
	}
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msgs = append(msgs, d.String())
	}
	return fmt.Sprintf("%s: %s: %s", e.Descriptor, e.Kind, strings.Join(msgs, "; "))
}

// Emit writes every aggregated diagnostic to the installed logger.
func (e *BuildError) Emit() {
	for _, d := range e.Diagnostics {
		d.Emit()
	}
}
