// Package compiler abstracts shader compilation and linking behind a backend
// interface. The naga backend compiles WGSL to SPIR-V in pure Go with no GPU
// device, which is what builds and tests run against by default. The wgpu
// backend additionally creates device objects (shader modules, bind group
// layouts, pipeline layout) against an injected WebGPU device.
package compiler

import (
	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
)

// CompilerBackendType identifies the compilation backend implementation.
type CompilerBackendType int

const (
	// BackendTypeNaga selects the pure-Go WGSL compiler backend. No GPU
	// device required. This is the default.
	BackendTypeNaga CompilerBackendType = iota

	// BackendTypeWGPU selects the WebGPU device-backed backend. Requires an
	// injected *wgpu.Device and must run on the device's thread.
	BackendTypeWGPU
)

// String returns the backend name.
func (t CompilerBackendType) String() string {
	switch t {
	case BackendTypeNaga:
		return "naga"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "unknown"
	}
}

// BlockInfo describes one resource declaration reflected from a compiled
// stage.
type BlockInfo struct {
	// Name is the block's identity for binding purposes: the WGSL struct
	// type name for buffer-backed declarations, the variable name for
	// handle types (textures, samplers).
	Name string

	// Group and Binding are the source-declared @group/@binding indices.
	Group   uint32
	Binding uint32

	// Uniform marks var<uniform> declarations. Only uniform blocks
	// participate in the global binding registry; everything else is
	// tracked for cross-stage conflict checks.
	Uniform bool
}

// EntryPointInfo describes one entry point reflected from a compiled stage.
type EntryPointInfo struct {
	// Name is the entry function name.
	Name string

	// Class is the entry point's pipeline class: StageVertex, StageFragment
	// or StageCompute. Tessellation and geometry stages have no class.
	Class common.StageKind

	// Workgroup is the compute workgroup size. Zero for other classes.
	Workgroup [3]uint32
}

// StageArtifact is the result of compiling one stage source. It carries the
// reflection data the linker and builder consume plus backend-private state.
type StageArtifact struct {
	// Stage is the pipeline stage the artifact was compiled for.
	Stage common.StageKind

	// Fingerprint is the resolved-source fingerprint the artifact was
	// compiled from.
	Fingerprint common.Fingerprint

	// SPIRV is the generated SPIR-V binary. Empty for stages that have no
	// WGSL entry-point class (tessellation, geometry), which are parsed and
	// validated but not code-generated.
	SPIRV []byte

	// Blocks are the resource declarations reflected from the stage.
	Blocks []BlockInfo

	// EntryPoints are the entry points reflected from the stage.
	EntryPoints []EntryPointInfo

	// payload carries backend-private state from CompileStage to Link.
	payload any
}

// HasEntryPoint reports whether the artifact declares an entry point of the
// given class.
func (a StageArtifact) HasEntryPoint(class common.StageKind) bool {
	for _, ep := range a.EntryPoints {
		if ep.Class == class {
			return true
		}
	}
	return false
}

// ProgramHandle is an opaque reference to a linked program owned by the
// backend that produced it. Handles are mutated only during the build that
// creates them; once published they are read-only.
type ProgramHandle interface {
	// Name returns the descriptor name the program was linked for.
	//
	// Returns:
	//   - string: the symbolic program name
	Name() string

	// Backend identifies the backend that produced the handle.
	//
	// Returns:
	//   - CompilerBackendType: the producing backend
	Backend() CompilerBackendType

	// StageSPIRV returns the SPIR-V binary compiled for the given stage.
	//
	// Parameters:
	//   - stage: the pipeline stage to fetch
	//
	// Returns:
	//   - []byte: the SPIR-V binary
	//   - bool: false if the stage was not part of the program or produced
	//     no binary
	StageSPIRV(stage common.StageKind) ([]byte, bool)

	// Bindings returns the block-name-to-binding-index assignments applied
	// to the program.
	//
	// Returns:
	//   - map[string]uint32: a copy of the applied assignments
	Bindings() map[string]uint32

	// WorkgroupSize returns the compute workgroup size reflected from the
	// program's compute stage.
	//
	// Returns:
	//   - [3]uint32: the workgroup dimensions
	//   - bool: false if the program has no compute stage
	WorkgroupSize() ([3]uint32, bool)
}

// CompilerBackend compiles, links and releases shader programs. A failed
// operation reports through diagnostics; any SeverityError entry marks the
// operation failed and the accompanying artifact or handle must be ignored.
type CompilerBackend interface {
	// CompileStage compiles one preprocessed stage source.
	//
	// Parameters:
	//   - descriptorName: the program name, used in diagnostics
	//   - src: the resolved stage source to compile
	//
	// Returns:
	//   - StageArtifact: the compiled artifact, valid only if no diagnostic
	//     carries SeverityError
	//   - []common.Diagnostic: compile diagnostics, all collected rather
	//     than stopping at the first
	CompileStage(descriptorName string, src preprocessor.PreprocessedSource) (StageArtifact, []common.Diagnostic)

	// Link assembles compiled stage artifacts into one program. Missing
	// entry points and cross-stage binding conflicts surface here.
	//
	// Parameters:
	//   - descriptorName: the program name
	//   - artifacts: the compiled stages, in pipeline order
	//
	// Returns:
	//   - ProgramHandle: the linked program, nil when any diagnostic
	//     carries SeverityError
	//   - []common.Diagnostic: link diagnostics
	Link(descriptorName string, artifacts []StageArtifact) (ProgramHandle, []common.Diagnostic)

	// ApplyBinding records a registry-assigned binding index for a uniform
	// block on the linked program. A source-declared group index that
	// disagrees with the assigned index produces a warning; the assigned
	// index wins.
	//
	// Parameters:
	//   - handle: the program to annotate
	//   - blockName: the uniform block name
	//   - index: the registry-assigned binding index
	//
	// Returns:
	//   - []common.Diagnostic: at most a warning on group mismatch
	ApplyBinding(handle ProgramHandle, blockName string, index uint32) []common.Diagnostic

	// ReleaseProgram frees backend resources held by the handle. Safe to
	// call with nil. The naga backend holds no device resources and treats
	// this as a no-op.
	//
	// Parameters:
	//   - handle: the program to release
	ReleaseProgram(handle ProgramHandle)

	// Type identifies the backend.
	//
	// Returns:
	//   - CompilerBackendType: the backend type
	Type() CompilerBackendType
}
