// Package program builds multi-stage shader programs: it resolves each stage
// source through the preprocessor cache, compiles and links through a
// compiler backend, assigns uniform-block binding indices from the global
// registry, and stamps the result with the fingerprint set it was built
// from. A build either yields a complete program or a BuildError carrying
// every collected diagnostic; a partially linked program is never returned.
package program

import (
	"sort"
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/compiler"
)

// compiledProgram is the implementation of the CompiledProgram interface.
// Instances are immutable after the builder returns them.
type compiledProgram struct {
	handle       compiler.ProgramHandle
	name         string
	bindings     map[string]uint32
	builtAt      time.Time
	fingerprints map[common.StageKind]common.Fingerprint
	fingerprint  common.Fingerprint
}

// CompiledProgram is a successfully built and linked shader program. It is
// owned by the shader registry; consumers hold the symbolic name or a
// short-lived reference obtained per draw. All methods are safe for
// concurrent use because the program never mutates after construction.
type CompiledProgram interface {
	// Handle returns the backend program handle, for binding the program or
	// fetching its per-stage SPIR-V.
	//
	// Returns:
	//   - compiler.ProgramHandle: the opaque backend handle
	Handle() compiler.ProgramHandle

	// Name returns the symbolic program name.
	//
	// Returns:
	//   - string: the descriptor name the program was built for
	Name() string

	// BlockBinding returns the registry-assigned binding index for a
	// uniform block declared by the program.
	//
	// Parameters:
	//   - blockName: the uniform block name
	//
	// Returns:
	//   - uint32: the binding index
	//   - bool: false if the program declares no such block
	BlockBinding(blockName string) (uint32, bool)

	// Bindings returns a copy of the program's uniform-block binding map.
	//
	// Returns:
	//   - map[string]uint32: block name to binding index
	Bindings() map[string]uint32

	// BuiltAt returns the time the program finished building.
	//
	// Returns:
	//   - time.Time: the build timestamp
	BuiltAt() time.Time

	// StageFingerprint returns the resolved-source fingerprint a stage was
	// built from.
	//
	// Parameters:
	//   - kind: the pipeline stage
	//
	// Returns:
	//   - common.Fingerprint: the fingerprint
	//   - bool: false if the program has no such stage
	StageFingerprint(kind common.StageKind) (common.Fingerprint, bool)

	// Fingerprints returns a copy of the per-stage fingerprint set the
	// program was built from.
	//
	// Returns:
	//   - map[common.StageKind]common.Fingerprint: stage to fingerprint
	Fingerprints() map[common.StageKind]common.Fingerprint

	// Fingerprint returns the whole-program identity: the per-stage
	// fingerprints folded in pipeline order. Two programs with equal
	// fingerprints were built from identical resolved sources.
	//
	// Returns:
	//   - common.Fingerprint: the combined fingerprint
	Fingerprint() common.Fingerprint

	// Stages returns the pipeline stages the program was built from, in
	// pipeline order.
	//
	// Returns:
	//   - []common.StageKind: the stage kinds
	Stages() []common.StageKind
}

var _ CompiledProgram = &compiledProgram{}

func (p *compiledProgram) Handle() compiler.ProgramHandle {
	return p.handle
}

func (p *compiledProgram) Name() string {
	return p.name
}

func (p *compiledProgram) BlockBinding(blockName string) (uint32, bool) {
	idx, ok := p.bindings[blockName]
	return idx, ok
}

func (p *compiledProgram) Bindings() map[string]uint32 {
	out := make(map[string]uint32, len(p.bindings))
	for name, idx := range p.bindings {
		out[name] = idx
	}
	return out
}

func (p *compiledProgram) BuiltAt() time.Time {
	return p.builtAt
}

func (p *compiledProgram) StageFingerprint(kind common.StageKind) (common.Fingerprint, bool) {
	fp, ok := p.fingerprints[kind]
	return fp, ok
}

func (p *compiledProgram) Fingerprints() map[common.StageKind]common.Fingerprint {
	out := make(map[common.StageKind]common.Fingerprint, len(p.fingerprints))
	for kind, fp := range p.fingerprints {
		out[kind] = fp
	}
	return out
}

func (p *compiledProgram) Fingerprint() common.Fingerprint {
	return p.fingerprint
}

func (p *compiledProgram) Stages() []common.StageKind {
	out := make([]common.StageKind, 0, len(p.fingerprints))
	for kind := range p.fingerprints {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PipelineOrder() < out[j].PipelineOrder() })
	return out
}
