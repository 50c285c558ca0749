package program

import (
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/block_registry"
	"github.com/Carmen-Shannon/prism-go/shader/compiler"
	"github.com/Carmen-Shannon/prism-go/shader/locator"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
)

// builder is the implementation of the Builder interface.
type builder struct {
	cache   preprocessor.Cache
	backend compiler.CompilerBackend
	blocks  block_registry.Registry
}

// Builder turns shader descriptors into compiled programs. Every stage of a
// descriptor is preprocessed and compiled even after an earlier stage has
// failed, so one build reports every broken stage at once. Warnings from a
// successful build are logged; a failed build returns a *common.BuildError
// carrying every collected diagnostic, warnings included.
type Builder interface {
	// Build compiles, links and binds one descriptor.
	//
	// Parameters:
	//   - descriptor: the stage set to build, as produced by the locator
	//
	// Returns:
	//   - CompiledProgram: the finished program, nil on any failure
	//   - error: a *common.BuildError classifying the failure
	//     (CompileFailure or LinkFailure) with per-stage diagnostics
	Build(descriptor locator.ShaderDescriptor) (CompiledProgram, error)
}

var _ Builder = &builder{}

// NewBuilder creates a program builder over the given collaborators. The
// same block registry must be shared by every builder in the process so
// programs agree on binding indices.
//
// Parameters:
//   - cache: the preprocessor cache stage sources are resolved through
//   - backend: the compiler backend programs are compiled and linked with
//   - blocks: the global uniform-block binding registry
//
// Returns:
//   - Builder: the configured builder
func NewBuilder(cache preprocessor.Cache, backend compiler.CompilerBackend, blocks block_registry.Registry) Builder {
	return &builder{
		cache:   cache,
		backend: backend,
		blocks:  blocks,
	}
}

func (b *builder) Build(descriptor locator.ShaderDescriptor) (CompiledProgram, error) {
	var diags []common.Diagnostic
	artifacts := make([]compiler.StageArtifact, 0, len(descriptor.Stages))

	for _, sf := range descriptor.Stages {
		src, err := b.cache.Resolve(sf.Path, sf.Kind)
		if err != nil {
			// Preprocess failures count as that stage's compile diagnostic.
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityError,
				Descriptor: descriptor.Name,
				Stage:      common.StagePtr(sf.Kind),
				Message:    err.Error(),
			})
			continue
		}
		artifact, stageDiags := b.backend.CompileStage(descriptor.Name, src)
		diags = append(diags, stageDiags...)
		if common.HasErrorDiagnostic(stageDiags) {
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	if common.HasErrorDiagnostic(diags) {
		return nil, common.NewBuildError(common.ErrorKindCompileFailure, descriptor.Name, diags)
	}

	handle, linkDiags := b.backend.Link(descriptor.Name, artifacts)
	diags = append(diags, linkDiags...)
	if handle == nil || common.HasErrorDiagnostic(linkDiags) {
		return nil, common.NewBuildError(common.ErrorKindLinkFailure, descriptor.Name, diags)
	}

	for _, artifact := range artifacts {
		for _, blk := range artifact.Blocks {
			if !blk.Uniform {
				continue
			}
			idx := b.blocks.BindingFor(blk.Name)
			diags = append(diags, b.backend.ApplyBinding(handle, blk.Name, idx)...)
		}
	}
	if common.HasErrorDiagnostic(diags) {
		b.backend.ReleaseProgram(handle)
		return nil, common.NewBuildError(common.ErrorKindLinkFailure, descriptor.Name, diags)
	}
	for _, d := range diags {
		d.Emit()
	}

	fingerprints := make(map[common.StageKind]common.Fingerprint, len(artifacts))
	for _, artifact := range artifacts {
		fingerprints[artifact.Stage] = artifact.Fingerprint
	}
	p := &compiledProgram{
		handle:       handle,
		name:         descriptor.Name,
		bindings:     handle.Bindings(),
		builtAt:      time.Now(),
		fingerprints: fingerprints,
	}
	ordered := make([]common.Fingerprint, 0, len(fingerprints))
	for _, kind := range p.Stages() {
		ordered = append(ordered, fingerprints[kind])
	}
	p.fingerprint = common.CombineFingerprints(ordered...)
	return p, nil
}
