package compiler

import (
	"fmt"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// nagaCompilerBackend is the implementation of the CompilerBackend interface
// backed by the pure-Go naga WGSL compiler. It needs no GPU device and is
// safe to construct anywhere.
type nagaCompilerBackend struct {
	cfg backendConfig
}

var _ CompilerBackend = &nagaCompilerBackend{}

// NewNagaBackend creates the pure-Go compiler backend. Compilation runs
// entirely in-process: parse, lower, optionally validate the IR, then
// generate SPIR-V per stage.
//
// Parameters:
//   - options: functional options for SPIR-V version, debug info and IR validation
//
// Returns:
//   - CompilerBackend: the configured backend
func NewNagaBackend(options ...BackendOption) CompilerBackend {
	cfg := defaultBackendConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return &nagaCompilerBackend{cfg: cfg}
}

func (b *nagaCompilerBackend) Type() CompilerBackendType {
	return BackendTypeNaga
}

func (b *nagaCompilerBackend) CompileStage(descriptorName string, src preprocessor.PreprocessedSource) (StageArtifact, []common.Diagnostic) {
	artifact := StageArtifact{Stage: src.Kind, Fingerprint: src.Fingerprint}
	var diags []common.Diagnostic
	fail := func(msg string) {
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityError,
			Descriptor: descriptorName,
			Stage:      common.StagePtr(src.Kind),
			Message:    msg,
		})
	}

	ast, err := naga.Parse(src.Text)
	if err != nil {
		fail(err.Error())
		return artifact, diags
	}
	module, err := naga.LowerWithSource(ast, src.Text)
	if err != nil {
		fail(err.Error())
		return artifact, diags
	}

	if b.cfg.validate {
		validationErrors, err := naga.Validate(module)
		if err != nil {
			fail(err.Error())
			return artifact, diags
		}
		// Collect every validation finding, not just the first.
		for i := range validationErrors {
			fail(validationErrors[i].Error())
		}
		if len(validationErrors) > 0 {
			return artifact, diags
		}
	}

	artifact.Blocks = reflectBlocks(module)
	artifact.EntryPoints = reflectEntryPoints(module)
	artifact.payload = module

	// Tessellation and geometry sources have no WGSL entry-point class; they
	// are parsed and validated for early feedback but produce no binary.
	if hasEntryPointClass(src.Kind) {
		words, err := naga.GenerateSPIRV(module, spirv.Options{
			Version: b.cfg.spirvVersion,
			Debug:   b.cfg.debug,
		})
		if err != nil {
			fail(err.Error())
			return artifact, diags
		}
		artifact.SPIRV = words
	}
	return artifact, diags
}

func (b *nagaCompilerBackend) Link(descriptorName string, artifacts []StageArtifact) (ProgramHandle, []common.Diagnostic) {
	diags := checkLink(descriptorName, artifacts)
	if common.HasErrorDiagnostic(diags) {
		return nil, diags
	}

	p := &nagaProgram{
		name:     descriptorName,
		spirv:    make(map[common.StageKind][]byte, len(artifacts)),
		bindings: make(map[string]uint32),
		groups:   make(map[string]uint32),
	}
	for _, a := range artifacts {
		if len(a.SPIRV) > 0 {
			p.spirv[a.Stage] = a.SPIRV
		}
		for _, blk := range a.Blocks {
			if blk.Uniform {
				p.groups[blk.Name] = blk.Group
			}
		}
		if a.Stage == common.StageCompute {
			for _, ep := range a.EntryPoints {
				if ep.Class == common.StageCompute {
					wg := ep.Workgroup
					p.workgroup = &wg
					break
				}
			}
		}
	}
	return p, diags
}

func (b *nagaCompilerBackend) ApplyBinding(handle ProgramHandle, blockName string, index uint32) []common.Diagnostic {
	p, ok := handle.(*nagaProgram)
	if !ok {
		return []common.Diagnostic{{
			Severity: common.SeverityError,
			Message:  fmt.Sprintf("program %q was not produced by the naga backend", handle.Name()),
		}}
	}
	return recordBinding(p.name, p.bindings, p.groups, blockName, index)
}

func (b *nagaCompilerBackend) ReleaseProgram(handle ProgramHandle) {
	// naga handles hold only byte slices; nothing to free.
}

// nagaProgram is the ProgramHandle produced by the naga backend. It owns no
// GPU resources; the per-stage SPIR-V binaries are plain byte slices a
// caller can hand to a Vulkan-side consumer.
type nagaProgram struct {
	name      string
	spirv     map[common.StageKind][]byte
	bindings  map[string]uint32
	groups    map[string]uint32
	workgroup *[3]uint32
}

var _ ProgramHandle = &nagaProgram{}

func (p *nagaProgram) Name() string {
	return p.name
}

func (p *nagaProgram) Backend() CompilerBackendType {
	return BackendTypeNaga
}

func (p *nagaProgram) StageSPIRV(stage common.StageKind) ([]byte, bool) {
	words, ok := p.spirv[stage]
	return words, ok
}

func (p *nagaProgram) Bindings() map[string]uint32 {
	out := make(map[string]uint32, len(p.bindings))
	for name, idx := range p.bindings {
		out[name] = idx
	}
	return out
}

func (p *nagaProgram) WorkgroupSize() ([3]uint32, bool) {
	if p.workgroup == nil {
		return [3]uint32{}, false
	}
	return *p.workgroup, true
}

// recordBinding applies a registry-assigned index to a handle's binding map
// and reports a mismatch against the source-declared group index. Shared by
// both backends.
func recordBinding(descriptorName string, bindings, groups map[string]uint32, blockName string, index uint32) []common.Diagnostic {
	bindings[blockName] = index
	if group, declared := groups[blockName]; declared && group != index {
		return []common.Diagnostic{{
			Severity:   common.SeverityWarning,
			Descriptor: descriptorName,
			Message:    fmt.Sprintf("uniform block %q declared at group %d, registry assigned binding %d; the registry index is authoritative", blockName, group, index),
		}}
	}
	return nil
}

// hasEntryPointClass reports whether the stage maps to a WGSL entry-point
// class. Tessellation and geometry stages do not.
func hasEntryPointClass(kind common.StageKind) bool {
	switch kind {
	case common.StageVertex, common.StageFragment, common.StageCompute:
		return true
	default:
		return false
	}
}

// checkLink verifies each stage with an entry-point class declares a
// matching entry point and that no (group, binding) slot is claimed under
// conflicting names or address-space classes across stages. Shared by both
// backends.
func checkLink(descriptorName string, artifacts []StageArtifact) []common.Diagnostic {
	var diags []common.Diagnostic
	if len(artifacts) == 0 {
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityError,
			Descriptor: descriptorName,
			Message:    "no compiled stages to link",
		})
		return diags
	}

	for _, a := range artifacts {
		if !hasEntryPointClass(a.Stage) {
			continue
		}
		if !a.HasEntryPoint(a.Stage) {
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityError,
				Descriptor: descriptorName,
				Stage:      common.StagePtr(a.Stage),
				Message:    fmt.Sprintf("stage declares no @%s entry point", a.Stage),
			})
		}
	}

	type slot struct {
		group, binding uint32
	}
	seen := make(map[slot]BlockInfo)
	seenStage := make(map[slot]common.StageKind)
	for _, a := range artifacts {
		for _, blk := range a.Blocks {
			key := slot{blk.Group, blk.Binding}
			prior, ok := seen[key]
			if !ok {
				seen[key] = blk
				seenStage[key] = a.Stage
				continue
			}
			if prior.Name != blk.Name || prior.Uniform != blk.Uniform {
				diags = append(diags, common.Diagnostic{
					Severity:   common.SeverityError,
					Descriptor: descriptorName,
					Message: fmt.Sprintf("group %d binding %d declared as %q by %s stage but %q by %s stage",
						blk.Group, blk.Binding, prior.Name, seenStage[key], blk.Name, a.Stage),
				})
			}
		}
	}
	return diags
}

// reflectBlocks extracts every bound resource declaration from a lowered
// module. Buffer-backed declarations are named by their struct type,
// handle types (textures, samplers) by the variable name.
func reflectBlocks(module *ir.Module) []BlockInfo {
	blocks := make([]BlockInfo, 0, len(module.GlobalVariables))
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		name := ""
		if int(gv.Type) < len(module.Types) {
			name = module.Types[gv.Type].Name
		}
		if name == "" {
			name = gv.Name
		}
		blocks = append(blocks, BlockInfo{
			Name:    name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Uniform: gv.Space == ir.SpaceUniform,
		})
	}
	return blocks
}

// reflectEntryPoints extracts the entry points of a lowered module, mapped
// into this library's stage kinds.
func reflectEntryPoints(module *ir.Module) []EntryPointInfo {
	eps := make([]EntryPointInfo, 0, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		info := EntryPointInfo{Name: ep.Name, Workgroup: ep.Workgroup}
		switch ep.Stage {
		case ir.StageVertex:
			info.Class = common.StageVertex
		case ir.StageFragment:
			info.Class = common.StageFragment
		case ir.StageCompute:
			info.Class = common.StageCompute
		default:
			continue
		}
		eps = append(eps, info)
	}
	return eps
}
