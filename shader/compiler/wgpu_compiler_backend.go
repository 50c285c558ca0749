package compiler

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga/ir"
)

// wgpuCompilerBackend is the implementation of the CompilerBackend interface
// backed by a WebGPU device. Stage metadata still comes from the naga
// pipeline; the device additionally receives a shader module per executable
// stage and, at link, merged bind group layouts plus a pipeline layout. The
// device is injected, never owned, and all calls must run on the thread that
// owns it.
type wgpuCompilerBackend struct {
	device *wgpu.Device
	naga   *nagaCompilerBackend
}

var _ CompilerBackend = &wgpuCompilerBackend{}

// WGPUProgram is the device-object view of a handle produced by the wgpu
// backend. Callers that build pipelines assert a ProgramHandle to this
// interface.
type WGPUProgram interface {
	ProgramHandle

	// Module returns the compiled shader module for a stage.
	//
	// Parameters:
	//   - stage: the pipeline stage to fetch
	//
	// Returns:
	//   - *wgpu.ShaderModule: the device module
	//   - bool: false if the stage has no device module
	Module(stage common.StageKind) (*wgpu.ShaderModule, bool)

	// PipelineLayout returns the pipeline layout linked for the program.
	//
	// Returns:
	//   - *wgpu.PipelineLayout: the layout, valid until the program is released
	PipelineLayout() *wgpu.PipelineLayout

	// BindGroupLayouts returns the per-group bind group layouts, indexed by
	// group number. Gaps are nil.
	//
	// Returns:
	//   - []*wgpu.BindGroupLayout: the layouts, valid until the program is released
	BindGroupLayouts() []*wgpu.BindGroupLayout
}

// wgpuStagePayload carries the per-stage device module and lowered IR from
// CompileStage to Link.
type wgpuStagePayload struct {
	irModule *ir.Module
	module   *wgpu.ShaderModule
}

// NewWGPUBackend creates the device-backed compiler backend.
//
// Parameters:
//   - device: the WebGPU device to create modules and layouts against
//   - options: functional options for SPIR-V version, debug info and IR validation
//
// Returns:
//   - CompilerBackend: the configured backend
func NewWGPUBackend(device *wgpu.Device, options ...BackendOption) CompilerBackend {
	cfg := defaultBackendConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return &wgpuCompilerBackend{
		device: device,
		naga:   &nagaCompilerBackend{cfg: cfg},
	}
}

func (b *wgpuCompilerBackend) Type() CompilerBackendType {
	return BackendTypeWGPU
}

func (b *wgpuCompilerBackend) CompileStage(descriptorName string, src preprocessor.PreprocessedSource) (StageArtifact, []common.Diagnostic) {
	artifact, diags := b.naga.CompileStage(descriptorName, src)
	if common.HasErrorDiagnostic(diags) {
		return artifact, diags
	}
	// Stages without a WGSL entry-point class never reach the device.
	if !hasEntryPointClass(src.Kind) {
		return artifact, diags
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: descriptorName + "/" + src.Kind.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: src.Text,
		},
	})
	if err != nil {
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityError,
			Descriptor: descriptorName,
			Stage:      common.StagePtr(src.Kind),
			Message:    err.Error(),
		})
		return artifact, diags
	}

	artifact.payload = &wgpuStagePayload{
		irModule: artifact.payload.(*ir.Module),
		module:   module,
	}
	return artifact, diags
}

func (b *wgpuCompilerBackend) Link(descriptorName string, artifacts []StageArtifact) (ProgramHandle, []common.Diagnostic) {
	diags := checkLink(descriptorName, artifacts)
	if common.HasErrorDiagnostic(diags) {
		releaseStageModules(artifacts)
		return nil, diags
	}

	p := &wgpuProgram{
		name:     descriptorName,
		spirv:    make(map[common.StageKind][]byte, len(artifacts)),
		modules:  make(map[common.StageKind]*wgpu.ShaderModule, len(artifacts)),
		bindings: make(map[string]uint32),
		groups:   make(map[string]uint32),
	}

	// Merge layout entries across stages by (group, binding): the same slot
	// claimed by several stages ORs its visibility, disagreeing layouts are
	// a link failure.
	groupEntries := make(map[uint32]map[uint32]wgpu.BindGroupLayoutEntry)
	for _, a := range artifacts {
		payload, ok := a.payload.(*wgpuStagePayload)
		if !ok {
			continue
		}
		if payload.module != nil {
			p.modules[a.Stage] = payload.module
		}
		if len(a.SPIRV) > 0 {
			p.spirv[a.Stage] = a.SPIRV
		}

		visibility := stageVisibility(a.Stage)
		for _, gv := range payload.irModule.GlobalVariables {
			if gv.Binding == nil {
				continue
			}
			entry, warn := layoutEntry(payload.irModule, gv, visibility)
			if warn != nil {
				w := *warn
				w.Descriptor = descriptorName
				w.Stage = common.StagePtr(a.Stage)
				diags = append(diags, w)
			}
			group := gv.Binding.Group
			if groupEntries[group] == nil {
				groupEntries[group] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			existing, claimed := groupEntries[group][entry.Binding]
			if !claimed {
				groupEntries[group][entry.Binding] = entry
				continue
			}
			if !layoutsAgree(existing, entry) {
				diags = append(diags, common.Diagnostic{
					Severity:   common.SeverityError,
					Descriptor: descriptorName,
					Message:    fmt.Sprintf("group %d binding %d has incompatible layouts across stages", group, entry.Binding),
				})
				continue
			}
			existing.Visibility |= entry.Visibility
			groupEntries[group][entry.Binding] = existing
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
	if common.HasErrorDiagnostic(diags) {
		releaseStageModules(artifacts)
		return nil, diags
	}

	maxGroup := -1
	for g := range groupEntries {
		if int(g) > maxGroup {
			maxGroup = int(g)
		}
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, entryMap := range groupEntries {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
		for _, e := range entryMap {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })

		layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s group %d", descriptorName, g),
			Entries: entries,
		})
		if err != nil {
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityError,
				Descriptor: descriptorName,
				Message:    fmt.Sprintf("failed to create bind group layout for group %d: %v", g, err),
			})
			releaseLayouts(layouts)
			releaseStageModules(artifacts)
			return nil, diags
		}
		layouts[g] = layout
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            descriptorName,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityError,
			Descriptor: descriptorName,
			Message:    fmt.Sprintf("failed to create pipeline layout: %v", err),
		})
		releaseLayouts(layouts)
		releaseStageModules(artifacts)
		return nil, diags
	}

	p.bindGroupLayouts = layouts
	p.pipelineLayout = pipelineLayout
	return p, diags
}

func (b *wgpuCompilerBackend) ApplyBinding(handle ProgramHandle, blockName string, index uint32) []common.Diagnostic {
	p, ok := handle.(*wgpuProgram)
	if !ok {
		return []common.Diagnostic{{
			Severity: common.SeverityError,
			Message:  fmt.Sprintf("program %q was not produced by the wgpu backend", handle.Name()),
		}}
	}
	return recordBinding(p.name, p.bindings, p.groups, blockName, index)
}

func (b *wgpuCompilerBackend) ReleaseProgram(handle ProgramHandle) {
	p, ok := handle.(*wgpuProgram)
	if !ok || p == nil || p.released {
		return
	}
	p.released = true
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
	}
	releaseLayouts(p.bindGroupLayouts)
	for _, m := range p.modules {
		m.Release()
	}
}

// wgpuProgram is the ProgramHandle produced by the wgpu backend.
type wgpuProgram struct {
	name             string
	spirv            map[common.StageKind][]byte
	modules          map[common.StageKind]*wgpu.ShaderModule
	bindGroupLayouts []*wgpu.BindGroupLayout
	pipelineLayout   *wgpu.PipelineLayout
	bindings         map[string]uint32
	groups           map[string]uint32
	workgroup        *[3]uint32
	released         bool
}

var _ WGPUProgram = &wgpuProgram{}

func (p *wgpuProgram) Name() string {
	return p.name
}

func (p *wgpuProgram) Backend() CompilerBackendType {
	return BackendTypeWGPU
}

func (p *wgpuProgram) StageSPIRV(stage common.StageKind) ([]byte, bool) {
	words, ok := p.spirv[stage]
	return words, ok
}

func (p *wgpuProgram) Bindings() map[string]uint32 {
	out := make(map[string]uint32, len(p.bindings))
	for name, idx := range p.bindings {
		out[name] = idx
	}
	return out
}

func (p *wgpuProgram) WorkgroupSize() ([3]uint32, bool) {
	if p.workgroup == nil {
		return [3]uint32{}, false
	}
	return *p.workgroup, true
}

func (p *wgpuProgram) Module(stage common.StageKind) (*wgpu.ShaderModule, bool) {
	m, ok := p.modules[stage]
	return m, ok
}

func (p *wgpuProgram) PipelineLayout() *wgpu.PipelineLayout {
	return p.pipelineLayout
}

func (p *wgpuProgram) BindGroupLayouts() []*wgpu.BindGroupLayout {
	return p.bindGroupLayouts
}

// stageVisibility maps a pipeline stage to its wgpu visibility flag.
func stageVisibility(kind common.StageKind) wgpu.ShaderStage {
	switch kind {
	case common.StageVertex:
		return wgpu.ShaderStageVertex
	case common.StageFragment:
		return wgpu.ShaderStageFragment
	case common.StageCompute:
		return wgpu.ShaderStageCompute
	default:
		return 0
	}
}

// layoutEntry builds the bind group layout entry for one bound global. The
// lowered IR does not carry storage-buffer access modes, storage-texture
// formats or texture sample kinds, so storage buffers assume the WGSL
// default (read-only), storage textures fall back to write-only rgba8unorm
// with a warning, and sampled textures assume f32 texels.
func layoutEntry(module *ir.Module, gv ir.GlobalVariable, visibility wgpu.ShaderStage) (wgpu.BindGroupLayoutEntry, *common.Diagnostic) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    gv.Binding.Binding,
		Visibility: visibility,
	}

	switch gv.Space {
	case ir.SpaceUniform:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		return entry, nil
	case ir.SpaceStorage:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		return entry, nil
	}

	var inner ir.TypeInner
	if int(gv.Type) < len(module.Types) {
		inner = module.Types[gv.Type].Inner
	}
	switch t := inner.(type) {
	case ir.SamplerType:
		if t.Comparison {
			entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
		} else {
			entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		}
	case ir.ImageType:
		dim := viewDimension(t.Dim, t.Arrayed)
		switch t.Class {
		case ir.ImageClassDepth:
			entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
			entry.Texture.ViewDimension = dim
			entry.Texture.Multisampled = t.Multisampled
		case ir.ImageClassStorage:
			entry.StorageTexture.ViewDimension = dim
			entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
			entry.StorageTexture.Format = wgpu.TextureFormatRGBA8Unorm
			return entry, &common.Diagnostic{
				Severity: common.SeverityWarning,
				Message:  fmt.Sprintf("storage texture %q laid out as write-only rgba8unorm; texel format is not recoverable from the compiled module", gv.Name),
			}
		default:
			entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
			entry.Texture.ViewDimension = dim
			entry.Texture.Multisampled = t.Multisampled
		}
	}
	return entry, nil
}

// viewDimension maps an IR image dimension to a wgpu view dimension.
func viewDimension(dim ir.ImageDimension, arrayed bool) wgpu.TextureViewDimension {
	switch dim {
	case ir.Dim1D:
		return wgpu.TextureViewDimension1D
	case ir.Dim3D:
		return wgpu.TextureViewDimension3D
	case ir.DimCube:
		if arrayed {
			return wgpu.TextureViewDimensionCubeArray
		}
		return wgpu.TextureViewDimensionCube
	default:
		if arrayed {
			return wgpu.TextureViewDimension2DArray
		}
		return wgpu.TextureViewDimension2D
	}
}

// layoutsAgree reports whether two entries for the same slot describe the
// same layout, ignoring visibility.
func layoutsAgree(a, b wgpu.BindGroupLayoutEntry) bool {
	a.Visibility = 0
	b.Visibility = 0
	return a == b
}

// releaseStageModules frees the device modules carried by artifacts after a
// failed link; without a program they are unreachable.
func releaseStageModules(artifacts []StageArtifact) {
	for _, a := range artifacts {
		if payload, ok := a.payload.(*wgpuStagePayload); ok && payload.module != nil {
			payload.module.Release()
			payload.module = nil
		}
	}
}

// releaseLayouts frees non-nil bind group layouts.
func releaseLayouts(layouts []*wgpu.BindGroupLayout) {
	for _, l := range layouts {
		if l != nil {
			l.Release()
		}
	}
}
