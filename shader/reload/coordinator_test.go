package reload

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/block_registry"
	"github.com/Carmen-Shannon/prism-go/shader/compiler"
	"github.com/Carmen-Shannon/prism-go/shader/locator"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/Carmen-Shannon/prism-go/shader/program"
	"github.com/Carmen-Shannon/prism-go/shader/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cameraLib = `
struct Camera {
    view_proj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
`

const vertexWithInclude = `#include "lib/camera.wgsl"

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position.x, position.y, position.z, 1.0);
}
`

const fragmentWithInclude = `#include "lib/camera.wgsl"

@fragment
fn fs_main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`

const computeSkin = `
@compute @workgroup_size(64, 1, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    var temp: u32 = id.x * 2u;
}
`

const brokenSource = "@vertex\nfn vs_main( {\n"

// countingBackend wraps the naga backend and counts program releases, which
// the pure-Go backend otherwise treats as no-ops.
type countingBackend struct {
	compiler.CompilerBackend
	released atomic.Int32
}

func (b *countingBackend) ReleaseProgram(handle compiler.ProgramHandle) {
	b.released.Add(1)
	b.CompilerBackend.ReleaseProgram(handle)
}

func writeFile(t *testing.T, root, rel, text string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// writeForwardPair lays out the standard test tree: a shared camera include
// and a vertex/fragment pair under Forward/.
func writeForwardPair(t *testing.T, root, name string) (vert, frag, lib string) {
	t.Helper()
	lib = writeFile(t, root, "lib/camera.wgsl", cameraLib)
	vert = writeFile(t, root, "Forward/"+name+".vert", vertexWithInclude)
	frag = writeFile(t, root, "Forward/"+name+".frag", fragmentWithInclude)
	return vert, frag, lib
}

func newTestCoordinator(t *testing.T, root string, backend compiler.CompilerBackend, options ...CoordinatorBuilderOption) (Coordinator, registry.Registry) {
	t.Helper()
	loc, err := locator.NewLocator(root, "")
	require.NoError(t, err)
	cache := preprocessor.NewCache(preprocessor.WithIncludePaths(root))
	blocks := block_registry.NewRegistry()
	programs := registry.NewRegistry()
	builder := program.NewBuilder(cache, backend, blocks)
	return NewCoordinator(loc, cache, builder, programs, backend, options...), programs
}

func TestLoadAllPublishesDiscoveredDescriptors(t *testing.T) {
	root := t.TempDir()
	writeForwardPair(t, root, "TerrainForward")
	writeFile(t, root, "Compute/Skin.comp", computeSkin)

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())

	assert.Equal(t, 2, programs.Len())
	assert.Equal(t, StatePublished, coord.DescriptorState("TerrainForward"))
	assert.Equal(t, StatePublished, coord.DescriptorState("Skin"))

	prog, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)
	_, ok = prog.BlockBinding("Camera")
	assert.True(t, ok)

	skin, ok := programs.GetByName("Skin")
	require.True(t, ok)
	wg, ok := skin.Handle().WorkgroupSize()
	require.True(t, ok)
	assert.Equal(t, [3]uint32{64, 1, 1}, wg)
}

func TestRebuildKeepsPreviousProgramOnFailure(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())
	before, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(vert, []byte(brokenSource), 0o644))
	coord.NotifyChanged(vert)
	assert.Equal(t, 1, coord.Rebuild())

	assert.Equal(t, StateFailedKeptOld, coord.DescriptorState("TerrainForward"))
	after, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)
	assert.Equal(t, before.BuiltAt(), after.BuiltAt())
}

func TestSharedIncludeRebuildsAllDependents(t *testing.T) {
	root := t.TempDir()
	_, _, lib := writeForwardPair(t, root, "TerrainForward")
	writeFile(t, root, "Forward/Sky.vert", vertexWithInclude)
	writeFile(t, root, "Forward/Sky.frag", fragmentWithInclude)

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())

	terrainBefore, _ := programs.GetByName("TerrainForward")
	skyBefore, _ := programs.GetByName("Sky")
	terrainFP, _ := terrainBefore.StageFingerprint(common.StageVertex)
	skyFP, _ := skyBefore.StageFingerprint(common.StageVertex)

	edited := cameraLib + "\n// extra comment changes the resolved text\n"
	require.NoError(t, os.WriteFile(lib, []byte(edited), 0o644))
	coord.NotifyChanged(lib)
	assert.Equal(t, 2, coord.Rebuild())

	terrainAfter, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)
	skyAfter, ok := programs.GetByName("Sky")
	require.True(t, ok)

	newTerrainFP, _ := terrainAfter.StageFingerprint(common.StageVertex)
	newSkyFP, _ := skyAfter.StageFingerprint(common.StageVertex)
	assert.NotEqual(t, terrainFP, newTerrainFP)
	assert.NotEqual(t, skyFP, newSkyFP)
}

func TestDeferredReleaseWaitsForFence(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")

	backend := &countingBackend{CompilerBackend: compiler.NewNagaBackend()}
	coord, _ := newTestCoordinator(t, root, backend, WithMaxFramesInFlight(2))
	require.NoError(t, coord.LoadAll())

	require.NoError(t, os.WriteFile(vert, []byte(vertexWithInclude+"\n// edited\n"), 0o644))
	coord.NotifyChanged(vert)
	require.Equal(t, 1, coord.Rebuild())

	// The replaced program is retired, not released: in-flight frames may
	// still reference it.
	assert.Equal(t, 1, coord.RetiredCount())
	assert.Equal(t, 0, coord.ReleaseRetired())
	assert.Equal(t, int32(0), backend.released.Load())

	coord.AdvanceFrame()
	assert.Equal(t, 0, coord.ReleaseRetired())

	coord.AdvanceFrame()
	assert.Equal(t, 1, coord.ReleaseRetired())
	assert.Equal(t, int32(1), backend.released.Load())
	assert.Equal(t, 0, coord.RetiredCount())
}

func TestRebuildPicksUpNewDescriptor(t *testing.T) {
	root := t.TempDir()
	writeForwardPair(t, root, "TerrainForward")

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())
	require.Equal(t, 1, programs.Len())

	skyVert := writeFile(t, root, "Forward/Sky.vert", vertexWithInclude)
	writeFile(t, root, "Forward/Sky.frag", fragmentWithInclude)
	coord.NotifyChanged(skyVert)
	assert.Equal(t, 1, coord.Rebuild())

	_, ok := programs.GetByName("Sky")
	assert.True(t, ok)
	assert.Equal(t, StatePublished, coord.DescriptorState("Sky"))
}

// supersedingBackend wraps another backend and runs a hook before linking,
// used to dirty a build's inputs while that build is still in progress.
type supersedingBackend struct {
	compiler.CompilerBackend
	onLink func()
}

func (b *supersedingBackend) Link(descriptorName string, artifacts []compiler.StageArtifact) (compiler.ProgramHandle, []common.Diagnostic) {
	if b.onLink != nil {
		b.onLink()
	}
	return b.CompilerBackend.Link(descriptorName, artifacts)
}

func TestRebuildDiscardsResultWhenInputsChangeMidBuild(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")

	counting := &countingBackend{CompilerBackend: compiler.NewNagaBackend()}
	backend := &supersedingBackend{CompilerBackend: counting}
	coord, programs := newTestCoordinator(t, root, backend)
	require.NoError(t, coord.LoadAll())
	before, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(vert, []byte(vertexWithInclude+"\n// v2\n"), 0o644))
	coord.NotifyChanged(vert)

	// The vert is edited again while its rebuild links, so the result being
	// produced is stale before it can publish.
	backend.onLink = func() {
		backend.onLink = nil
		require.NoError(t, os.WriteFile(vert, []byte(vertexWithInclude+"\n// v3\n"), 0o644))
		coord.NotifyChanged(vert)
	}
	require.Equal(t, 1, coord.Rebuild())

	// The stale result is released outright, nothing is retired, and the
	// old program stays published.
	assert.Equal(t, int32(1), counting.released.Load())
	assert.Equal(t, 0, coord.RetiredCount())
	assert.Equal(t, StateRebuilding, coord.DescriptorState("TerrainForward"))
	kept, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)
	assert.Equal(t, before.BuiltAt(), kept.BuiltAt())

	// The newer edit is still pending; the next Rebuild publishes it.
	require.Equal(t, 1, coord.Rebuild())
	assert.Equal(t, StatePublished, coord.DescriptorState("TerrainForward"))
	after, ok := programs.GetByName("TerrainForward")
	require.True(t, ok)

	expect := preprocessor.NewCache(preprocessor.WithIncludePaths(root))
	src, err := expect.Resolve(vert, common.StageVertex)
	require.NoError(t, err)
	fp, ok := after.StageFingerprint(common.StageVertex)
	require.True(t, ok)
	assert.Equal(t, src.Fingerprint, fp)
}

func TestCreatingMissingIncludeRetriesFailedDescriptor(t *testing.T) {
	root := t.TempDir()
	vertSrc := strings.ReplaceAll(vertexWithInclude, "lib/camera.wgsl", "lib/glow.wgsl")
	fragSrc := strings.ReplaceAll(fragmentWithInclude, "lib/camera.wgsl", "lib/glow.wgsl")
	writeFile(t, root, "Forward/Glow.vert", vertSrc)
	writeFile(t, root, "Forward/Glow.frag", fragSrc)

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())
	require.Equal(t, StateFailedKeptOld, coord.DescriptorState("Glow"))
	_, ok := programs.GetByName("Glow")
	require.False(t, ok)

	// The failed resolution recorded no dependency on the missing include,
	// so its creation arrives as a path nothing tracks.
	lib := writeFile(t, root, "lib/glow.wgsl", cameraLib)
	coord.NotifyChanged(lib)
	assert.Equal(t, 1, coord.Rebuild())

	assert.Equal(t, StatePublished, coord.DescriptorState("Glow"))
	_, ok = programs.GetByName("Glow")
	assert.True(t, ok)
}

func TestNotifyUnrelatedPathIsNoOp(t *testing.T) {
	root := t.TempDir()
	writeForwardPair(t, root, "TerrainForward")

	coord, _ := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())

	coord.NotifyChanged(filepath.Join(root, "notes.txt"))
	assert.Equal(t, 0, coord.Rebuild())
}

func TestNotifySignalsBuildThread(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")

	coord, _ := newTestCoordinator(t, root, compiler.NewNagaBackend())
	coord.NotifyChanged(vert)

	select {
	case <-coord.Signal():
	default:
		t.Fatal("expected a pending wake-up after NotifyChanged")
	}
}

func TestUnloadWithdrawsAndRetires(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")

	coord, programs := newTestCoordinator(t, root, compiler.NewNagaBackend())
	require.NoError(t, coord.LoadAll())

	removed := coord.Unload("TerrainForward")
	require.NotNil(t, removed)
	_, ok := programs.GetByName("TerrainForward")
	assert.False(t, ok)
	assert.Equal(t, 1, coord.RetiredCount())

	// The descriptor is forgotten: a later edit no longer rebuilds it.
	coord.NotifyChanged(vert)
	coord.Rebuild()
	_, ok = programs.GetByName("TerrainForward")
	assert.False(t, ok)
}

func TestReleaseAllEmptiesRegistryAndRetired(t *testing.T) {
	root := t.TempDir()
	vert, _, _ := writeForwardPair(t, root, "TerrainForward")
	writeFile(t, root, "Compute/Skin.comp", computeSkin)

	backend := &countingBackend{CompilerBackend: compiler.NewNagaBackend()}
	coord, programs := newTestCoordinator(t, root, backend)
	require.NoError(t, coord.LoadAll())

	require.NoError(t, os.WriteFile(vert, []byte(vertexWithInclude+"\n// edited\n"), 0o644))
	coord.NotifyChanged(vert)
	require.Equal(t, 1, coord.Rebuild())
	require.Equal(t, 1, coord.RetiredCount())

	coord.ReleaseAll()
	assert.Equal(t, 0, coord.RetiredCount())
	assert.Equal(t, 0, programs.Len())
	// One retired plus two live programs.
	assert.Equal(t, int32(3), backend.released.Load())
}

func TestDescriptorStateUnknownIsIdle(t *testing.T) {
	root := t.TempDir()
	coord, _ := newTestCoordinator(t, root, compiler.NewNagaBackend())
	assert.Equal(t, StateIdle, coord.DescriptorState("Nonexistent"))
}
