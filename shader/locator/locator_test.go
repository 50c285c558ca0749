package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverGroupsStagesByBaseName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "Forward", "TerrainForward.vert"), "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Forward", "TerrainForward.frag"), "@fragment fn fs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Forward", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "shaders", "lib", "common.wgsl"), "// include library, not a stage")

	loc, err := NewLocator(root, "shaders")
	require.NoError(t, err)

	descs, diags, err := loc.Discover()
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, "TerrainForward", d.Name)
	require.Len(t, d.Stages, 2)
	assert.Equal(t, common.StageVertex, d.Stages[0].Kind, "stages must be in pipeline order")
	assert.Equal(t, common.StageFragment, d.Stages[1].Kind)
	for _, s := range d.Stages {
		assert.True(t, filepath.IsAbs(s.Path))
		assert.NotZero(t, s.Fingerprint)
	}
}

func TestDiscoverExcludesIncompleteGroups(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "Glow.frag"), "@fragment fn fs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Full.vert"), "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Full.frag"), "@fragment fn fs() {}")

	loc, err := NewLocator(root, "shaders")
	require.NoError(t, err)

	descs, diags, err := loc.Discover()
	require.NoError(t, err)

	require.Len(t, descs, 1)
	assert.Equal(t, "Full", descs[0].Name)

	require.Len(t, diags, 1)
	assert.Equal(t, "Glow", diags[0].Descriptor)
	assert.Contains(t, diags[0].Message, "discovery-incomplete")
	assert.Contains(t, diags[0].Message, "vertex")
}

func TestDiscoverComputeOnlyDescriptor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "Compute", "Skin.comp"), "@compute @workgroup_size(64) fn cs() {}")

	loc, err := NewLocator(root, "shaders")
	require.NoError(t, err)

	descs, diags, err := loc.Discover()
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, descs, 1)
	assert.True(t, descs[0].ComputeOnly())
	assert.True(t, descs[0].HasStage(common.StageCompute))
}

func TestDiscoverRejectsComputeMixedWithGraphics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "Bad.comp"), "@compute fn cs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Bad.vert"), "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "shaders", "Bad.frag"), "@fragment fn fs() {}")

	loc, err := NewLocator(root, "shaders")
	require.NoError(t, err)

	descs, diags, err := loc.Discover()
	require.NoError(t, err)
	assert.Empty(t, descs)
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "compute stage mixed")
}

func TestDiscoverDuplicateNameAcrossDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "a", "Water.vert"), "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "shaders", "a", "Water.frag"), "@fragment fn fs() {}")
	writeFile(t, filepath.Join(root, "shaders", "b", "Water.vert"), "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "shaders", "b", "Water.frag"), "@fragment fn fs() {}")

	loc, err := NewLocator(root, "shaders")
	require.NoError(t, err)

	descs, diags, err := loc.Discover()
	require.NoError(t, err)
	require.Len(t, descs, 1, "first directory wins, second is reported")
	assert.Contains(t, descs[0].Stages[0].Path, filepath.Join("shaders", "a"))
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "duplicate descriptor name")
}

func TestDiscoverIsWorkingDirectoryIndependent(t *testing.T) {
	root := t.TempDir()
	vertPath := filepath.Join(root, "assets", "shaders", "Forward", "TerrainForward.vert")
	writeFile(t, vertPath, "@vertex fn vs() {}")
	writeFile(t, filepath.Join(root, "assets", "shaders", "Forward", "TerrainForward.frag"), "@fragment fn fs() {}")

	// Anchor the locator while the working directory can still see the
	// relative engine root.
	t.Chdir(root)
	loc, err := NewLocator("assets", "shaders")
	require.NoError(t, err)

	// Launching from a different directory breaks naive relative reads...
	t.Chdir(t.TempDir())
	_, readErr := os.ReadFile(filepath.Join("assets", "shaders", "Forward", "TerrainForward.vert"))
	require.Error(t, readErr, "working-directory-relative access must fail from elsewhere")

	// ...but the anchored locator still resolves everything.
	descs, diags, err := loc.Discover()
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, descs, 1)
	assert.Equal(t, "TerrainForward", descs[0].Name)
	assert.Equal(t, vertPath, descs[0].Stages[0].Path)
}

func TestDiscoverMissingRoot(t *testing.T) {
	loc, err := NewLocator(t.TempDir(), "no-such-subdir")
	require.NoError(t, err)

	_, _, err = loc.Discover()
	assert.Error(t, err)
}

func TestWithExtensionTable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "Post.vsh"), "vertex")
	writeFile(t, filepath.Join(root, "shaders", "Post.fsh"), "fragment")

	// The stock table must ignore the custom extensions entirely.
	stock, err := NewLocator(root, "shaders")
	require.NoError(t, err)
	descs, _, err := stock.Discover()
	require.NoError(t, err)
	assert.Empty(t, descs)

	custom, err := NewLocator(root, "shaders", WithExtensionTable(map[string]common.StageKind{
		"vsh":  common.StageVertex, // leading dot is optional
		".fsh": common.StageFragment,
	}))
	require.NoError(t, err)

	descs, diags, err := custom.Discover()
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, descs, 1)
	assert.Equal(t, "Post", descs[0].Name)
	assert.True(t, descs[0].HasStage(common.StageVertex))
	assert.True(t, descs[0].HasStage(common.StageFragment))
}
