package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "naga", Coalesce("", "naga"))
	assert.Equal(t, "wgpu", Coalesce("wgpu", "naga"))
	assert.Equal(t, 3, Coalesce(0, 0, 3))
	assert.Equal(t, 0, Coalesce[int]())
}

func TestCanonicalPath(t *testing.T) {
	anchor := filepath.FromSlash("/engine")

	rel := CanonicalPath(anchor, filepath.FromSlash("assets/shaders"))
	assert.Equal(t, filepath.Join(anchor, "assets", "shaders"), rel)

	abs := filepath.Join(anchor, "assets", "Terrain.vert")
	assert.Equal(t, abs, CanonicalPath(anchor, abs))

	// Relative inputs resolve against the anchor, never the working directory.
	dotted := CanonicalPath(anchor, filepath.FromSlash("./Terrain.vert"))
	assert.Equal(t, filepath.Join(anchor, "Terrain.vert"), dotted)
}
