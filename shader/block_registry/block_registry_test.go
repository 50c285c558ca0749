package block_registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingForAssignsDenseIndicesInFirstSeenOrder(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, uint32(0), r.BindingFor("Camera"))
	assert.Equal(t, uint32(1), r.BindingFor("Lights"))
	assert.Equal(t, uint32(2), r.BindingFor("Material"))
	assert.Equal(t, 3, r.Count())
}

func TestBindingForIsIdempotentAcrossPrograms(t *testing.T) {
	r := NewRegistry()

	// Two programs declaring the same block name must agree on the index no
	// matter the order their other blocks were registered in.
	first := r.BindingFor("Camera")
	r.BindingFor("TerrainParams")
	r.BindingFor("WaterParams")
	second := r.BindingFor("Camera")

	assert.Equal(t, first, second)
	assert.Equal(t, 3, r.Count())
}

func TestLookupDoesNotAssign(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("Camera")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())

	want := r.BindingFor("Camera")
	got, ok := r.Lookup("Camera")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestBindingsReturnsDetachedCopy(t *testing.T) {
	r := NewRegistry()
	r.BindingFor("Camera")

	snapshot := r.Bindings()
	snapshot["Camera"] = 99
	snapshot["Injected"] = 100

	idx, ok := r.Lookup("Camera")
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)
	_, ok = r.Lookup("Injected")
	assert.False(t, ok)
}

func TestBindingForConcurrentCallersAgree(t *testing.T) {
	r := NewRegistry()
	names := []string{"Camera", "Lights", "Material", "Shadow", "Fog"}

	const workers = 16
	results := make([]map[string]uint32, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen := make(map[string]uint32, len(names))
			for _, name := range names {
				seen[name] = r.BindingFor(name)
			}
			results[w] = seen
		}()
	}
	wg.Wait()

	require.Equal(t, len(names), r.Count())
	reference := r.Bindings()
	for _, seen := range results {
		assert.Equal(t, reference, seen)
	}

	// Indices stay dense regardless of interleaving.
	used := make(map[uint32]bool, len(names))
	for _, idx := range reference {
		assert.Less(t, idx, uint32(len(names)))
		used[idx] = true
	}
	assert.Len(t, used, len(names))
}
