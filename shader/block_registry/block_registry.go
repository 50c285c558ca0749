// Package block_registry assigns process-global binding indices to uniform
// block names. The table is append-only: once a name is given an index, the
// pairing holds for the process lifetime, so independently compiled programs
// that declare the same block name read and write the same binding point
// without renegotiation.
package block_registry

import "sync"

// registry is the implementation of the Registry interface.
type registry struct {
	mu *sync.RWMutex

	// bindings maps block names to their assigned indices. Entries are only
	// ever added, never changed or removed.
	bindings map[string]uint32

	// next is the index handed to the next unseen block name.
	next uint32
}

// Registry is the global uniform-block binding table. All methods are safe
// for concurrent use.
type Registry interface {
	// BindingFor returns the binding index for the named uniform block,
	// assigning the next free index on first sight. Idempotent: every call
	// with the same name returns the same index, regardless of which
	// program triggered the first assignment.
	//
	// Parameters:
	//   - blockName: the uniform block name as declared in shader source
	//
	// Returns:
	//   - uint32: the index permanently associated with the name
	BindingFor(blockName string) uint32

	// Lookup returns the index for a name without assigning one.
	//
	// Parameters:
	//   - blockName: the uniform block name to look up
	//
	// Returns:
	//   - uint32: the assigned index, zero if unassigned
	//   - bool: whether the name has an assignment
	Lookup(blockName string) (uint32, bool)

	// Bindings returns a copy of the full name-to-index table.
	//
	// Returns:
	//   - map[string]uint32: the current assignments; mutating it has no
	//     effect on the registry
	Bindings() map[string]uint32

	// Count returns the number of assigned block names.
	//
	// Returns:
	//   - int: the table size
	Count() int
}

var _ Registry = &registry{}

// NewRegistry creates an empty binding registry. Indices are assigned
// densely starting at zero in first-seen order.
//
// Returns:
//   - Registry: the new registry
func NewRegistry() Registry {
	return &registry{
		mu:       &sync.RWMutex{},
		bindings: make(map[string]uint32),
	}
}

func (r *registry) BindingFor(blockName string) uint32 {
	r.mu.RLock()
	if idx, ok := r.bindings[blockName]; ok {
		r.mu.RUnlock()
		return idx
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have assigned between the two locks.
	if idx, ok := r.bindings[blockName]; ok {
		return idx
	}
	idx := r.next
	r.bindings[blockName] = idx
	r.next++
	return idx
}

func (r *registry) Lookup(blockName string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.bindings[blockName]
	return idx, ok
}

func (r *registry) Bindings() map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint32, len(r.bindings))
	for name, idx := range r.bindings {
		out[name] = idx
	}
	return out
}

func (r *registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
