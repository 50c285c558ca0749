// Package registry holds the published shader programs, keyed by symbolic
// name. Publication replaces entries wholesale rather than mutating them, so
// a concurrent lookup always observes either the previous complete program
// or the new one. Lookups are the render path's per-draw operation and never
// take more than a read lock once a name's first miss has been recorded.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/program"
)

// registry is the implementation of the Registry interface.
type registry struct {
	mu *sync.RWMutex

	// programs maps symbolic names to their current published program.
	programs map[string]program.CompiledProgram

	// missed records names whose lookup miss has already been logged, so a
	// consumer polling an absent name every frame produces one diagnostic,
	// not one per frame.
	missed map[string]struct{}
}

// Registry is the published-program table. All methods are safe for
// concurrent use.
type Registry interface {
	// GetByName returns the current program published under a name. A miss
	// is not an error: consumers polling for a program that failed its
	// build or does not exist receive absent and decide severity
	// themselves. The first miss per name logs a lookup-miss warning.
	//
	// Parameters:
	//   - name: the symbolic program name
	//
	// Returns:
	//   - program.CompiledProgram: the published program
	//   - bool: false when no program is published under the name
	GetByName(name string) (program.CompiledProgram, bool)

	// Publish installs a program under a name, replacing any previous
	// entry. The replaced program is returned so the caller can defer the
	// release of its GPU resources until in-flight frames have drained.
	//
	// Parameters:
	//   - name: the symbolic program name
	//   - prog: the program to install
	//
	// Returns:
	//   - program.CompiledProgram: the replaced program, nil if none
	Publish(name string, prog program.CompiledProgram) program.CompiledProgram

	// Unload removes a name's entry.
	//
	// Parameters:
	//   - name: the symbolic program name
	//
	// Returns:
	//   - program.CompiledProgram: the removed program, nil if none
	Unload(name string) program.CompiledProgram

	// Names returns the published names, sorted.
	//
	// Returns:
	//   - []string: the names
	Names() []string

	// Len returns the number of published programs.
	//
	// Returns:
	//   - int: the table size
	Len() int
}

var _ Registry = &registry{}

// NewRegistry creates an empty program registry.
//
// Returns:
//   - Registry: the new registry
func NewRegistry() Registry {
	return &registry{
		mu:       &sync.RWMutex{},
		programs: make(map[string]program.CompiledProgram),
		missed:   make(map[string]struct{}),
	}
}

func (r *registry) GetByName(name string) (program.CompiledProgram, bool) {
	r.mu.RLock()
	if prog, ok := r.programs[name]; ok {
		r.mu.RUnlock()
		return prog, true
	}
	_, logged := r.missed[name]
	r.mu.RUnlock()
	if logged {
		return nil, false
	}

	r.mu.Lock()
	// The program may have been published, or the miss logged, in between.
	if prog, ok := r.programs[name]; ok {
		r.mu.Unlock()
		return prog, true
	}
	_, logged = r.missed[name]
	if !logged {
		r.missed[name] = struct{}{}
	}
	r.mu.Unlock()

	if !logged {
		common.Diagnostic{
			Severity:   common.SeverityWarning,
			Descriptor: name,
			Message:    fmt.Sprintf("%s: no compiled program published under this name", common.ErrorKindLookupMiss),
		}.Emit()
	}
	return nil, false
}

func (r *registry) Publish(name string, prog program.CompiledProgram) program.CompiledProgram {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.programs[name]
	r.programs[name] = prog
	// The name is known now; if it is ever unloaded and missed again, that
	// is worth one fresh diagnostic.
	delete(r.missed, name)
	return replaced
}

func (r *registry) Unload(name string) program.CompiledProgram {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.programs[name]
	delete(r.programs, name)
	return removed
}

func (r *registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}
