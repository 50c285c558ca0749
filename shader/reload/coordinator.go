// Package reload coordinates shader rebuilds triggered by external change
// notifications. Notifications may arrive from any goroutine and only mark
// paths dirty; the actual invalidation, compilation and publication run on
// the caller's build thread, which is the only place the compiler backend's
// program objects may be touched. A failed rebuild leaves the previously
// published program in place, and replaced programs are released only after
// enough frames have passed that no in-flight frame can still reference them.
package reload

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/compiler"
	"github.com/Carmen-Shannon/prism-go/shader/locator"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/Carmen-Shannon/prism-go/shader/profiler"
	"github.com/Carmen-Shannon/prism-go/shader/program"
	"github.com/Carmen-Shannon/prism-go/shader/registry"
)

// State is one point in a descriptor's rebuild lifecycle.
type State int

const (
	// StateIdle marks a descriptor that has been discovered but never built.
	StateIdle State = iota

	// StateRebuilding marks a descriptor whose rebuild is in progress or whose
	// last result was discarded as superseded with a newer change pending.
	StateRebuilding

	// StatePublished marks a descriptor whose latest build was published.
	StatePublished

	// StateFailedKeptOld marks a descriptor whose latest build failed; the
	// previously published program, if any, is still being served.
	StateFailedKeptOld
)

// String returns the diagnostic name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRebuilding:
		return "rebuilding"
	case StatePublished:
		return "published"
	case StateFailedKeptOld:
		return "failed-kept-old"
	default:
		return "unknown"
	}
}

// retiredEntry is a replaced program awaiting deferred release, tagged with
// the frame fence value at the moment it was replaced.
type retiredEntry struct {
	prog  program.CompiledProgram
	fence uint64
}

// coordinator is the implementation of the Coordinator interface.
type coordinator struct {
	// mu guards dirty, states, descriptors and stageOwners. Everything else
	// is either atomic or confined to the build thread.
	mu *sync.Mutex

	loc      locator.Locator
	cache    preprocessor.Cache
	builder  program.Builder
	programs registry.Registry
	backend  compiler.CompilerBackend
	prof     *profiler.Profiler

	// descriptors holds the last known descriptor per symbolic name.
	descriptors map[string]locator.ShaderDescriptor

	// stageOwners maps each stage file path to the descriptor owning it.
	stageOwners map[string]string

	// states tracks the rebuild lifecycle per descriptor name.
	states map[string]State

	// dirty is the coalescing set of changed paths awaiting Rebuild.
	dirty map[string]struct{}

	// signal wakes the build thread when the dirty set becomes non-empty.
	signal chan struct{}

	frame             atomic.Uint64
	maxFramesInFlight uint64

	// retired holds replaced programs pending deferred release. Build-thread
	// only.
	retired []retiredEntry

	preprocessWorkers int
}

// Coordinator drives initial load and change-driven rebuilds of shader
// programs. NotifyChanged, DescriptorState, AdvanceFrame and Signal are safe
// from any goroutine; LoadAll, Rebuild, Unload, ReleaseRetired and ReleaseAll
// must run on the build thread that owns the compiler backend.
type Coordinator interface {
	// LoadAll discovers every descriptor beneath the shader root, warms the
	// preprocessor cache across the worker pool, then builds and publishes
	// each descriptor serially. Per-descriptor failures are reported as
	// diagnostics and do not stop the load; the returned error covers only
	// discovery of the root itself.
	//
	// Returns:
	//   - error: an error if the shader root could not be walked
	LoadAll() error

	// NotifyChanged records that the file at path changed. Never blocks;
	// rapid notifications for the same path coalesce into one pending entry.
	// Safe from any goroutine.
	//
	// Parameters:
	//   - path: the changed file; relative paths resolve against the shader root
	NotifyChanged(path string)

	// Rebuild drains the dirty set, maps the changed paths to affected
	// descriptors through the preprocessor's dependency tracking and direct
	// stage-file membership, invalidates their cached sources and rebuilds
	// each one. A changed path nothing tracks additionally retries every
	// failed descriptor, since a failed resolution records no dependencies
	// for the include it was missing. Successful builds are published;
	// failures keep the previous entry; results whose inputs were dirtied
	// again mid-build are discarded as superseded and picked up by the next
	// Rebuild.
	//
	// Returns:
	//   - int: the number of descriptors rebuilt (successfully or not)
	Rebuild() int

	// DescriptorState returns the rebuild lifecycle state for a descriptor.
	// Unknown names report StateIdle.
	//
	// Parameters:
	//   - name: the symbolic descriptor name
	//
	// Returns:
	//   - State: the current state
	DescriptorState(name string) State

	// AdvanceFrame marks the completion of one rendered frame and returns
	// the new fence value. Safe from the render thread.
	//
	// Returns:
	//   - uint64: the fence value after advancing
	AdvanceFrame() uint64

	// ReleaseRetired releases the GPU resources of replaced programs whose
	// retirement fence lies at least MaxFramesInFlight frames behind the
	// current fence, meaning no in-flight frame can still reference them.
	//
	// Returns:
	//   - int: the number of programs released
	ReleaseRetired() int

	// RetiredCount returns the number of replaced programs still awaiting
	// deferred release.
	//
	// Returns:
	//   - int: the pending retirement count
	RetiredCount() int

	// ReleaseAll releases every retired program and every published program,
	// emptying the registry. Used on shutdown.
	ReleaseAll()

	// Unload removes a descriptor: its registry entry is withdrawn and the
	// program retired for deferred release, and the descriptor is forgotten
	// so later change notifications no longer rebuild it.
	//
	// Parameters:
	//   - name: the symbolic descriptor name
	//
	// Returns:
	//   - program.CompiledProgram: the withdrawn program, nil if none
	Unload(name string) program.CompiledProgram

	// Signal returns the channel pulsed whenever the dirty set becomes
	// non-empty, so the build thread can wake and call Rebuild.
	//
	// Returns:
	//   - <-chan struct{}: the wake-up channel
	Signal() <-chan struct{}
}

var _ Coordinator = &coordinator{}

// NewCoordinator creates a reload coordinator over the given collaborators.
//
// Parameters:
//   - loc: the source locator used for discovery and path classification
//   - cache: the preprocessor cache providing dependency tracking
//   - builder: the program builder rebuilds go through
//   - programs: the registry successful builds publish into
//   - backend: the compiler backend, for releasing replaced programs
//   - options: functional options for frames in flight, workers and profiling
//
// Returns:
//   - Coordinator: the configured coordinator
func NewCoordinator(loc locator.Locator, cache preprocessor.Cache, builder program.Builder, programs registry.Registry, backend compiler.CompilerBackend, options ...CoordinatorBuilderOption) Coordinator {
	c := &coordinator{
		mu:                &sync.Mutex{},
		loc:               loc,
		cache:             cache,
		builder:           builder,
		programs:          programs,
		backend:           backend,
		descriptors:       make(map[string]locator.ShaderDescriptor),
		stageOwners:       make(map[string]string),
		states:            make(map[string]State),
		dirty:             make(map[string]struct{}),
		signal:            make(chan struct{}, 1),
		maxFramesInFlight: 3,
		preprocessWorkers: 4,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *coordinator) LoadAll() error {
	descs, diags, err := c.loc.Discover()
	if err != nil {
		return err
	}
	for _, d := range diags {
		d.Emit()
	}
	c.recordDescriptors(descs)

	// Preprocessing is pure text work; fan it out before the serial compile
	// pass. Resolve failures are deliberately swallowed here: the build pass
	// re-resolves and reports them with full per-stage diagnostics.
	if c.preprocessWorkers > 0 && len(descs) > 1 {
		pool := worker.NewDynamicWorkerPool(c.preprocessWorkers, 256, time.Second)
		var wg sync.WaitGroup
		taskID := 0
		for _, desc := range descs {
			for _, sf := range desc.Stages {
				wg.Add(1)
				sfCap := sf
				id := taskID
				taskID++
				pool.SubmitTask(worker.Task{
					ID: id,
					Do: func() (any, error) {
						defer wg.Done()
						_, _ = c.cache.Resolve(sfCap.Path, sfCap.Kind)
						return nil, nil
					},
				})
			}
		}
		wg.Wait()
	}

	for _, desc := range descs {
		c.rebuildOne(desc)
	}
	return nil
}

func (c *coordinator) NotifyChanged(path string) {
	path = common.CanonicalPath(c.loc.Root(), path)
	c.mu.Lock()
	c.dirty[path] = struct{}{}
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *coordinator) Rebuild() int {
	c.mu.Lock()
	dirty := c.dirty
	c.dirty = make(map[string]struct{})
	c.mu.Unlock()
	if len(dirty) == 0 {
		return 0
	}

	affected := make(map[string]struct{})
	rediscover := false
	retryFailed := false
	for p := range dirty {
		tracked := false
		// An edited include invalidates every cached source that transitively
		// spliced it; each of those top-level paths belongs to a descriptor.
		for _, top := range c.cache.Invalidate(p) {
			if name, ok := c.ownerOf(top); ok {
				affected[name] = struct{}{}
				tracked = true
			}
		}
		if name, ok := c.ownerOf(p); ok {
			affected[name] = struct{}{}
			tracked = true
		}
		if !tracked {
			// A recognized stage file nobody owns yet may be a brand-new
			// descriptor or a stage completing a previously incomplete group.
			if c.loc.Recognizes(p) {
				rediscover = true
				continue
			}
			// Anything else may be an include a failed build could not
			// resolve: failed resolutions leave no dependency record, so
			// failed descriptors get another attempt.
			retryFailed = true
		}
	}
	if rediscover {
		c.refreshDescriptors(dirty, affected)
	}
	if retryFailed {
		c.mu.Lock()
		for name, s := range c.states {
			if s != StateFailedKeptOld {
				continue
			}
			if _, ok := c.descriptors[name]; ok {
				affected[name] = struct{}{}
			}
		}
		c.mu.Unlock()
	}

	names := make([]string, 0, len(affected))
	for name := range affected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desc, ok := c.refreshedDescriptor(name)
		if !ok {
			continue
		}
		if c.prof != nil {
			c.prof.RecordReload()
		}
		c.rebuildOne(desc)
	}
	return len(names)
}

func (c *coordinator) DescriptorState(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[name]
}

func (c *coordinator) AdvanceFrame() uint64 {
	return c.frame.Add(1)
}

func (c *coordinator) ReleaseRetired() int {
	fence := c.frame.Load()
	released := 0
	kept := c.retired[:0]
	for _, r := range c.retired {
		if fence >= r.fence+c.maxFramesInFlight {
			c.backend.ReleaseProgram(r.prog.Handle())
			released++
			continue
		}
		kept = append(kept, r)
	}
	c.retired = kept
	return released
}

func (c *coordinator) RetiredCount() int {
	return len(c.retired)
}

func (c *coordinator) ReleaseAll() {
	for _, r := range c.retired {
		c.backend.ReleaseProgram(r.prog.Handle())
	}
	c.retired = nil
	for _, name := range c.programs.Names() {
		if prog := c.programs.Unload(name); prog != nil {
			c.backend.ReleaseProgram(prog.Handle())
		}
	}
}

func (c *coordinator) Unload(name string) program.CompiledProgram {
	c.mu.Lock()
	if desc, ok := c.descriptors[name]; ok {
		for _, p := range desc.Paths() {
			delete(c.stageOwners, p)
		}
		delete(c.descriptors, name)
	}
	delete(c.states, name)
	c.mu.Unlock()

	prog := c.programs.Unload(name)
	if prog != nil {
		// Frames in flight may still reference the program; retire it behind
		// the fence like any replaced entry.
		c.retired = append(c.retired, retiredEntry{prog: prog, fence: c.frame.Load()})
	}
	return prog
}

func (c *coordinator) Signal() <-chan struct{} {
	return c.signal
}

// rebuildOne builds one descriptor and publishes, retains or discards the
// result. A panic anywhere in the build is recovered and converted into a
// diagnostic so one descriptor's failure cannot take down the build thread
// or another descriptor's availability.
func (c *coordinator) rebuildOne(desc locator.ShaderDescriptor) {
	c.setState(desc.Name, StateRebuilding)
	defer func() {
		if r := recover(); r != nil {
			common.Diagnostic{
				Severity:   common.SeverityError,
				Descriptor: desc.Name,
				Message:    fmt.Sprintf("rebuild panicked: %v", r),
			}.Emit()
			c.setState(desc.Name, StateFailedKeptOld)
		}
	}()

	start := time.Now()
	prog, err := c.builder.Build(desc)
	if c.prof != nil {
		c.prof.RecordBuild(time.Since(start), err != nil)
	}
	if err != nil {
		var buildErr *common.BuildError
		if errors.As(err, &buildErr) {
			buildErr.Emit()
		} else {
			common.Diagnostic{
				Severity:   common.SeverityError,
				Descriptor: desc.Name,
				Message:    err.Error(),
			}.Emit()
		}
		c.setState(desc.Name, StateFailedKeptOld)
		return
	}

	// Inputs dirtied again while the build ran: the result is stale and the
	// descriptor is still in the dirty set, so discard and let the next
	// Rebuild produce the final state.
	if c.staleInputs(desc) {
		c.backend.ReleaseProgram(prog.Handle())
		common.Diagnostic{
			Severity:   common.SeverityWarning,
			Descriptor: desc.Name,
			Message:    fmt.Sprintf("%s: inputs changed during rebuild; result discarded", common.ErrorKindReloadSuperseded),
		}.Emit()
		return
	}

	if replaced := c.programs.Publish(desc.Name, prog); replaced != nil {
		c.retired = append(c.retired, retiredEntry{prog: replaced, fence: c.frame.Load()})
	}
	c.setState(desc.Name, StatePublished)
	common.Diagnostic{
		Severity:   common.SeverityInfo,
		Descriptor: desc.Name,
		Message:    fmt.Sprintf("published program (%d stages, %d uniform blocks, fingerprint %s)", len(desc.Stages), len(prog.Bindings()), prog.Fingerprint()),
	}.Emit()
}

// staleInputs reports whether any pending dirty path feeds into the
// descriptor, directly or through an include.
func (c *coordinator) staleInputs(desc locator.ShaderDescriptor) bool {
	c.mu.Lock()
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return false
	}
	dirty := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		dirty = append(dirty, p)
	}
	c.mu.Unlock()

	paths := make(map[string]struct{}, len(desc.Stages))
	for _, p := range desc.Paths() {
		paths[p] = struct{}{}
	}
	for _, p := range dirty {
		if _, ok := paths[p]; ok {
			return true
		}
		for _, dep := range c.cache.Dependents(p) {
			if _, ok := paths[dep]; ok {
				return true
			}
		}
	}
	return false
}

// refreshDescriptors re-runs discovery after a change to an untracked stage
// file and folds descriptors touching dirty paths into the affected set.
func (c *coordinator) refreshDescriptors(dirty, affected map[string]struct{}) {
	descs, diags, err := c.loc.Discover()
	if err != nil {
		common.Diagnostic{
			Severity: common.SeverityWarning,
			Message:  fmt.Sprintf("rediscovery after change failed: %v", err),
		}.Emit()
		return
	}
	for _, d := range diags {
		d.Emit()
	}
	c.recordDescriptors(descs)

	for p := range dirty {
		if name, ok := c.ownerOf(p); ok {
			affected[name] = struct{}{}
		}
	}
}

// recordDescriptors replaces the tracked descriptor and stage-ownership
// tables. States for names no longer discovered are kept; their registry
// entries survive until explicit unload.
func (c *coordinator) recordDescriptors(descs []locator.ShaderDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = make(map[string]locator.ShaderDescriptor, len(descs))
	c.stageOwners = make(map[string]string)
	for _, desc := range descs {
		c.descriptors[desc.Name] = desc
		for _, p := range desc.Paths() {
			c.stageOwners[p] = desc.Name
		}
		if _, ok := c.states[desc.Name]; !ok {
			c.states[desc.Name] = StateIdle
		}
	}
}

// refreshedDescriptor returns the tracked descriptor with freshly read stage
// fingerprints. The old StageFile values are superseded, never mutated.
func (c *coordinator) refreshedDescriptor(name string) (locator.ShaderDescriptor, bool) {
	c.mu.Lock()
	desc, ok := c.descriptors[name]
	c.mu.Unlock()
	if !ok {
		return locator.ShaderDescriptor{}, false
	}

	stages := make([]locator.StageFile, len(desc.Stages))
	copy(stages, desc.Stages)
	for i := range stages {
		if data, err := os.ReadFile(stages[i].Path); err == nil {
			stages[i].Fingerprint = common.FingerprintBytes(data)
		}
	}
	fresh := locator.ShaderDescriptor{Name: desc.Name, Stages: stages}

	c.mu.Lock()
	c.descriptors[name] = fresh
	c.mu.Unlock()
	return fresh, true
}

func (c *coordinator) ownerOf(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.stageOwners[path]
	return name, ok
}

func (c *coordinator) setState(name string, s State) {
	c.mu.Lock()
	c.states[name] = s
	c.mu.Unlock()
}
