// Package shader is the library facade: it wires discovery, preprocessing,
// compilation, binding assignment, publication and hot reload together and
// owns the build goroutine every compiler-backend call is marshalled onto.
// That goroutine is locked to an OS thread because GPU program objects are
// not safely created or mutated anywhere else; render-path callers interact
// only through GetByName, NotifyChanged and EndFrame, none of which block on
// a rebuild.
package shader

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/block_registry"
	"github.com/Carmen-Shannon/prism-go/shader/compiler"
	"github.com/Carmen-Shannon/prism-go/shader/locator"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
	"github.com/Carmen-Shannon/prism-go/shader/profiler"
	"github.com/Carmen-Shannon/prism-go/shader/program"
	"github.com/Carmen-Shannon/prism-go/shader/registry"
	"github.com/Carmen-Shannon/prism-go/shader/reload"
)

// library is the implementation of the Library interface.
type library struct {
	cfg             Config
	backendOverride compiler.CompilerBackend

	loc      locator.Locator
	cache    preprocessor.Cache
	blocks   block_registry.Registry
	programs registry.Registry
	backend  compiler.CompilerBackend
	coord    reload.Coordinator

	prof             *profiler.Profiler
	profilingEnabled bool
	profileInterval  time.Duration

	// work carries closures onto the build thread. EndFrame enqueues
	// non-blocking; Load and Unload wait for their closure to finish.
	work chan func()

	quitChannel chan struct{}
	quitOnce    sync.Once
	wg          sync.WaitGroup
	running     atomic.Bool
}

// Library is the shader library's consumer-facing surface. GetByName,
// NotifyChanged, State, BlockBindings, Names and EndFrame are safe from any
// goroutine; Load and Unload marshal their work onto the build thread and
// wait for it.
type Library interface {
	// Start launches the build goroutine. All compilation, linking, binding
	// and release work runs there, locked to one OS thread.
	//
	// Returns:
	//   - error: an error if the library is already running
	Start() error

	// Load discovers every descriptor beneath the shader root and builds and
	// publishes each one, waiting until the initial load completes.
	// Per-descriptor failures surface as diagnostics, not as the returned
	// error.
	//
	// Returns:
	//   - error: an error if the library is not started, was closed while
	//     loading, or the shader root could not be walked
	Load() error

	// GetByName returns the current program published under a name. Never
	// blocks on a pending rebuild; absence means "feature unavailable this
	// frame" and the caller decides severity. Safe to call every frame.
	//
	// Parameters:
	//   - name: the symbolic program name
	//
	// Returns:
	//   - program.CompiledProgram: the published program
	//   - bool: false when no program is published under the name
	GetByName(name string) (program.CompiledProgram, bool)

	// NotifyChanged records an external change notification for a source
	// file. The rebuild happens on the build thread; this never blocks and
	// is safe from any goroutine, including a filesystem watcher's.
	//
	// Parameters:
	//   - path: the changed file; relative paths resolve against the shader root
	NotifyChanged(path string)

	// State reports a descriptor's rebuild lifecycle state.
	//
	// Parameters:
	//   - name: the symbolic descriptor name
	//
	// Returns:
	//   - reload.State: idle, rebuilding, published or failed-kept-old
	State(name string) reload.State

	// BlockBindings returns the global uniform-block binding contract: every
	// assigned block name and its index. Other subsystems use this to
	// populate shared memory regions without recompiling shaders.
	//
	// Returns:
	//   - map[string]uint32: a copy of the current assignments
	BlockBindings() map[string]uint32

	// EndFrame marks the end of a rendered frame: it advances the release
	// fence, schedules deferred releases on the build thread and ticks the
	// profiler. Call once per frame from the render loop; never blocks.
	EndFrame()

	// Names returns the currently published program names, sorted.
	//
	// Returns:
	//   - []string: the names
	Names() []string

	// Unload withdraws a program from the registry and retires it for
	// deferred release, waiting for the build thread to process the removal.
	//
	// Parameters:
	//   - name: the symbolic program name
	//
	// Returns:
	//   - error: an error if the library is not running
	Unload(name string) error

	// Close stops the build thread, releasing every live and retired
	// program before it exits. Safe to call multiple times.
	//
	// Returns:
	//   - error: always nil; reserved for future shutdown failures
	Close() error
}

var _ Library = &library{}

// NewLibrary creates a shader library from the provided options. Nothing is
// discovered or compiled yet; call Start and then Load.
//
// Parameters:
//   - options: functional options for configuration (see library_builder.go)
//
// Returns:
//   - Library: the configured library
//   - error: an error if the configuration is invalid
func NewLibrary(options ...LibraryBuilderOption) (Library, error) {
	l := &library{
		cfg:             DefaultConfig(),
		profileInterval: time.Second,
		work:            make(chan func(), 64),
		quitChannel:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(l)
	}

	// A hand-built Config can leave fields zero; fold in the defaults.
	// PreprocessWorkers stays as given because zero means build-thread-only.
	defaults := DefaultConfig()
	l.cfg.Backend = common.Coalesce(l.cfg.Backend, defaults.Backend)
	l.cfg.MaxFramesInFlight = common.Coalesce(l.cfg.MaxFramesInFlight, defaults.MaxFramesInFlight)

	if l.cfg.EngineRoot == "" {
		return nil, fmt.Errorf("shader: engine root must be configured")
	}
	extensions, err := l.cfg.extensionTable()
	if err != nil {
		return nil, err
	}

	var locatorOptions []locator.LocatorBuilderOption
	if extensions != nil {
		locatorOptions = append(locatorOptions, locator.WithExtensionTable(extensions))
	}
	l.loc, err = locator.NewLocator(l.cfg.EngineRoot, l.cfg.ShaderRoot, locatorOptions...)
	if err != nil {
		return nil, err
	}

	engineRoot, err := filepath.Abs(l.cfg.EngineRoot)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to resolve engine root %q: %w", l.cfg.EngineRoot, err)
	}
	includePaths := make([]string, 0, len(l.cfg.IncludePaths))
	for _, p := range l.cfg.IncludePaths {
		includePaths = append(includePaths, common.CanonicalPath(engineRoot, p))
	}
	l.cache = preprocessor.NewCache(
		preprocessor.WithIncludePaths(includePaths...),
		preprocessor.WithDefines(l.cfg.Defines),
	)

	l.backend = l.backendOverride
	if l.backend == nil {
		switch l.cfg.Backend {
		case "", compiler.BackendTypeNaga.String():
			l.backend = compiler.NewNagaBackend(compiler.WithIRValidation(l.cfg.ValidateIR))
		case compiler.BackendTypeWGPU.String():
			return nil, fmt.Errorf("shader: the wgpu backend needs a device; inject it with WithBackend(compiler.NewWGPUBackend(device))")
		default:
			return nil, fmt.Errorf("shader: unknown compiler backend %q", l.cfg.Backend)
		}
	}

	l.blocks = block_registry.NewRegistry()
	l.programs = registry.NewRegistry()
	if l.profilingEnabled {
		l.prof = profiler.NewProfiler(l.profileInterval, l.cache.Stats)
	}
	l.coord = reload.NewCoordinator(
		l.loc, l.cache,
		program.NewBuilder(l.cache, l.backend, l.blocks),
		l.programs, l.backend,
		reload.WithMaxFramesInFlight(l.cfg.MaxFramesInFlight),
		reload.WithPreprocessWorkers(l.cfg.PreprocessWorkers),
		reload.WithProfiler(l.prof),
	)
	return l, nil
}

func (l *library) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("shader: library already started")
	}
	l.wg.Add(1)
	go l.handleBuild()
	return nil
}

func (l *library) Load() error {
	errChannel := make(chan error, 1)
	if err := l.submit(func() { errChannel <- l.coord.LoadAll() }); err != nil {
		return err
	}
	select {
	case err := <-errChannel:
		return err
	case <-l.quitChannel:
		return fmt.Errorf("shader: library closed before load completed")
	}
}

func (l *library) GetByName(name string) (program.CompiledProgram, bool) {
	return l.programs.GetByName(name)
}

func (l *library) NotifyChanged(path string) {
	l.coord.NotifyChanged(path)
}

func (l *library) State(name string) reload.State {
	return l.coord.DescriptorState(name)
}

func (l *library) BlockBindings() map[string]uint32 {
	return l.blocks.Bindings()
}

func (l *library) EndFrame() {
	l.coord.AdvanceFrame()
	if l.prof != nil {
		l.prof.Tick()
	}
	// A full work queue just defers the release sweep another frame.
	select {
	case l.work <- func() { l.coord.ReleaseRetired() }:
	default:
	}
}

func (l *library) Names() []string {
	return l.programs.Names()
}

func (l *library) Unload(name string) error {
	done := make(chan struct{})
	if err := l.submit(func() {
		l.coord.Unload(name)
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.quitChannel:
		return nil
	}
}

func (l *library) Close() error {
	l.quitOnce.Do(func() {
		close(l.quitChannel)
	})
	l.wg.Wait()
	return nil
}

// submit hands a closure to the build thread.
func (l *library) submit(fn func()) error {
	if !l.running.Load() {
		return fmt.Errorf("shader: library not started")
	}
	select {
	case l.work <- fn:
		return nil
	case <-l.quitChannel:
		return fmt.Errorf("shader: library closed")
	}
}

// handleBuild is the build goroutine: the single place compiler-backend
// calls execute. Locked to an OS thread because the wgpu backend's device
// objects are thread-affine.
func (l *library) handleBuild() {
	defer l.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-l.quitChannel:
			// Drain queued work so a waiting Unload is not left hanging,
			// then release everything still alive.
			for {
				select {
				case fn := <-l.work:
					l.safely(fn)
				default:
					l.safely(l.coord.ReleaseAll)
					return
				}
			}
		case <-l.coord.Signal():
			l.safely(func() { l.coord.Rebuild() })
		case fn := <-l.work:
			l.safely(fn)
		}
	}
}

// safely runs one unit of build-thread work, recovering panics so a single
// bad rebuild or release cannot stop every other descriptor's service. The
// coordinator recovers per-descriptor panics itself; this is the outer
// guard for everything else.
func (l *library) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("build thread recovered from panic", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
