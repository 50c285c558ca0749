package profiler

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/prism-go/common"
	"github.com/Carmen-Shannon/prism-go/shader/preprocessor"
)

// Profiler tracks build and preprocessor cache statistics for performance
// monitoring. Outputs stats through the common logger at a configurable
// interval.
//
// Record methods are safe to call from any goroutine; Tick must be called
// from a single goroutine, normally the frame loop.
type Profiler struct {
	builds     atomic.Uint64
	failures   atomic.Uint64
	reloads    atomic.Uint64
	buildNanos atomic.Uint64

	cacheStats     func() preprocessor.CacheStats
	updateInterval time.Duration

	lastTime       time.Time
	lastBuilds     uint64
	lastFailures   uint64
	lastReloads    uint64
	lastBuildNanos uint64
	lastHits       uint64
	lastMisses     uint64
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second when zero.
//
// Parameters:
//   - updateInterval: minimum time between summary lines
//   - cacheStats: source of preprocessor cache counters, nil to omit them
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(updateInterval time.Duration, cacheStats func() preprocessor.CacheStats) *Profiler {
	if updateInterval <= 0 {
		updateInterval = time.Second
	}
	return &Profiler{
		cacheStats:     cacheStats,
		updateInterval: updateInterval,
		lastTime:       time.Now(),
	}
}

// RecordBuild tracks one program build attempt.
//
// Parameters:
//   - duration: wall time the build took
//   - failed: whether the build ended in a BuildError
func (p *Profiler) RecordBuild(duration time.Duration, failed bool) {
	p.builds.Add(1)
	p.buildNanos.Add(uint64(duration.Nanoseconds()))
	if failed {
		p.failures.Add(1)
	}
}

// RecordReload tracks one completed rebuild cycle, successful or not.
func (p *Profiler) RecordReload() {
	p.reloads.Add(1)
}

// Tick should be called once per frame. Emits a summary through the common
// logger when the update interval has elapsed: builds and failures since
// the last summary, average build time, reload cycles, and preprocessor
// cache hits/misses.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	builds := p.builds.Load()
	failures := p.failures.Load()
	reloads := p.reloads.Load()
	buildNanos := p.buildNanos.Load()

	buildDelta := builds - p.lastBuilds
	failureDelta := failures - p.lastFailures
	reloadDelta := reloads - p.lastReloads
	nanosDelta := buildNanos - p.lastBuildNanos

	var avgBuildMs float64
	if buildDelta > 0 {
		avgBuildMs = float64(nanosDelta) / float64(buildDelta) / 1e6
	}

	attrs := []any{
		slog.Uint64("builds", buildDelta),
		slog.Uint64("failures", failureDelta),
		slog.Float64("avg_build_ms", avgBuildMs),
		slog.Uint64("reloads", reloadDelta),
	}
	if p.cacheStats != nil {
		stats := p.cacheStats()
		attrs = append(attrs,
			slog.Uint64("cache_hits", stats.Hits-p.lastHits),
			slog.Uint64("cache_misses", stats.Misses-p.lastMisses),
		)
		p.lastHits = stats.Hits
		p.lastMisses = stats.Misses
	}
	common.Logger().Info("shader build stats", attrs...)

	p.lastTime = currentTime
	p.lastBuilds = builds
	p.lastFailures = failures
	p.lastReloads = reloads
	p.lastBuildNanos = buildNanos
	return true
}
