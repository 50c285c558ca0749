// Package preprocessor resolves include directives and macro substitutions
// for shader stage sources and caches the results by content fingerprint.
// The cache tracks which files each resolved source transitively included,
// so editing a shared include invalidates every dependent entry, not just
// the file that was edited.
package preprocessor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/prism-go/common"
)

// PreprocessedSource is the resolved form of one stage source file: the
// fully include-expanded, macro-substituted text, its fingerprint, and the
// transitive set of files whose content contributed to it.
type PreprocessedSource struct {
	// Kind is the pipeline stage the source belongs to.
	Kind common.StageKind

	// Path is the absolute path of the top-level stage file.
	Path string

	// Text is the resolved source text handed to the compiler backend.
	Text string

	// Fingerprint identifies the resolved text (not the raw file bytes), so
	// an include edit changes it even when the top file did not change, and
	// a raw edit that resolves identically does not.
	Fingerprint common.Fingerprint

	// Includes holds the absolute paths of every transitively included
	// file, sorted, for dependency tracking.
	Includes []string
}

// CacheStats is a point-in-time snapshot of cache effectiveness counters.
type CacheStats struct {
	// Hits counts Resolve calls answered from the cache.
	Hits uint64

	// Misses counts Resolve calls that had to read and resolve from disk.
	Misses uint64
}

// cache is the implementation of the Cache interface.
type cache struct {
	mu *sync.RWMutex

	// entries maps each resolved top-level stage path to its entry.
	entries map[string]*cacheEntry

	// includePaths are the directories searched for #include targets after
	// the including file's own directory.
	includePaths []string

	// defines are the caller-supplied macro substitutions applied to every
	// resolution (feature toggles). In-source #define lines override them
	// for the remainder of that resolution.
	defines map[string]string

	hits   atomic.Uint64
	misses atomic.Uint64
}

// cacheEntry pairs a resolved source with a set view of its includes for
// fast dependency membership checks during invalidation.
type cacheEntry struct {
	src        PreprocessedSource
	includeSet map[string]struct{}
}

// Cache resolves and caches preprocessed shader sources keyed by path, with
// transitive include dependency tracking. Safe for concurrent use; initial
// load fans Resolve calls out across worker goroutines.
type Cache interface {
	// Resolve returns the preprocessed form of the stage file at path,
	// answering from the cache when the path has been resolved and not
	// invalidated since. On a miss it reads the file, recursively splices
	// #include directives (each resolved file at most once, cycles are
	// errors), applies macro substitutions, and fingerprints the final
	// resolved text.
	//
	// Parameters:
	//   - path: the absolute path of the stage source file
	//   - kind: the pipeline stage the source belongs to, stamped into the result
	//
	// Returns:
	//   - PreprocessedSource: the resolved source
	//   - error: an error if the path is not absolute, unreadable, or a
	//     directive is malformed or unresolvable
	Resolve(path string, kind common.StageKind) (PreprocessedSource, error)

	// Invalidate removes the cache entry for path and the entry of every
	// cached source that transitively included it.
	//
	// Parameters:
	//   - path: the absolute path that changed
	//
	// Returns:
	//   - []string: the top-level stage paths whose entries were removed, sorted
	Invalidate(path string) []string

	// Dependents reports which cached top-level sources transitively
	// included the given path, without invalidating anything.
	//
	// Parameters:
	//   - path: the absolute path to look up
	//
	// Returns:
	//   - []string: the dependent top-level stage paths, sorted
	Dependents(path string) []string

	// Stats returns a snapshot of hit/miss counters.
	//
	// Returns:
	//   - CacheStats: the counters at the time of the call
	Stats() CacheStats
}

var _ Cache = &cache{}

// NewCache creates an empty preprocessor cache with the specified options.
//
// Parameters:
//   - options: functional options to configure include paths and defines
//
// Returns:
//   - Cache: the configured cache
func NewCache(options ...CacheBuilderOption) Cache {
	c := &cache{
		mu:      &sync.RWMutex{},
		entries: make(map[string]*cacheEntry),
		defines: make(map[string]string),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *cache) Resolve(path string, kind common.StageKind) (PreprocessedSource, error) {
	if !filepath.IsAbs(path) {
		return PreprocessedSource{}, fmt.Errorf("preprocessor: path %q must be absolute", path)
	}
	path = filepath.Clean(path)

	c.mu.RLock()
	if e, ok := c.entries[path]; ok {
		src := e.src
		c.mu.RUnlock()
		c.hits.Add(1)
		return src, nil
	}
	c.mu.RUnlock()
	c.misses.Add(1)

	// Resolution runs outside the lock; concurrent misses on the same path
	// duplicate work but converge on identical content.
	macros := make(map[string]string, len(c.defines))
	for k, v := range c.defines {
		macros[k] = v
	}
	includeSet := make(map[string]struct{})
	visiting := make(map[string]struct{})

	text, err := c.resolveFile(path, macros, includeSet, visiting)
	if err != nil {
		return PreprocessedSource{}, err
	}

	includes := make([]string, 0, len(includeSet))
	for p := range includeSet {
		includes = append(includes, p)
	}
	sort.Strings(includes)

	src := PreprocessedSource{
		Kind:        kind,
		Path:        path,
		Text:        text,
		Fingerprint: common.FingerprintString(text),
		Includes:    includes,
	}

	c.mu.Lock()
	c.entries[path] = &cacheEntry{src: src, includeSet: includeSet}
	c.mu.Unlock()
	return src, nil
}

func (c *cache) Invalidate(path string) []string {
	path = filepath.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for top, e := range c.entries {
		if top == path {
			removed = append(removed, top)
			continue
		}
		if _, ok := e.includeSet[path]; ok {
			removed = append(removed, top)
		}
	}
	for _, top := range removed {
		delete(c.entries, top)
	}
	sort.Strings(removed)
	return removed
}

func (c *cache) Dependents(path string) []string {
	path = filepath.Clean(path)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var dependents []string
	for top, e := range c.entries {
		if _, ok := e.includeSet[path]; ok {
			dependents = append(dependents, top)
		}
	}
	sort.Strings(dependents)
	return dependents
}

func (c *cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// resolveFile reads one file, splices its includes depth-first, applies macro
// substitution, and returns the resolved text. visiting holds the current
// include stack so a file including one of its own includers is reported as a
// cycle rather than silently skipped; includeSet accumulates every file
// spliced anywhere in the resolution.
func (c *cache) resolveFile(path string, macros map[string]string, includeSet, visiting map[string]struct{}) (string, error) {
	visiting[path] = struct{}{}
	defer delete(visiting, path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("preprocessor: reading %q: %w", path, err)
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		d, err := parseDirective(line, i+1)
		if err != nil {
			return "", fmt.Errorf("preprocessor: %s: %w", path, err)
		}
		if d == nil {
			out = append(out, substituteMacros(line, macros))
			continue
		}

		switch d.Type {
		case DirectiveTypeInclude:
			resolved, findErr := c.findInclude(d.Args[0], filepath.Dir(path))
			if findErr != nil {
				return "", fmt.Errorf("preprocessor: %s line %d: %w", path, d.Line, findErr)
			}
			if _, active := visiting[resolved]; active {
				return "", fmt.Errorf("preprocessor: %s line %d: include cycle through %q", path, d.Line, resolved)
			}
			if _, already := includeSet[resolved]; already {
				continue
			}
			includeSet[resolved] = struct{}{}
			spliced, inclErr := c.resolveFile(resolved, macros, includeSet, visiting)
			if inclErr != nil {
				return "", inclErr
			}
			out = append(out, spliced)
		case DirectiveTypeDefine:
			macros[d.Args[0]] = d.Args[1]
		default:
			return "", fmt.Errorf("preprocessor: %s line %d: unknown directive type %q", path, d.Line, d.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

// findInclude resolves an include argument against the including file's
// directory first, then each configured include path in order.
func (c *cache) findInclude(rel, fromDir string) (string, error) {
	searched := make([]string, 0, 1+len(c.includePaths))
	for _, base := range append([]string{fromDir}, c.includePaths...) {
		candidate := filepath.Clean(filepath.Join(base, rel))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		searched = append(searched, base)
	}
	return "", fmt.Errorf("include %q not found (searched %s)", rel, strings.Join(searched, ", "))
}
