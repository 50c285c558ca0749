// Package locator discovers shader stage files beneath a configured root and
// groups them into named descriptors. All paths are anchored to the engine
// root resolved once at construction; nothing here ever consults the process
// working directory, so discovery behaves identically regardless of where the
// process was launched from.
package locator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/prism-go/common"
)

// StageFile is one discovered stage source file. Immutable once read; a
// reload produces a superseding StageFile rather than mutating this one.
type StageFile struct {
	// Name is the base name shared by every stage in the descriptor.
	Name string

	// Kind is the pipeline stage classified from the file extension.
	Kind common.StageKind

	// Path is the absolute path of the source file.
	Path string

	// Fingerprint is the last-known fingerprint of the raw file content.
	Fingerprint common.Fingerprint
}

// ShaderDescriptor is the named grouping of stage files that together form
// one compiled program. Stages are held in pipeline execution order.
type ShaderDescriptor struct {
	// Name is the symbolic name consumers use to look the program up.
	Name string

	// Stages holds the discovered stage files in pipeline order.
	Stages []StageFile
}

// Stage returns the stage file of the given kind, if the descriptor has one.
//
// Parameters:
//   - kind: the stage kind to look up
//
// Returns:
//   - StageFile: the matching stage file
//   - bool: true if the descriptor contains that stage
func (d ShaderDescriptor) Stage(kind common.StageKind) (StageFile, bool) {
	for _, s := range d.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return StageFile{}, false
}

// HasStage reports whether the descriptor contains a stage of the given kind.
func (d ShaderDescriptor) HasStage(kind common.StageKind) bool {
	_, ok := d.Stage(kind)
	return ok
}

// ComputeOnly reports whether the descriptor is a standalone compute program.
func (d ShaderDescriptor) ComputeOnly() bool {
	return len(d.Stages) == 1 && d.Stages[0].Kind == common.StageCompute
}

// Paths returns the absolute paths of every stage file in the descriptor.
func (d ShaderDescriptor) Paths() []string {
	paths := make([]string, 0, len(d.Stages))
	for _, s := range d.Stages {
		paths = append(paths, s.Path)
	}
	return paths
}

// locator is the implementation of the Locator interface.
type locator struct {
	// root is the absolute shader root, resolved once at construction.
	root string

	// extensions maps lowercase file extensions to stage kinds.
	extensions map[string]common.StageKind
}

// Locator enumerates candidate shader stage files beneath the configured
// root and groups files sharing a directory and base name into descriptors.
type Locator interface {
	// Discover walks the shader root recursively, classifies recognized
	// stage files by extension, and groups them into descriptors. Groups
	// violating the required-stage policy (vertex+fragment mandatory unless
	// the group is a single compute stage) are excluded and reported via a
	// diagnostic, never silently dropped. Unrecognized extensions are
	// ignored. Results are sorted by descriptor name.
	//
	// Returns:
	//   - []ShaderDescriptor: the valid descriptors, sorted by name
	//   - []common.Diagnostic: diagnostics for excluded or suspicious groups
	//   - error: an error if the root itself cannot be walked
	Discover() ([]ShaderDescriptor, []common.Diagnostic, error)

	// Root returns the absolute shader root the locator walks.
	//
	// Returns:
	//   - string: the absolute shader root directory
	Root() string

	// Recognizes reports whether a path lies beneath the shader root and its
	// extension maps to a stage kind. Used to decide whether a change event
	// for an untracked path could introduce a new descriptor.
	//
	// Parameters:
	//   - path: the path to classify; relative paths resolve against the root
	//
	// Returns:
	//   - bool: true if the path would be picked up by Discover
	Recognizes(path string) bool
}

var _ Locator = &locator{}

// NewLocator creates a Locator anchored at engineRoot/shaderRoot. The anchor
// is made absolute here, once; discovery is therefore independent of the
// process working directory at every later call.
//
// Parameters:
//   - engineRoot: the engine root directory (made absolute at construction)
//   - shaderRoot: the shader subpath beneath the engine root
//   - options: functional options to configure the locator
//
// Returns:
//   - Locator: the configured locator
//   - error: an error if the engine root is empty or cannot be resolved
func NewLocator(engineRoot, shaderRoot string, options ...LocatorBuilderOption) (Locator, error) {
	if engineRoot == "" {
		return nil, fmt.Errorf("locator: engine root must not be empty")
	}
	abs, err := filepath.Abs(engineRoot)
	if err != nil {
		return nil, fmt.Errorf("locator: failed to resolve engine root %q: %w", engineRoot, err)
	}
	l := &locator{
		root:       filepath.Join(abs, shaderRoot),
		extensions: common.DefaultExtensions(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

func (l *locator) Root() string {
	return l.root
}

func (l *locator) Recognizes(path string) bool {
	path = common.CanonicalPath(l.root, path)
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	_, ok := common.StageFromExtension(filepath.Ext(path), l.extensions)
	return ok
}

func (l *locator) Discover() ([]ShaderDescriptor, []common.Diagnostic, error) {
	if info, err := os.Stat(l.root); err != nil {
		return nil, nil, fmt.Errorf("locator: shader root %q: %w", l.root, err)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("locator: shader root %q is not a directory", l.root)
	}

	// Group stage files by (directory, base name). WalkDir visits entries in
	// lexical order, so grouping and collision handling are deterministic.
	groups := make(map[string][]StageFile)
	var diags []common.Diagnostic

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		kind, ok := common.StageFromExtension(ext, l.extensions)
		if !ok {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityWarning,
				Descriptor: strings.TrimSuffix(d.Name(), ext),
				Stage:      common.StagePtr(kind),
				Message:    fmt.Sprintf("unreadable stage file %s: %v", path, readErr),
			})
			return nil
		}

		base := strings.TrimSuffix(d.Name(), ext)
		key := filepath.Join(filepath.Dir(path), base)
		groups[key] = append(groups[key], StageFile{
			Name:        base,
			Kind:        kind,
			Path:        path,
			Fingerprint: common.FingerprintBytes(data),
		})
		return nil
	})
	if err != nil {
		return nil, diags, fmt.Errorf("locator: walking shader root %q: %w", l.root, err)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	descriptors := make([]ShaderDescriptor, 0, len(groups))
	seen := make(map[string]string, len(groups))
	for _, key := range keys {
		stages := groups[key]
		name := stages[0].Name

		desc, groupDiags, ok := buildDescriptor(name, stages)
		diags = append(diags, groupDiags...)
		if !ok {
			continue
		}

		// Descriptor names are the cross-package lookup key, so a second
		// directory reusing a base name cannot be published. First wins.
		if prior, dup := seen[name]; dup {
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityWarning,
				Descriptor: name,
				Message:    fmt.Sprintf("duplicate descriptor name: %s already provided by %s", key, prior),
			})
			continue
		}
		seen[name] = key
		descriptors = append(descriptors, desc)
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return descriptors, diags, nil
}

// buildDescriptor applies the required-stage policy to one grouped set of
// stage files: vertex and fragment are mandatory for a graphics program, a
// single compute stage stands alone, and mixing compute with graphics stages
// is invalid.
func buildDescriptor(name string, stages []StageFile) (ShaderDescriptor, []common.Diagnostic, bool) {
	var diags []common.Diagnostic

	byKind := make(map[common.StageKind]StageFile, len(stages))
	for _, s := range stages {
		if prior, dup := byKind[s.Kind]; dup {
			diags = append(diags, common.Diagnostic{
				Severity:   common.SeverityWarning,
				Descriptor: name,
				Stage:      common.StagePtr(s.Kind),
				Message:    fmt.Sprintf("%s: stage declared twice (%s and %s); descriptor excluded", common.ErrorKindDiscoveryIncomplete, prior.Path, s.Path),
			})
			return ShaderDescriptor{}, diags, false
		}
		byKind[s.Kind] = s
	}

	_, hasCompute := byKind[common.StageCompute]
	_, hasVertex := byKind[common.StageVertex]
	_, hasFragment := byKind[common.StageFragment]

	switch {
	case hasCompute && len(byKind) > 1:
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityWarning,
			Descriptor: name,
			Message:    fmt.Sprintf("%s: compute stage mixed with graphics stages; descriptor excluded", common.ErrorKindDiscoveryIncomplete),
		})
		return ShaderDescriptor{}, diags, false
	case hasCompute:
		// Standalone compute program.
	case !hasVertex || !hasFragment:
		missing := make([]string, 0, 2)
		if !hasVertex {
			missing = append(missing, common.StageVertex.String())
		}
		if !hasFragment {
			missing = append(missing, common.StageFragment.String())
		}
		diags = append(diags, common.Diagnostic{
			Severity:   common.SeverityWarning,
			Descriptor: name,
			Message:    fmt.Sprintf("%s: missing mandatory %s stage; descriptor excluded", common.ErrorKindDiscoveryIncomplete, strings.Join(missing, " and ")),
		})
		return ShaderDescriptor{}, diags, false
	}

	ordered := make([]StageFile, len(stages))
	copy(ordered, stages)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Kind.PipelineOrder() < ordered[j].Kind.PipelineOrder()
	})
	return ShaderDescriptor{Name: name, Stages: ordered}, diags, true
}
