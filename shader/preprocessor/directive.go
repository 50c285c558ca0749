// directive.go defines the directive types and parser for the shader source
// preprocessor. Directives are single lines beginning with '#' that drive
// include resolution and macro definition. Any other '#' line (e.g. a GLSL
// "#version" header) is passed through untouched for the underlying compiler
// to interpret.
package preprocessor

import (
	"fmt"
	"strings"
)

// DirectiveType identifies the kind of directive parsed from a source line.
type DirectiveType string

const (
	// DirectiveTypeInclude splices the resolved text of another source file
	// into the output at the directive site. Each file is included at most
	// once per resolution; repeated includes of the same resolved path are
	// skipped.
	//
	// Syntax: #include "relative/path.wgsl"
	DirectiveTypeInclude DirectiveType = "include"

	// DirectiveTypeDefine records a macro substitution that applies to every
	// subsequent line of the resolution, overriding any caller-supplied
	// define of the same name. The directive itself produces no output.
	//
	// Syntax: #define NAME value...
	DirectiveTypeDefine DirectiveType = "define"
)

// Directive represents a single parsed preprocessor directive.
type Directive struct {
	// Type identifies which directive was parsed (include or define).
	Type DirectiveType

	// Args holds the directive's arguments. The contents depend on Type:
	//   - include: [0] = the quoted include path
	//   - define:  [0] = macro name, [1] = replacement text (may be empty)
	Args []string

	// Line is the 1-based line number in the source where this directive
	// was found. Used for error reporting.
	Line int
}

// parseDirective attempts to parse a source line as a directive. Lines that
// are not include or define directives return (nil, nil) and are emitted
// verbatim by the caller.
//
// Parameters:
//   - line: the raw source line
//   - lineNo: the 1-based line number, carried into errors and the result
//
// Returns:
//   - *Directive: the parsed directive, or nil if the line is not one
//   - error: an error if the line is a recognized directive but malformed
func parseDirective(line string, lineNo int) (*Directive, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return nil, nil
	}

	switch {
	case strings.HasPrefix(trimmed, "#include"):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#include"))
		path, err := unquoteIncludePath(rest)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		return &Directive{Type: DirectiveTypeInclude, Args: []string{path}, Line: lineNo}, nil

	case strings.HasPrefix(trimmed, "#define"):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#define"))
		if rest == "" {
			return nil, fmt.Errorf("line %d: #define requires a macro name", lineNo)
		}
		name, value, _ := strings.Cut(rest, " ")
		if !isIdentifier(name) {
			return nil, fmt.Errorf("line %d: #define name %q is not an identifier", lineNo, name)
		}
		return &Directive{Type: DirectiveTypeDefine, Args: []string{name, strings.TrimSpace(value)}, Line: lineNo}, nil

	default:
		// Some other '#' line; the underlying compiler owns its meaning.
		return nil, nil
	}
}

// unquoteIncludePath extracts the path from a double-quoted include argument.
func unquoteIncludePath(arg string) (string, error) {
	if len(arg) < 2 || arg[0] != '"' {
		return "", fmt.Errorf(`#include path must be double-quoted, got %q`, arg)
	}
	end := strings.IndexByte(arg[1:], '"')
	if end < 0 {
		return "", fmt.Errorf(`#include path missing closing quote: %q`, arg)
	}
	path := arg[1 : 1+end]
	if path == "" {
		return "", fmt.Errorf("#include path must not be empty")
	}
	if rest := strings.TrimSpace(arg[2+end:]); rest != "" && !strings.HasPrefix(rest, "//") {
		return "", fmt.Errorf("unexpected trailing content after #include path: %q", rest)
	}
	return path, nil
}

// isIdentifier reports whether s is a valid macro identifier
// ([A-Za-z_][A-Za-z0-9_]*).
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// substituteMacros replaces whole-identifier occurrences of macro names in a
// line with their replacement text. Identifiers are scanned byte-wise, so a
// macro never matches inside a longer identifier.
func substituteMacros(line string, macros map[string]string) string {
	if len(macros) == 0 {
		return line
	}

	identByte := func(c byte) bool {
		return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}

	var b strings.Builder
	b.Grow(len(line))
	i := 0
	for i < len(line) {
		c := line[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			start := i
			for i < len(line) && identByte(line[i]) {
				i++
			}
			ident := line[start:i]
			if replacement, ok := macros[ident]; ok {
				b.WriteString(replacement)
			} else {
				b.WriteString(ident)
			}
			continue
		}
		if c >= '0' && c <= '9' {
			// Numeric-led runs are consumed whole so a macro never matches
			// the alphabetic tail of a number literal like 1e5f.
			start := i
			for i < len(line) && identByte(line[i]) {
				i++
			}
			b.WriteString(line[start:i])
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}
