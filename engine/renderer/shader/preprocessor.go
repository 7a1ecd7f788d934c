package shader

import (
	"fmt"
	"slices"
	"strings"
)

// directivePrefix marks a preprocessor directive inside a WGSL line comment:
//
//	//@lumen:include lighting_types
//	//@lumen:ifdef PS_PIPELINE_TRANSPARENT
//	//@lumen:else
//	//@lumen:endif
//	//@lumen:const TILE_SIZE
const directivePrefix = "@lumen:"

// maxIncludeDepth bounds nested includes, which also catches include cycles.
const maxIncludeDepth = 16

type directiveKind string

const (
	directiveInclude directiveKind = "include"
	directiveIfdef   directiveKind = "ifdef"
	directiveIfndef  directiveKind = "ifndef"
	directiveElse    directiveKind = "else"
	directiveEndif   directiveKind = "endif"
	directiveConst   directiveKind = "const"
)

type directive struct {
	kind directiveKind
	arg  string
	line int
}

// parseDirective parses one source line. It returns nil for lines that are not directives.
func parseDirective(line string, lineNum int) (*directive, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, directivePrefix)
	if !ok {
		return nil, nil
	}
	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @lumen directive", lineNum)
	}

	d := &directive{kind: directiveKind(args[0]), line: lineNum}
	switch d.kind {
	case directiveInclude, directiveIfdef, directiveIfndef, directiveConst:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @lumen:%s takes exactly one argument", lineNum, d.kind)
		}
		d.arg = args[1]
	case directiveElse, directiveEndif:
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @lumen:%s takes no arguments", lineNum, d.kind)
		}
	default:
		return nil, fmt.Errorf("line %d: unknown @lumen directive %q", lineNum, args[0])
	}
	return d, nil
}

// Preprocessor expands includes, conditional blocks and constants in WGSL source. Macros are
// plain names: a block guarded by ifdef NAME is kept exactly when NAME is in the macro set.
type Preprocessor struct {
	includes  map[string]string
	constants map[string]string
}

// NewPreprocessor creates a preprocessor over the given include sources and constants. Constant
// values are WGSL literals, e.g. "16u".
//
// Parameters:
//   - includes: include name to WGSL source
//   - constants: constant name to WGSL literal
//
// Returns:
//   - *Preprocessor: the preprocessor
func NewPreprocessor(includes, constants map[string]string) *Preprocessor {
	return &Preprocessor{includes: includes, constants: constants}
}

// frame tracks one open conditional block.
type frame struct {
	parentActive bool
	taken        bool
	inElse       bool
	line         int
}

// Process expands the source for one macro set.
//
// Parameters:
//   - source: the raw WGSL source
//   - macros: the defined macro names
//
// Returns:
//   - string: the expanded WGSL
//   - error: an error for unknown includes or constants, or unbalanced conditional blocks
func (p *Preprocessor) Process(source string, macros []string) (string, error) {
	var sb strings.Builder
	if err := p.expand(&sb, source, macros, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (p *Preprocessor) expand(sb *strings.Builder, source string, macros []string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("includes nested deeper than %d", maxIncludeDepth)
	}

	var stack []frame
	active := true
	for i, line := range strings.Split(source, "\n") {
		d, err := parseDirective(line, i+1)
		if err != nil {
			return err
		}
		if d == nil {
			if active {
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
			continue
		}

		switch d.kind {
		case directiveIfdef, directiveIfndef:
			defined := slices.Contains(macros, d.arg)
			cond := defined == (d.kind == directiveIfdef)
			stack = append(stack, frame{parentActive: active, taken: cond, line: d.line})
			active = active && cond
		case directiveElse:
			if len(stack) == 0 {
				return fmt.Errorf("line %d: @lumen:else without ifdef", d.line)
			}
			top := &stack[len(stack)-1]
			if top.inElse {
				return fmt.Errorf("line %d: second @lumen:else for block opened on line %d", d.line, top.line)
			}
			top.inElse = true
			active = top.parentActive && !top.taken
		case directiveEndif:
			if len(stack) == 0 {
				return fmt.Errorf("line %d: @lumen:endif without ifdef", d.line)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
		case directiveInclude:
			if !active {
				continue
			}
			src, ok := p.includes[d.arg]
			if !ok {
				return fmt.Errorf("line %d: unknown include %q", d.line, d.arg)
			}
			if err := p.expand(sb, src, macros, depth+1); err != nil {
				return fmt.Errorf("include %q: %w", d.arg, err)
			}
		case directiveConst:
			if !active {
				continue
			}
			value, ok := p.constants[d.arg]
			if !ok {
				return fmt.Errorf("line %d: unknown constant %q", d.line, d.arg)
			}
			fmt.Fprintf(sb, "const %s = %s;\n", d.arg, value)
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("line %d: conditional block is never closed", stack[len(stack)-1].line)
	}
	return nil
}
