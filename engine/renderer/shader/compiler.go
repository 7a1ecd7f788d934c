package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
)

// Compiler turns preprocessed WGSL into the representation a device consumes.
type Compiler interface {
	// Compile translates WGSL source.
	//
	// Parameters:
	//   - source: preprocessed WGSL
	//   - format: the target representation
	//
	// Returns:
	//   - []byte: SPIR-V words, HLSL text, or the WGSL itself
	//   - error: the parse, validation or generation error
	Compile(source string, format gpu.ShaderFormat) ([]byte, error)
}

var _ Compiler = &nagaCompiler{}

type nagaCompiler struct {
	opts naga.CompileOptions
}

// NewCompiler creates a Compiler backed by naga.
//
// Parameters:
//   - opts: optional settings
//
// Returns:
//   - Compiler: the compiler
func NewCompiler(opts ...CompilerBuilderOption) Compiler {
	c := &nagaCompiler{opts: naga.DefaultOptions()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *nagaCompiler) Compile(source string, format gpu.ShaderFormat) ([]byte, error) {
	switch format {
	case gpu.ShaderFormatWGSL:
		return []byte(source), nil
	case gpu.ShaderFormatSPIRV:
		out, err := naga.CompileWithOptions(source, c.opts)
		if err != nil {
			return nil, fmt.Errorf("shader: spirv: %w", err)
		}
		return out, nil
	case gpu.ShaderFormatHLSL:
		ast, err := naga.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("shader: hlsl: %w", err)
		}
		module, err := naga.LowerWithSource(ast, source)
		if err != nil {
			return nil, fmt.Errorf("shader: hlsl: %w", err)
		}
		if c.opts.Validate {
			problems, err := naga.Validate(module)
			if err != nil {
				return nil, fmt.Errorf("shader: hlsl: %w", err)
			}
			if len(problems) > 0 {
				return nil, fmt.Errorf("shader: hlsl: validation failed: %w", &problems[0])
			}
		}
		text, _, err := hlsl.Compile(module, hlsl.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("shader: hlsl: %w", err)
		}
		return []byte(text), nil
	default:
		return nil, fmt.Errorf("shader: unknown format %v", format)
	}
}

// CompilerBuilderOption configures a Compiler.
type CompilerBuilderOption func(*nagaCompiler)

// WithDebugInfo embeds debug names and line info in SPIR-V output.
func WithDebugInfo(debug bool) CompilerBuilderOption {
	return func(c *nagaCompiler) {
		c.opts.Debug = debug
	}
}

// WithValidation toggles IR validation before code generation.
func WithValidation(validate bool) CompilerBuilderOption {
	return func(c *nagaCompiler) {
		c.opts.Validate = validate
	}
}
