package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

var (
	// ErrInvalidMacroPrefix is returned when a vertex macro lacks the VS_ prefix or a pixel macro lacks PS_.
	ErrInvalidMacroPrefix = errors.New("pipeline: invalid macro prefix")

	// ErrShaderNotRegistered is returned when a requested shader name is unknown to the shader registry.
	ErrShaderNotRegistered = errors.New("pipeline: shader not registered")
)

const (
	// VertexMacroPrefix is required on every vertex shader permutation macro.
	VertexMacroPrefix = "VS_"

	// PixelMacroPrefix is required on every pixel shader permutation macro.
	PixelMacroPrefix = "PS_"

	// MacroTransparent is defined for the pixel shader of every transparent pipeline.
	MacroTransparent = "PS_PIPELINE_TRANSPARENT"

	// MacroShadowPass is defined for the vertex shader of both shadow pipeline kinds.
	MacroShadowPass = "VS_SHADOW_PASS"

	// MacroShadowPoint is additionally defined for the vertex shader of point light shadow pipelines.
	MacroShadowPoint = "VS_SHADOW_POINT"
)

// PipelineKind identifies the role a pipeline plays in the frame.
type PipelineKind int

const (
	PipelineKindOpaque PipelineKind = iota
	PipelineKindTransparent
	PipelineKindDepthOnly
	PipelineKindShadowDirectionalSpot
	PipelineKindShadowPoint

	// PipelineKindCompute is used by pipelines of the compute sub-registry.
	PipelineKindCompute
)

// graphicsKinds is the number of kinds held by the graphics registry.
const graphicsKinds = int(PipelineKindCompute)

func (k PipelineKind) String() string {
	switch k {
	case PipelineKindOpaque:
		return "opaque"
	case PipelineKindTransparent:
		return "transparent"
	case PipelineKindDepthOnly:
		return "depth-only"
	case PipelineKindShadowDirectionalSpot:
		return "shadow-directional-spot"
	case PipelineKindShadowPoint:
		return "shadow-point"
	case PipelineKindCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// IsGraphics reports whether the kind belongs to the graphics registry.
func (k PipelineKind) IsGraphics() bool {
	return k >= PipelineKindOpaque && k < PipelineKindCompute
}

// UsesPixelShader reports whether pipelines of this kind have a fragment stage.
func (k PipelineKind) UsesPixelShader() bool {
	return k == PipelineKindOpaque || k == PipelineKindTransparent
}

// implicitMacros returns the macros a kind adds to its vertex and pixel programs.
func (k PipelineKind) implicitMacros() (vertex, pixel []string) {
	switch k {
	case PipelineKindTransparent:
		return nil, []string{MacroTransparent}
	case PipelineKindShadowDirectionalSpot:
		return []string{MacroShadowPass}, nil
	case PipelineKindShadowPoint:
		return []string{MacroShadowPass, MacroShadowPoint}, nil
	default:
		return nil, nil
	}
}

// options returns the fixed-function state of a kind.
func (k PipelineKind) options() []PipelineBuilderOption {
	switch k {
	case PipelineKindOpaque:
		return []PipelineBuilderOption{
			WithRenderPass(gpu.RenderPassColor),
			WithDepth(true, true),
			WithCullMode(gpu.CullModeBack),
		}
	case PipelineKindTransparent:
		return []PipelineBuilderOption{
			WithRenderPass(gpu.RenderPassColor),
			WithDepth(true, false),
			WithBlendEnabled(true),
			WithCullMode(gpu.CullModeNone),
		}
	case PipelineKindDepthOnly:
		return []PipelineBuilderOption{
			WithRenderPass(gpu.RenderPassDepthPrePass),
			WithDepth(true, true),
			WithCullMode(gpu.CullModeBack),
		}
	case PipelineKindShadowDirectionalSpot, PipelineKindShadowPoint:
		return []PipelineBuilderOption{
			WithRenderPass(gpu.RenderPassShadow),
			WithDepth(true, true),
			WithCullMode(gpu.CullModeBack),
			WithDepthBias(2, 2.0),
		}
	default:
		return nil
	}
}

// ShaderIdentity names the shaders a graphics pipeline is built from. PixelShader is empty for
// kinds without a fragment stage.
type ShaderIdentity struct {
	VertexShader string
	PixelShader  string
}

func (id ShaderIdentity) String() string {
	if id.PixelShader == "" {
		return id.VertexShader
	}
	return id.VertexShader + "+" + id.PixelShader
}

// MacroSet is a sorted, duplicate-free set of permutation macros.
type MacroSet struct {
	macros []string
}

// NewMacroSet builds a set from macros given in any order.
func NewMacroSet(macros ...string) MacroSet {
	out := slices.Clone(macros)
	slices.Sort(out)
	return MacroSet{macros: slices.Compact(out)}
}

// Key returns the canonical string form used as a registry key.
func (s MacroSet) Key() string {
	return strings.Join(s.macros, ",")
}

// Macros returns a copy of the sorted macros.
func (s MacroSet) Macros() []string {
	return slices.Clone(s.macros)
}

// Contains reports whether the set defines a macro.
func (s MacroSet) Contains(macro string) bool {
	_, ok := slices.BinarySearch(s.macros, macro)
	return ok
}

// Len returns the number of macros in the set.
func (s MacroSet) Len() int {
	return len(s.macros)
}

// GraphicsPipelineConfig is the request a material makes for its graphics pipeline.
type GraphicsPipelineConfig struct {
	VertexShader     string
	PixelShader      string
	UsePixelBlending bool
	VertexMacros     []string
	PixelMacros      []string
}

// Kind returns the colour pass kind the configuration selects.
func (c GraphicsPipelineConfig) Kind() PipelineKind {
	if c.UsePixelBlending {
		return PipelineKindTransparent
	}
	return PipelineKindOpaque
}

// validate checks the macro naming contract.
func (c GraphicsPipelineConfig) validate() error {
	for _, m := range c.VertexMacros {
		if !strings.HasPrefix(m, VertexMacroPrefix) {
			return fmt.Errorf("%w: vertex macro %q must start with %s", ErrInvalidMacroPrefix, m, VertexMacroPrefix)
		}
	}
	for _, m := range c.PixelMacros {
		if !strings.HasPrefix(m, PixelMacroPrefix) {
			return fmt.Errorf("%w: pixel macro %q must start with %s", ErrInvalidMacroPrefix, m, PixelMacroPrefix)
		}
	}
	return nil
}

// ProgramMacros returns the macros each stage of a kind is compiled with: the configured ones
// followed by those the kind implies. Kinds without a fragment stage return nil pixel macros.
//
// Parameters:
//   - kind: the pipeline kind
//
// Returns:
//   - vertex: the vertex program macros
//   - pixel: the pixel program macros
func (c GraphicsPipelineConfig) ProgramMacros(kind PipelineKind) (vertex, pixel []string) {
	extraVS, extraPS := kind.implicitMacros()
	vertex = append(slices.Clone(c.VertexMacros), extraVS...)
	if kind.UsesPixelShader() {
		pixel = append(slices.Clone(c.PixelMacros), extraPS...)
	}
	return vertex, pixel
}

// identityFor returns the shader identity and macro set a kind uses for this configuration.
// Kinds without a fragment stage drop the pixel shader and its macros.
func (c GraphicsPipelineConfig) identityFor(kind PipelineKind) (ShaderIdentity, MacroSet) {
	if !kind.UsesPixelShader() {
		return ShaderIdentity{VertexShader: c.VertexShader}, NewMacroSet(c.VertexMacros...)
	}
	all := make([]string, 0, len(c.VertexMacros)+len(c.PixelMacros))
	all = append(all, c.VertexMacros...)
	all = append(all, c.PixelMacros...)
	return ShaderIdentity{VertexShader: c.VertexShader, PixelShader: c.PixelShader}, NewMacroSet(all...)
}

// ExecutionStage is the point in the frame at which queued compute work runs.
type ExecutionStage int

const (
	// StageAfterDepthPrePass runs after the depth pre-pass and before the main colour pass.
	StageAfterDepthPrePass ExecutionStage = iota

	executionStages
)

func (s ExecutionStage) String() string {
	switch s {
	case StageAfterDepthPrePass:
		return "after-depth-prepass"
	default:
		return "unknown"
	}
}
