package renderer

import (
	"embed"
	"fmt"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/lighting"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

//go:embed assets/*.wgsl
var assets embed.FS

// ObjectInclude is the include name of the per-draw object and shadow pass structs.
const ObjectInclude = "lumen/object"

// Binding names the renderer attaches to every mesh pipeline.
const (
	BindingObjects         = "objects"
	BindingShadowConstants = "shadow_constants"
)

// NewShaderRegistry creates a registry holding every built-in shader: the lighting includes and
// compute shaders plus the default mesh shaders.
//
// Parameters:
//   - format: the representation the device consumes
//   - opts: extra registry options
//
// Returns:
//   - shader.Registry: the registry, not yet marked ready
//   - error: an error if a built-in asset is missing
func NewShaderRegistry(format gpu.ShaderFormat, opts ...shader.RegistryBuilderOption) (shader.Registry, error) {
	reg := shader.NewRegistry(format, append(lighting.RegistryConstants(), opts...)...)
	if err := lighting.RegisterShaders(reg); err != nil {
		return nil, err
	}
	object, err := assets.ReadFile("assets/object.wgsl")
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	reg.RegisterInclude(ObjectInclude, string(object))

	for _, s := range []struct {
		name  string
		stage gpu.ShaderStage
		file  string
	}{
		{material.DefaultVertexShader, gpu.ShaderStageVertex, "assets/mesh_vs.wgsl"},
		{material.DefaultPixelShader, gpu.ShaderStageFragment, "assets/mesh_ps.wgsl"},
	} {
		src, err := assets.ReadFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
		if err := reg.Register(s.name, s.stage, string(src)); err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
	}
	return reg, nil
}

// BuiltinPermutations lists every pipeline permutation of the built-in shaders: the opaque and
// transparent default materials with their depth-only and shadow variants, and the two lighting
// compute shaders.
//
// Returns:
//   - []pipeline.PrecompileRequest: one request per permutation
func BuiltinPermutations() []pipeline.PrecompileRequest {
	opaque := pipeline.GraphicsPipelineConfig{
		VertexShader: material.DefaultVertexShader,
		PixelShader:  material.DefaultPixelShader,
	}
	transparent := opaque
	transparent.UsePixelBlending = true

	return []pipeline.PrecompileRequest{
		{Kind: pipeline.PipelineKindOpaque, Config: opaque},
		{Kind: pipeline.PipelineKindTransparent, Config: transparent},
		{Kind: pipeline.PipelineKindDepthOnly, Config: opaque},
		{Kind: pipeline.PipelineKindShadowDirectionalSpot, Config: opaque},
		{Kind: pipeline.PipelineKindShadowPoint, Config: opaque},
		{Kind: pipeline.PipelineKindCompute, Config: pipeline.GraphicsPipelineConfig{VertexShader: lighting.FrustumGridShader}},
		{Kind: pipeline.PipelineKindCompute, Config: pipeline.GraphicsPipelineConfig{VertexShader: lighting.LightCullingShader}},
	}
}
