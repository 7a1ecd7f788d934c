package pipeline

import (
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

// PipelineBuilderOption configures a pipeline before its GPU object is created.
type PipelineBuilderOption func(*pipeline)

// WithVertexProgram sets the compiled vertex stage.
func WithVertexProgram(p *shader.Program) PipelineBuilderOption {
	return func(pl *pipeline) {
		pl.vertex = p
	}
}

// WithPixelProgram sets the compiled pixel stage. Depth-only and shadow pipelines have none.
func WithPixelProgram(p *shader.Program) PipelineBuilderOption {
	return func(pl *pipeline) {
		pl.pixel = p
	}
}

// WithComputeProgram sets the compiled compute stage and makes the pipeline a compute pipeline.
func WithComputeProgram(p *shader.Program) PipelineBuilderOption {
	return func(pl *pipeline) {
		pl.compute = p
	}
}

// WithIdentity records the shader names and material macro set the pipeline is registered
// under. The registry keys on both.
//
// Parameters:
//   - id: the vertex and pixel shader names, or the compute shader name in VertexShader
//   - macros: the macros the material asked for, without the implicit per-kind macros
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithIdentity(id ShaderIdentity, macros MacroSet) PipelineBuilderOption {
	return func(p *pipeline) {
		p.identity, p.macros = id, macros
	}
}

// WithRenderPass selects the pass whose attachment formats are baked into the pipeline.
func WithRenderPass(pass gpu.RenderPassKind) PipelineBuilderOption {
	return func(p *pipeline) {
		p.pass = pass
	}
}

// WithDepth sets the depth test and depth write state.
func WithDepth(test, write bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTest, p.depthWrite = test, write
	}
}

// WithDepthBias offsets written depth to keep shadow maps from self-shadowing.
//
// Parameters:
//   - bias: constant bias in depth buffer units
//   - slopeScale: bias scaled by the polygon's depth slope
//
// Returns:
//   - PipelineBuilderOption: option function to apply
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthBias, p.depthBiasSlopeScale = bias, slopeScale
	}
}

// WithBlendEnabled turns on source-alpha blending of the colour target.
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blend = enabled
	}
}

func WithCullMode(mode gpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}
