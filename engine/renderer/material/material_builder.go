package material

import "github.com/Carmen-Shannon/lumen/common"

// MaterialBuilderOption configures a material before its colour pipeline is requested.
type MaterialBuilderOption func(*material)

// WithName sets the material name used in logs and as the pipeline requester name.
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithBaseColor sets the linear RGBA albedo. An alpha below one only blends when the material
// is also transparent.
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.baseColor = color
	}
}

// WithMetallic sets the metallic factor, clamped to [0, 1].
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *material) {
		m.metallic = common.Clamp(metallic, 0, 1)
	}
}

// WithRoughness sets the roughness factor, clamped to [0, 1].
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = common.Clamp(roughness, 0, 1)
	}
}

// WithTransparent moves the material into the blended pass. Transparent materials get the
// transparent pixel permutation and are sorted back to front.
func WithTransparent(transparent bool) MaterialBuilderOption {
	return func(m *material) {
		m.transparent = transparent
	}
}

// WithShaders replaces the default mesh shaders.
//
// Parameters:
//   - vertex: registered vertex shader name, shared by the depth and shadow pipelines
//   - pixel: registered pixel shader name for the colour pass
//
// Returns:
//   - MaterialBuilderOption: option function to apply
func WithShaders(vertex, pixel string) MaterialBuilderOption {
	return func(m *material) {
		m.vertexShader, m.pixelShader = vertex, pixel
	}
}

// WithVertexMacros adds vertex permutation macros. Each must carry the VS_ prefix or
// NewMaterial fails.
func WithVertexMacros(macros ...string) MaterialBuilderOption {
	return func(m *material) {
		m.vertexMacros = append(m.vertexMacros, macros...)
	}
}

// WithPixelMacros adds pixel permutation macros with the PS_ prefix.
func WithPixelMacros(macros ...string) MaterialBuilderOption {
	return func(m *material) {
		m.pixelMacros = append(m.pixelMacros, macros...)
	}
}
