package lighting

import (
	"embed"
	"fmt"

	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

//go:embed assets/*.wgsl
var assets embed.FS

const (
	// FrustumGridShader builds the view-space frustum of every screen tile.
	FrustumGridShader = "lighting/frustum_grid"

	// LightCullingShader assigns the visible lights to the screen tiles they touch.
	LightCullingShader = "lighting/light_culling"

	// FrameConstantsInclude is the include name of the camera frame-constant struct.
	FrameConstantsInclude = "lumen/frame_constants"

	// LightingInclude is the include name of the light structs and the light grid layout.
	LightingInclude = "lumen/lighting"
)

// RegistryConstants returns the registry options defining the tile constants the lighting shaders
// read through //@lumen:const.
//
// Returns:
//   - []shader.RegistryBuilderOption: one WithConstant option per constant
func RegistryConstants() []shader.RegistryBuilderOption {
	var opts []shader.RegistryBuilderOption
	for name, value := range light.ShaderConstants() {
		opts = append(opts, shader.WithConstant(name, value))
	}
	return opts
}

// RegisterShaders adds the lighting includes and compute shaders to a registry.
//
// Parameters:
//   - reg: the registry, created with RegistryConstants
//
// Returns:
//   - error: an error if a shader is already registered
func RegisterShaders(reg shader.Registry) error {
	lighting, err := assets.ReadFile("assets/lighting.wgsl")
	if err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	reg.RegisterInclude(FrameConstantsInclude, camera.GPUFrameConstantsSource)
	reg.RegisterInclude(LightingInclude, string(lighting))

	for name, file := range map[string]string{
		FrustumGridShader:  "assets/frustum_grid.wgsl",
		LightCullingShader: "assets/light_culling.wgsl",
	} {
		src, err := assets.ReadFile(file)
		if err != nil {
			return fmt.Errorf("lighting: %w", err)
		}
		if err := reg.Register(name, gpu.ShaderStageCompute, string(src)); err != nil {
			return fmt.Errorf("lighting: %w", err)
		}
	}
	return nil
}
