package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithClearColor sets the colour the colour pass clears to.
//
// Parameters:
//   - c: linear RGBA
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear colour option to a renderer
func WithClearColor(c [4]float64) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = c
	}
}

// WithCompileWorkers sets the number of workers the pipeline manager compiles shader
// permutations on.
//
// Parameters:
//   - n: the worker count (minimum 1)
//
// Returns:
//   - RendererBuilderOption: a function that applies the compile workers option to a renderer
func WithCompileWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.compileWorkers = max(n, 1)
	}
}

// WithInitialLightCapacity sets the starting capacity of each light array.
//
// Parameters:
//   - n: records per light kind
//
// Returns:
//   - RendererBuilderOption: a function that applies the light capacity option to a renderer
func WithInitialLightCapacity(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.lightCapacity = max(n, 1)
	}
}

// WithPrecompile controls whether NewRenderer compiles every built-in shader permutation before
// marking the shader registry ready. Enabled by default.
//
// Parameters:
//   - enabled: false to compile permutations on first use
//
// Returns:
//   - RendererBuilderOption: a function that applies the precompile option to a renderer
func WithPrecompile(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.precompile = enabled
	}
}

// WithShadows enables or disables the shadow passes. Enabled by default.
//
// Parameters:
//   - enabled: false to skip step 7 of every frame
//
// Returns:
//   - RendererBuilderOption: a function that applies the shadows option to a renderer
func WithShadows(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.shadowsEnabled = enabled
	}
}

// WithShadowMapSize sets the width and height of every shadow depth map.
//
// Parameters:
//   - size: the edge length in texels
//
// Returns:
//   - RendererBuilderOption: a function that applies the shadow map size option to a renderer
func WithShadowMapSize(size uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.shadowMapSize = max(size, 1)
	}
}
