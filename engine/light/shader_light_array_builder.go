package light

type shaderLightArrayConfig struct {
	capacity int
	onResize ResizeFunc
}

// ShaderLightArrayBuilderOption configures a ShaderLightArray during construction.
type ShaderLightArrayBuilderOption func(*shaderLightArrayConfig)

// WithInitialCapacity sets the number of slots allocated up front.
//
// Parameters:
//   - capacity: the slot count, at least 1
//
// Returns:
//   - ShaderLightArrayBuilderOption: a function that sets the initial capacity
func WithInitialCapacity(capacity int) ShaderLightArrayBuilderOption {
	return func(c *shaderLightArrayConfig) {
		c.capacity = capacity
	}
}

// WithResizeCallback sets the function called after the array grew.
//
// Parameters:
//   - fn: the callback, receiving the new capacity
//
// Returns:
//   - ShaderLightArrayBuilderOption: a function that sets the resize callback
func WithResizeCallback(fn ResizeFunc) ShaderLightArrayBuilderOption {
	return func(c *shaderLightArrayConfig) {
		c.onResize = fn
	}
}
