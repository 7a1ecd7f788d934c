package gpu

// HeadlessDeviceBuilderOption configures a headless device.
type HeadlessDeviceBuilderOption func(*headlessDevice)

// WithHeadlessBackend sets the backend the device reports.
func WithHeadlessBackend(b Backend) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.backend = b
	}
}

// WithHeadlessShaderFormat sets the shader representation the device asks for.
// Use Backend.BytecodeFormat to make the shader layer compile native bytecode.
func WithHeadlessShaderFormat(f ShaderFormat) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.shaderFormat = f
	}
}

// WithHeadlessFramesInFlight sets the swap chain image count.
func WithHeadlessFramesInFlight(n int) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.framesInFlight = n
	}
}

// WithHeadlessSurfaceSize sets the initial surface size.
func WithHeadlessSurfaceSize(width, height int) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.width = width
		d.height = height
	}
}

// WithHeadlessSampleCount sets the initial MSAA sample count.
func WithHeadlessSampleCount(count uint32) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.sampleCount = count
	}
}

// WithPipelineCreationHook installs a hook consulted before every pipeline creation. A non-nil
// error from the hook makes the creation fail, simulating a backend compile error.
func WithPipelineCreationHook(hook func(label string) error) HeadlessDeviceBuilderOption {
	return func(d *headlessDevice) {
		d.pipelineErr = hook
	}
}
