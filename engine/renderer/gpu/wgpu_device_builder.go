package gpu

import "github.com/cogentcore/webgpu/wgpu"

// WGPUDeviceBuilderOption configures the wgpu device before the adapter is requested.
type WGPUDeviceBuilderOption func(*wgpuDevice)

// WithBackend selects the native API wgpu should run on.
func WithBackend(b Backend) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.backend = b
	}
}

// WithSampleCount sets the initial MSAA sample count, 1 or 4.
func WithSampleCount(count uint32) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		if count == 4 {
			d.sampleCount = 4
			return
		}
		d.sampleCount = 1
	}
}

// WithPresentMode sets the initial present mode.
func WithPresentMode(mode PresentMode) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		if mode == PresentModeVSync {
			d.presentMode = wgpu.PresentModeFifo
			return
		}
		d.presentMode = wgpu.PresentModeImmediate
	}
}

// WithFramesInFlight sets the swap chain image count used for frame resources.
func WithFramesInFlight(n int) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		if n > 0 {
			d.framesInFlight = n
		}
	}
}

// WithForceFallbackAdapter requests the software fallback adapter.
func WithForceFallbackAdapter(force bool) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}
