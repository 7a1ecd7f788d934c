package engine

import (
	"github.com/Carmen-Shannon/lumen/engine/profiler"
	"github.com/Carmen-Shannon/lumen/engine/scene"
	"github.com/Carmen-Shannon/lumen/engine/settings"
	"github.com/Carmen-Shannon/lumen/engine/window"
)

// EngineBuilderOption configures an engine in NewEngine.
type EngineBuilderOption func(*engine)

// WithProfiling turns the once-per-second frame statistics log on or off.
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithProfilerOptions swaps the default profiler for one built from opts, for example to get
// the statistics through a callback.
func WithProfilerOptions(opts ...profiler.ProfilerBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = profiler.NewProfiler(opts...)
	}
}

// WithTickRate sets how many times per second the scene is updated, independent of the frame
// rate. Non-positive rates keep the default of 60.
//
// Parameters:
//   - tps: updates per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(tps float64) EngineBuilderOption {
	return func(e *engine) {
		if d := frameDuration(tps); d > 0 {
			e.tickRate = d
		}
	}
}

// WithWindow makes Run pump the window's events and follow its framebuffer size. Without a
// window the engine renders until Quit or the context ends.
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithScene sets the scene Run starts with.
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithSettings applies s at construction and on every later change. Its frame limit replaces
// any WithFrameLimit value.
func WithSettings(s settings.Store) EngineBuilderOption {
	return func(e *engine) {
		e.settings = s
	}
}

// WithFrameLimit caps the render loop at fps frames per second; zero leaves it uncapped.
func WithFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.frameLimit.Store(int64(frameDuration(fps)))
	}
}
