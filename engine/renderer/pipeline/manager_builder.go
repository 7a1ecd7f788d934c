package pipeline

import "sync"

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithRenderLock sets the render-resources lock. The manager holds it from the release of the
// graphics pipelines until they are restored, which keeps the frame loop from drawing with
// released pipelines.
//
// Parameters:
//   - l: the lock the renderer takes around every frame
//
// Returns:
//   - ManagerBuilderOption: a function that sets the render lock
func WithRenderLock(l sync.Locker) ManagerBuilderOption {
	return func(m *manager) {
		m.renderLock = l
	}
}

// WithCompileWorkers sets the number of background workers used by Precompile.
//
// Parameters:
//   - n: the maximum number of concurrent compilations
//
// Returns:
//   - ManagerBuilderOption: a function that sets the worker count
func WithCompileWorkers(n int) ManagerBuilderOption {
	return func(m *manager) {
		if n > 0 {
			m.compileWorkers = n
		}
	}
}
