package lighting

import "sync"

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithRenderLock sets the render-resources lock taken while a light array grows, which keeps the
// frame loop from drawing with released buffers.
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

// WithInitialCapacity sets the number of slots each light array starts with.
//
// Parameters:
//   - n: slots per light kind
//
// Returns:
//   - ManagerBuilderOption: a function that sets the capacity
func WithInitialCapacity(n int) ManagerBuilderOption {
	return func(m *manager) {
		if n > 0 {
			m.initialCapacity = n
		}
	}
}
