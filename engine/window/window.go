package window

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window is a desktop window hosting the render surface. It reports framebuffer resizes and the
// input the demo camera needs. Every method except Size must be called from the thread that
// created the window.
type Window interface {
	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse wheel events.
	//
	// Parameters:
	//   - callback: function receiving the vertical scroll delta, positive away from the user
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key press and release events. Escape closes the
	// window and is not forwarded.
	//
	// Parameters:
	//   - callback: function receiving the key and whether it is held down
	SetKeyCallback(callback func(key Key, down bool))

	// SetMouseButtonCallback sets the callback for mouse button events.
	//
	// Parameters:
	//   - callback: function receiving the button, whether it is held and the cursor position
	SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y float32))

	// SetMouseMoveCallback sets the callback for cursor movement.
	//
	// Parameters:
	//   - callback: function receiving the cursor position in pixels
	SetMouseMoveCallback(callback func(x, y float32))

	// SurfaceDescriptor returns the platform surface descriptor for creating a WebGPU surface.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil after Close
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// SetTitle replaces the title bar text.
	SetTitle(title string)

	// Size returns the framebuffer size in pixels. Safe to call from any goroutine.
	//
	// Returns:
	//   - int: width in pixels
	//   - int: height in pixels
	Size() (int, int)

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// PollEvents processes pending window events without blocking, invoking the callbacks.
	//
	// Returns:
	//   - bool: false once the window has been asked to close
	PollEvents() bool

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never created or is already closed
	Close() error
}

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title string

	minWidth, minHeight int
	maxWidth, maxHeight int

	// sizeMu guards width and height, which the render goroutine reads.
	sizeMu sync.Mutex
	width  int
	height int

	resizable bool

	internalWindow *glfwWindow

	onResize      func(width, height int)
	onScroll      func(delta float32)
	onKey         func(key Key, down bool)
	onMouseButton func(button MouseButton, down bool, x, y float32)
	onMouseMove   func(x, y float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread, which
// must be the main thread on macOS.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
func NewWindow(options ...WindowBuilderOption) Window {
	w := &engineWindow{
		title:     "lumen",
		minWidth:  320,
		minHeight: 180,
		maxWidth:  -1,
		maxHeight: -1,
		width:     1280,
		height:    720,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(key Key, down bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y float32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y float32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

func (w *engineWindow) Size() (int, int) {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.width, w.height
}

func (w *engineWindow) setSize(width, height int) {
	w.sizeMu.Lock()
	w.width, w.height = width, height
	w.sizeMu.Unlock()
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) PollEvents() bool {
	return platformProcessMessages(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}
