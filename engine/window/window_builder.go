package window

// WindowBuilderOption configures a window before the platform window is created.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the title bar text.
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial client area in screen coordinates. Non-positive sizes keep the
// 1280x720 default. On high-DPI displays the framebuffer reported by Size may be larger.
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		if width > 0 && height > 0 {
			w.width, w.height = width, height
		}
	}
}

// WithMinSize bounds how small the user can make the window. The renderer needs at least one
// light culling tile, so the default is 320x180.
//
// Parameters:
//   - width, height: minimum client area, or -1 for no limit
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithMinSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth, w.minHeight = width, height
	}
}

// WithMaxSize bounds how large the user can make the window. Pass -1 for no limit.
func WithMaxSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.maxWidth, w.maxHeight = width, height
	}
}

// WithResizable controls whether the user can resize the window. Windows are resizable by
// default.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *engineWindow) {
		w.resizable = resizable
	}
}
