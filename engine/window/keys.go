package window

import "github.com/go-gl/glfw/v3.3/glfw"

// Key is a keyboard key. Values match GLFW key tokens.
type Key int

const (
	KeyUnknown Key = Key(glfw.KeyUnknown)
	KeySpace   Key = Key(glfw.KeySpace)
	KeyW       Key = Key(glfw.KeyW)
	KeyA       Key = Key(glfw.KeyA)
	KeyS       Key = Key(glfw.KeyS)
	KeyD       Key = Key(glfw.KeyD)
	KeyQ       Key = Key(glfw.KeyQ)
	KeyE       Key = Key(glfw.KeyE)
	KeyL       Key = Key(glfw.KeyL)
	KeyM       Key = Key(glfw.KeyM)
	KeyV       Key = Key(glfw.KeyV)
	KeyLeft    Key = Key(glfw.KeyLeft)
	KeyRight   Key = Key(glfw.KeyRight)
	KeyUp      Key = Key(glfw.KeyUp)
	KeyDown    Key = Key(glfw.KeyDown)
	KeyEscape  Key = Key(glfw.KeyEscape)
)

func mouseButtonFromGLFW(b glfw.MouseButton) (MouseButton, bool) {
	switch b {
	case glfw.MouseButtonLeft:
		return MouseButtonLeft, true
	case glfw.MouseButtonRight:
		return MouseButtonRight, true
	case glfw.MouseButtonMiddle:
		return MouseButtonMiddle, true
	default:
		return 0, false
	}
}
