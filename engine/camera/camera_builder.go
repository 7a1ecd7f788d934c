package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption configures a Camera during NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithPosition places the eye.
func WithPosition(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = mgl32.Vec3{x, y, z}
	}
}

// WithTarget sets the point the camera looks at.
func WithTarget(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.target = mgl32.Vec3{x, y, z}
	}
}

// WithLookAt sets the eye and target together.
//
// Parameters:
//   - eye: the camera position
//   - target: the point at the centre of the view
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithLookAt(eye, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position, c.target = eye, target
	}
}

// WithUp overrides the world up vector used to build the view matrix. A zero vector is ignored.
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if up := (mgl32.Vec3{x, y, z}); up.Len() > 0 {
			c.up = up.Normalize()
		}
	}
}

// WithFov sets the vertical field of view in radians. Values outside (0, pi) are ignored.
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if fov > 0 && fov < mgl32.DegToRad(180) {
			c.fov = fov
		}
	}
}

// WithAspect sets width over height. Non-positive values are ignored; the engine keeps the
// aspect in step with the window afterwards.
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if aspect > 0 {
			c.aspect = aspect
		}
	}
}

// WithNear sets the near plane distance. It must be positive for the reversed depth range the
// tile frustums are built from, so other values are ignored.
func WithNear(near float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if near > 0 {
			c.near = near
		}
	}
}

// WithFar sets the far plane distance. NewCamera pushes it past the near plane if needed.
func WithFar(far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if far > 0 {
			c.far = far
		}
	}
}

// WithController attaches an orbit controller. Its position and target replace the camera's
// once every option is applied.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
