package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption configures a CameraController during NewCameraController.
// The starting radius and elevation are clamped to their limits after every option runs.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the starting distance from the orbit target.
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the starting angle around Y in radians, zero facing down +Z.
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the starting angle above the horizontal plane in radians.
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.elevation = elevation
	}
}

// WithOrbitTarget sets the point the controller circles.
func WithOrbitTarget(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = mgl32.Vec3{x, y, z}
	}
}

// WithRadiusLimits bounds Zoom. The limits are swapped if given out of order.
//
// Parameters:
//   - minRadius: the closest distance to the target
//   - maxRadius: the farthest distance from the target
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadiusLimits(minRadius, maxRadius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius, cc.maxRadius = min(minRadius, maxRadius), max(minRadius, maxRadius)
	}
}

// WithElevationLimits bounds Orbit vertically. The limits are swapped if given out of order.
func WithElevationLimits(minElevation, maxElevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minElevation, cc.maxElevation = min(minElevation, maxElevation), max(minElevation, maxElevation)
	}
}

// WithZoomSpeed sets the world units moved per scroll step.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}
