package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController drives a camera's position around a target in spherical coordinates.
// Orbit changes the angles, Zoom the distance, and Pan moves the target and the eye together
// along the camera's local axes.
type CameraController interface {
	// Position returns the eye position computed from the target and the spherical coordinates.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Target returns the orbit center.
	//
	// Returns:
	//   - mgl32.Vec3: the orbit center
	Target() mgl32.Vec3

	// SetTarget moves the orbit center, keeping the spherical coordinates.
	//
	// Parameters:
	//   - x, y, z: target components
	SetTarget(x, y, z float32)

	// Orbit rotates the eye around the target. Elevation is clamped to the configured limits.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye toward the target by delta times the zoom speed, clamped to the radius
	// limits.
	//
	// Parameters:
	//   - delta: zoom steps, positive toward the target
	Zoom(delta float32)

	// Pan translates the target and the eye along the camera's right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: distances along each axis
	Pan(right, up, forward float32)

	// Radius returns the distance between eye and target.
	Radius() float32

	// Azimuth returns the horizontal angle around the Y axis in radians, 0 on the +Z axis.
	Azimuth() float32

	// Elevation returns the vertical angle from the horizontal plane in radians.
	Elevation() float32
}
