package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/constraints"
)

// PerspectiveZO creates a perspective projection matrix that maps view-space depth into the
// [0, 1] clip range used by WebGPU, Vulkan and DirectX. mgl32.Perspective targets the OpenGL
// [-1, 1] range, which would push the effective near plane out of the depth buffer.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func PerspectiveZO(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// OrthoZO creates an orthographic projection matrix with a [0, 1] depth range.
//
// Parameters:
//   - left, right, bottom, top: view volume extents
//   - near, far: depth extents
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func OrthoZO(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	var out mgl32.Mat4
	out[0] = 2 / (right - left)
	out[5] = 2 / (top - bottom)
	out[10] = 1 / (near - far)
	out[12] = -(right + left) / (right - left)
	out[13] = -(top + bottom) / (top - bottom)
	out[14] = near / (near - far)
	out[15] = 1
	return out
}

// BuildModelMatrix constructs a model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - position: translation in world space
//   - rotation: rotation angles in radians around each axis
//   - scale: scale factors along each axis
//
// Returns:
//   - mgl32.Mat4: the composed model matrix
func BuildModelMatrix(position, rotation, scale mgl32.Vec3) mgl32.Mat4 {
	r := mgl32.HomogRotate3DY(rotation.Y()).
		Mul4(mgl32.HomogRotate3DX(rotation.X())).
		Mul4(mgl32.HomogRotate3DZ(rotation.Z()))
	return mgl32.Translate3D(position.X(), position.Y(), position.Z()).
		Mul4(r).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// NextMultipleOf rounds x up to the next multiple of y.
func NextMultipleOf[T constraints.Integer](x, y T) T {
	if y == 0 {
		return x
	}
	return ((x + y - 1) / y) * y
}

// DivCeil returns x / y rounded towards positive infinity.
func DivCeil[T constraints.Integer](x, y T) T {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Clamp limits v to the closed range [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
