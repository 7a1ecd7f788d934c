package light

import (
	"math"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/go-gl/mathgl/mgl32"
)

// maxSpotAngle is the largest accepted spot cone half-angle in degrees. A cone of 90 degrees
// or more has no finite bounding volume.
const maxSpotAngle = 89

// LightBuilderOption configures a Light during NewLight.
type LightBuilderOption func(*lightImpl)

// WithPosition sets the world-space position. Ignored by directional lights.
func WithPosition(x, y, z float32) LightBuilderOption {
	return WithPositionVec(mgl32.Vec3{x, y, z})
}

// WithPositionVec is WithPosition for a vector.
func WithPositionVec(p mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = p
	}
}

// WithDirection sets the direction the light points in. The vector is normalized; a zero
// vector leaves the default (straight down).
//
// Parameters:
//   - x, y, z: direction components
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		if d, ok := unitDirection(mgl32.Vec3{x, y, z}); ok {
			l.direction = d
		}
	}
}

// WithColor sets the linear RGB colour.
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = mgl32.Vec3{r, g, b}
	}
}

// WithIntensity sets the scalar multiplier applied to the colour. Negative values are clamped
// to zero.
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.intensity = max(intensity, 0)
	}
}

// WithRange sets the distance at which point and spot lights fall off to zero. It is also the
// radius or height of the bounding volume used for tile culling.
//
// Parameters:
//   - lightRange: the range in world units, clamped to zero or more
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithRange(lightRange float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.lightRange = max(lightRange, 0)
	}
}

// WithSpotCone sets the inner and outer cone half-angles of a spot light in degrees.
// Both are clamped to [0, 89] and the inner angle never exceeds the outer one. They are stored
// as cosines, the form the shaders compare against.
//
// Parameters:
//   - innerDeg: angle where the falloff starts
//   - outerDeg: angle where the light reaches zero
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithSpotCone(innerDeg, outerDeg float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.innerCone, l.outerCone = spotCone(innerDeg, outerDeg)
	}
}

// WithEnabled sets whether the light contributes to shading. Disabled lights keep their record
// slot but are skipped by culling.
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.enabled = enabled
	}
}

// WithCastsShadows sets whether the light gets shadow map passes.
func WithCastsShadows(castsShadows bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.castsShadows = castsShadows
	}
}

func unitDirection(v mgl32.Vec3) (mgl32.Vec3, bool) {
	if v.Len() == 0 {
		return mgl32.Vec3{}, false
	}
	return v.Normalize(), true
}

// spotCone converts clamped half-angles in degrees to the cosines of the inner and outer cone.
func spotCone(innerDeg, outerDeg float32) (inner, outer float32) {
	outerDeg = common.Clamp(outerDeg, 0, maxSpotAngle)
	innerDeg = common.Clamp(innerDeg, 0, outerDeg)
	return cosDeg(innerDeg), cosDeg(outerDeg)
}

func cosDeg(deg float32) float32 {
	return float32(math.Cos(float64(deg) * math.Pi / 180))
}
