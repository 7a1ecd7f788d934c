// Package light holds the scene light sources, their GPU record layouts and the per-frame storage
// arrays the tiled light culling reads.
package light

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/go-gl/mathgl/mgl32"
)

// LightType selects how a light is shaded and which bounding volume culls it.
type LightType int

const (
	// LightTypeDirectional lights everything along one direction with no falloff. It is never
	// tile culled.
	LightTypeDirectional LightType = iota
	// LightTypePoint falls off with distance out to its range. It is culled as a sphere.
	LightTypePoint
	// LightTypeSpot adds an angular falloff between its inner and outer cone. It is culled as a
	// cone.
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	default:
		return "unknown"
	}
}

type lightImpl struct {
	mu *sync.RWMutex

	lightType    LightType
	position     mgl32.Vec3
	direction    mgl32.Vec3
	color        mgl32.Vec3
	intensity    float32
	lightRange   float32
	innerCone    float32
	outerCone    float32
	enabled      bool
	castsShadows bool
}

// Light is a directional, point or spot light source. Values that do not apply to a light's
// type are stored but ignored.
//
// A Light is safe for concurrent use. Changes reach the GPU only once the scene holding the
// light is told to update its record.
type Light interface {
	Type() LightType

	// Position is the world-space origin of point and spot lights.
	Position() mgl32.Vec3

	// Direction is the unit vector the light travels along. For spot lights it is the cone axis.
	Direction() mgl32.Vec3

	Color() mgl32.Vec3
	Intensity() float32

	// Range is the distance at which point and spot lights reach zero.
	Range() float32

	// InnerCone and OuterCone are the cosines of the spot cone half-angles. InnerCone is never
	// smaller than OuterCone.
	InnerCone() float32
	OuterCone() float32

	// Enabled reports whether the light is shaded. Culling never reports a disabled light.
	Enabled() bool

	// CastsShadows reports whether shadow map passes are drawn for the light each frame.
	CastsShadows() bool

	// BoundingSphere returns the sphere enclosing the lit volume of a point or spot light.
	// Directional lights return a zero sphere.
	//
	// Returns:
	//   - common.Sphere: the bounding sphere
	BoundingSphere() common.Sphere

	// BoundingCone returns the cone enclosing the lit volume of a spot light.
	//
	// Returns:
	//   - common.Cone: apex at the position, opening along the direction for Range units
	BoundingCone() common.Cone

	// SetPosition moves the light. Directional lights ignore it.
	SetPosition(x, y, z float32)

	// SetDirection points the light along the normalized vector. A zero vector is ignored.
	SetDirection(x, y, z float32)

	SetColor(r, g, b float32)

	// SetIntensity sets the colour multiplier, clamped to zero or more.
	SetIntensity(intensity float32)

	// SetRange sets the falloff distance, clamped to zero or more. The bounding sphere and cone
	// follow it.
	SetRange(lightRange float32)

	// SetSpotCone sets the cone half-angles in degrees with the same clamping as WithSpotCone.
	SetSpotCone(innerDeg, outerDeg float32)

	SetEnabled(enabled bool)
	SetCastsShadows(castsShadows bool)
}

var _ Light = &lightImpl{}

// NewLight returns an enabled white light of unit intensity and range 10 pointing straight
// down, with a 25 to 35 degree spot cone, then applies opts.
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:         &sync.RWMutex{},
		lightType:  lightType,
		direction:  mgl32.Vec3{0, -1, 0},
		color:      mgl32.Vec3{1, 1, 1},
		intensity:  1.0,
		lightRange: 10.0,
		innerCone:  cosDeg(25),
		outerCone:  cosDeg(35),
		enabled:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Position() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

func (l *lightImpl) Direction() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.direction
}

func (l *lightImpl) Color() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intensity
}

func (l *lightImpl) Range() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lightRange
}

func (l *lightImpl) InnerCone() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.innerCone
}

func (l *lightImpl) OuterCone() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.outerCone
}

func (l *lightImpl) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.castsShadows
}

func (l *lightImpl) BoundingSphere() common.Sphere {
	switch l.lightType {
	case LightTypePoint:
		l.mu.RLock()
		defer l.mu.RUnlock()
		return common.Sphere{Center: l.position, Radius: l.lightRange}
	case LightTypeSpot:
		return l.BoundingCone().BoundingSphere()
	default:
		return common.Sphere{}
	}
}

func (l *lightImpl) BoundingCone() common.Cone {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cos := common.Clamp(l.outerCone, -1, 1)
	return common.Cone{
		Apex:      l.position,
		Direction: l.direction,
		Height:    l.lightRange,
		Angle:     float32(math.Acos(float64(cos))),
	}
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = mgl32.Vec3{x, y, z}
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := unitDirection(mgl32.Vec3{x, y, z}); ok {
		l.direction = d
	}
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = mgl32.Vec3{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intensity = max(intensity, 0)
}

func (l *lightImpl) SetRange(lightRange float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightRange = max(lightRange, 0)
}

func (l *lightImpl) SetSpotCone(innerDeg, outerDeg float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.innerCone, l.outerCone = spotCone(innerDeg, outerDeg)
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.castsShadows = castsShadows
}
