package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Cone is the bounding volume of a spot light: an apex, a unit direction, a height along that
// direction and the half angle of the opening in radians.
type Cone struct {
	Apex      mgl32.Vec3
	Direction mgl32.Vec3
	Height    float32
	Angle     float32
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half size of the box along each axis.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Transform returns the world-space AABB enclosing this box after applying m.
// Uses Arvo's method so the result stays tight for rotations without transforming all 8 corners.
//
// Parameters:
//   - m: the world matrix
//
// Returns:
//   - AABB: the enclosing box in the destination space
func (b AABB) Transform(m mgl32.Mat4) AABB {
	translation := m.Col(3).Vec3()
	out := AABB{Min: translation, Max: translation}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e := m.At(i, j)
			lo := e * b.Min[j]
			hi := e * b.Max[j]
			if lo > hi {
				lo, hi = hi, lo
			}
			out.Min[i] += lo
			out.Max[i] += hi
		}
	}
	return out
}

// BoundingSphere returns the smallest sphere enclosing the cone.
func (c Cone) BoundingSphere() Sphere {
	cos := float32(math.Cos(float64(c.Angle)))
	if c.Angle > math.Pi/4 {
		sin := float32(math.Sin(float64(c.Angle)))
		return Sphere{
			Center: c.Apex.Add(c.Direction.Mul(cos * c.Height)),
			Radius: sin * c.Height,
		}
	}
	r := c.Height / (2 * cos)
	return Sphere{Center: c.Apex.Add(c.Direction.Mul(r)), Radius: r}
}

// BaseRadius returns the radius of the cone's base disc.
func (c Cone) BaseRadius() float32 {
	return c.Height * float32(math.Tan(float64(c.Angle)))
}
