package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustumFromMatrix extracts frustum planes from a view-projection matrix.
// The matrix should be the combined Projection * View matrix with a [0, 1] clip depth range.
// Uses the Gribb/Hartmann method for plane extraction.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the view-projection matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	var f Frustum

	row := func(i int) mgl32.Vec4 { return viewProj.Row(i) }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	set := func(index int, v mgl32.Vec4) {
		f.Planes[index] = Plane{Normal: v.Vec3(), Distance: v.W()}
	}

	set(FrustumLeft, r3.Add(r0))
	set(FrustumRight, r3.Sub(r0))
	set(FrustumBottom, r3.Add(r1))
	set(FrustumTop, r3.Sub(r1))
	// zero-to-one depth: the near plane is row2 alone
	set(FrustumNear, r2)
	set(FrustumFar, r3.Sub(r2))

	for i := range f.Planes {
		f.normalizePlane(i)
	}

	return f
}

// SignedDistance returns the signed distance from the plane to p. Positive values are on the
// inside of a frustum plane.
func (p Plane) SignedDistance(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

// ContainsPoint reports whether point lies inside all six planes.
func (f Frustum) ContainsPoint(point mgl32.Vec3) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(point) < 0 {
			return false
		}
	}
	return true
}

// IntersectsSphere reports whether the sphere overlaps the frustum.
// The test is conservative: spheres near frustum corners may be reported as visible.
func (f Frustum) IntersectsSphere(s Sphere) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether the box overlaps the frustum, testing the corner furthest
// along each plane normal.
func (f Frustum) IntersectsAABB(b AABB) bool {
	for _, p := range f.Planes {
		var positive mgl32.Vec3
		for i := 0; i < 3; i++ {
			if p.Normal[i] >= 0 {
				positive[i] = b.Max[i]
			} else {
				positive[i] = b.Min[i]
			}
		}
		if p.SignedDistance(positive) < 0 {
			return false
		}
	}
	return true
}

// IntersectsCone reports whether the cone overlaps the frustum. A cone is rejected when, for
// some plane, both its apex and the point of its base rim furthest along the plane normal are
// outside.
func (f Frustum) IntersectsCone(c Cone) bool {
	if !f.IntersectsSphere(c.BoundingSphere()) {
		return false
	}
	baseCenter := c.Apex.Add(c.Direction.Mul(c.Height))
	radius := c.BaseRadius()
	for _, p := range f.Planes {
		perp := p.Normal.Sub(c.Direction.Mul(p.Normal.Dot(c.Direction)))
		furthest := baseCenter
		if l := perp.Len(); l > 1e-6 {
			furthest = baseCenter.Add(perp.Mul(radius / l))
		}
		if p.SignedDistance(c.Apex) < 0 && p.SignedDistance(furthest) < 0 {
			return false
		}
	}
	return true
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	length := float32(math.Sqrt(float64(p.Normal.Dot(p.Normal))))

	if length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
}
