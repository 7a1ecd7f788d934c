package light

import (
	"math"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ShadowMapResolution is the width and height in texels of every shadow depth texture.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the orthographic half-extent (in world units) used for the
// directional light shadow frustum around the focus point.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the near plane of every shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the far plane of the directional light's orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// pointShadowFaces are the cube map face directions and up vectors in +X, -X, +Y, -Y, +Z, -Z order.
var pointShadowFaces = [6][2]mgl32.Vec3{
	{{1, 0, 0}, {0, -1, 0}},
	{{-1, 0, 0}, {0, -1, 0}},
	{{0, 1, 0}, {0, 0, 1}},
	{{0, -1, 0}, {0, 0, -1}},
	{{0, 0, 1}, {0, -1, 0}},
	{{0, 0, -1}, {0, -1, 0}},
}

// ShadowCaster is a light with the view-projections of the shadow passes rendered for it this
// frame: one for directional and spot lights, six cube faces for point lights.
type ShadowCaster struct {
	Light           Light
	ViewProjections []mgl32.Mat4

	// FarPlane is the far distance of the projections, used for point-light distance depth.
	FarPlane float32
}

// NewShadowCaster computes the shadow view-projections of a light.
//
// Parameters:
//   - l: the light
//   - focus: the world-space point a directional shadow frustum is centered on
//
// Returns:
//   - ShadowCaster: the caster with one or six view-projections
func NewShadowCaster(l Light, focus mgl32.Vec3) ShadowCaster {
	switch l.Type() {
	case LightTypeDirectional:
		dir := l.Direction()
		eye := focus.Sub(dir.Mul(DefaultShadowFar / 2))
		view := mgl32.LookAtV(eye, focus, upFor(dir))
		h := DefaultShadowHalfExtent
		proj := common.OrthoZO(-h, h, -h, h, DefaultShadowNear, DefaultShadowFar)
		return ShadowCaster{Light: l, ViewProjections: []mgl32.Mat4{proj.Mul4(view)}, FarPlane: DefaultShadowFar}

	case LightTypeSpot:
		pos, dir, far := l.Position(), l.Direction(), l.Range()
		view := mgl32.LookAtV(pos, pos.Add(dir), upFor(dir))
		fov := 2 * float32(math.Acos(float64(common.Clamp(l.OuterCone(), -1, 1))))
		proj := common.PerspectiveZO(common.Clamp(fov, 0.01, math.Pi-0.01), 1, DefaultShadowNear, far)
		return ShadowCaster{Light: l, ViewProjections: []mgl32.Mat4{proj.Mul4(view)}, FarPlane: far}

	default:
		pos, far := l.Position(), l.Range()
		proj := common.PerspectiveZO(math.Pi/2, 1, DefaultShadowNear, far)
		vps := make([]mgl32.Mat4, 0, len(pointShadowFaces))
		for _, face := range pointShadowFaces {
			view := mgl32.LookAtV(pos, pos.Add(face[0]), face[1])
			vps = append(vps, proj.Mul4(view))
		}
		return ShadowCaster{Light: l, ViewProjections: vps, FarPlane: far}
	}
}

// upFor returns an up vector that is not parallel to dir.
func upFor(dir mgl32.Vec3) mgl32.Vec3 {
	if math.Abs(float64(dir.Y())) > 0.99 {
		return mgl32.Vec3{0, 0, 1}
	}
	return mgl32.Vec3{0, 1, 0}
}
