package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestProjectionChangedIsConsumedBySnapshot(t *testing.T) {
	c := NewCamera()
	if !c.Snapshot().ProjectionChanged {
		t.Error("first Snapshot() should report the initial projection")
	}
	if c.Snapshot().ProjectionChanged {
		t.Error("second Snapshot() should not report a change")
	}
	c.SetPosition(1, 2, 3)
	if c.Snapshot().ProjectionChanged {
		t.Error("moving the camera should not change the projection")
	}
	c.SetAspect(16.0 / 9.0)
	if !c.Snapshot().ProjectionChanged {
		t.Error("SetAspect() should report a projection change")
	}
	c.SetAspect(16.0 / 9.0)
	if c.Snapshot().ProjectionChanged {
		t.Error("setting the same aspect should not report a change")
	}
}

func TestFrustumFollowsView(t *testing.T) {
	c := NewCamera(WithPosition(0, 0, 10), WithTarget(0, 0, 0), WithFar(50))
	f := c.Frustum()
	tests := []struct {
		point mgl32.Vec3
		want  bool
	}{
		{mgl32.Vec3{0, 0, 0}, true},
		{mgl32.Vec3{0, 0, 20}, false},
		{mgl32.Vec3{0, 0, -45}, false},
		{mgl32.Vec3{100, 0, 0}, false},
	}
	for _, tt := range tests {
		if got := f.ContainsPoint(tt.point); got != tt.want {
			t.Errorf("ContainsPoint(%v) = %v, want %v", tt.point, got, tt.want)
		}
	}
}

func TestInverseProjection(t *testing.T) {
	c := NewCamera(WithAspect(1.5))
	got := c.ProjectionMatrix().Mul4(c.InverseProjectionMatrix())
	if !nearMat4(got, mgl32.Ident4(), 1e-4) {
		t.Errorf("projection * inverse = %v, want identity", got)
	}
}

// nearMat4 compares element-wise with an absolute tolerance, which holds for zero entries too.
func nearMat4(a, b mgl32.Mat4, tol float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) >= float64(tol) {
			return false
		}
	}
	return true
}

func TestControllerDrivesCamera(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10), WithElevation(0), WithAzimuth(0))
	c := NewCamera(WithController(ctrl))
	if p := c.Position(); p.Sub(mgl32.Vec3{0, 0, 10}).Len() >= 1e-4 {
		t.Errorf("Position() = %v, want (0,0,10)", p)
	}

	ctrl.Orbit(math.Pi/2, 0)
	c.Update()
	if p := c.Position(); p.Sub(mgl32.Vec3{10, 0, 0}).Len() >= 1e-4 {
		t.Errorf("Position() after orbit = %v, want (10,0,0)", p)
	}

	ctrl.Orbit(0, 10)
	if e := ctrl.Elevation(); e >= math.Pi/2 {
		t.Errorf("Elevation() = %v, want clamped below pi/2", e)
	}
	ctrl.Zoom(100)
	if r := ctrl.Radius(); r != 1 {
		t.Errorf("Radius() = %v, want clamped to 1", r)
	}
}

func TestFrameConstantsLayout(t *testing.T) {
	c := NewCamera(WithPosition(1, 2, 3), WithNear(0.5), WithFar(80))
	fc := c.Snapshot().FrameConstants([2]uint32{1920, 1080})
	if fc.Size() != 288 {
		t.Fatalf("Size() = %d, want 288", fc.Size())
	}
	buf := fc.Marshal()
	floatAt := func(off int) float32 {
		return math.Float32frombits(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24)
	}
	checks := []struct {
		offset int
		want   float32
	}{
		{256, 1}, {264, 3}, {268, 0.5}, {272, 1920}, {276, 1080}, {280, 80},
	}
	for _, ch := range checks {
		if got := floatAt(ch.offset); got != ch.want {
			t.Errorf("float at %d = %v, want %v", ch.offset, got, ch.want)
		}
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		opts []CameraBuilderOption
		near float32
		far  float32
	}{
		{"defaults", nil, 0.1, 100},
		{"non-positive near", []CameraBuilderOption{WithNear(0), WithFar(-1)}, 0.1, 100},
		{"far before near", []CameraBuilderOption{WithNear(2), WithFar(1)}, 2, 2000},
		{"valid", []CameraBuilderOption{WithNear(0.5), WithFar(80)}, 0.5, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCamera(tt.opts...)
			if c.Near() != tt.near || c.Far() != tt.far {
				t.Errorf("near, far = %v, %v, want %v, %v", c.Near(), c.Far(), tt.near, tt.far)
			}
		})
	}

	c := NewCamera(WithFov(4), WithAspect(-1), WithUp(0, 0, 0))
	if got := c.Fov(); math.Abs(float64(got)-math.Pi/4) > 1e-6 {
		t.Errorf("Fov() = %v, want the 45 degree default", got)
	}
	if c.Aspect() != 1 {
		t.Errorf("Aspect() = %v, want 1", c.Aspect())
	}
	if c.Up() != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("Up() = %v, want +Y", c.Up())
	}
}
