package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix              mgl32.Mat4
	projectionMatrix        mgl32.Mat4
	viewProjectionMatrix    mgl32.Mat4
	inverseProjectionMatrix mgl32.Mat4

	// projectionChanged is set whenever the projection is rebuilt and cleared by Snapshot.
	projectionChanged bool

	controller CameraController
}

// Snapshot is a consistent copy of the camera state taken once per frame.
type Snapshot struct {
	Position          mgl32.Vec3
	Near, Far         float32
	View              mgl32.Mat4
	Projection        mgl32.Mat4
	ViewProjection    mgl32.Mat4
	InverseProjection mgl32.Mat4

	// ProjectionChanged reports whether the projection changed since the previous snapshot.
	ProjectionChanged bool
}

// Frustum returns the world-space view frustum of the snapshot.
func (s Snapshot) Frustum() common.Frustum {
	return common.ExtractFrustumFromMatrix(s.ViewProjection)
}

// FrameConstants returns the GPU frame-constant block of the snapshot.
//
// Parameters:
//   - resolution: the render target size in pixels
//
// Returns:
//   - GPUFrameConstants: the block ready for upload
func (s Snapshot) FrameConstants(resolution [2]uint32) GPUFrameConstants {
	return GPUFrameConstants{
		View:              s.View,
		Projection:        s.Projection,
		ViewProjection:    s.ViewProjection,
		InverseProjection: s.InverseProjection,
		CameraPosition:    s.Position,
		Near:              s.Near,
		Resolution:        [2]float32{float32(resolution[0]), float32(resolution[1])},
		Far:               s.Far,
	}
}

// Camera is a perspective camera with a [0, 1] depth range. Every setter rebuilds the affected
// matrices, so reads always see a consistent state. A Camera is safe for concurrent use.
type Camera interface {
	Position() mgl32.Vec3
	Target() mgl32.Vec3
	Up() mgl32.Vec3

	// Fov is the vertical field of view in radians.
	Fov() float32
	// Aspect is width over height.
	Aspect() float32
	Near() float32
	Far() float32

	ViewMatrix() mgl32.Mat4
	ProjectionMatrix() mgl32.Mat4
	ViewProjectionMatrix() mgl32.Mat4

	// InverseProjectionMatrix maps clip space back to view space. The tile frustum grid builds
	// its planes from it.
	InverseProjectionMatrix() mgl32.Mat4

	// Frustum returns the six normalized world-space planes used to cull meshes.
	Frustum() common.Frustum

	// Snapshot copies the state one frame renders with and clears the projection-changed flag,
	// so exactly one frame sees each projection change.
	//
	// Returns:
	//   - Snapshot: the frame's camera state
	Snapshot() Snapshot

	// Controller returns the attached orbit controller, or nil.
	Controller() CameraController

	// Update pulls position and target from the controller. Without a controller it does
	// nothing.
	Update()

	SetPosition(x, y, z float32)
	SetTarget(x, y, z float32)
	SetUp(x, y, z float32)

	// SetFov, SetAspect, SetNear and SetFar rebuild the projection and mark it changed for the
	// next Snapshot.
	SetFov(fov float32)
	SetAspect(aspect float32)
	SetNear(near float32)
	SetFar(far float32)

	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera at (0, 0, 5) looking at the origin with a 45 degree field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: mgl32.Vec3{0, 0, 5},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      45.0 * (math.Pi / 180.0),
		aspect:   1.0,
		near:     0.1,
		far:      100.0,
	}
	for _, option := range options {
		option(c)
	}
	if c.far <= c.near {
		c.far = c.near * 1000
	}
	if c.controller != nil {
		c.position, c.target = c.controller.Position(), c.controller.Target()
	}
	c.updateProjection()
	c.updateView()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.ExtractFrustumFromMatrix(c.viewProjectionMatrix)
}

func (c *cameraImpl) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Position:          c.position,
		Near:              c.near,
		Far:               c.far,
		View:              c.viewMatrix,
		Projection:        c.projectionMatrix,
		ViewProjection:    c.viewProjectionMatrix,
		InverseProjection: c.inverseProjectionMatrix,
		ProjectionChanged: c.projectionChanged,
	}
	c.projectionChanged = false
	return s
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.position, c.target = c.controller.Position(), c.controller.Target()
	c.updateView()
}

func (c *cameraImpl) SetPosition(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = mgl32.Vec3{x, y, z}
	c.updateView()
}

func (c *cameraImpl) SetTarget(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = mgl32.Vec3{x, y, z}
	c.updateView()
}

func (c *cameraImpl) SetUp(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = mgl32.Vec3{x, y, z}
	c.updateView()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateProjection()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect == c.aspect {
		return
	}
	c.aspect = aspect
	c.updateProjection()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateProjection()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateProjection()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

// updateView recomputes the view and view-projection matrices. Caller must hold the mutex.
func (c *cameraImpl) updateView() {
	c.viewMatrix = mgl32.LookAtV(c.position, c.target, c.up)
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
}

// updateProjection recomputes the projection matrices and flags the change. Caller must hold the
// mutex.
func (c *cameraImpl) updateProjection() {
	c.projectionMatrix = common.PerspectiveZO(c.fov, c.aspect, c.near, c.far)
	c.inverseProjectionMatrix = c.projectionMatrix.Inv()
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.projectionChanged = true
}
