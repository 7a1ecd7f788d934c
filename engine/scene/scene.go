// Package scene holds the meshes, lights and camera of one view and hands the renderer its
// drawables every frame.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/lighting"
	"github.com/go-gl/mathgl/mgl32"
)

// Lights is the part of the lighting manager a scene forwards its lights to.
// lighting.Manager implements it.
type Lights interface {
	AddLight(l light.Light) (lighting.LightHandle, error)
	UpdateLight(h lighting.LightHandle) error
	RemoveLight(h lighting.LightHandle) error
	SetAmbientColor(c mgl32.Vec3)
}

// Scene manages the mesh nodes and lights of one view together with its camera.
// Scenes can be hot-swapped via the Active flag to switch between different views or levels.
// Thread-safe for concurrent access.
type Scene interface {
	renderer.Scene

	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// AddMesh adds a mesh node and assigns it a scene-unique ID.
	//
	// Parameters:
	//   - node: the node to add
	//
	// Returns:
	//   - uint64: the ID assigned to the node
	AddMesh(node MeshNode) uint64

	// RemoveMesh removes a mesh node. The node's material is not released.
	//
	// Parameters:
	//   - id: the node ID returned by AddMesh
	//
	// Returns:
	//   - bool: whether a node was removed
	RemoveMesh(id uint64) bool

	// Mesh looks up a mesh node.
	//
	// Parameters:
	//   - id: the node ID returned by AddMesh
	//
	// Returns:
	//   - MeshNode: the node
	//   - bool: whether the ID is known
	Mesh(id uint64) (MeshNode, bool)

	// MeshCount returns the number of mesh nodes in the scene.
	MeshCount() int

	// AddLight adds a light to the lighting manager and remembers it as owned by the scene.
	//
	// Parameters:
	//   - l: the light to add
	//
	// Returns:
	//   - lighting.LightHandle: the handle used to update or remove the light
	//   - error: the lighting manager's error; the handle is still valid when it is non-zero
	AddLight(l light.Light) (lighting.LightHandle, error)

	// UpdateLight marks a light as changed so its GPU record is re-uploaded.
	//
	// Parameters:
	//   - h: the light handle
	//
	// Returns:
	//   - error: lighting.ErrUnknownLight if the handle is not known
	UpdateLight(h lighting.LightHandle) error

	// RemoveLight removes a light from the lighting manager.
	//
	// Parameters:
	//   - h: the light handle
	//
	// Returns:
	//   - error: lighting.ErrUnknownLight if the handle is not known
	RemoveLight(h lighting.LightHandle) error

	// LightCount returns the number of lights the scene added and has not removed.
	LightCount() int

	// SetAmbientColor sets the ambient term of the scene's lighting.
	//
	// Parameters:
	//   - c: the linear RGB ambient colour
	SetAmbientColor(c mgl32.Vec3)

	// Update runs the updater of every mesh node in parallel on the scene's worker pool and
	// returns once all of them finished. It also advances the camera's controller.
	//
	// Parameters:
	//   - dt: the time elapsed since the previous update
	Update(dt time.Duration)

	// Clear removes every mesh node and every light the scene added.
	//
	// Returns:
	//   - error: every light removal error joined together
	Clear() error

	// Release clears the scene and stops its worker pool.
	Release()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool
	cam    camera.Camera
	lights Lights

	meshes map[uint64]MeshNode
	nextID uint64
	owned  map[lighting.LightHandle]struct{}

	// updatePool runs node updaters. Workers persist across frames.
	updatePool     worker.DynamicWorkerPool
	computeWorkers int
}

var _ Scene = &scene{}

// NewScene creates a new Scene. The camera and the light sink are required and NewScene panics
// if either is nil.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera to attach
//   - lights: the lighting manager lights are forwarded to
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, lights Lights, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	if lights == nil {
		panic("scene: NewScene requires a non-nil light sink")
	}

	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		active:         true,
		cam:            cam,
		lights:         lights,
		meshes:         make(map[uint64]MeshNode),
		nextID:         1,
		owned:          make(map[lighting.LightHandle]struct{}),
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	s.updatePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, time.Second)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) AddMesh(node MeshNode) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	node.setID(id)
	s.meshes[id] = node
	return id
}

func (s *scene) RemoveMesh(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meshes[id]; !ok {
		return false
	}
	delete(s.meshes, id)
	return true
}

func (s *scene) Mesh(id uint64) (MeshNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.meshes[id]
	return n, ok
}

func (s *scene) MeshCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meshes)
}

// Drawables returns the nodes in ascending ID order so draw submission is stable between frames.
func (s *scene) Drawables() []renderer.Drawable {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.meshes))
	for id := range s.meshes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]renderer.Drawable, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.meshes[id])
	}
	s.mu.RUnlock()
	return out
}

func (s *scene) AddLight(l light.Light) (lighting.LightHandle, error) {
	h, err := s.lights.AddLight(l)
	if h != 0 {
		s.mu.Lock()
		s.owned[h] = struct{}{}
		s.mu.Unlock()
	}
	return h, err
}

func (s *scene) UpdateLight(h lighting.LightHandle) error {
	return s.lights.UpdateLight(h)
}

func (s *scene) RemoveLight(h lighting.LightHandle) error {
	s.mu.Lock()
	delete(s.owned, h)
	s.mu.Unlock()
	return s.lights.RemoveLight(h)
}

func (s *scene) LightCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owned)
}

func (s *scene) SetAmbientColor(c mgl32.Vec3) {
	s.lights.SetAmbientColor(c)
}

func (s *scene) Update(dt time.Duration) {
	s.mu.RLock()
	cam := s.cam
	nodes := make([]MeshNode, 0, len(s.meshes))
	for _, n := range s.meshes {
		if n.hasUpdater() {
			nodes = append(nodes, n)
		}
	}
	s.mu.RUnlock()

	cam.Update()

	// A WaitGroup gives the per-frame barrier; the pool's own Wait blocks until workers idle out.
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		s.updatePool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				n.Update(dt)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (s *scene) Clear() error {
	s.mu.Lock()
	handles := make([]lighting.LightHandle, 0, len(s.owned))
	for h := range s.owned {
		handles = append(handles, h)
	}
	s.owned = make(map[lighting.LightHandle]struct{})
	meshes := len(s.meshes)
	s.meshes = make(map[uint64]MeshNode)
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := s.lights.RemoveLight(h); err != nil {
			errs = append(errs, fmt.Errorf("scene: remove light %d: %w", h, err))
		}
	}
	logger.Logger().Debug("scene cleared",
		slog.String("scene", s.Name()),
		slog.Int("meshes", meshes),
		slog.Int("lights", len(handles)))
	return errors.Join(errs...)
}

func (s *scene) Release() {
	if err := s.Clear(); err != nil {
		logger.Logger().Error("scene release", slog.Any("error", err))
	}
	s.updatePool.Stop()
}
