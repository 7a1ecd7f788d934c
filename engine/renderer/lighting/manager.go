// Package lighting owns the GPU side of the scene lights: the per-kind light arrays, the
// general-lighting constants, and the two compute passes of tiled light culling.
package lighting

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/compute"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnknownLight is returned for a handle that was never returned by AddLight or was removed.
var ErrUnknownLight = errors.New("lighting: unknown light")

// Binding names shared with the lighting shaders.
const (
	BindingGeneralLighting = "general_lighting"
	BindingFrameConstants  = "frame_constants"
	BindingVisibleIndices  = "visible_indices"
	BindingDepthTexture    = "depth_texture"
	BindingGridParams      = "grid_params"
	BindingTileFrustums    = "tile_frustums"
	BindingLightGrid       = "light_grid"
	BindingLightIndexList  = "light_index_list"
	BindingIndexCounter    = "index_counter"
)

// LightHandle identifies a light added to a Manager.
type LightHandle uint64

type trackedLight struct {
	light light.Light
	entry *kindEntry
	index int
}

// Manager is the shader resource manager of the scene lights. It keeps the light arrays and the
// general-lighting constants of every frame slot on the GPU, builds the tile frustum grid, and
// schedules light culling after the depth pre-pass. It also listens to the pipeline manager so
// every graphics pipeline declaring general_lighting gets it bound.
type Manager interface {
	pipeline.PipelineResourceListener

	// AddLight starts tracking a light and stores its record in the array of its kind. The array
	// grows when it is full; growing pauses rendering, so AddLight must not be called while the
	// render-resources lock is held.
	//
	// Parameters:
	//   - l: the light to add
	//
	// Returns:
	//   - LightHandle: the handle used to update or remove the light
	//   - error: an error if the record could not be stored. A light stored before a failed resize
	//     callback is still tracked and its handle is returned with the error.
	AddLight(l light.Light) (LightHandle, error)

	// UpdateLight re-reads the light's state into its record.
	//
	// Parameters:
	//   - h: the handle returned by AddLight
	//
	// Returns:
	//   - error: ErrUnknownLight if the handle is not tracked
	UpdateLight(h LightHandle) error

	// RemoveLight stops tracking a light and frees its record slot.
	//
	// Parameters:
	//   - h: the handle returned by AddLight
	//
	// Returns:
	//   - error: ErrUnknownLight if the handle is not tracked
	RemoveLight(h LightHandle) error

	// Light returns the light behind a handle.
	Light(h LightHandle) (light.Light, bool)

	// LightCount returns the number of tracked lights.
	LightCount() int

	// SetAmbientColor sets the ambient term of the general-lighting constants.
	SetAmbientColor(c mgl32.Vec3)

	// RecalculateLightTileFrustums rebuilds the tile frustum grid for a resolution and projection.
	// The compute interfaces are created the first time the shader registry is ready; until then
	// the request stays pending and RecalculationPending reports true. Tile buffers are
	// reallocated only when the tile count changes.
	//
	// Parameters:
	//   - resolution: the render target size in pixels
	//   - inverseProjection: the inverse of the camera projection
	//
	// Returns:
	//   - error: an error if an interface or buffer could not be created
	RecalculateLightTileFrustums(resolution [2]uint32, inverseProjection mgl32.Mat4) error

	// RecalculationPending reports whether a tile frustum rebuild is waiting for the shaders.
	RecalculationPending() bool

	// UpdateResources uploads every light record and general-lighting constant the frame slot
	// has not seen yet.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//
	// Returns:
	//   - error: the device error of a failed upload
	UpdateResources(frame int) error

	// PrepareLightCulling binds the frame's resources to the light culling shader, resets the
	// index counters and queues the culling dispatch. It does nothing until the tile grid exists.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - depth: the depth pre-pass target
	//   - frameConstants: the frame's constant buffer
	//
	// Returns:
	//   - error: a binding, upload or submission error
	PrepareLightCulling(frame int, depth gpu.Texture, frameConstants gpu.Buffer) error

	// CullLights tests every enabled light against the camera frustum and writes the visible
	// indices of the frame slot. Point lights are tested as spheres and spot lights as cones;
	// directional lights are always visible.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - frustum: the camera frustum of the frame
	//
	// Returns:
	//   - error: the device error of a failed upload
	CullLights(frame int, frustum common.Frustum) error

	// Visible returns the visible slot indices of a light kind for a frame, as of CullLights.
	Visible(frame int, kind light.LightType) []uint32

	// BindLightingToPipeline binds the light arrays, the light grid and the index lists of a frame
	// to a colour pass pipeline. Names the pipeline does not declare are skipped.
	//
	// Parameters:
	//   - p: the pipeline
	//   - frame: the frame-in-flight index
	//
	// Returns:
	//   - error: the pipeline's binding error
	BindLightingToPipeline(p pipeline.Pipeline, frame int) error

	// ShadowCasters returns the shadow projections of every enabled light casting shadows, in the
	// order the lights were added.
	//
	// Parameters:
	//   - focus: the world-space point directional shadows are centred on
	//
	// Returns:
	//   - []light.ShadowCaster: the casters
	ShadowCasters(focus mgl32.Vec3) []light.ShadowCaster

	// TileCount returns the tile grid dimensions, zero before the first rebuild.
	TileCount() [2]uint32

	// GeneralLighting returns the general-lighting constants of a frame slot.
	GeneralLighting(frame int) light.GPUGeneralLighting

	// GeneralLightingBuffer returns the general-lighting uniform buffer of a frame slot.
	GeneralLightingBuffer(frame int) gpu.Buffer

	// LightGrid returns the light grid buffer, nil before the first rebuild.
	LightGrid() gpu.Buffer

	// LightIndexList returns the light index list buffer, nil before the first rebuild.
	LightIndexList() gpu.Buffer

	// Release frees every buffer and compute interface and stops listening to the pipeline manager.
	Release()
}

var _ Manager = &manager{}

type manager struct {
	mu *sync.Mutex

	device     gpu.Device
	pipelines  pipeline.Manager
	shaders    shader.Registry
	frames     compute.FrameIndexer
	renderLock sync.Locker

	initialCapacity int

	kinds  []*kindEntry
	byType map[light.LightType]*kindEntry
	lights map[LightHandle]*trackedLight
	next   LightHandle

	general        []light.GPUGeneralLighting
	generalDirty   []bool
	generalBuffers []gpu.Buffer
	visibleBuffers []gpu.Buffer

	gridParams     gpu.Buffer
	indexCounter   gpu.Buffer
	tileFrustums   gpu.Buffer
	lightGrid      gpu.Buffer
	lightIndexList gpu.Buffer

	tiles   [2]uint32
	pending bool

	frustumGrid compute.ComputeShaderInterface
	culling     compute.ComputeShaderInterface
}

// NewManager creates the light arrays and constant buffers and registers the manager as a resource
// listener of the pipeline manager.
//
// Parameters:
//   - device: the device that owns the buffers
//   - pipelines: the pipeline manager the compute interfaces are created from
//   - shaders: the registry holding the lighting shaders
//   - frames: the source of the frame-in-flight index being prepared
//   - opts: optional settings
//
// Returns:
//   - Manager: the manager
//   - error: an error if a buffer could not be created
func NewManager(device gpu.Device, pipelines pipeline.Manager, shaders shader.Registry, frames compute.FrameIndexer, opts ...ManagerBuilderOption) (Manager, error) {
	n := device.FramesInFlight()
	m := &manager{
		mu:              &sync.Mutex{},
		device:          device,
		pipelines:       pipelines,
		shaders:         shaders,
		frames:          frames,
		renderLock:      &sync.Mutex{},
		initialCapacity: 16,
		byType:          make(map[light.LightType]*kindEntry),
		lights:          make(map[LightHandle]*trackedLight),
		general:         make([]light.GPUGeneralLighting, n),
		generalDirty:    make([]bool, n),
		generalBuffers:  make([]gpu.Buffer, n),
		visibleBuffers:  make([]gpu.Buffer, n),
	}
	for _, opt := range opts {
		opt(m)
	}

	kinds, err := newKindTable(m)
	if err != nil {
		return nil, err
	}
	m.kinds = kinds
	for _, e := range kinds {
		m.byType[e.kind] = e
	}

	if err := m.createBuffers(); err != nil {
		m.Release()
		return nil, err
	}
	for f := range m.general {
		m.general[f].LightsPerTile = light.AverageLightsPerTile
		m.setCapacitiesLocked(f)
		if err := m.writeGeneralLocked(f); err != nil {
			m.Release()
			return nil, err
		}
	}
	pipelines.AddResourceListener(m)
	return m, nil
}

func (m *manager) createBuffers() error {
	var err error
	for f := range m.generalBuffers {
		m.generalBuffers[f], err = m.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "general lighting " + strconv.Itoa(f),
			Size:  uint64(light.GPUGeneralLighting{}.Size()),
			Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("lighting: general lighting buffer: %w", err)
		}
	}
	if err := m.allocateVisibleLocked(); err != nil {
		return err
	}
	m.gridParams, err = m.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "light grid params",
		Size:  80,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("lighting: grid params buffer: %w", err)
	}
	m.indexCounter, err = m.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "light index counter",
		Size:  8,
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("lighting: index counter buffer: %w", err)
	}
	return nil
}

// allocateVisibleLocked sizes the packed visible-index buffers to hold every slot of every kind.
func (m *manager) allocateVisibleLocked() error {
	slots := 0
	for _, e := range m.kinds {
		slots += e.capacity()
	}
	size := uint64(max(slots, 1) * 4)
	for f, old := range m.visibleBuffers {
		if old != nil && old.Size() == size {
			continue
		}
		b, err := m.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "visible light indices " + strconv.Itoa(f),
			Size:  size,
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("lighting: visible index buffer: %w", err)
		}
		if old != nil {
			old.Release()
		}
		m.visibleBuffers[f] = b
	}
	return nil
}

func (m *manager) setCapacitiesLocked(frame int) {
	g := &m.general[frame]
	g.PointCount = uint32(m.byType[light.LightTypePoint].capacity())
	g.SpotCount = uint32(m.byType[light.LightTypeSpot].capacity())
	g.DirectionalCount = uint32(m.byType[light.LightTypeDirectional].capacity())
}

func (m *manager) writeGeneralLocked(frame int) error {
	if err := m.device.WriteBuffer(m.generalBuffers[frame], 0, m.general[frame].Marshal()); err != nil {
		return fmt.Errorf("lighting: general lighting for frame %d: %w", frame, err)
	}
	m.generalDirty[frame] = false
	return nil
}

func (m *manager) markGeneralDirtyLocked() {
	for f := range m.generalDirty {
		m.generalDirty[f] = true
	}
}

// resize returns the growth callback of a kind's array. It runs without the array lock.
func (m *manager) resize(kind light.LightType) light.ResizeFunc {
	return func(capacity int) error {
		m.renderLock.Lock()
		defer m.renderLock.Unlock()
		if err := m.device.WaitIdle(); err != nil {
			return fmt.Errorf("lighting: waiting for idle before %s resize: %w", kind, err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if err := m.allocateVisibleLocked(); err != nil {
			return err
		}
		var errs []error
		for f := range m.general {
			m.setCapacitiesLocked(f)
			errs = append(errs, m.writeGeneralLocked(f))
		}
		errs = append(errs, m.rebindArraysLocked())
		logger.Logger().Debug("light buffers resized",
			slog.String("kind", kind.String()),
			slog.Int("capacity", capacity))
		return errors.Join(errs...)
	}
}

// rebindArraysLocked points the culling shader and every graphics pipeline at the current array
// and visible-index buffers. Their previous buffers are released right after a resize.
func (m *manager) rebindArraysLocked() error {
	var errs []error
	if m.culling != nil {
		for f := range m.general {
			for _, e := range m.kinds {
				errs = append(errs, m.culling.BindResourceToFrame(f, e.buffer(f), e.binding, compute.UsageReadOnlyArrayBuffer))
			}
			errs = append(errs, m.culling.BindResourceToFrame(f, m.visibleBuffers[f], BindingVisibleIndices, compute.UsageReadOnlyArrayBuffer))
		}
	}
	for _, p := range m.pipelines.GraphicsPipelines() {
		for f := range m.general {
			for _, e := range m.kinds {
				errs = append(errs, bindIfDeclared(p, f, e.binding, e.buffer(f)))
			}
		}
	}
	return errors.Join(errs...)
}

func bindIfDeclared(p pipeline.Pipeline, frame int, name string, r gpu.Resource) error {
	if _, ok := p.Binding(name); !ok || r == nil {
		return nil
	}
	return p.BindResource(frame, name, r)
}

func (m *manager) AddLight(l light.Light) (LightHandle, error) {
	e, ok := m.byType[l.Type()]
	if !ok {
		return 0, fmt.Errorf("lighting: unsupported light type %s", l.Type())
	}
	index, err := e.add(l)
	if index < 0 {
		return 0, err
	}

	m.mu.Lock()
	m.next++
	h := m.next
	m.lights[h] = &trackedLight{light: l, entry: e, index: index}
	m.mu.Unlock()
	return h, err
}

func (m *manager) UpdateLight(h LightHandle) error {
	m.mu.Lock()
	t, ok := m.lights[h]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLight, h)
	}
	return t.entry.set(t.index, t.light)
}

func (m *manager) RemoveLight(h LightHandle) error {
	m.mu.Lock()
	t, ok := m.lights[h]
	delete(m.lights, h)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLight, h)
	}
	return t.entry.remove(t.index)
}

func (m *manager) Light(h LightHandle) (light.Light, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lights[h]
	if !ok {
		return nil, false
	}
	return t.light, true
}

func (m *manager) LightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lights)
}

func (m *manager) SetAmbientColor(c mgl32.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for f := range m.general {
		m.general[f].Ambient = c
	}
	m.markGeneralDirtyLocked()
}

func (m *manager) RecalculateLightTileFrustums(resolution [2]uint32, inverseProjection mgl32.Mat4) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = true

	if err := m.ensureInterfacesLocked(); err != nil {
		return err
	}
	if m.frustumGrid == nil {
		return nil
	}

	tiles := light.TileCounts(int(resolution[0]), int(resolution[1]))
	if tiles != m.tiles || m.tileFrustums == nil {
		if err := m.allocateTilesLocked(tiles); err != nil {
			return err
		}
	}
	params := gpuGridParams{
		InverseProjection: inverseProjection,
		Resolution:        [2]float32{float32(resolution[0]), float32(resolution[1])},
		TileCount:         tiles,
	}
	if err := m.device.WriteBuffer(m.gridParams, 0, params.Marshal()); err != nil {
		return fmt.Errorf("lighting: grid params: %w", err)
	}
	groups := m.frustumGrid.DispatchSize([3]uint32{tiles[0], tiles[1], 1})
	if err := m.frustumGrid.SubmitForExecution(groups[0], groups[1], groups[2]); err != nil {
		return fmt.Errorf("lighting: frustum grid: %w", err)
	}
	m.pending = false
	return nil
}

// ensureInterfacesLocked creates both compute interfaces once the shader registry is ready.
func (m *manager) ensureInterfacesLocked() error {
	if m.culling != nil || !m.shaders.Ready() {
		return nil
	}
	grid, err := compute.NewComputeShaderInterface(m.pipelines, m.frames, FrustumGridShader,
		compute.WithExecutionGroup(0))
	if err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	culling, err := compute.NewComputeShaderInterface(m.pipelines, m.frames, LightCullingShader,
		compute.WithExecutionGroup(1))
	if err != nil {
		grid.Release()
		return fmt.Errorf("lighting: %w", err)
	}
	if err := grid.BindResource(m.gridParams, BindingGridParams, compute.UsageConstantBuffer, false); err != nil {
		grid.Release()
		culling.Release()
		return fmt.Errorf("lighting: %w", err)
	}
	if err := culling.BindResource(m.indexCounter, BindingIndexCounter, compute.UsageReadWriteArrayBuffer, false); err != nil {
		grid.Release()
		culling.Release()
		return fmt.Errorf("lighting: %w", err)
	}
	m.frustumGrid, m.culling = grid, culling
	logger.Logger().Debug("light culling interfaces created")
	return nil
}

// allocateTilesLocked replaces the buffers sized by the tile count.
func (m *manager) allocateTilesLocked(tiles [2]uint32) error {
	n := uint64(tiles[0]) * uint64(tiles[1])
	specs := []struct {
		label string
		size  uint64
	}{
		{"light tile frustums", n * uint64(light.GPUTileFrustum{}.Size())},
		{"light grid", n * gridEntryWords * 4},
		{"light index list", n * light.AverageLightsPerTile * 2 * 4},
	}
	created := make([]gpu.Buffer, 0, len(specs))
	for _, s := range specs {
		b, err := m.device.CreateBuffer(gpu.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			for _, c := range created {
				c.Release()
			}
			return fmt.Errorf("lighting: %s buffer: %w", s.label, err)
		}
		created = append(created, b)
	}

	if m.tileFrustums != nil {
		if err := m.device.WaitIdle(); err != nil {
			for _, c := range created {
				c.Release()
			}
			return fmt.Errorf("lighting: waiting for idle before tile reallocation: %w", err)
		}
		m.tileFrustums.Release()
		m.lightGrid.Release()
		m.lightIndexList.Release()
	}
	m.tileFrustums, m.lightGrid, m.lightIndexList = created[0], created[1], created[2]
	m.tiles = tiles
	for f := range m.general {
		m.general[f].TileCount = tiles
	}
	m.markGeneralDirtyLocked()

	binds := []struct {
		iface compute.ComputeShaderInterface
		r     gpu.Buffer
		name  string
		usage compute.ResourceUsage
	}{
		{m.frustumGrid, m.tileFrustums, BindingTileFrustums, compute.UsageReadWriteArrayBuffer},
		{m.culling, m.tileFrustums, BindingTileFrustums, compute.UsageReadOnlyArrayBuffer},
		{m.culling, m.lightGrid, BindingLightGrid, compute.UsageReadWriteArrayBuffer},
		{m.culling, m.lightIndexList, BindingLightIndexList, compute.UsageReadWriteArrayBuffer},
	}
	for _, b := range binds {
		if err := b.iface.BindResource(b.r, b.name, b.usage, false); err != nil {
			return fmt.Errorf("lighting: %w", err)
		}
	}
	logger.Logger().Debug("light tile buffers allocated",
		slog.Int("tiles_x", int(tiles[0])),
		slog.Int("tiles_y", int(tiles[1])))
	return nil
}

func (m *manager) RecalculationPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *manager) UpdateResources(frame int) error {
	for _, e := range m.kinds {
		if err := e.upload(frame); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.generalDirty[frame] {
		return nil
	}
	return m.writeGeneralLocked(frame)
}

func (m *manager) PrepareLightCulling(frame int, depth gpu.Texture, frameConstants gpu.Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.culling == nil || m.tileFrustums == nil {
		return nil
	}

	binds := []struct {
		r     gpu.Resource
		name  string
		usage compute.ResourceUsage
	}{
		{frameConstants, BindingFrameConstants, compute.UsageConstantBuffer},
		{m.generalBuffers[frame], BindingGeneralLighting, compute.UsageConstantBuffer},
		{m.visibleBuffers[frame], BindingVisibleIndices, compute.UsageReadOnlyArrayBuffer},
		{depth, BindingDepthTexture, compute.UsageReadOnlyTexture},
	}
	for _, e := range m.kinds {
		binds = append(binds, struct {
			r     gpu.Resource
			name  string
			usage compute.ResourceUsage
		}{e.buffer(frame), e.binding, compute.UsageReadOnlyArrayBuffer})
	}
	for _, b := range binds {
		if err := m.culling.BindResourceToFrame(frame, b.r, b.name, b.usage); err != nil {
			return fmt.Errorf("lighting: light culling: %w", err)
		}
	}
	if err := m.device.WriteBuffer(m.indexCounter, 0, make([]byte, 8)); err != nil {
		return fmt.Errorf("lighting: index counter: %w", err)
	}
	if err := m.culling.SubmitForExecution(m.tiles[0], m.tiles[1], 1); err != nil {
		return fmt.Errorf("lighting: light culling: %w", err)
	}
	return nil
}

func (m *manager) CullLights(frame int, frustum common.Frustum) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	visible := make(map[*kindEntry][]uint32, len(m.kinds))
	for _, t := range m.lights {
		if !t.light.Enabled() || !t.entry.cull(t.light, frustum) {
			continue
		}
		visible[t.entry] = append(visible[t.entry], uint32(t.index))
	}
	runs := make([][]uint32, len(m.kinds))
	for i, e := range m.kinds {
		slices.Sort(visible[e])
		runs[i] = visible[e]
		e.setVisible(frame, runs[i])
	}

	if data := packIndices(runs...); len(data) > 0 {
		if err := m.device.WriteBuffer(m.visibleBuffers[frame], 0, data); err != nil {
			return fmt.Errorf("lighting: visible indices for frame %d: %w", frame, err)
		}
	}
	g := &m.general[frame]
	g.VisiblePoint = uint32(len(visible[m.byType[light.LightTypePoint]]))
	g.VisibleSpot = uint32(len(visible[m.byType[light.LightTypeSpot]]))
	g.VisibleDirectional = uint32(len(visible[m.byType[light.LightTypeDirectional]]))
	return m.writeGeneralLocked(frame)
}

func (m *manager) Visible(frame int, kind light.LightType) []uint32 {
	m.mu.Lock()
	e, ok := m.byType[kind]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.visibleOf(frame)
}

func (m *manager) BindLightingToPipeline(p pipeline.Pipeline, frame int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	errs = append(errs, bindIfDeclared(p, frame, BindingGeneralLighting, m.generalBuffers[frame]))
	for _, e := range m.kinds {
		errs = append(errs, bindIfDeclared(p, frame, e.binding, e.buffer(frame)))
	}
	if m.lightGrid != nil {
		errs = append(errs,
			bindIfDeclared(p, frame, BindingLightGrid, m.lightGrid),
			bindIfDeclared(p, frame, BindingLightIndexList, m.lightIndexList))
	}
	return errors.Join(errs...)
}

func (m *manager) BindDescriptorsToRecreatedPipelineResources() error {
	var errs []error
	for _, p := range m.pipelines.GraphicsPipelines() {
		errs = append(errs, m.UpdateDescriptorsForPipelineResource(p))
	}
	return errors.Join(errs...)
}

func (m *manager) UpdateDescriptorsForPipelineResource(p pipeline.Pipeline) error {
	if _, ok := p.Binding(BindingGeneralLighting); !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for f, b := range m.generalBuffers {
		if err := p.BindResource(f, BindingGeneralLighting, b); err != nil {
			return fmt.Errorf("lighting: %w", err)
		}
	}
	return nil
}

func (m *manager) ShadowCasters(focus mgl32.Vec3) []light.ShadowCaster {
	m.mu.Lock()
	handles := make([]LightHandle, 0, len(m.lights))
	for h, t := range m.lights {
		if t.light.Enabled() && t.light.CastsShadows() {
			handles = append(handles, h)
		}
	}
	slices.SortFunc(handles, cmp.Compare[LightHandle])
	lights := make([]light.Light, len(handles))
	for i, h := range handles {
		lights[i] = m.lights[h].light
	}
	m.mu.Unlock()

	casters := make([]light.ShadowCaster, len(lights))
	for i, l := range lights {
		casters[i] = light.NewShadowCaster(l, focus)
	}
	return casters
}

func (m *manager) TileCount() [2]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiles
}

func (m *manager) GeneralLighting(frame int) light.GPUGeneralLighting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.general[frame]
}

func (m *manager) GeneralLightingBuffer(frame int) gpu.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generalBuffers[frame]
}

func (m *manager) LightGrid() gpu.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lightGrid
}

func (m *manager) LightIndexList() gpu.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lightIndexList
}

func (m *manager) Release() {
	m.pipelines.RemoveResourceListener(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frustumGrid != nil {
		m.frustumGrid.Release()
		m.culling.Release()
		m.frustumGrid, m.culling = nil, nil
	}
	for _, e := range m.kinds {
		e.release()
	}
	m.kinds = nil
	buffers := slices.Concat(m.generalBuffers, m.visibleBuffers,
		[]gpu.Buffer{m.gridParams, m.indexCounter, m.tileFrustums, m.lightGrid, m.lightIndexList})
	for _, b := range buffers {
		if b != nil {
			b.Release()
		}
	}
	clear(m.generalBuffers)
	clear(m.visibleBuffers)
	m.gridParams, m.indexCounter = nil, nil
	m.tileFrustums, m.lightGrid, m.lightIndexList = nil, nil, nil
}
