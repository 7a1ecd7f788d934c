// Package renderer drives the Forward+ frame: it owns the device, the shader registry, the
// pipeline manager, the frame ring and the lighting manager, and records every pass of a frame.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/lighting"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrReleased is returned by DrawNextFrame after Release.
var ErrReleased = errors.New("renderer: released")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	// renderLock is the render-resources lock shared with the pipeline and lighting managers.
	renderLock *sync.Mutex

	device    gpu.Device
	shaders   shader.Registry
	pipelines pipeline.Manager
	frames    *gpu.FrameRing
	lighting  lighting.Manager

	clearColor      [4]float64
	compileWorkers  int
	lightCapacity   int
	precompile      bool
	shadowsEnabled  bool
	shadowMapSize   uint32
	frameResources  []FrameResource
	framesSubmitted uint64
	released        bool

	resolution    [2]uint32
	depthPrePass  gpu.Texture
	objectBuffers []gpu.Buffer
	shadowConsts  [][]gpu.Buffer
	shadowMaps    []gpu.Texture
	batch         *frameBatch
}

// Renderer defines the interface for the rendering system.
//
// The Renderer owns every GPU-side manager and turns a Scene into one submitted frame per
// DrawNextFrame call. All frame work happens under the render-resources lock, which the pipeline
// manager also takes while pipelines are suspended, so a frame never observes a pipeline without
// backend state.
type Renderer interface {
	// DrawNextFrame renders one frame of the scene:
	//  1. acquire the frame slot and wait for its previous submission
	//  2. write the frame constants
	//  3. rebuild the tile frustums if the projection, the resolution or a pending request says so
	//  4. update registered frame resources and the lighting resources, then queue light culling
	//  5. cull meshes into per-pipeline, per-material lists and write their object records
	//  6. cull lights
	//  7. record the shadow passes
	//  8. record the depth pre-pass
	//  9. record the compute work queued after the depth pre-pass, in group order
	//  10. record the colour pass, opaque then transparent
	//  11. submit, record the slot's submission, present and advance the slot
	//
	// The camera lock is taken before the render-resources lock. Frames are skipped with a warning
	// until the light tile grid exists.
	//
	// Parameters:
	//   - scene: the camera and drawables to render
	//
	// Returns:
	//   - error: the first failure, wrapped with the name of the step
	DrawNextFrame(scene Scene) error

	// Resize reconfigures the surface. Size-dependent targets and the tile grid are rebuilt by the
	// next frame.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: the device error
	Resize(width, height int) error

	// SetSampleCount changes the MSAA sample count of the colour pass. Every graphics pipeline is
	// suspended, the device reconfigured and the pipelines recreated before rendering resumes.
	//
	// Parameters:
	//   - count: the new sample count, 1 or 4
	//
	// Returns:
	//   - error: the device error; pipelines are restored in either case
	SetSampleCount(count uint32) error

	// SetPresentMode selects vsync or uncapped presentation.
	//
	// Parameters:
	//   - mode: the present mode
	//
	// Returns:
	//   - error: the device error
	SetPresentMode(mode gpu.PresentMode) error

	// SetClearColor sets the colour the colour pass clears to.
	//
	// Parameters:
	//   - c: linear RGBA
	SetClearColor(c [4]float64)

	// RegisterFrameResource adds a resource updated in step 4 of every frame.
	//
	// Parameters:
	//   - r: the resource
	RegisterFrameResource(r FrameResource)

	// Device returns the device the renderer draws with.
	Device() gpu.Device

	// Shaders returns the shader registry holding the built-in shaders.
	Shaders() shader.Registry

	// Pipelines returns the pipeline manager materials acquire their pipelines from.
	Pipelines() pipeline.Manager

	// Lighting returns the lighting manager scenes add their lights to.
	Lighting() lighting.Manager

	// Frames returns the frame ring.
	Frames() *gpu.FrameRing

	// FramesSubmitted returns the number of frames submitted so far.
	FramesSubmitted() uint64

	// Release waits for the GPU to go idle and frees every resource the renderer owns. The
	// device itself is released by its creator.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on a device: the built-in shaders are registered and, unless
// disabled, precompiled before the registry is marked ready.
//
// Parameters:
//   - device: the device to render with
//   - options: variadic list of RendererBuilderOption functions to configure the renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: a shader, precompile or allocation error
func NewRenderer(device gpu.Device, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		renderLock:     &sync.Mutex{},
		device:         device,
		clearColor:     [4]float64{0.02, 0.02, 0.03, 1},
		compileWorkers: 4,
		lightCapacity:  16,
		precompile:     true,
		shadowsEnabled: true,
		shadowMapSize:  light.ShadowMapResolution,
		batch:          newFrameBatch(),
	}
	for _, opt := range options {
		opt(r)
	}

	reg, err := NewShaderRegistry(device.ShaderFormat())
	if err != nil {
		return nil, err
	}
	r.shaders = reg
	r.pipelines = pipeline.NewManager(device, reg,
		pipeline.WithRenderLock(r.renderLock),
		pipeline.WithCompileWorkers(r.compileWorkers))
	if r.precompile {
		if err := r.pipelines.Precompile(BuiltinPermutations()); err != nil {
			r.pipelines.Release()
			return nil, fmt.Errorf("renderer: precompile: %w", err)
		}
	}
	reg.MarkReady()

	r.frames, err = gpu.NewFrameRing(device, uint64((&camera.GPUFrameConstants{}).Size()))
	if err != nil {
		r.pipelines.Release()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	r.lighting, err = lighting.NewManager(device, r.pipelines, reg, r.frames,
		lighting.WithRenderLock(r.renderLock),
		lighting.WithInitialCapacity(r.lightCapacity))
	if err != nil {
		r.frames.Release()
		r.pipelines.Release()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	r.objectBuffers = make([]gpu.Buffer, r.frames.Count())
	r.shadowConsts = make([][]gpu.Buffer, r.frames.Count())

	logger.Logger().Info("renderer created",
		slog.String("backend", device.Backend().String()),
		slog.Int("frames_in_flight", r.frames.Count()),
		slog.Int("shader_format", int(device.ShaderFormat())))
	return r, nil
}

func (r *renderer) Device() gpu.Device {
	return r.device
}

func (r *renderer) Shaders() shader.Registry {
	return r.shaders
}

func (r *renderer) Pipelines() pipeline.Manager {
	return r.pipelines
}

func (r *renderer) Lighting() lighting.Manager {
	return r.lighting
}

func (r *renderer) Frames() *gpu.FrameRing {
	return r.frames
}

func (r *renderer) FramesSubmitted() uint64 {
	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	return r.framesSubmitted
}

func (r *renderer) SetClearColor(c [4]float64) {
	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	r.clearColor = c
}

func (r *renderer) RegisterFrameResource(res FrameResource) {
	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	r.frameResources = append(r.frameResources, res)
}

func (r *renderer) Resize(width, height int) error {
	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	if err := r.device.Resize(width, height); err != nil {
		return fmt.Errorf("renderer: resize: %w", err)
	}
	return nil
}

func (r *renderer) SetPresentMode(mode gpu.PresentMode) error {
	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	return r.device.SetPresentMode(mode)
}

func (r *renderer) SetSampleCount(count uint32) error {
	if r.device.SampleCount() == count {
		return nil
	}
	guard, err := r.pipelines.ClearGraphicsPipelinesInternalResourcesAndDelayRestoring()
	if err != nil {
		return fmt.Errorf("renderer: set sample count: %w", err)
	}
	setErr := r.device.SetSampleCount(count)
	if err := guard.Restore(); err != nil {
		return errors.Join(setErr, fmt.Errorf("renderer: restore pipelines: %w", err))
	}
	if setErr != nil {
		return fmt.Errorf("renderer: set sample count: %w", setErr)
	}
	logger.Logger().Info("sample count changed", slog.Int("samples", int(count)))
	return nil
}

func (r *renderer) DrawNextFrame(scene Scene) error {
	cam := scene.Camera()
	snap := cam.Snapshot()
	focus := cam.Target()
	drawables := scene.Drawables()

	r.renderLock.Lock()
	defer r.renderLock.Unlock()
	if r.released {
		return ErrReleased
	}

	frame, err := r.frames.Acquire()
	if err != nil {
		return fmt.Errorf("renderer: acquire frame: %w", err)
	}
	slot := frame.Index()

	w, h := r.device.SurfaceSize()
	resolution := [2]uint32{uint32(max(w, 1)), uint32(max(h, 1))}
	constants := snap.FrameConstants(resolution)
	if err := r.device.WriteBuffer(frame.Constants(), 0, constants.Marshal()); err != nil {
		return fmt.Errorf("renderer: write frame constants: %w", err)
	}

	if snap.ProjectionChanged || resolution != r.resolution || r.lighting.RecalculationPending() {
		if err := r.recalculateTiles(resolution, snap.InverseProjection); err != nil {
			return fmt.Errorf("renderer: recalculate tile frustums: %w", err)
		}
	}
	if r.lighting.TileCount() == ([2]uint32{}) {
		logger.Logger().Warn("frame skipped", slog.String("reason", "light tile grid not built"))
		return nil
	}

	if err := r.updateResources(slot, frame.Constants()); err != nil {
		return fmt.Errorf("renderer: update resources: %w", err)
	}

	frustum := snap.Frustum()
	r.batch.reset()
	if err := r.batch.cull(drawables, frustum, snap.Position); err != nil {
		return fmt.Errorf("renderer: cull meshes: %w", err)
	}
	if err := r.ensureObjectBuffer(slot, len(drawables)); err != nil {
		return fmt.Errorf("renderer: cull meshes: %w", err)
	}
	if err := r.writeObjects(slot, 0); err != nil {
		return fmt.Errorf("renderer: cull meshes: %w", err)
	}

	if err := r.lighting.CullLights(slot, frustum); err != nil {
		return fmt.Errorf("renderer: cull lights: %w", err)
	}

	rec, err := r.device.NewCommandRecorder("Frame " + strconv.FormatUint(r.framesSubmitted, 10))
	if err != nil {
		return fmt.Errorf("renderer: begin frame: %w", err)
	}

	if r.shadowsEnabled {
		if err := r.recordShadowPasses(rec, slot, frame.Constants(), focus, drawables); err != nil {
			return fmt.Errorf("renderer: shadow passes: %w", err)
		}
	}
	if err := r.recordDepthPrePass(rec, slot, frame.Constants()); err != nil {
		return fmt.Errorf("renderer: depth pre-pass: %w", err)
	}
	if err := r.pipelines.ExecuteQueuedComputeShaders(pipeline.StageAfterDepthPrePass, rec); err != nil {
		return fmt.Errorf("renderer: compute after depth pre-pass: %w", err)
	}
	if err := r.recordColorPass(rec, slot, frame.Constants()); err != nil {
		return fmt.Errorf("renderer: colour pass: %w", err)
	}

	sub, err := r.device.Submit(rec)
	if err != nil {
		return fmt.Errorf("renderer: submit: %w", err)
	}
	r.frames.MarkSubmitted(sub)
	presentErr := r.device.Present()
	r.frames.Advance()
	r.framesSubmitted++
	if presentErr != nil {
		return fmt.Errorf("renderer: present: %w", presentErr)
	}
	return nil
}

// recalculateTiles resizes the depth pre-pass target to the resolution and asks the lighting
// manager for a new tile grid.
func (r *renderer) recalculateTiles(resolution [2]uint32, inverseProjection mgl32.Mat4) error {
	if resolution != r.resolution || r.depthPrePass == nil {
		depth, err := r.device.CreateTexture(gpu.TextureDescriptor{
			Label:       "Depth Pre-Pass",
			Width:       resolution[0],
			Height:      resolution[1],
			Format:      gpu.TextureFormatDepth32Float,
			Usage:       gpu.TextureUsageRenderAttachment | gpu.TextureUsageTextureBinding,
			SampleCount: 1,
		})
		if err != nil {
			return err
		}
		if r.depthPrePass != nil {
			// Earlier slots may still read the old target.
			if err := r.frames.WaitAll(); err != nil {
				depth.Release()
				return err
			}
			r.depthPrePass.Release()
		}
		r.depthPrePass = depth
		r.resolution = resolution
		logger.Logger().Debug("depth pre-pass target allocated",
			slog.Int("width", int(resolution[0])),
			slog.Int("height", int(resolution[1])))
	}
	return r.lighting.RecalculateLightTileFrustums(resolution, inverseProjection)
}

func (r *renderer) updateResources(slot int, constants gpu.Buffer) error {
	for _, res := range r.frameResources {
		if err := res.UpdateResource(slot); err != nil {
			return err
		}
	}
	if err := r.lighting.UpdateResources(slot); err != nil {
		return err
	}
	return r.lighting.PrepareLightCulling(slot, r.depthPrePass, constants)
}

// ensureObjectBuffer grows the slot's object buffer to hold one record per drawable. The slot's
// previous submission has finished, so the old buffer can be released at once.
func (r *renderer) ensureObjectBuffer(slot, drawables int) error {
	size := uint64(max(drawables, 1)) * uint64((&GPUObjectData{}).Size())
	if old := r.objectBuffers[slot]; old != nil && old.Size() >= size {
		return nil
	}
	size = uint64(common.NextMultipleOf(max(drawables, 64), 64)) * uint64((&GPUObjectData{}).Size())
	buf, err := r.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "Objects " + strconv.Itoa(slot),
		Size:  size,
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	if old := r.objectBuffers[slot]; old != nil {
		old.Release()
	}
	r.objectBuffers[slot] = buf
	logger.Logger().Debug("object buffer allocated",
		slog.Int("slot", slot),
		slog.Uint64("bytes", size))
	return nil
}

// writeObjects uploads the batch's object records from the given record index on.
func (r *renderer) writeObjects(slot int, from uint32) error {
	stride := (&GPUObjectData{}).Size()
	data := r.batch.objects[int(from)*stride:]
	if len(data) == 0 {
		return nil
	}
	return r.device.WriteBuffer(r.objectBuffers[slot], uint64(int(from)*stride), data)
}

// bindFrame binds the per-frame mesh resources a pipeline declares.
func (r *renderer) bindFrame(p pipeline.Pipeline, slot int, constants gpu.Buffer) error {
	if err := bindIfDeclared(p, slot, lighting.BindingFrameConstants, constants); err != nil {
		return err
	}
	return bindIfDeclared(p, slot, BindingObjects, r.objectBuffers[slot])
}

// draw binds the per-frame mesh resources a pipeline declares and records one indexed draw.
func (r *renderer) draw(rec gpu.CommandRecorder, p pipeline.Pipeline, slot int, constants gpu.Buffer, mesh gpu.MeshBuffers, instance uint32) error {
	if err := r.bindFrame(p, slot, constants); err != nil {
		return err
	}
	return r.record(rec, p, slot, mesh, instance)
}

// record records one indexed draw with resources already bound.
func (r *renderer) record(rec gpu.CommandRecorder, p pipeline.Pipeline, slot int, mesh gpu.MeshBuffers, instance uint32) error {
	return rec.Draw(gpu.DrawCall{
		Pipeline:      p.State(),
		Sets:          p.DescriptorSets(slot),
		Mesh:          mesh,
		InstanceCount: 1,
		FirstInstance: instance,
	})
}

func (r *renderer) recordShadowPasses(rec gpu.CommandRecorder, slot int, constants gpu.Buffer, focus mgl32.Vec3, drawables []Drawable) error {
	casters := r.lighting.ShadowCasters(focus)
	if len(casters) == 0 {
		return nil
	}
	firstShadowOnly := r.batch.count
	face := 0
	for _, c := range casters {
		kind := pipeline.PipelineKindShadowDirectionalSpot
		if c.Light.Type() == light.LightTypePoint {
			kind = pipeline.PipelineKindShadowPoint
		}
		pos := c.Light.Position()
		for _, vp := range c.ViewProjections {
			shadowConsts, shadowMap, err := r.shadowTargets(slot, face)
			if err != nil {
				return err
			}
			block := light.GPUShadowConstants{LightVP: vp, LightPosition: [3]float32(pos), FarPlane: c.FarPlane}
			if err := r.device.WriteBuffer(shadowConsts, 0, block.Marshal()); err != nil {
				return err
			}
			if err := rec.BeginRenderPass(gpu.RenderPassDescriptor{
				Label: "Shadow " + strconv.Itoa(face),
				Kind:  gpu.RenderPassShadow,
				Depth: shadowMap,
			}); err != nil {
				return err
			}
			lightFrustum := common.ExtractFrustumFromMatrix(vp)
			for _, d := range drawables {
				mat := d.Material()
				if mat == nil || mat.Transparent() || !lightFrustum.IntersectsAABB(d.WorldBounds()) {
					continue
				}
				p, err := mat.Pipeline(kind)
				if err != nil {
					return err
				}
				if err := p.BindResource(slot, BindingShadowConstants, shadowConsts); err != nil {
					return err
				}
				if err := r.draw(rec, p, slot, constants, d.Mesh(), r.batch.instance(d, mat)); err != nil {
					return err
				}
			}
			if err := rec.EndRenderPass(); err != nil {
				return err
			}
			face++
		}
	}
	return r.writeObjects(slot, firstShadowOnly)
}

// shadowTargets returns the constants buffer of a shadow face for a slot and the face's depth
// map, creating them on first use.
func (r *renderer) shadowTargets(slot, face int) (gpu.Buffer, gpu.Texture, error) {
	for len(r.shadowConsts[slot]) <= face {
		buf, err := r.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "Shadow Constants " + strconv.Itoa(slot) + "/" + strconv.Itoa(len(r.shadowConsts[slot])),
			Size:  uint64(light.GPUShadowConstants{}.Size()),
			Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, nil, err
		}
		r.shadowConsts[slot] = append(r.shadowConsts[slot], buf)
	}
	for len(r.shadowMaps) <= face {
		tex, err := r.device.CreateTexture(gpu.TextureDescriptor{
			Label:       "Shadow Map " + strconv.Itoa(len(r.shadowMaps)),
			Width:       r.shadowMapSize,
			Height:      r.shadowMapSize,
			Format:      gpu.TextureFormatDepth32Float,
			Usage:       gpu.TextureUsageRenderAttachment | gpu.TextureUsageTextureBinding,
			SampleCount: 1,
		})
		if err != nil {
			return nil, nil, err
		}
		r.shadowMaps = append(r.shadowMaps, tex)
	}
	return r.shadowConsts[slot][face], r.shadowMaps[face], nil
}

func (r *renderer) recordDepthPrePass(rec gpu.CommandRecorder, slot int, constants gpu.Buffer) error {
	if err := rec.BeginRenderPass(gpu.RenderPassDescriptor{
		Label: "Depth Pre-Pass",
		Kind:  gpu.RenderPassDepthPrePass,
		Depth: r.depthPrePass,
	}); err != nil {
		return err
	}
	for _, g := range r.batch.opaqueGroups {
		for _, items := range g.materials {
			p, err := items[0].material.Pipeline(pipeline.PipelineKindDepthOnly)
			if err != nil {
				return err
			}
			if err := r.bindFrame(p, slot, constants); err != nil {
				return err
			}
			for _, item := range items {
				if err := r.record(rec, p, slot, item.drawable.Mesh(), item.instance); err != nil {
					return err
				}
			}
		}
	}
	return rec.EndRenderPass()
}

func (r *renderer) recordColorPass(rec gpu.CommandRecorder, slot int, constants gpu.Buffer) error {
	if err := r.device.AcquireNextImage(); err != nil {
		return err
	}
	if err := rec.BeginRenderPass(gpu.RenderPassDescriptor{
		Label:      "Colour",
		Kind:       gpu.RenderPassColor,
		ClearColor: r.clearColor,
	}); err != nil {
		return err
	}
	for _, groups := range [][]drawGroup{r.batch.opaqueGroups, r.batch.transparentGroups} {
		for _, g := range groups {
			if err := r.lighting.BindLightingToPipeline(g.pipeline, slot); err != nil {
				return err
			}
			if err := r.bindFrame(g.pipeline, slot, constants); err != nil {
				return err
			}
			for _, items := range g.materials {
				for _, item := range items {
					if err := r.record(rec, g.pipeline, slot, item.drawable.Mesh(), item.instance); err != nil {
						return err
					}
				}
			}
		}
	}
	return rec.EndRenderPass()
}

func (r *renderer) Release() {
	r.renderLock.Lock()
	if r.released {
		r.renderLock.Unlock()
		return
	}
	r.released = true
	if err := r.device.WaitIdle(); err != nil {
		logger.Logger().Error("renderer release", slog.Any("error", err))
	}
	for _, b := range r.objectBuffers {
		if b != nil {
			b.Release()
		}
	}
	for _, bufs := range r.shadowConsts {
		for _, b := range bufs {
			b.Release()
		}
	}
	for _, t := range r.shadowMaps {
		t.Release()
	}
	if r.depthPrePass != nil {
		r.depthPrePass.Release()
	}
	r.renderLock.Unlock()

	// The lighting manager and the pipeline manager take the render lock themselves.
	r.lighting.Release()
	r.frames.Release()
	r.pipelines.Release()
	logger.Logger().Debug("renderer released", slog.Uint64("frames", r.framesSubmitted))
}

// bindIfDeclared binds a resource when the pipeline declares the binding name.
func bindIfDeclared(p pipeline.Pipeline, frame int, name string, res gpu.Resource) error {
	if _, ok := p.Binding(name); !ok {
		return nil
	}
	return p.BindResource(frame, name, res)
}
