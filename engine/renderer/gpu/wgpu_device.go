package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/cogentcore/webgpu/wgpu"
)

var _ Device = &wgpuDevice{}

type wgpuDevice struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	backend              Backend
	forceFallbackAdapter bool
	surfaceFormat        wgpu.TextureFormat
	presentMode          wgpu.PresentMode
	sampleCount          uint32
	framesInFlight       int
	width, height        int

	// msaaTexture is nil when sampleCount is 1.
	msaaTexture  *wgpuTexture
	depthTexture *wgpuTexture

	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	submitted SubmissionIndex
	completed SubmissionIndex
	released  bool

	colorPipelines map[uint64]uint32
}

// NewWGPUDevice creates the adapter, device and swap chain for a window surface. Initialization
// failures panic, matching the way the window layer treats a missing GPU as fatal.
//
// Parameters:
//   - surfaceDescriptor: the platform surface of the window
//   - width: initial surface width in pixels
//   - height: initial surface height in pixels
//   - opts: optional settings
//
// Returns:
//   - Device: the created device
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, opts ...WGPUDeviceBuilderOption) Device {
	runtime.LockOSThread()
	d := &wgpuDevice{
		mu:             &sync.Mutex{},
		backend:        BackendVulkan,
		presentMode:    wgpu.PresentModeImmediate,
		sampleCount:    1,
		framesInFlight: 2,
		colorPipelines: make(map[uint64]uint32),
	}
	for _, opt := range opts {
		opt(d)
	}

	// wgpu-native reads the API preference from the environment when the instance is created.
	if _, ok := os.LookupEnv("WGPU_BACKEND"); !ok {
		hint := "vulkan"
		if d.backend == BackendDirectX {
			hint = "dx12"
		}
		_ = os.Setenv("WGPU_BACKEND", hint)
	}

	d.instance = wgpu.CreateInstance(nil)
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		panic(err)
	}
	d.adapter = a

	// Frame constants, objects and the lighting group need at least three bind groups; the
	// light culling shader uses eight storage buffers.
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8
	limits.MaxStorageBuffersPerShaderStage = 8

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Lumen Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		panic(err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	if err := d.configure(width, height); err != nil {
		panic(err)
	}
	logger.Logger().Info("gpu device created",
		slog.String("backend", d.backend.String()),
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("samples", int(d.sampleCount)))
	return d
}

// configure (re)configures the surface and rebuilds the size-dependent targets. Callers hold mu
// or are still constructing the device.
func (d *wgpuDevice) configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("gpu: invalid surface size %dx%d", width, height)
	}
	capabilities := d.surface.GetCapabilities(d.adapter)
	if len(capabilities.Formats) == 0 {
		return errors.New("gpu: surface reports no formats")
	}
	d.surfaceFormat = capabilities.Formats[0]
	d.width, d.height = width, height

	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: d.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	return d.createTargets()
}

func (d *wgpuDevice) createTargets() error {
	if d.msaaTexture != nil {
		d.msaaTexture.Release()
		d.msaaTexture = nil
	}
	if d.depthTexture != nil {
		d.depthTexture.Release()
		d.depthTexture = nil
	}

	if d.sampleCount > 1 {
		msaa, err := d.createTexture(&wgpu.TextureDescriptor{
			Label: "MSAA Texture",
			Size: wgpu.Extent3D{
				Width:              uint32(d.width),
				Height:             uint32(d.height),
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   d.sampleCount,
			Dimension:     wgpu.TextureDimension2D,
			Format:        d.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		}, TextureFormatUndefined)
		if err != nil {
			return err
		}
		d.msaaTexture = msaa
	}

	// Depth texture sample count must match the color attachment.
	depth, err := d.createTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(d.width),
			Height:             uint32(d.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   d.sampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment,
	}, TextureFormatDepth32Float)
	if err != nil {
		return err
	}
	d.depthTexture = depth
	return nil
}

func (d *wgpuDevice) createTexture(desc *wgpu.TextureDescriptor, format TextureFormat) (*wgpuTexture, error) {
	tex, err := d.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create texture %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("gpu: failed to create view for texture %q: %w", desc.Label, err)
	}
	return &wgpuTexture{
		id:      nextResourceID(),
		label:   desc.Label,
		texture: tex,
		view:    view,
		width:   desc.Size.Width,
		height:  desc.Size.Height,
		format:  format,
		samples: desc.SampleCount,
	}, nil
}

func (d *wgpuDevice) Backend() Backend {
	return d.backend
}

// ShaderFormat reports WGSL: wgpu-native translates WGSL into the backend's native bytecode itself.
func (d *wgpuDevice) ShaderFormat() ShaderFormat {
	return ShaderFormatWGSL
}

func (d *wgpuDevice) FramesInFlight() int {
	return d.framesInFlight
}

func (d *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("gpu: buffer %q has zero size", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            toWGPUBufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{id: nextResourceID(), label: desc.Label, buffer: buf, size: desc.Size, usage: desc.Usage}, nil
}

func (d *wgpuDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	t, err := d.createTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        toWGPUTextureFormat(desc.Format),
		Usage:         toWGPUTextureUsage(desc.Usage),
	}, desc.Format)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// createLayouts builds one bind group layout per group index, filling gaps with empty layouts.
func (d *wgpuDevice) createLayouts(label string, bindings []BindingLayout) ([]*wgpu.BindGroupLayout, error) {
	byGroup := make(map[uint32][]wgpu.BindGroupLayoutEntry)
	maxGroup := -1
	for _, b := range bindings {
		byGroup[b.Group] = append(byGroup[b.Group], toWGPULayoutEntry(b))
		if int(b.Group) > maxGroup {
			maxGroup = int(b.Group)
		}
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range layouts {
		entries := byGroup[uint32(g)]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s Group %d", label, g),
			Entries: entries,
		})
		if err != nil {
			for _, l := range layouts[:g] {
				l.Release()
			}
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		layouts[g] = layout
	}
	return layouts, nil
}

func (d *wgpuDevice) createShaderModule(m *ShaderModule) (*wgpu.ShaderModule, error) {
	return d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: m.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: m.Source,
		},
	})
}

func (d *wgpuDevice) CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc.Pass == RenderPassColor && desc.Fragment == nil {
		return nil, errors.New("gpu: color pipelines need a fragment shader")
	}

	vs, err := d.createShaderModule(&desc.Vertex)
	if err != nil {
		return nil, fmt.Errorf("gpu: vertex shader %q: %w", desc.Vertex.Label, err)
	}
	defer vs.Release()

	layouts, err := d.createLayouts(desc.Label, desc.Bindings)
	if err != nil {
		return nil, err
	}
	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(desc.VertexBuffers))
	for _, vb := range desc.VertexBuffers {
		attrs := make([]wgpu.VertexAttribute, len(vb.Attributes))
		for i, a := range vb.Attributes {
			attrs[i] = wgpu.VertexAttribute{
				Format:         toWGPUVertexFormat(a.Format),
				Offset:         a.Offset,
				ShaderLocation: a.Location,
			}
		}
		vertexLayouts = append(vertexLayouts, wgpu.VertexBufferLayout{
			ArrayStride: vb.Stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		})
	}

	samples := uint32(1)
	var fragment *wgpu.FragmentState
	if desc.Pass == RenderPassColor {
		samples = d.sampleCount
		fs, fsErr := d.createShaderModule(desc.Fragment)
		if fsErr != nil {
			pipelineLayout.Release()
			releaseLayouts(layouts)
			return nil, fmt.Errorf("gpu: fragment shader %q: %w", desc.Fragment.Label, fsErr)
		}
		defer fs.Release()

		target := wgpu.ColorTargetState{
			Format:    d.surfaceFormat,
			WriteMask: wgpu.ColorWriteMaskAll,
		}
		if desc.Blend {
			target.Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorSrcAlpha,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
				Alpha: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorOne,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
			}
		}
		fragment = &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    []wgpu.ColorTargetState{target},
		}
	}

	depthCompare := wgpu.CompareFunctionLessEqual
	if !desc.DepthTest {
		depthCompare = wgpu.CompareFunctionAlways
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    vertexLayouts,
		},
		Fragment: fragment,
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  toWGPUCullMode(desc.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:              wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled:   desc.DepthWrite,
			DepthCompare:        depthCompare,
			DepthBias:           desc.DepthBias,
			DepthBiasSlopeScale: desc.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		pipelineLayout.Release()
		releaseLayouts(layouts)
		return nil, err
	}

	p := &wgpuPipelineState{
		device:   d,
		id:       nextResourceID(),
		label:    desc.Label,
		bindings: append([]BindingLayout(nil), desc.Bindings...),
		render:   created,
		layout:   pipelineLayout,
		groups:   layouts,
	}
	if desc.Pass == RenderPassColor {
		d.colorPipelines[p.id] = samples
	}
	return p, nil
}

func (d *wgpuDevice) CreateComputePipeline(desc *ComputePipelineDescriptor) (PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cs, err := d.createShaderModule(&desc.Compute)
	if err != nil {
		return nil, fmt.Errorf("gpu: compute shader %q: %w", desc.Compute.Label, err)
	}
	defer cs.Release()

	layouts, err := d.createLayouts(desc.Label, desc.Bindings)
	if err != nil {
		return nil, err
	}
	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		releaseLayouts(layouts)
		return nil, err
	}

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs,
			EntryPoint: desc.Compute.EntryPoint,
		},
	})
	if err != nil {
		layout.Release()
		releaseLayouts(layouts)
		return nil, err
	}

	return &wgpuPipelineState{
		device:   d,
		id:       nextResourceID(),
		label:    desc.Label,
		bindings: append([]BindingLayout(nil), desc.Bindings...),
		compute:  created,
		layout:   layout,
		groups:   layouts,
	}, nil
}

func (d *wgpuDevice) CreateDescriptorSet(p PipelineState, group uint32) (DescriptorSet, error) {
	ps, ok := p.(*wgpuPipelineState)
	if !ok || ps.released {
		return nil, errors.New("gpu: descriptor set requested for an invalid pipeline")
	}
	if int(group) >= len(ps.groups) {
		return nil, fmt.Errorf("gpu: pipeline %q has no group %d", ps.label, group)
	}
	s := &wgpuDescriptorSet{
		id:       nextResourceID(),
		group:    group,
		label:    fmt.Sprintf("%s Group %d", ps.label, group),
		layout:   ps.groups[group],
		declared: make(map[uint32]BindingLayout),
		bound:    make(map[uint32]Resource),
		dirty:    true,
	}
	for _, b := range ps.bindings {
		if b.Group == group {
			s.declared[b.Binding] = b
		}
	}
	return s, nil
}

func (d *wgpuDevice) BindDescriptor(set DescriptorSet, binding uint32, r Resource) error {
	s, ok := set.(*wgpuDescriptorSet)
	if !ok {
		return errors.New("gpu: foreign descriptor set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.declared[binding]; !ok {
		return fmt.Errorf("%w: group %d binding %d", ErrUnknownBinding, s.group, binding)
	}
	if cur := s.bound[binding]; cur != nil && cur.ID() == r.ID() {
		return nil
	}
	s.bound[binding] = r
	s.dirty = true
	return nil
}

func (d *wgpuDevice) WriteBuffer(b Buffer, offset uint64, data []byte) error {
	buf, ok := b.(*wgpuBuffer)
	if !ok {
		return errors.New("gpu: foreign buffer")
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("gpu: write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, buf.label, buf.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.WriteBuffer(buf.buffer, offset, data)
	return nil
}

func (d *wgpuDevice) NewCommandRecorder(label string) (CommandRecorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create command encoder: %w", err)
	}
	return &wgpuRecorder{device: d, label: label, encoder: encoder}, nil
}

func (d *wgpuDevice) DispatchCompute(rec CommandRecorder, p PipelineState, sets []DescriptorSet, groups [3]uint32) error {
	r, ok := rec.(*wgpuRecorder)
	if !ok {
		return errors.New("gpu: foreign command recorder")
	}
	if r.computePass == nil {
		return fmt.Errorf("%w: dispatch of %q outside a compute region", ErrNoActivePass, p.Label())
	}
	ps, ok := p.(*wgpuPipelineState)
	if !ok || ps.compute == nil {
		return fmt.Errorf("gpu: %q is not a compute pipeline", p.Label())
	}
	r.computePass.SetPipeline(ps.compute)
	for _, set := range sets {
		bg, err := d.resolveSet(set)
		if err != nil {
			return err
		}
		r.computePass.SetBindGroup(set.Group(), bg, nil)
	}
	r.computePass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	return nil
}

// resolveSet returns the backend bind group for a set, rebuilding it when a binding changed.
func (d *wgpuDevice) resolveSet(set DescriptorSet) (*wgpu.BindGroup, error) {
	s, ok := set.(*wgpuDescriptorSet)
	if !ok {
		return nil, errors.New("gpu: foreign descriptor set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty && s.bindGroup != nil {
		return s.bindGroup, nil
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(s.declared))
	for binding, layout := range s.declared {
		r := s.bound[binding]
		if r == nil {
			return nil, fmt.Errorf("%w: %s binding %d (%s)", ErrIncompleteDescriptorSet, s.label, binding, layout.Name)
		}
		switch res := r.(type) {
		case *wgpuBuffer:
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: binding,
				Buffer:  res.buffer,
				Offset:  0,
				Size:    wgpu.WholeSize,
			})
		case *wgpuTexture:
			entries = append(entries, wgpu.BindGroupEntry{
				Binding:     binding,
				TextureView: res.view,
			})
		default:
			return nil, fmt.Errorf("gpu: foreign resource %q at binding %d", r.Label(), binding)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})

	d.mu.Lock()
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.label + " Bind Group",
		Layout:  s.layout,
		Entries: entries,
	})
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to create bind group %q: %w", s.label, err)
	}
	if s.bindGroup != nil {
		s.bindGroup.Release()
	}
	s.bindGroup = bg
	s.dirty = false
	return bg, nil
}

func (d *wgpuDevice) Submit(rec CommandRecorder) (SubmissionIndex, error) {
	r, ok := rec.(*wgpuRecorder)
	if !ok {
		return 0, errors.New("gpu: foreign command recorder")
	}
	if r.computePass != nil || r.renderPass != nil {
		return 0, fmt.Errorf("gpu: recorder %q submitted with an open region or pass", r.label)
	}
	commandBuffer, err := r.encoder.Finish(nil)
	if err != nil {
		r.encoder.Release()
		return 0, fmt.Errorf("gpu: failed to finish %q: %w", r.label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		commandBuffer.Release()
		r.encoder.Release()
		return 0, ErrDeviceLost
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	r.encoder.Release()
	d.submitted++
	return d.submitted, nil
}

func (d *wgpuDevice) WaitForSubmission(idx SubmissionIndex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceLost
	}
	if idx <= d.completed {
		return nil
	}
	d.device.Poll(true, nil)
	d.completed = d.submitted
	return nil
}

func (d *wgpuDevice) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceLost
	}
	d.device.Poll(true, nil)
	d.completed = d.submitted
	return nil
}

func (d *wgpuDevice) AcquireNextImage() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceLost
	}

	// A surface image still held from the previous frame must be presented first.
	if d.frameSurface != nil {
		return errors.New("gpu: previous frame surface not yet presented")
	}
	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	d.frameSurface = surfaceTexture
	d.frameView = view
	return nil
}

func (d *wgpuDevice) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return errors.New("gpu: present without an acquired image")
	}
	d.surface.Present()
	d.frameView.Release()
	d.frameView = nil
	d.frameSurface.Release()
	d.frameSurface = nil
	return nil
}

func (d *wgpuDevice) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configure(width, height)
}

func (d *wgpuDevice) SurfaceSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *wgpuDevice) SampleCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleCount
}

func (d *wgpuDevice) SetSampleCount(count uint32) error {
	if count != 1 && count != 4 {
		return fmt.Errorf("gpu: unsupported sample count %d", count)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, samples := range d.colorPipelines {
		if samples != count {
			return fmt.Errorf("gpu: pipeline %d still baked with %d samples", id, samples)
		}
	}
	d.sampleCount = count
	return d.createTargets()
}

func (d *wgpuDevice) SetPresentMode(mode PresentMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		d.presentMode = wgpu.PresentModeFifo
	default:
		d.presentMode = wgpu.PresentModeImmediate
	}
	if d.width > 0 && d.height > 0 {
		return d.configure(d.width, d.height)
	}
	return nil
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	if d.msaaTexture != nil {
		d.msaaTexture.Release()
	}
	if d.depthTexture != nil {
		d.depthTexture.Release()
	}
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.surface.Release()
	d.instance.Release()
}

// colorAttachment builds the color attachment for the acquired surface image.
func (d *wgpuDevice) colorAttachment(clear [4]float64) (wgpu.RenderPassColorAttachment, error) {
	if d.frameView == nil {
		return wgpu.RenderPassColorAttachment{}, errors.New("gpu: color pass without an acquired image")
	}
	attachment := wgpu.RenderPassColorAttachment{
		View:    d.frameView,
		LoadOp:  wgpu.LoadOpClear,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: clear[0], G: clear[1], B: clear[2], A: clear[3],
		},
	}
	// With MSAA the pass draws into the multisampled target and resolves into the surface image.
	if d.msaaTexture != nil {
		attachment.View = d.msaaTexture.view
		attachment.ResolveTarget = d.frameView
		attachment.StoreOp = wgpu.StoreOpDiscard
	}
	return attachment, nil
}

func releaseLayouts(layouts []*wgpu.BindGroupLayout) {
	for _, l := range layouts {
		if l != nil {
			l.Release()
		}
	}
}
