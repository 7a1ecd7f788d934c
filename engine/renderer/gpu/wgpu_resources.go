package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	id       uint64
	label    string
	buffer   *wgpu.Buffer
	size     uint64
	usage    BufferUsage
	released bool
}

func (b *wgpuBuffer) ID() uint64 {
	return b.id
}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Usage() BufferUsage {
	return b.usage
}

func (b *wgpuBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.buffer.Release()
}

type wgpuTexture struct {
	id       uint64
	label    string
	texture  *wgpu.Texture
	view     *wgpu.TextureView
	width    uint32
	height   uint32
	format   TextureFormat
	samples  uint32
	released bool
}

func (t *wgpuTexture) ID() uint64 {
	return t.id
}

func (t *wgpuTexture) Label() string {
	return t.label
}

func (t *wgpuTexture) Width() uint32 {
	return t.width
}

func (t *wgpuTexture) Height() uint32 {
	return t.height
}

func (t *wgpuTexture) Format() TextureFormat {
	return t.format
}

func (t *wgpuTexture) SampleCount() uint32 {
	return t.samples
}

func (t *wgpuTexture) Release() {
	if t.released {
		return
	}
	t.released = true
	t.view.Release()
	t.texture.Release()
}

type wgpuPipelineState struct {
	device   *wgpuDevice
	id       uint64
	label    string
	bindings []BindingLayout

	// Exactly one of render and compute is set.
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline

	layout   *wgpu.PipelineLayout
	groups   []*wgpu.BindGroupLayout
	released bool
}

func (p *wgpuPipelineState) ID() uint64 {
	return p.id
}

func (p *wgpuPipelineState) Label() string {
	return p.label
}

func (p *wgpuPipelineState) Bindings() []BindingLayout {
	return p.bindings
}

func (p *wgpuPipelineState) Release() {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	delete(p.device.colorPipelines, p.id)
	if p.render != nil {
		p.render.Release()
	}
	if p.compute != nil {
		p.compute.Release()
	}
	p.layout.Release()
	releaseLayouts(p.groups)
}

type wgpuDescriptorSet struct {
	mu       sync.Mutex
	id       uint64
	group    uint32
	label    string
	layout   *wgpu.BindGroupLayout
	declared map[uint32]BindingLayout
	bound    map[uint32]Resource

	// bindGroup is rebuilt lazily the first time the set is used after a binding changed.
	bindGroup *wgpu.BindGroup
	dirty     bool
}

func (s *wgpuDescriptorSet) ID() uint64 {
	return s.id
}

func (s *wgpuDescriptorSet) Group() uint32 {
	return s.group
}

func (s *wgpuDescriptorSet) Bound(binding uint32) Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound[binding]
}

func (s *wgpuDescriptorSet) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindGroup != nil {
		s.bindGroup.Release()
		s.bindGroup = nil
	}
	s.bound = make(map[uint32]Resource)
	s.dirty = true
}

type wgpuRecorder struct {
	device      *wgpuDevice
	label       string
	encoder     *wgpu.CommandEncoder
	computePass *wgpu.ComputePassEncoder
	renderPass  *wgpu.RenderPassEncoder
}

func (r *wgpuRecorder) Label() string {
	return r.label
}

// BeginComputeRegion opens a compute pass. Passes encoded into the same encoder execute in order,
// so every dispatch of one region is complete before the next region starts.
func (r *wgpuRecorder) BeginComputeRegion(label string) error {
	if r.renderPass != nil || r.computePass != nil {
		return fmt.Errorf("gpu: compute region %q opened while another pass is open", label)
	}
	r.computePass = r.encoder.BeginComputePass(nil)
	return nil
}

func (r *wgpuRecorder) EndComputeRegion() error {
	if r.computePass == nil {
		return fmt.Errorf("%w: no compute region to end", ErrNoActivePass)
	}
	r.computePass.End()
	r.computePass.Release()
	r.computePass = nil
	return nil
}

func (r *wgpuRecorder) BeginRenderPass(desc RenderPassDescriptor) error {
	if r.renderPass != nil || r.computePass != nil {
		return fmt.Errorf("gpu: render pass %q opened while another pass is open", desc.Label)
	}

	r.device.mu.Lock()
	defer r.device.mu.Unlock()

	var pass wgpu.RenderPassDescriptor
	switch desc.Kind {
	case RenderPassColor:
		attachment, err := r.device.colorAttachment(desc.ClearColor)
		if err != nil {
			return err
		}
		depth := r.device.depthTexture
		if desc.Depth != nil {
			t, ok := desc.Depth.(*wgpuTexture)
			if !ok {
				return errors.New("gpu: foreign depth texture")
			}
			depth = t
		}
		pass = wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{attachment},
			DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
				View:            depth.view,
				DepthLoadOp:     wgpu.LoadOpClear,
				DepthStoreOp:    wgpu.StoreOpDiscard,
				DepthClearValue: 1.0,
			},
		}
	default:
		t, ok := desc.Depth.(*wgpuTexture)
		if !ok {
			return fmt.Errorf("gpu: %s pass %q needs a depth attachment", desc.Kind, desc.Label)
		}
		// Depth-only passes keep their result: the pre-pass feeds light culling and shadow maps
		// are sampled later.
		pass = wgpu.RenderPassDescriptor{
			ColorAttachments: nil,
			DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
				View:            t.view,
				DepthLoadOp:     wgpu.LoadOpClear,
				DepthStoreOp:    wgpu.StoreOpStore,
				DepthClearValue: 1.0,
			},
		}
	}
	r.renderPass = r.encoder.BeginRenderPass(&pass)
	return nil
}

func (r *wgpuRecorder) Draw(call DrawCall) error {
	if r.renderPass == nil {
		return fmt.Errorf("%w: draw outside a render pass", ErrNoActivePass)
	}
	ps, ok := call.Pipeline.(*wgpuPipelineState)
	if !ok || ps.render == nil {
		return errors.New("gpu: draw without a render pipeline")
	}
	vb, ok := call.Mesh.Vertex.(*wgpuBuffer)
	if !ok {
		return errors.New("gpu: draw without a vertex buffer")
	}
	ib, ok := call.Mesh.Index.(*wgpuBuffer)
	if !ok {
		return errors.New("gpu: draw without an index buffer")
	}

	r.renderPass.SetPipeline(ps.render)
	for _, set := range call.Sets {
		bg, err := r.device.resolveSet(set)
		if err != nil {
			return err
		}
		r.renderPass.SetBindGroup(set.Group(), bg, nil)
	}
	r.renderPass.SetVertexBuffer(0, vb.buffer, 0, wgpu.WholeSize)
	r.renderPass.SetIndexBuffer(ib.buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	r.renderPass.DrawIndexed(call.Mesh.IndexCount, call.InstanceCount, 0, 0, call.FirstInstance)
	return nil
}

func (r *wgpuRecorder) EndRenderPass() error {
	if r.renderPass == nil {
		return fmt.Errorf("%w: no render pass to end", ErrNoActivePass)
	}
	r.renderPass.End()
	r.renderPass.Release()
	r.renderPass = nil
	return nil
}

func toWGPUBufferUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	return out
}

func toWGPUTextureUsage(u TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&TextureUsageRenderAttachment != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&TextureUsageTextureBinding != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&TextureUsageStorageBinding != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func toWGPUTextureFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case TextureFormatDepth32Float:
		return wgpu.TextureFormatDepth32Float
	case TextureFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm
	case TextureFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm
	default:
		return wgpu.TextureFormatUndefined
	}
}

var wgpuVertexFormats = map[VertexFormat]wgpu.VertexFormat{
	VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
	VertexFormatUint32:    wgpu.VertexFormatUint32,
	VertexFormatUint32x2:  wgpu.VertexFormatUint32x2,
	VertexFormatUint32x3:  wgpu.VertexFormatUint32x3,
	VertexFormatUint32x4:  wgpu.VertexFormatUint32x4,
	VertexFormatSint32:    wgpu.VertexFormatSint32,
	VertexFormatSint32x2:  wgpu.VertexFormatSint32x2,
	VertexFormatSint32x3:  wgpu.VertexFormatSint32x3,
	VertexFormatSint32x4:  wgpu.VertexFormatSint32x4,
}

func toWGPUVertexFormat(f VertexFormat) wgpu.VertexFormat {
	return wgpuVertexFormats[f]
}

func toWGPUCullMode(m CullMode) wgpu.CullMode {
	switch m {
	case CullModeFront:
		return wgpu.CullModeFront
	case CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func toWGPUShaderStage(s ShaderStage) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

var wgpuTexelFormats = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"r32float":    wgpu.TextureFormatR32Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

// toWGPULayoutEntry converts a reflected binding into a bind group layout entry.
func toWGPULayoutEntry(b BindingLayout) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    b.Binding,
		Visibility: toWGPUShaderStage(b.Visibility),
	}
	switch b.Kind {
	case BindingUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = b.MinSize
	case BindingReadOnlyStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		entry.Buffer.MinBindingSize = b.MinSize
	case BindingStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		entry.Buffer.MinBindingSize = b.MinSize
	case BindingSampledTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entry.Texture.Multisampled = b.Multisampled
	case BindingDepthTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entry.Texture.Multisampled = b.Multisampled
	case BindingStorageTexture:
		entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		entry.StorageTexture.Format = wgpuTexelFormats[b.TexelFormat]
		entry.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
	case BindingSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case BindingComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	}
	return entry
}
