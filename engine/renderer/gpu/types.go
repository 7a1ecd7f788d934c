package gpu

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageCopyDst
	BufferUsageCopySrc
)

// TextureFormat identifies the texel format of a texture.
type TextureFormat int

const (
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatDepth32Float is used for the depth pre-pass, main depth and shadow maps.
	TextureFormatDepth32Float

	TextureFormatRGBA8Unorm
	TextureFormatBGRA8Unorm
)

// TextureUsage is a bit set describing how a texture may be used.
type TextureUsage uint32

const (
	TextureUsageRenderAttachment TextureUsage = 1 << iota
	TextureUsageTextureBinding
	TextureUsageStorageBinding
	TextureUsageCopyDst
)

// ShaderStage is a bit set of programmable pipeline stages.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

// BindingKind classifies a shader resource binding declared in shader source.
type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingReadOnlyStorageBuffer
	BindingStorageBuffer
	BindingSampledTexture
	BindingDepthTexture
	BindingStorageTexture
	BindingSampler
	BindingComparisonSampler
)

// IsBuffer reports whether the binding refers to a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingUniformBuffer || k == BindingReadOnlyStorageBuffer || k == BindingStorageBuffer
}

// IsTexture reports whether the binding refers to a texture view.
func (k BindingKind) IsTexture() bool {
	return k == BindingSampledTexture || k == BindingDepthTexture || k == BindingStorageTexture
}

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "uniform"
	case BindingReadOnlyStorageBuffer:
		return "storage,read"
	case BindingStorageBuffer:
		return "storage,read_write"
	case BindingSampledTexture:
		return "texture"
	case BindingDepthTexture:
		return "texture_depth"
	case BindingStorageTexture:
		return "texture_storage"
	case BindingSampler:
		return "sampler"
	case BindingComparisonSampler:
		return "sampler_comparison"
	default:
		return "unknown"
	}
}

// BindingLayout describes one reflected shader resource binding.
type BindingLayout struct {
	Group      uint32
	Binding    uint32
	Name       string
	Kind       BindingKind
	Visibility ShaderStage

	// MinSize is the minimum buffer size in bytes, 0 when unknown or not a buffer.
	MinSize uint64

	// Multisampled is set for texture_multisampled_2d and texture_depth_multisampled_2d.
	Multisampled bool

	// TexelFormat is the storage texture format as written in the shader, e.g. "rgba8unorm".
	TexelFormat string
}

// VertexFormat identifies the type of a single vertex attribute.
type VertexFormat int

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32
	VertexFormatUint32x2
	VertexFormatUint32x3
	VertexFormatUint32x4
	VertexFormatSint32
	VertexFormatSint32x2
	VertexFormatSint32x3
	VertexFormatSint32x4
)

// VertexAttribute describes one attribute inside an interleaved vertex buffer.
type VertexAttribute struct {
	Format   VertexFormat
	Offset   uint64
	Location uint32
}

// VertexBufferLayout describes the stride and attributes of one vertex buffer.
type VertexBufferLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// CullMode selects which triangle faces are culled.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// RenderPassKind identifies which render pass a graphics pipeline targets. It decides the
// attachment formats and sample count the backend bakes into the pipeline object.
type RenderPassKind int

const (
	// RenderPassColor targets the swap chain (through the MSAA target when enabled) plus depth.
	RenderPassColor RenderPassKind = iota

	// RenderPassDepthPrePass writes only the single-sampled pre-pass depth texture.
	RenderPassDepthPrePass

	// RenderPassShadow writes only a shadow map depth texture.
	RenderPassShadow
)

func (k RenderPassKind) String() string {
	switch k {
	case RenderPassColor:
		return "color"
	case RenderPassDepthPrePass:
		return "depth-prepass"
	case RenderPassShadow:
		return "shadow"
	default:
		return "unknown"
	}
}

// ShaderModule is one compiled shader stage handed to the device.
type ShaderModule struct {
	Label      string
	Stage      ShaderStage
	EntryPoint string

	// Source is the preprocessed WGSL.
	Source string

	// Bytecode is the backend-native representation when the device does not consume WGSL.
	Bytecode []byte

	WorkgroupSize [3]uint32
}

// GraphicsPipelineDescriptor describes a graphics pipeline state object.
type GraphicsPipelineDescriptor struct {
	Label         string
	Vertex        ShaderModule
	Fragment      *ShaderModule
	VertexBuffers []VertexBufferLayout
	Bindings      []BindingLayout

	Pass                RenderPassKind
	DepthTest           bool
	DepthWrite          bool
	Blend               bool
	CullMode            CullMode
	DepthBias           int32
	DepthBiasSlopeScale float32
}

// ComputePipelineDescriptor describes a compute pipeline state object.
type ComputePipelineDescriptor struct {
	Label    string
	Compute  ShaderModule
	Bindings []BindingLayout
}

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureDescriptor describes a 2D texture allocation.
type TextureDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	Format      TextureFormat
	Usage       TextureUsage
	SampleCount uint32
}

// RenderPassDescriptor describes a render pass begun on a CommandRecorder.
type RenderPassDescriptor struct {
	Label string
	Kind  RenderPassKind

	// Depth is the depth attachment. For RenderPassColor a nil Depth uses the device's main
	// depth target.
	Depth Texture

	ClearColor [4]float64
}

// MeshBuffers holds the vertex and index buffers of one mesh. Indices are uint32.
type MeshBuffers struct {
	Vertex     Buffer
	Index      Buffer
	IndexCount uint32
}

// Release frees both buffers.
func (m MeshBuffers) Release() {
	if m.Vertex != nil {
		m.Vertex.Release()
	}
	if m.Index != nil {
		m.Index.Release()
	}
}

// DrawCall is a single indexed, instanced draw inside a render pass.
type DrawCall struct {
	Pipeline      PipelineState
	Sets          []DescriptorSet
	Mesh          MeshBuffers
	InstanceCount uint32
	FirstInstance uint32
}

// SubmissionIndex identifies a command submission on the device queue. Indices grow monotonically
// starting at 1; 0 means "never submitted".
type SubmissionIndex uint64
