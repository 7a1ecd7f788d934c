// Package gpu is the backend-neutral device layer. The renderer and every manager above it talk
// to a Device; the concrete implementation (wgpu or the headless recorder) is selected once at
// renderer creation.
package gpu

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrDeviceLost is returned when the underlying device can no longer accept work.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrUnknownBinding is returned when a descriptor binding index is not declared by the pipeline.
	ErrUnknownBinding = errors.New("gpu: binding not declared by pipeline")

	// ErrIncompleteDescriptorSet is returned when a draw or dispatch uses a set with unbound slots.
	ErrIncompleteDescriptorSet = errors.New("gpu: descriptor set has unbound slots")

	// ErrNoActivePass is returned when a command is recorded outside the pass it requires.
	ErrNoActivePass = errors.New("gpu: no active pass")
)

// resourceIDs hands out process-unique resource identities.
var resourceIDs atomic.Uint64

func nextResourceID() uint64 {
	return resourceIDs.Add(1)
}

// Resource is an opaque GPU allocation. Two resources are the same GPU object exactly when their
// IDs are equal.
type Resource interface {
	// ID returns the process-unique identity of the allocation.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// Release frees the allocation. Releasing twice is a no-op.
	Release()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Resource

	// Size returns the allocation size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage
}

// Texture is a 2D GPU image together with its default view.
type Texture interface {
	Resource

	Width() uint32
	Height() uint32
	Format() TextureFormat
	SampleCount() uint32
}

// PipelineState is the backend object of a compiled graphics or compute pipeline.
type PipelineState interface {
	// ID returns the process-unique identity of the backend object.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// Bindings returns the merged binding layouts the pipeline was created with.
	Bindings() []BindingLayout

	// Release frees the backend object and every layout it owns.
	Release()
}

// DescriptorSet binds resources to the slots of one bind group of a pipeline.
type DescriptorSet interface {
	// ID returns the process-unique identity of the set.
	ID() uint64

	// Group returns the bind group index the set was created for.
	Group() uint32

	// Bound returns the resource bound at binding, or nil.
	Bound(binding uint32) Resource

	// Release frees the backend object.
	Release()
}

// CommandRecorder records GPU work for one submission.
type CommandRecorder interface {
	// Label returns the debug label.
	Label() string

	// BeginComputeRegion opens an ordered compute region. Every dispatch recorded inside a region
	// completes on the GPU timeline before the next region starts.
	//
	// Parameters:
	//   - label: debug label for the region
	//
	// Returns:
	//   - error: ErrNoActivePass style errors when a render pass is still open
	BeginComputeRegion(label string) error

	// EndComputeRegion closes the region opened by BeginComputeRegion.
	EndComputeRegion() error

	// BeginRenderPass opens a render pass.
	BeginRenderPass(desc RenderPassDescriptor) error

	// Draw records an indexed, instanced draw inside the open render pass.
	Draw(call DrawCall) error

	// EndRenderPass closes the open render pass.
	EndRenderPass() error
}

// Capabilities is the small set of backend operations that differ between APIs.
// Every call site goes through this interface rather than inspecting the device type.
type Capabilities interface {
	// CreateGraphicsPipeline creates a graphics pipeline state object.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - PipelineState: the created backend object
	//   - error: the wrapped backend error if creation fails
	CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (PipelineState, error)

	// CreateComputePipeline creates a compute pipeline state object.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - PipelineState: the created backend object
	//   - error: the wrapped backend error if creation fails
	CreateComputePipeline(desc *ComputePipelineDescriptor) (PipelineState, error)

	// BindDescriptor points one slot of a descriptor set at a resource.
	// Binding the resource that is already bound is a no-op.
	//
	// Parameters:
	//   - set: the descriptor set to update
	//   - binding: the binding index within the set's group
	//   - r: the buffer or texture to bind
	//
	// Returns:
	//   - error: ErrUnknownBinding if the slot is not declared
	BindDescriptor(set DescriptorSet, binding uint32, r Resource) error

	// DispatchCompute records a compute dispatch inside the recorder's open compute region.
	//
	// Parameters:
	//   - rec: the recorder with an open compute region
	//   - p: the compute pipeline
	//   - sets: descriptor sets indexed by bind group
	//   - groups: workgroup counts in x, y, z
	//
	// Returns:
	//   - error: ErrNoActivePass when no compute region is open
	DispatchCompute(rec CommandRecorder, p PipelineState, sets []DescriptorSet, groups [3]uint32) error
}

// Device is the full backend-neutral device contract.
type Device interface {
	Capabilities

	// Backend returns the API the device was created for.
	Backend() Backend

	// ShaderFormat returns the shader representation the device consumes.
	ShaderFormat() ShaderFormat

	// CreateBuffer allocates a buffer.
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// CreateTexture allocates a texture.
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateDescriptorSet creates an empty descriptor set for one group of a pipeline.
	CreateDescriptorSet(p PipelineState, group uint32) (DescriptorSet, error)

	// WriteBuffer uploads data into a buffer. The write is ordered before every later submission.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	// NewCommandRecorder starts recording a new submission.
	NewCommandRecorder(label string) (CommandRecorder, error)

	// Submit finishes the recorder and submits it to the queue.
	//
	// Returns:
	//   - SubmissionIndex: the index later passed to WaitForSubmission
	//   - error: the wrapped backend error
	Submit(rec CommandRecorder) (SubmissionIndex, error)

	// WaitForSubmission blocks until the GPU has finished the given submission.
	WaitForSubmission(idx SubmissionIndex) error

	// WaitIdle blocks until the GPU has finished all submitted work.
	WaitIdle() error

	// AcquireNextImage acquires the next swap chain image for the color pass.
	AcquireNextImage() error

	// Present presents the acquired swap chain image.
	Present() error

	// Resize reconfigures the swap chain and the size-dependent targets.
	Resize(width, height int) error

	// SurfaceSize returns the current swap chain size in pixels.
	SurfaceSize() (width, height int)

	// SampleCount returns the MSAA sample count of the color pass.
	SampleCount() uint32

	// SetSampleCount changes the MSAA sample count. Pipelines baked with the old count must have
	// released their backend state before this is called.
	SetSampleCount(count uint32) error

	// SetPresentMode selects vsync or uncapped presentation.
	SetPresentMode(mode PresentMode) error

	// FramesInFlight returns the number of swap chain images, fixed at creation.
	FramesInFlight() int

	// Release destroys the device. Callers wait for idle first. Afterwards Submit, the waits and
	// AcquireNextImage return ErrDeviceLost, and a second Release does nothing.
	Release()
}
