// Package compute wraps a shared compute pipeline in an interface that binds named resources and
// schedules dispatches through the pipeline manager's execution queue.
package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
)

var (
	// ErrUnknownBinding is returned when a resource name is not declared by the compute shader.
	ErrUnknownBinding = errors.New("compute: binding not declared by shader")

	// ErrUsageMismatch is returned when a usage does not fit the kind of the declared binding.
	ErrUsageMismatch = errors.New("compute: usage does not match binding")
)

// ResourceUsage states how the shader accesses a bound resource.
type ResourceUsage int

const (
	UsageReadOnlyArrayBuffer ResourceUsage = iota
	UsageReadWriteArrayBuffer
	UsageConstantBuffer
	UsageReadOnlyTexture
	UsageReadWriteTexture
)

func (u ResourceUsage) String() string {
	switch u {
	case UsageReadOnlyArrayBuffer:
		return "read-only-array-buffer"
	case UsageReadWriteArrayBuffer:
		return "read-write-array-buffer"
	case UsageConstantBuffer:
		return "constant-buffer"
	case UsageReadOnlyTexture:
		return "read-only-texture"
	case UsageReadWriteTexture:
		return "read-write-texture"
	default:
		return "unknown"
	}
}

// accepts reports whether a usage fits a reflected binding kind.
func (u ResourceUsage) accepts(kind gpu.BindingKind) bool {
	switch u {
	case UsageReadOnlyArrayBuffer:
		return kind == gpu.BindingReadOnlyStorageBuffer
	case UsageReadWriteArrayBuffer:
		return kind == gpu.BindingStorageBuffer
	case UsageConstantBuffer:
		return kind == gpu.BindingUniformBuffer
	case UsageReadOnlyTexture:
		return kind == gpu.BindingSampledTexture || kind == gpu.BindingDepthTexture
	case UsageReadWriteTexture:
		return kind == gpu.BindingStorageTexture
	default:
		return false
	}
}

func (u ResourceUsage) isBuffer() bool {
	return u == UsageReadOnlyArrayBuffer || u == UsageReadWriteArrayBuffer || u == UsageConstantBuffer
}

// FrameIndexer reports the frame-in-flight slot being prepared. *gpu.FrameRing implements it.
type FrameIndexer interface {
	CurrentIndex() int
	Count() int
}

// ComputeShaderInterface binds GPU resources to one compute shader and queues its dispatch on the
// pipeline manager for the frame being prepared. Interfaces created for the same shader share the
// pipeline but each owns its descriptor sets, so their bindings never overwrite each other.
type ComputeShaderInterface interface {
	pipeline.QueuedCompute

	// Name returns the compute shader name.
	Name() string

	// Pipeline returns the shared compute pipeline.
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline, or nil after Release
	Pipeline() pipeline.Pipeline

	// BindResource binds a resource to a binding declared by the shader. Binding the same name again
	// replaces the previous resource.
	//
	// Parameters:
	//   - resource: the buffer or texture to bind
	//   - shaderResourceName: the variable name declared in the shader source
	//   - usage: how the shader accesses the resource
	//   - updateOnlyCurrentFrame: update only the slot being prepared instead of every slot
	//
	// Returns:
	//   - error: ErrUnknownBinding, ErrUsageMismatch, or the backend error
	BindResource(resource gpu.Resource, shaderResourceName string, usage ResourceUsage, updateOnlyCurrentFrame bool) error

	// BindResourceToFrame is BindResource for one explicit frame-in-flight slot.
	//
	// Parameters:
	//   - frame: the frame-in-flight slot
	//   - resource: the buffer or texture to bind
	//   - shaderResourceName: the variable name declared in the shader source
	//   - usage: how the shader accesses the resource
	//
	// Returns:
	//   - error: ErrUnknownBinding, ErrUsageMismatch, a frame range error, or the backend error
	BindResourceToFrame(frame int, resource gpu.Resource, shaderResourceName string, usage ResourceUsage) error

	// Bound returns the resource this interface bound to a name for one frame slot, or nil.
	Bound(frame int, shaderResourceName string) gpu.Resource

	// SubmitForExecution records the workgroup counts and queues the interface for the frame being
	// prepared. Submitting again before the queue is drained only replaces the counts.
	//
	// Parameters:
	//   - x, y, z: workgroup counts, each at least 1
	//
	// Returns:
	//   - error: an error if a count is zero or the interface was released
	SubmitForExecution(x, y, z uint32) error

	// DispatchSize returns the workgroup counts covering a number of invocations per axis.
	//
	// Parameters:
	//   - threads: invocations per axis
	//
	// Returns:
	//   - [3]uint32: the workgroup counts, each at least 1
	DispatchSize(threads [3]uint32) [3]uint32

	// GroupCounts returns the counts of the latest submission.
	GroupCounts() [3]uint32

	// Release drops the pipeline handle, which also removes the interface from every queue, and
	// frees the interface's descriptor sets.
	Release()
}

var _ ComputeShaderInterface = &computeShaderInterface{}

// slotKey addresses one binding of one frame-in-flight copy.
type slotKey struct {
	frame   int
	group   uint32
	binding uint32
}

type computeShaderInterface struct {
	mu *sync.Mutex

	name      string
	macros    []string
	manager   pipeline.Manager
	device    gpu.Device
	frames    FrameIndexer
	requester pipeline.Requester
	handle    *pipeline.SharedPtr

	stage pipeline.ExecutionStage
	group int

	// sets holds one descriptor set per bind group (sorted as setGroups) for every frame slot. They
	// belong to the pipeline state they were created from and are rebuilt when that state changes.
	setGroups []uint32
	state     gpu.PipelineState
	sets      [][]gpu.DescriptorSet
	bound     map[slotKey]gpu.Resource

	counts [3]uint32
	frame  int
}

// NewComputeShaderInterface acquires the compute pipeline of a shader from the manager.
//
// Parameters:
//   - manager: the pipeline manager that owns the pipeline and the execution queue
//   - frames: the source of the frame-in-flight index being prepared
//   - shaderName: the registered compute shader name
//   - opts: optional settings
//
// Returns:
//   - ComputeShaderInterface: the interface
//   - error: the manager's error if the pipeline could not be created
func NewComputeShaderInterface(manager pipeline.Manager, frames FrameIndexer, shaderName string, opts ...ComputeShaderInterfaceBuilderOption) (ComputeShaderInterface, error) {
	c := &computeShaderInterface{
		mu:      &sync.Mutex{},
		name:    shaderName,
		manager: manager,
		device:  manager.Device(),
		frames:  frames,
		stage:   pipeline.StageAfterDepthPrePass,
		bound:   make(map[slotKey]gpu.Resource),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.requester = pipeline.NewRequester(pipeline.RequesterComputeInterface, shaderName)
	handle, err := manager.GetComputePipelineForShader(shaderName, c.macros, c.requester)
	if err != nil {
		return nil, err
	}
	c.handle = handle
	for _, b := range handle.Pipeline().Bindings() {
		if _, found := slices.BinarySearch(c.setGroups, b.Group); !found {
			c.setGroups = append(c.setGroups, b.Group)
			slices.Sort(c.setGroups)
		}
	}
	return c, nil
}

func (c *computeShaderInterface) Name() string {
	return c.name
}

func (c *computeShaderInterface) Pipeline() pipeline.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	return c.handle.Pipeline()
}

func (c *computeShaderInterface) ExecutionStage() pipeline.ExecutionStage {
	return c.stage
}

func (c *computeShaderInterface) ExecutionGroup() int {
	return c.group
}

func (c *computeShaderInterface) Requester() pipeline.Requester {
	return c.requester
}

func (c *computeShaderInterface) BindResource(resource gpu.Resource, shaderResourceName string, usage ResourceUsage, updateOnlyCurrentFrame bool) error {
	if updateOnlyCurrentFrame {
		return c.BindResourceToFrame(c.frames.CurrentIndex(), resource, shaderResourceName, usage)
	}
	for f := range c.frames.Count() {
		if err := c.BindResourceToFrame(f, resource, shaderResourceName, usage); err != nil {
			return err
		}
	}
	return nil
}

func (c *computeShaderInterface) BindResourceToFrame(frame int, resource gpu.Resource, shaderResourceName string, usage ResourceUsage) error {
	p := c.Pipeline()
	if p == nil {
		return fmt.Errorf("compute %s: bind after release", c.name)
	}
	b, ok := p.Binding(shaderResourceName)
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownBinding, shaderResourceName, c.name)
	}
	if !usage.accepts(b.Kind) {
		return fmt.Errorf("%w: %q is %s, bound as %s", ErrUsageMismatch, shaderResourceName, b.Kind, usage)
	}
	switch resource.(type) {
	case gpu.Buffer:
		if !usage.isBuffer() {
			return fmt.Errorf("%w: %q got a buffer for %s", ErrUsageMismatch, shaderResourceName, usage)
		}
	case gpu.Texture:
		if usage.isBuffer() {
			return fmt.Errorf("%w: %q got a texture for %s", ErrUsageMismatch, shaderResourceName, usage)
		}
	default:
		return fmt.Errorf("compute %s: nil resource for %q", c.name, shaderResourceName)
	}
	if frame < 0 || frame >= c.frames.Count() {
		return fmt.Errorf("compute %s: frame index %d out of range", c.name, frame)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := slotKey{frame: frame, group: b.Group, binding: b.Binding}
	c.bound[key] = resource
	if err := c.ensureSetsLocked(p); err != nil {
		return err
	}
	if c.sets == nil {
		return nil
	}
	if err := c.device.BindDescriptor(c.setFor(frame, b.Group), b.Binding, resource); err != nil {
		return fmt.Errorf("compute %s: binding %q: %w", c.name, shaderResourceName, err)
	}
	return nil
}

func (c *computeShaderInterface) Bound(frame int, shaderResourceName string) gpu.Resource {
	p := c.Pipeline()
	if p == nil {
		return nil
	}
	b, ok := p.Binding(shaderResourceName)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound[slotKey{frame: frame, group: b.Group, binding: b.Binding}]
}

// ensureSetsLocked creates the descriptor sets for the pipeline's current backend state and
// replays every recorded binding into them. While the backend state is released the sets are
// dropped and bindings are only recorded. The caller holds c.mu.
func (c *computeShaderInterface) ensureSetsLocked(p pipeline.Pipeline) error {
	state := p.State()
	if state == c.state && (c.sets != nil || state == nil) {
		return nil
	}
	c.releaseSetsLocked()
	if state == nil {
		return nil
	}

	sets := make([][]gpu.DescriptorSet, c.frames.Count())
	for f := range sets {
		sets[f] = make([]gpu.DescriptorSet, 0, len(c.setGroups))
		for _, g := range c.setGroups {
			s, err := c.device.CreateDescriptorSet(state, g)
			if err != nil {
				releaseSets(sets)
				return fmt.Errorf("compute %s: descriptor set for group %d: %w", c.name, g, err)
			}
			sets[f] = append(sets[f], s)
		}
	}
	c.state, c.sets = state, sets
	for key, r := range c.bound {
		if key.frame >= len(sets) {
			continue
		}
		if err := c.device.BindDescriptor(c.setFor(key.frame, key.group), key.binding, r); err != nil {
			return fmt.Errorf("compute %s: rebinding %q: %w", c.name, r.Label(), err)
		}
	}
	return nil
}

// setFor returns the descriptor set of one group. The caller holds c.mu.
func (c *computeShaderInterface) setFor(frame int, group uint32) gpu.DescriptorSet {
	i, _ := slices.BinarySearch(c.setGroups, group)
	return c.sets[frame][i]
}

func (c *computeShaderInterface) releaseSetsLocked() {
	releaseSets(c.sets)
	c.sets = nil
	c.state = nil
}

func releaseSets(sets [][]gpu.DescriptorSet) {
	for _, frame := range sets {
		for _, s := range frame {
			if s != nil {
				s.Release()
			}
		}
	}
}

func (c *computeShaderInterface) SubmitForExecution(x, y, z uint32) error {
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("compute %s: workgroup counts must be at least 1, got %d,%d,%d", c.name, x, y, z)
	}
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return fmt.Errorf("compute %s: submit after release", c.name)
	}
	c.counts = [3]uint32{x, y, z}
	c.frame = c.frames.CurrentIndex()
	c.mu.Unlock()
	c.manager.QueueShaderExecutionOnGraphicsQueue(c)
	return nil
}

func (c *computeShaderInterface) DispatchSize(threads [3]uint32) [3]uint32 {
	var out [3]uint32
	size := [3]uint32{1, 1, 1}
	if p := c.Pipeline(); p != nil {
		size = p.WorkgroupSize()
	}
	for i := range out {
		out[i] = max(common.DivCeil(threads[i], max(size[i], 1)), 1)
	}
	return out
}

func (c *computeShaderInterface) GroupCounts() [3]uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

func (c *computeShaderInterface) Dispatch(rec gpu.CommandRecorder, caps gpu.Capabilities) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return fmt.Errorf("compute %s: dispatch after release", c.name)
	}
	p := c.handle.Pipeline()
	if err := c.ensureSetsLocked(p); err != nil {
		c.mu.Unlock()
		return err
	}
	state, counts := c.state, c.counts
	var sets []gpu.DescriptorSet
	if c.sets != nil && c.frame < len(c.sets) {
		sets = c.sets[c.frame]
	}
	c.mu.Unlock()

	if state == nil {
		return fmt.Errorf("compute %s: pipeline has no backend state", c.name)
	}
	if err := caps.DispatchCompute(rec, state, sets, counts); err != nil {
		return fmt.Errorf("compute %s: %w", c.name, err)
	}
	return nil
}

func (c *computeShaderInterface) Release() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.releaseSetsLocked()
	c.mu.Unlock()
	if handle == nil {
		return
	}
	handle.Release()
	logger.Logger().Debug("compute interface released", slog.String("shader", c.name))
}
