package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

// slotKey addresses one descriptor slot of one frame-in-flight copy.
type slotKey struct {
	frame   int
	group   uint32
	binding uint32
}

// pipeline is the implementation of the Pipeline interface.
// The logical pipeline (identity, programs, recorded bindings) outlives its backend state, which can be
// released and recreated while the pipeline stays registered.
type pipeline struct {
	mu     *sync.Mutex
	device gpu.Device

	kind     PipelineKind
	identity ShaderIdentity
	macros   MacroSet
	label    string
	frames   int

	// the following programs are compiled before the pipeline is created; compute pipelines only set compute.

	vertex, pixel, compute *shader.Program

	bindings []gpu.BindingLayout
	byName   map[string]gpu.BindingLayout
	groups   []uint32

	pass                gpu.RenderPassKind
	depthTest           bool
	depthWrite          bool
	blend               bool
	cullMode            gpu.CullMode
	depthBias           int32
	depthBiasSlopeScale float32

	// state and sets are nil while the backend state is released.
	state gpu.PipelineState
	sets  [][]gpu.DescriptorSet

	// bound remembers every resource bound through BindResource so it can be rebound after a restore.
	bound map[slotKey]gpu.Resource

	users atomic.Int32
}

// Pipeline is a compiled graphics or compute pipeline bound to specific shader names and a macro
// configuration. It owns one descriptor set per bind group for every frame-in-flight slot.
type Pipeline interface {
	// Kind returns the role of the pipeline.
	//
	// Returns:
	//   - PipelineKind: the kind the pipeline was registered under
	Kind() PipelineKind

	// Identity returns the shader names the pipeline was built from. Compute pipelines carry their
	// shader name in VertexShader.
	//
	// Returns:
	//   - ShaderIdentity: the shader identity
	Identity() ShaderIdentity

	// Macros returns the material-defined macro set of the pipeline.
	//
	// Returns:
	//   - MacroSet: the macro set
	Macros() MacroSet

	// Label returns the debug label of the pipeline.
	//
	// Returns:
	//   - string: the label
	Label() string

	// State returns the backend pipeline object.
	//
	// Returns:
	//   - gpu.PipelineState: the backend object, or nil while released
	State() gpu.PipelineState

	// Bindings returns the merged resource bindings of every stage.
	//
	// Returns:
	//   - []gpu.BindingLayout: the bindings sorted by group and binding
	Bindings() []gpu.BindingLayout

	// Binding looks up a binding by its shader-side name.
	//
	// Parameters:
	//   - name: the variable name declared in the shader source
	//
	// Returns:
	//   - gpu.BindingLayout: the binding
	//   - bool: whether the name is declared
	Binding(name string) (gpu.BindingLayout, bool)

	// WorkgroupSize returns the workgroup size of a compute pipeline.
	//
	// Returns:
	//   - [3]uint32: the workgroup size, zero for graphics pipelines
	WorkgroupSize() [3]uint32

	// DescriptorSets returns the descriptor sets of one frame-in-flight slot, one per declared group.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//
	// Returns:
	//   - []gpu.DescriptorSet: the sets in ascending group order, or nil while released
	DescriptorSets(frame int) []gpu.DescriptorSet

	// BindResource binds a resource to a named binding for one frame-in-flight slot. The binding is
	// remembered and reapplied when the backend state is recreated.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - name: the shader-side binding name
	//   - r: the buffer or texture to bind
	//
	// Returns:
	//   - error: gpu.ErrUnknownBinding if the name is not declared, or the backend error
	BindResource(frame int, name string, r gpu.Resource) error

	// BindResourceAllFrames binds a resource to a named binding for every frame-in-flight slot.
	//
	// Parameters:
	//   - name: the shader-side binding name
	//   - r: the buffer or texture to bind
	//
	// Returns:
	//   - error: gpu.ErrUnknownBinding if the name is not declared, or the backend error
	BindResourceAllFrames(name string, r gpu.Resource) error

	// Bound returns the resource recorded for a named binding of one frame-in-flight slot.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//   - name: the shader-side binding name
	//
	// Returns:
	//   - gpu.Resource: the bound resource, or nil
	Bound(frame int, name string) gpu.Resource

	// Users returns the number of live handles referencing the pipeline.
	//
	// Returns:
	//   - int: the external reference count
	Users() int
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a standalone pipeline and its backend state. Pipelines shared between
// materials are obtained from a Manager instead.
//
// Parameters:
//   - device: the device that creates the backend objects
//   - kind: the role of the pipeline, which selects its fixed-function defaults
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: the created pipeline
//   - error: an error if the programs are missing or incompatible, or the backend error
func NewPipeline(device gpu.Device, kind PipelineKind, opts ...PipelineBuilderOption) (Pipeline, error) {
	p, err := newPipeline(device, kind, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.create(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPipeline(device gpu.Device, kind PipelineKind, opts ...PipelineBuilderOption) (*pipeline, error) {
	p := &pipeline{
		mu:       &sync.Mutex{},
		device:   device,
		kind:     kind,
		frames:   device.FramesInFlight(),
		cullMode: gpu.CullModeNone,
		bound:    make(map[slotKey]gpu.Resource),
	}
	for _, opt := range kind.options() {
		opt(p)
	}
	for _, opt := range opts {
		opt(p)
	}

	var stages [][]gpu.BindingLayout
	if kind == PipelineKindCompute {
		if p.compute == nil {
			return nil, errors.New("pipeline: compute pipeline without a compute program")
		}
		stages = append(stages, p.compute.Bindings)
	} else {
		if p.vertex == nil {
			return nil, fmt.Errorf("pipeline: %s pipeline without a vertex program", kind)
		}
		if kind.UsesPixelShader() && p.pixel == nil {
			return nil, fmt.Errorf("pipeline: %s pipeline without a pixel program", kind)
		}
		stages = append(stages, p.vertex.Bindings)
		if p.pixel != nil {
			stages = append(stages, p.pixel.Bindings)
		}
	}
	merged, err := shader.MergeBindings(stages...)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.identity, err)
	}
	p.bindings = merged
	p.byName = make(map[string]gpu.BindingLayout, len(merged))
	for _, b := range merged {
		p.byName[b.Name] = b
		if !slices.Contains(p.groups, b.Group) {
			p.groups = append(p.groups, b.Group)
		}
	}
	slices.Sort(p.groups)

	p.label = kind.String() + ":" + p.identity.String()
	if p.macros.Len() > 0 {
		p.label += "[" + p.macros.Key() + "]"
	}
	return p, nil
}

func (p *pipeline) Kind() PipelineKind {
	return p.kind
}

func (p *pipeline) Identity() ShaderIdentity {
	return p.identity
}

func (p *pipeline) Macros() MacroSet {
	return p.macros
}

func (p *pipeline) Label() string {
	return p.label
}

func (p *pipeline) State() gpu.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *pipeline) Bindings() []gpu.BindingLayout {
	return slices.Clone(p.bindings)
}

func (p *pipeline) Binding(name string) (gpu.BindingLayout, bool) {
	b, ok := p.byName[name]
	return b, ok
}

func (p *pipeline) WorkgroupSize() [3]uint32 {
	if p.compute == nil {
		return [3]uint32{}
	}
	return p.compute.WorkgroupSize
}

func (p *pipeline) DescriptorSets(frame int) []gpu.DescriptorSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sets == nil || frame < 0 || frame >= len(p.sets) {
		return nil
	}
	return p.sets[frame]
}

func (p *pipeline) BindResource(frame int, name string, r gpu.Resource) error {
	b, ok := p.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q in pipeline %s", gpu.ErrUnknownBinding, name, p.label)
	}
	if frame < 0 || frame >= p.frames {
		return fmt.Errorf("pipeline %s: frame index %d out of range", p.label, frame)
	}
	if r == nil {
		return fmt.Errorf("pipeline %s: nil resource for binding %q", p.label, name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := slotKey{frame: frame, group: b.Group, binding: b.Binding}
	p.bound[key] = r
	if p.sets == nil {
		return nil
	}
	if err := p.device.BindDescriptor(p.setFor(frame, b.Group), b.Binding, r); err != nil {
		return fmt.Errorf("pipeline %s: binding %q: %w", p.label, name, err)
	}
	return nil
}

func (p *pipeline) BindResourceAllFrames(name string, r gpu.Resource) error {
	for f := range p.frames {
		if err := p.BindResource(f, name, r); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) Bound(frame int, name string) gpu.Resource {
	b, ok := p.byName[name]
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound[slotKey{frame: frame, group: b.Group, binding: b.Binding}]
}

func (p *pipeline) Users() int {
	return int(p.users.Load())
}

// setFor returns the descriptor set of one group. The caller holds p.mu.
func (p *pipeline) setFor(frame int, group uint32) gpu.DescriptorSet {
	i, _ := slices.BinarySearch(p.groups, group)
	return p.sets[frame][i]
}

// create builds the backend pipeline object and its descriptor sets, then reapplies every
// recorded binding. It is a no-op while the backend state exists.
func (p *pipeline) create() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != nil {
		return nil
	}

	var (
		state gpu.PipelineState
		err   error
	)
	if p.kind == PipelineKindCompute {
		state, err = p.device.CreateComputePipeline(&gpu.ComputePipelineDescriptor{
			Label:    p.label,
			Compute:  p.compute.Module(),
			Bindings: p.bindings,
		})
	} else {
		desc := &gpu.GraphicsPipelineDescriptor{
			Label:               p.label,
			Vertex:              p.vertex.Module(),
			VertexBuffers:       p.vertex.VertexBuffers,
			Bindings:            p.bindings,
			Pass:                p.pass,
			DepthTest:           p.depthTest,
			DepthWrite:          p.depthWrite,
			Blend:               p.blend,
			CullMode:            p.cullMode,
			DepthBias:           p.depthBias,
			DepthBiasSlopeScale: p.depthBiasSlopeScale,
		}
		if p.pixel != nil {
			m := p.pixel.Module()
			desc.Fragment = &m
		}
		state, err = p.device.CreateGraphicsPipeline(desc)
	}
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.label, err)
	}

	sets := make([][]gpu.DescriptorSet, p.frames)
	for f := range sets {
		sets[f] = make([]gpu.DescriptorSet, 0, len(p.groups))
		for _, g := range p.groups {
			s, err := p.device.CreateDescriptorSet(state, g)
			if err != nil {
				releaseSets(sets)
				state.Release()
				return fmt.Errorf("pipeline %s: descriptor set for group %d: %w", p.label, g, err)
			}
			sets[f] = append(sets[f], s)
		}
	}
	p.state = state
	p.sets = sets

	for key, r := range p.bound {
		if err := p.device.BindDescriptor(p.setFor(key.frame, key.group), key.binding, r); err != nil {
			return fmt.Errorf("pipeline %s: rebinding %q: %w", p.label, r.Label(), err)
		}
	}
	logger.Logger().Debug("pipeline created",
		slog.String("pipeline", p.label),
		slog.Int("bindings", len(p.bindings)),
		slog.Int("rebound", len(p.bound)))
	return nil
}

// releaseBackend frees the backend state while keeping the logical pipeline and its recorded bindings.
func (p *pipeline) releaseBackend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return
	}
	releaseSets(p.sets)
	p.sets = nil
	p.state.Release()
	p.state = nil
	logger.Logger().Debug("pipeline backend released", slog.String("pipeline", p.label))
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
