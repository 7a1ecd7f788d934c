package gpu

import (
	"fmt"
	"sync"
)

// EventKind identifies a command recorded by the headless device.
type EventKind int

const (
	EventCreateBuffer EventKind = iota
	EventCreateTexture
	EventCreateGraphicsPipeline
	EventCreateComputePipeline
	EventReleasePipeline
	EventCreateDescriptorSet
	EventBindDescriptor
	EventWriteBuffer
	EventBeginComputeRegion
	EventEndComputeRegion
	EventDispatch
	EventBeginRenderPass
	EventDraw
	EventEndRenderPass
	EventSubmit
	EventWait
	EventWaitIdle
	EventAcquireImage
	EventPresent
	EventResize
	EventSetSampleCount
)

func (k EventKind) String() string {
	switch k {
	case EventCreateBuffer:
		return "create-buffer"
	case EventCreateTexture:
		return "create-texture"
	case EventCreateGraphicsPipeline:
		return "create-graphics-pipeline"
	case EventCreateComputePipeline:
		return "create-compute-pipeline"
	case EventReleasePipeline:
		return "release-pipeline"
	case EventCreateDescriptorSet:
		return "create-descriptor-set"
	case EventBindDescriptor:
		return "bind-descriptor"
	case EventWriteBuffer:
		return "write-buffer"
	case EventBeginComputeRegion:
		return "begin-compute-region"
	case EventEndComputeRegion:
		return "end-compute-region"
	case EventDispatch:
		return "dispatch"
	case EventBeginRenderPass:
		return "begin-render-pass"
	case EventDraw:
		return "draw"
	case EventEndRenderPass:
		return "end-render-pass"
	case EventSubmit:
		return "submit"
	case EventWait:
		return "wait"
	case EventWaitIdle:
		return "wait-idle"
	case EventAcquireImage:
		return "acquire-image"
	case EventPresent:
		return "present"
	case EventResize:
		return "resize"
	case EventSetSampleCount:
		return "set-sample-count"
	default:
		return "unknown"
	}
}

// Event is one entry of the headless device's ordered command log.
type Event struct {
	Kind EventKind

	// Label is the label of the resource, pipeline, pass or region the event refers to.
	Label string

	// ResourceID is the ID of the buffer, texture, pipeline or set the event refers to.
	ResourceID uint64

	// Binding is the slot index for EventBindDescriptor.
	Binding uint32

	// Submission is set for EventSubmit and EventWait.
	Submission SubmissionIndex

	// Groups holds the workgroup counts for EventDispatch.
	Groups [3]uint32

	// Pass is set for EventBeginRenderPass.
	Pass RenderPassKind
}

// HeadlessDevice is a Device that executes nothing and records every command in order.
// Submissions stay pending until WaitForSubmission or WaitIdle reaches them, which lets tests
// check frame-slot hazards and command ordering without a GPU.
type HeadlessDevice interface {
	Device

	// Events returns a copy of the command log.
	Events() []Event

	// EventsOfKind returns the logged events of one kind, in order.
	EventsOfKind(kind EventKind) []Event

	// ResetEvents clears the command log.
	ResetEvents()

	// Completed returns the highest submission the device considers finished.
	Completed() SubmissionIndex

	// LivePipelines returns the number of pipeline states created and not yet released.
	LivePipelines() int

	// BufferContents returns a copy of the bytes written to a headless buffer.
	BufferContents(b Buffer) []byte

	// PresentMode returns the mode last set with SetPresentMode.
	PresentMode() PresentMode
}

var _ HeadlessDevice = &headlessDevice{}

type headlessDevice struct {
	mu *sync.Mutex

	backend        Backend
	shaderFormat   ShaderFormat
	framesInFlight int
	width, height  int
	sampleCount    uint32
	presentMode    PresentMode
	pipelineErr    func(label string) error

	events    []Event
	submitted SubmissionIndex
	completed SubmissionIndex
	live      map[uint64]*headlessPipeline
	imageHeld bool
	released  bool
}

// NewHeadlessDevice creates a recording device.
//
// Parameters:
//   - opts: optional settings applied on top of the defaults
//
// Returns:
//   - HeadlessDevice: the device
func NewHeadlessDevice(opts ...HeadlessDeviceBuilderOption) HeadlessDevice {
	d := &headlessDevice{
		mu:             &sync.Mutex{},
		backend:        BackendVulkan,
		shaderFormat:   ShaderFormatWGSL,
		framesInFlight: 2,
		width:          1280,
		height:         720,
		sampleCount:    1,
		live:           make(map[uint64]*headlessPipeline),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *headlessDevice) record(e Event) {
	d.events = append(d.events, e)
}

func (d *headlessDevice) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

func (d *headlessDevice) EventsOfKind(kind EventKind) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, e := range d.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (d *headlessDevice) ResetEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func (d *headlessDevice) Completed() SubmissionIndex {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

func (d *headlessDevice) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *headlessDevice) Backend() Backend {
	return d.backend
}

func (d *headlessDevice) ShaderFormat() ShaderFormat {
	return d.shaderFormat
}

func (d *headlessDevice) FramesInFlight() int {
	return d.framesInFlight
}

func (d *headlessDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("gpu: buffer %q has zero size", desc.Label)
	}
	b := &headlessBuffer{
		headlessResource: headlessResource{id: nextResourceID(), label: desc.Label},
		size:             desc.Size,
		usage:            desc.Usage,
		data:             make([]byte, desc.Size),
	}
	d.mu.Lock()
	d.record(Event{Kind: EventCreateBuffer, Label: desc.Label, ResourceID: b.id})
	d.mu.Unlock()
	return b, nil
}

func (d *headlessDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("gpu: texture %q has zero extent", desc.Label)
	}
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	t := &headlessTexture{
		headlessResource: headlessResource{id: nextResourceID(), label: desc.Label},
		width:            desc.Width,
		height:           desc.Height,
		format:           desc.Format,
		samples:          samples,
	}
	d.mu.Lock()
	d.record(Event{Kind: EventCreateTexture, Label: desc.Label, ResourceID: t.id})
	d.mu.Unlock()
	return t, nil
}

func (d *headlessDevice) newPipeline(label string, bindings []BindingLayout, color bool) (*headlessPipeline, error) {
	if d.pipelineErr != nil {
		if err := d.pipelineErr(label); err != nil {
			return nil, fmt.Errorf("gpu: failed to create pipeline %q: %w", label, err)
		}
	}
	p := &headlessPipeline{
		device:   d,
		id:       nextResourceID(),
		label:    label,
		bindings: append([]BindingLayout(nil), bindings...),
		color:    color,
		samples:  d.sampleCount,
	}
	d.live[p.id] = p
	return p, nil
}

func (d *headlessDevice) CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.newPipeline(desc.Label, desc.Bindings, desc.Pass == RenderPassColor)
	if err != nil {
		return nil, err
	}
	d.record(Event{Kind: EventCreateGraphicsPipeline, Label: desc.Label, ResourceID: p.id, Pass: desc.Pass})
	return p, nil
}

func (d *headlessDevice) CreateComputePipeline(desc *ComputePipelineDescriptor) (PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.newPipeline(desc.Label, desc.Bindings, false)
	if err != nil {
		return nil, err
	}
	d.record(Event{Kind: EventCreateComputePipeline, Label: desc.Label, ResourceID: p.id})
	return p, nil
}

func (d *headlessDevice) CreateDescriptorSet(p PipelineState, group uint32) (DescriptorSet, error) {
	hp, ok := p.(*headlessPipeline)
	if !ok || hp.released {
		return nil, fmt.Errorf("gpu: descriptor set requested for an invalid pipeline")
	}
	s := &headlessSet{
		id:       nextResourceID(),
		group:    group,
		pipeline: hp,
		declared: make(map[uint32]BindingLayout),
		bound:    make(map[uint32]Resource),
	}
	for _, b := range hp.bindings {
		if b.Group == group {
			s.declared[b.Binding] = b
		}
	}
	if len(s.declared) == 0 {
		return nil, fmt.Errorf("gpu: pipeline %q declares no bindings in group %d", hp.label, group)
	}
	d.mu.Lock()
	d.record(Event{Kind: EventCreateDescriptorSet, Label: hp.label, ResourceID: s.id})
	d.mu.Unlock()
	return s, nil
}

func (d *headlessDevice) BindDescriptor(set DescriptorSet, binding uint32, r Resource) error {
	s, ok := set.(*headlessSet)
	if !ok {
		return fmt.Errorf("gpu: foreign descriptor set")
	}
	layout, ok := s.declared[binding]
	if !ok {
		return fmt.Errorf("%w: group %d binding %d", ErrUnknownBinding, s.group, binding)
	}
	switch r.(type) {
	case Buffer:
		if !layout.Kind.IsBuffer() {
			return fmt.Errorf("gpu: binding %d (%s) cannot take a buffer", binding, layout.Kind)
		}
	case Texture:
		if !layout.Kind.IsTexture() {
			return fmt.Errorf("gpu: binding %d (%s) cannot take a texture", binding, layout.Kind)
		}
	}
	if cur := s.bound[binding]; cur != nil && cur.ID() == r.ID() {
		return nil
	}
	s.bound[binding] = r
	d.mu.Lock()
	d.record(Event{Kind: EventBindDescriptor, Label: r.Label(), ResourceID: r.ID(), Binding: binding})
	d.mu.Unlock()
	return nil
}

func (d *headlessDevice) WriteBuffer(b Buffer, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("gpu: write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, b.Label(), b.Size())
	}
	d.mu.Lock()
	if hb, ok := b.(*headlessBuffer); ok {
		copy(hb.data[offset:], data)
	}
	d.record(Event{Kind: EventWriteBuffer, Label: b.Label(), ResourceID: b.ID()})
	d.mu.Unlock()
	return nil
}

func (d *headlessDevice) BufferContents(b Buffer) []byte {
	hb, ok := b.(*headlessBuffer)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), hb.data...)
}

func (d *headlessDevice) NewCommandRecorder(label string) (CommandRecorder, error) {
	return &headlessRecorder{device: d, label: label}, nil
}

func (d *headlessDevice) DispatchCompute(rec CommandRecorder, p PipelineState, sets []DescriptorSet, groups [3]uint32) error {
	r, ok := rec.(*headlessRecorder)
	if !ok {
		return fmt.Errorf("gpu: foreign command recorder")
	}
	if !r.inRegion {
		return fmt.Errorf("%w: dispatch of %q outside a compute region", ErrNoActivePass, p.Label())
	}
	if err := checkSets(sets); err != nil {
		return err
	}
	d.mu.Lock()
	d.record(Event{Kind: EventDispatch, Label: p.Label(), ResourceID: p.ID(), Groups: groups})
	d.mu.Unlock()
	return nil
}

func (d *headlessDevice) Submit(rec CommandRecorder) (SubmissionIndex, error) {
	r, ok := rec.(*headlessRecorder)
	if !ok {
		return 0, fmt.Errorf("gpu: foreign command recorder")
	}
	if r.inRegion || r.inPass {
		return 0, fmt.Errorf("gpu: recorder %q submitted with an open region or pass", r.label)
	}
	if r.submitted {
		return 0, fmt.Errorf("gpu: recorder %q submitted twice", r.label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return 0, ErrDeviceLost
	}
	r.submitted = true
	d.submitted++
	d.record(Event{Kind: EventSubmit, Label: r.label, Submission: d.submitted})
	return d.submitted, nil
}

func (d *headlessDevice) WaitForSubmission(idx SubmissionIndex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx > d.submitted {
		return fmt.Errorf("gpu: wait for submission %d which was never submitted", idx)
	}
	d.record(Event{Kind: EventWait, Submission: idx})
	if idx > d.completed {
		d.completed = idx
	}
	return nil
}

func (d *headlessDevice) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceLost
	}
	d.record(Event{Kind: EventWaitIdle, Submission: d.submitted})
	d.completed = d.submitted
	return nil
}

func (d *headlessDevice) AcquireNextImage() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrDeviceLost
	}
	d.imageHeld = true
	d.record(Event{Kind: EventAcquireImage})
	return nil
}

func (d *headlessDevice) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.imageHeld {
		return fmt.Errorf("gpu: present without an acquired image")
	}
	d.imageHeld = false
	d.record(Event{Kind: EventPresent})
	return nil
}

func (d *headlessDevice) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("gpu: invalid surface size %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	d.record(Event{Kind: EventResize})
	return nil
}

func (d *headlessDevice) SurfaceSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *headlessDevice) SampleCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleCount
}

func (d *headlessDevice) SetSampleCount(count uint32) error {
	if count != 1 && count != 4 {
		return fmt.Errorf("gpu: unsupported sample count %d", count)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.live {
		if p.color && p.samples != count {
			return fmt.Errorf("gpu: pipeline %q still baked with %d samples", p.label, p.samples)
		}
	}
	d.sampleCount = count
	d.record(Event{Kind: EventSetSampleCount})
	return nil
}

func (d *headlessDevice) SetPresentMode(mode PresentMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentMode = mode
	return nil
}

func (d *headlessDevice) PresentMode() PresentMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presentMode
}

func (d *headlessDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.live = make(map[uint64]*headlessPipeline)
}

// checkSets fails when a descriptor set still has declared slots without a resource.
func checkSets(sets []DescriptorSet) error {
	for _, set := range sets {
		s, ok := set.(*headlessSet)
		if !ok {
			continue
		}
		for binding := range s.declared {
			if s.bound[binding] == nil {
				return fmt.Errorf("%w: group %d binding %d (%s)", ErrIncompleteDescriptorSet, s.group, binding, s.declared[binding].Name)
			}
		}
	}
	return nil
}

type headlessResource struct {
	id       uint64
	label    string
	released bool
}

func (r *headlessResource) ID() uint64 {
	return r.id
}

func (r *headlessResource) Label() string {
	return r.label
}

func (r *headlessResource) Release() {
	r.released = true
}

type headlessBuffer struct {
	headlessResource
	size  uint64
	usage BufferUsage
	data  []byte
}

func (b *headlessBuffer) Size() uint64 {
	return b.size
}

func (b *headlessBuffer) Usage() BufferUsage {
	return b.usage
}

type headlessTexture struct {
	headlessResource
	width, height uint32
	format        TextureFormat
	samples       uint32
}

func (t *headlessTexture) Width() uint32 {
	return t.width
}

func (t *headlessTexture) Height() uint32 {
	return t.height
}

func (t *headlessTexture) Format() TextureFormat {
	return t.format
}

func (t *headlessTexture) SampleCount() uint32 {
	return t.samples
}

type headlessPipeline struct {
	device   *headlessDevice
	id       uint64
	label    string
	bindings []BindingLayout
	color    bool
	samples  uint32
	released bool
}

func (p *headlessPipeline) ID() uint64 {
	return p.id
}

func (p *headlessPipeline) Label() string {
	return p.label
}

func (p *headlessPipeline) Bindings() []BindingLayout {
	return p.bindings
}

func (p *headlessPipeline) Release() {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	delete(p.device.live, p.id)
	p.device.record(Event{Kind: EventReleasePipeline, Label: p.label, ResourceID: p.id})
}

type headlessSet struct {
	id       uint64
	group    uint32
	pipeline *headlessPipeline
	declared map[uint32]BindingLayout
	bound    map[uint32]Resource
}

func (s *headlessSet) ID() uint64 {
	return s.id
}

func (s *headlessSet) Group() uint32 {
	return s.group
}

func (s *headlessSet) Bound(binding uint32) Resource {
	return s.bound[binding]
}

func (s *headlessSet) Release() {
	s.bound = make(map[uint32]Resource)
}

type headlessRecorder struct {
	device    *headlessDevice
	label     string
	inRegion  bool
	inPass    bool
	submitted bool
}

func (r *headlessRecorder) Label() string {
	return r.label
}

func (r *headlessRecorder) BeginComputeRegion(label string) error {
	if r.inPass {
		return fmt.Errorf("gpu: compute region %q opened inside a render pass", label)
	}
	if r.inRegion {
		return fmt.Errorf("gpu: compute region %q opened inside another region", label)
	}
	r.inRegion = true
	r.device.mu.Lock()
	r.device.record(Event{Kind: EventBeginComputeRegion, Label: label})
	r.device.mu.Unlock()
	return nil
}

func (r *headlessRecorder) EndComputeRegion() error {
	if !r.inRegion {
		return fmt.Errorf("%w: no compute region to end", ErrNoActivePass)
	}
	r.inRegion = false
	r.device.mu.Lock()
	r.device.record(Event{Kind: EventEndComputeRegion})
	r.device.mu.Unlock()
	return nil
}

func (r *headlessRecorder) BeginRenderPass(desc RenderPassDescriptor) error {
	if r.inPass || r.inRegion {
		return fmt.Errorf("gpu: render pass %q opened while another pass or region is open", desc.Label)
	}
	if desc.Kind != RenderPassColor && desc.Depth == nil {
		return fmt.Errorf("gpu: %s pass %q needs a depth attachment", desc.Kind, desc.Label)
	}
	r.inPass = true
	r.device.mu.Lock()
	r.device.record(Event{Kind: EventBeginRenderPass, Label: desc.Label, Pass: desc.Kind})
	r.device.mu.Unlock()
	return nil
}

func (r *headlessRecorder) Draw(call DrawCall) error {
	if !r.inPass {
		return fmt.Errorf("%w: draw outside a render pass", ErrNoActivePass)
	}
	if call.Pipeline == nil {
		return fmt.Errorf("gpu: draw without a pipeline")
	}
	if err := checkSets(call.Sets); err != nil {
		return err
	}
	r.device.mu.Lock()
	r.device.record(Event{Kind: EventDraw, Label: call.Pipeline.Label(), ResourceID: call.Pipeline.ID()})
	r.device.mu.Unlock()
	return nil
}

func (r *headlessRecorder) EndRenderPass() error {
	if !r.inPass {
		return fmt.Errorf("%w: no render pass to end", ErrNoActivePass)
	}
	r.inPass = false
	r.device.mu.Lock()
	r.device.record(Event{Kind: EventEndRenderPass})
	r.device.mu.Unlock()
	return nil
}
