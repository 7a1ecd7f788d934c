package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

const testVertexShader = `
struct FrameConstants {
    view_projection: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> frame_constants: FrameConstants;

struct VertexInput {
    @location(0) position: vec3<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return frame_constants.view_projection * vec4<f32>(in.position, 1.0);
}
`

const testPixelShader = `
struct GeneralLighting {
    ambient: vec4<f32>,
}

//@lumen:ifdef PS_USE_DIFFUSE_TEXTURE
@group(1) @binding(1) var diffuse: texture_2d<f32>;
//@lumen:endif
@group(1) @binding(0) var<uniform> general_lighting: GeneralLighting;

@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return general_lighting.ambient;
}
`

const testComputeShader = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}
`

func newTestManager(t *testing.T, opts ...gpu.HeadlessDeviceBuilderOption) (Manager, gpu.HeadlessDevice) {
	t.Helper()
	dev := gpu.NewHeadlessDevice(opts...)
	reg := shader.NewRegistry(gpu.ShaderFormatWGSL)
	for _, s := range []struct {
		name   string
		stage  gpu.ShaderStage
		source string
	}{
		{"mesh.vs", gpu.ShaderStageVertex, testVertexShader},
		{"mesh.ps", gpu.ShaderStageFragment, testPixelShader},
		{"test/double", gpu.ShaderStageCompute, testComputeShader},
	} {
		if err := reg.Register(s.name, s.stage, s.source); err != nil {
			t.Fatal(err)
		}
	}
	reg.MarkReady()
	return NewManager(dev, reg), dev
}

func meshConfig(pixelMacros ...string) GraphicsPipelineConfig {
	return GraphicsPipelineConfig{
		VertexShader: "mesh.vs",
		PixelShader:  "mesh.ps",
		PixelMacros:  pixelMacros,
	}
}

func TestIdentitySharing(t *testing.T) {
	m, dev := newTestManager(t)
	a, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "b"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Pipeline() != b.Pipeline() {
		t.Error("identical requests should share one pipeline")
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 1 {
		t.Errorf("GetCurrentGraphicsPipelineCount() = %d, want 1", got)
	}
	if got := a.Pipeline().Users(); got != 2 {
		t.Errorf("Users() = %d, want 2", got)
	}
	if got := len(dev.EventsOfKind(gpu.EventCreateGraphicsPipeline)); got != 1 {
		t.Errorf("created %d backend pipelines, want 1", got)
	}

	// the same shaders under another kind are a different pipeline
	depth, err := m.GetGraphicsPipeline(PipelineKindDepthOnly, meshConfig(), NewRequester(RequesterMaterial, "a"))
	if err != nil {
		t.Fatal(err)
	}
	if depth.Pipeline() == a.Pipeline() {
		t.Error("depth-only and opaque pipelines must differ")
	}
	if depth.Pipeline().Identity().PixelShader != "" {
		t.Errorf("depth-only identity = %v, want no pixel shader", depth.Pipeline().Identity())
	}
}

func TestReferenceCounting(t *testing.T) {
	tests := []struct {
		name    string
		release int
		want    int
	}{
		{"release none", 0, 1},
		{"release one", 1, 1},
		{"release both", 2, 0},
	}
	for _, tt := range tests {
		m, dev := newTestManager(t)
		ptrs := make([]*SharedPtr, 2)
		for i := range ptrs {
			p, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "m"))
			if err != nil {
				t.Fatal(err)
			}
			ptrs[i] = p
		}
		for i := range tt.release {
			ptrs[i].Release()
		}
		if got := m.GetCurrentGraphicsPipelineCount(); got != tt.want {
			t.Errorf("%s: count = %d, want %d", tt.name, got, tt.want)
		}
		if got := dev.LivePipelines(); got != tt.want {
			t.Errorf("%s: live backend pipelines = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	m, _ := newTestManager(t)
	a, _ := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "a"))
	b, _ := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "b"))
	a.Release()
	a.Release()
	if got := b.Pipeline().Users(); got != 1 {
		t.Errorf("Users() = %d after a double release, want 1", got)
	}
	if !a.Released() || b.Released() {
		t.Error("Released() flags are wrong")
	}
}

func TestMaterialScenario(t *testing.T) {
	m, _ := newTestManager(t)
	first, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "first"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "second"))
	if err != nil {
		t.Fatal(err)
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	textured, err := m.GetGraphicsPipelineForMaterial(meshConfig("PS_USE_DIFFUSE_TEXTURE"), NewRequester(RequesterMaterial, "textured"))
	if err != nil {
		t.Fatal(err)
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	if _, ok := textured.Pipeline().Binding("diffuse"); !ok {
		t.Error("textured permutation should declare the diffuse binding")
	}
	if _, ok := first.Pipeline().Binding("diffuse"); ok {
		t.Error("plain permutation should not declare the diffuse binding")
	}

	for _, p := range []*SharedPtr{first, second, textured} {
		p.Release()
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("count = %d after releasing every material, want 0", got)
	}
}

func TestMacroPrefixValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GraphicsPipelineConfig
	}{
		{"vertex macro without VS_", GraphicsPipelineConfig{VertexShader: "mesh.vs", PixelShader: "mesh.ps", VertexMacros: []string{"SKINNED"}}},
		{"vertex macro with PS_", GraphicsPipelineConfig{VertexShader: "mesh.vs", PixelShader: "mesh.ps", VertexMacros: []string{"PS_SKINNED"}}},
		{"pixel macro without PS_", GraphicsPipelineConfig{VertexShader: "mesh.vs", PixelShader: "mesh.ps", PixelMacros: []string{"USE_DIFFUSE"}}},
	}
	for _, tt := range tests {
		m, dev := newTestManager(t)
		_, err := m.GetGraphicsPipelineForMaterial(tt.cfg, NewRequester(RequesterMaterial, "bad"))
		if !errors.Is(err, ErrInvalidMacroPrefix) {
			t.Errorf("%s: err = %v, want ErrInvalidMacroPrefix", tt.name, err)
		}
		if got := m.GetCurrentGraphicsPipelineCount(); got != 0 {
			t.Errorf("%s: count = %d, want 0", tt.name, got)
		}
		if got := dev.LivePipelines(); got != 0 {
			t.Errorf("%s: live backend pipelines = %d, want 0", tt.name, got)
		}
	}
}

func TestUnknownShaderAndBackendFailure(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.GetGraphicsPipelineForMaterial(GraphicsPipelineConfig{VertexShader: "missing.vs", PixelShader: "mesh.ps"}, NewRequester(RequesterMaterial, "x"))
	if !errors.Is(err, ErrShaderNotRegistered) {
		t.Errorf("err = %v, want ErrShaderNotRegistered", err)
	}
	if _, err := m.GetGraphicsPipelineForMaterial(GraphicsPipelineConfig{VertexShader: "mesh.ps", PixelShader: "mesh.ps"}, NewRequester(RequesterMaterial, "x")); err == nil {
		t.Error("a pixel shader used as vertex shader should fail")
	}

	boom := errors.New("driver rejected pipeline")
	failing, _ := newTestManager(t, gpu.WithPipelineCreationHook(func(string) error { return boom }))
	_, err = failing.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "x"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the wrapped backend error", err)
	}
	if got := failing.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("count = %d after a failed creation, want 0", got)
	}
}

func TestSweepOfUnknownIdentityIsLogged(t *testing.T) {
	m, _ := newTestManager(t)
	m.OnPipelineNoLongerUsedByMaterial(PipelineKindOpaque, ShaderIdentity{VertexShader: "nope"})
	if got := m.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

type countingListener struct {
	mu       sync.Mutex
	created  []Pipeline
	restored int
}

func (l *countingListener) BindDescriptorsToRecreatedPipelineResources() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.restored++
	return nil
}

func (l *countingListener) UpdateDescriptorsForPipelineResource(p Pipeline) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, p)
	return nil
}

func TestListenerSeesNewPipelinesOnce(t *testing.T) {
	m, _ := newTestManager(t)
	l := &countingListener{}
	m.AddResourceListener(l)
	_, _ = m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "a"))
	_, _ = m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "b"))
	if len(l.created) != 1 {
		t.Errorf("listener saw %d new pipelines, want 1", len(l.created))
	}
	m.RemoveResourceListener(l)
	_, _ = m.GetGraphicsPipelineForMaterial(meshConfig("PS_USE_DIFFUSE_TEXTURE"), NewRequester(RequesterMaterial, "c"))
	if len(l.created) != 1 {
		t.Error("removed listener was still notified")
	}
}

func TestClearAndRestore(t *testing.T) {
	renderLock := &sync.Mutex{}
	dev := gpu.NewHeadlessDevice(gpu.WithHeadlessSampleCount(4))
	reg := shader.NewRegistry(gpu.ShaderFormatWGSL)
	_ = reg.Register("mesh.vs", gpu.ShaderStageVertex, testVertexShader)
	_ = reg.Register("mesh.ps", gpu.ShaderStageFragment, testPixelShader)
	m := NewManager(dev, reg, WithRenderLock(renderLock))
	l := &countingListener{}
	m.AddResourceListener(l)

	ptr, err := m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "a"))
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := dev.CreateBuffer(gpu.BufferDescriptor{Label: "frame", Size: 64, Usage: gpu.BufferUsageUniform})
	if err := ptr.Pipeline().BindResourceAllFrames("frame_constants", buf); err != nil {
		t.Fatal(err)
	}

	if err := dev.SetSampleCount(1); err == nil {
		t.Fatal("changing the sample count with live colour pipelines should fail")
	}

	guard, err := m.ClearGraphicsPipelinesInternalResourcesAndDelayRestoring()
	if err != nil {
		t.Fatal(err)
	}
	if renderLock.TryLock() {
		t.Fatal("rendering should be paused while pipelines are released")
	}
	if ptr.Pipeline().State() != nil {
		t.Error("backend state should be released")
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 1 {
		t.Errorf("logical pipelines = %d, want 1", got)
	}
	if err := dev.SetSampleCount(1); err != nil {
		t.Fatalf("SetSampleCount while released: %v", err)
	}

	if err := guard.Restore(); err != nil {
		t.Fatal(err)
	}
	if err := guard.Restore(); err != nil {
		t.Fatal(err)
	}
	if !renderLock.TryLock() {
		t.Fatal("rendering should resume after Restore")
	}
	renderLock.Unlock()

	if ptr.Pipeline().State() == nil {
		t.Error("backend state should be recreated")
	}
	if l.restored != 1 {
		t.Errorf("listener restored %d times, want 1", l.restored)
	}
	for f := range dev.FramesInFlight() {
		sets := ptr.Pipeline().DescriptorSets(f)
		if len(sets) == 0 || sets[0].Bound(0) == nil || sets[0].Bound(0).ID() != buf.ID() {
			t.Errorf("frame %d: frame constants not rebound after restore", f)
		}
	}
}

type fakeCompute struct {
	requester Requester
	group     int
	groups    [3]uint32
	ptr       *SharedPtr
}

func (f *fakeCompute) ExecutionStage() ExecutionStage { return StageAfterDepthPrePass }
func (f *fakeCompute) ExecutionGroup() int            { return f.group }
func (f *fakeCompute) Requester() Requester           { return f.requester }

func (f *fakeCompute) Dispatch(rec gpu.CommandRecorder, caps gpu.Capabilities) error {
	p := f.ptr.Pipeline()
	return caps.DispatchCompute(rec, p.State(), p.DescriptorSets(0), f.groups)
}

func newFakeCompute(t *testing.T, m Manager, dev gpu.Device, group int) *fakeCompute {
	t.Helper()
	req := NewRequester(RequesterComputeInterface, "fake")
	ptr, err := m.GetComputePipelineForShader("test/double", nil, req)
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := dev.CreateBuffer(gpu.BufferDescriptor{Label: "data", Size: 256, Usage: gpu.BufferUsageStorage})
	if err := ptr.Pipeline().BindResourceAllFrames("data", buf); err != nil {
		t.Fatal(err)
	}
	return &fakeCompute{requester: req, group: group, ptr: ptr}
}

func TestIdempotentQueuing(t *testing.T) {
	m, dev := newTestManager(t)
	q := newFakeCompute(t, m, dev, 0)

	q.groups = [3]uint32{1, 1, 1}
	m.QueueShaderExecutionOnGraphicsQueue(q)
	q.groups = [3]uint32{8, 4, 1}
	m.QueueShaderExecutionOnGraphicsQueue(q)
	if got := m.QueuedCount(StageAfterDepthPrePass); got != 1 {
		t.Errorf("QueuedCount = %d, want 1", got)
	}

	rec, _ := dev.NewCommandRecorder("frame")
	if err := m.ExecuteQueuedComputeShaders(StageAfterDepthPrePass, rec); err != nil {
		t.Fatal(err)
	}
	dispatches := dev.EventsOfKind(gpu.EventDispatch)
	if len(dispatches) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(dispatches))
	}
	if dispatches[0].Groups != [3]uint32{8, 4, 1} {
		t.Errorf("Groups = %v, want the latest counts [8 4 1]", dispatches[0].Groups)
	}
	if got := m.QueuedCount(StageAfterDepthPrePass); got != 0 {
		t.Errorf("queue not drained: %d entries", got)
	}
}

func TestComputeGroupsAreOrderedRegions(t *testing.T) {
	m, dev := newTestManager(t)
	late := newFakeCompute(t, m, dev, 1)
	early := newFakeCompute(t, m, dev, 0)
	late.groups = [3]uint32{2, 1, 1}
	early.groups = [3]uint32{1, 1, 1}
	m.QueueShaderExecutionOnGraphicsQueue(late)
	m.QueueShaderExecutionOnGraphicsQueue(early)

	rec, _ := dev.NewCommandRecorder("frame")
	dev.ResetEvents()
	if err := m.ExecuteQueuedComputeShaders(StageAfterDepthPrePass, rec); err != nil {
		t.Fatal(err)
	}
	var kinds []gpu.EventKind
	var groups [][3]uint32
	for _, e := range dev.Events() {
		kinds = append(kinds, e.Kind)
		if e.Kind == gpu.EventDispatch {
			groups = append(groups, e.Groups)
		}
	}
	want := []gpu.EventKind{
		gpu.EventBeginComputeRegion, gpu.EventDispatch, gpu.EventEndComputeRegion,
		gpu.EventBeginComputeRegion, gpu.EventDispatch, gpu.EventEndComputeRegion,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], want[i])
		}
	}
	if groups[0] != early.groups || groups[1] != late.groups {
		t.Errorf("dispatch order = %v, want group 0 before group 1", groups)
	}
}

func TestComputeReleaseUnqueues(t *testing.T) {
	m, dev := newTestManager(t)
	a := newFakeCompute(t, m, dev, 0)
	b := newFakeCompute(t, m, dev, 0)
	if a.ptr.Pipeline() != b.ptr.Pipeline() {
		t.Error("compute interfaces of one shader should share the pipeline")
	}
	a.groups = [3]uint32{1, 1, 1}
	m.QueueShaderExecutionOnGraphicsQueue(a)

	a.ptr.Release()
	if got := m.QueuedCount(StageAfterDepthPrePass); got != 0 {
		t.Errorf("released interface still queued: %d", got)
	}
	if got := m.GetCurrentComputePipelineCount(); got != 1 {
		t.Errorf("compute count = %d, want 1", got)
	}
	b.ptr.Release()
	if got := m.GetCurrentComputePipelineCount(); got != 0 {
		t.Errorf("compute count = %d, want 0", got)
	}
}

func TestPrecompile(t *testing.T) {
	m, _ := newTestManager(t)
	defer m.Release()
	err := m.Precompile([]PrecompileRequest{
		{Kind: PipelineKindOpaque, Config: meshConfig()},
		{Kind: PipelineKindTransparent, Config: meshConfig("PS_USE_DIFFUSE_TEXTURE")},
		{Kind: PipelineKindShadowPoint, Config: meshConfig()},
		{Kind: PipelineKindCompute, Config: GraphicsPipelineConfig{VertexShader: "test/double"}},
	})
	if err != nil {
		t.Fatalf("Precompile: %v", err)
	}
	if got := m.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("precompiling should not register pipelines, count = %d", got)
	}

	err = m.Precompile([]PrecompileRequest{
		{Kind: PipelineKindOpaque, Config: GraphicsPipelineConfig{VertexShader: "mesh.vs", PixelShader: "mesh.ps", PixelMacros: []string{"NO_PREFIX"}}},
		{Kind: PipelineKindCompute, Config: GraphicsPipelineConfig{VertexShader: "missing"}},
	})
	if !errors.Is(err, ErrInvalidMacroPrefix) || !errors.Is(err, ErrShaderNotRegistered) {
		t.Errorf("err = %v, want both request errors joined", err)
	}
}

func TestReleaseWithLiveHandlesPanics(t *testing.T) {
	tests := []struct {
		name    string
		acquire func(m Manager) (*SharedPtr, error)
	}{
		{"material handle", func(m Manager) (*SharedPtr, error) {
			return m.GetGraphicsPipelineForMaterial(meshConfig(), NewRequester(RequesterMaterial, "stone"))
		}},
		{"compute handle", func(m Manager) (*SharedPtr, error) {
			return m.GetComputePipelineForShader("test/double", nil, NewRequester(RequesterComputeInterface, "double"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t)
			ptr, err := tt.acquire(m)
			if err != nil {
				t.Fatal(err)
			}

			func() {
				defer func() {
					if r := recover(); r == nil {
						t.Error("Release() with a live handle did not panic")
					}
				}()
				m.Release()
			}()
			if got := ptr.Pipeline().State(); got == nil {
				t.Error("State() = nil, want the backend state kept after the failed release")
			}

			ptr.Release()
			m.Release()
			if got := m.GetCurrentGraphicsPipelineCount() + m.GetCurrentComputePipelineCount(); got != 0 {
				t.Errorf("pipelines after release = %d, want 0", got)
			}
		})
	}
}
