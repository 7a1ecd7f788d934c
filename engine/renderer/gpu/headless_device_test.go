package gpu

import (
	"errors"
	"testing"
)

func computeBindings() []BindingLayout {
	return []BindingLayout{
		{Group: 0, Binding: 0, Name: "params", Kind: BindingUniformBuffer, Visibility: ShaderStageCompute},
		{Group: 0, Binding: 1, Name: "out", Kind: BindingStorageBuffer, Visibility: ShaderStageCompute},
		{Group: 1, Binding: 0, Name: "depth", Kind: BindingDepthTexture, Visibility: ShaderStageCompute},
	}
}

func TestHeadlessBindDescriptor(t *testing.T) {
	dev := NewHeadlessDevice()
	p, err := dev.CreateComputePipeline(&ComputePipelineDescriptor{Label: "cull", Bindings: computeBindings()})
	if err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}
	set, err := dev.CreateDescriptorSet(p, 0)
	if err != nil {
		t.Fatalf("CreateDescriptorSet: %v", err)
	}
	buf, _ := dev.CreateBuffer(BufferDescriptor{Label: "params", Size: 64, Usage: BufferUsageUniform})
	tex, _ := dev.CreateTexture(TextureDescriptor{Label: "depth", Width: 4, Height: 4, Format: TextureFormatDepth32Float})

	tests := []struct {
		name    string
		binding uint32
		res     Resource
		wantErr error
	}{
		{"declared buffer", 0, buf, nil},
		{"undeclared slot", 7, buf, ErrUnknownBinding},
		{"texture into buffer slot", 1, tex, errAny},
	}
	for _, tt := range tests {
		err := dev.BindDescriptor(set, tt.binding, tt.res)
		switch {
		case tt.wantErr == nil && err != nil:
			t.Errorf("%s: unexpected error %v", tt.name, err)
		case tt.wantErr == errAny && err == nil:
			t.Errorf("%s: expected an error", tt.name)
		case tt.wantErr != nil && tt.wantErr != errAny && !errors.Is(err, tt.wantErr):
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	dev.ResetEvents()
	if err := dev.BindDescriptor(set, 0, buf); err != nil {
		t.Fatal(err)
	}
	if n := len(dev.EventsOfKind(EventBindDescriptor)); n != 0 {
		t.Errorf("rebinding the same resource logged %d binds, want 0", n)
	}
}

var errAny = errors.New("any error")

func TestHeadlessDispatchNeedsRegionAndCompleteSets(t *testing.T) {
	dev := NewHeadlessDevice()
	p, _ := dev.CreateComputePipeline(&ComputePipelineDescriptor{Label: "cull", Bindings: computeBindings()})
	set0, _ := dev.CreateDescriptorSet(p, 0)
	params, _ := dev.CreateBuffer(BufferDescriptor{Label: "params", Size: 64})
	out, _ := dev.CreateBuffer(BufferDescriptor{Label: "out", Size: 64})
	_ = dev.BindDescriptor(set0, 0, params)

	rec, _ := dev.NewCommandRecorder("compute")
	if err := dev.DispatchCompute(rec, p, []DescriptorSet{set0}, [3]uint32{1, 1, 1}); !errors.Is(err, ErrNoActivePass) {
		t.Fatalf("dispatch outside region: err = %v, want ErrNoActivePass", err)
	}

	if err := rec.BeginComputeRegion("lights"); err != nil {
		t.Fatal(err)
	}
	if err := dev.DispatchCompute(rec, p, []DescriptorSet{set0}, [3]uint32{1, 1, 1}); !errors.Is(err, ErrIncompleteDescriptorSet) {
		t.Fatalf("dispatch with unbound slot: err = %v, want ErrIncompleteDescriptorSet", err)
	}
	_ = dev.BindDescriptor(set0, 1, out)
	if err := dev.DispatchCompute(rec, p, []DescriptorSet{set0}, [3]uint32{2, 3, 1}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := rec.EndComputeRegion(); err != nil {
		t.Fatal(err)
	}

	dispatches := dev.EventsOfKind(EventDispatch)
	if len(dispatches) != 1 || dispatches[0].Groups != [3]uint32{2, 3, 1} {
		t.Errorf("dispatches = %+v, want one 2x3x1 dispatch", dispatches)
	}
}

func TestHeadlessSubmissionsCompleteOnlyWhenWaited(t *testing.T) {
	dev := NewHeadlessDevice()
	rec, _ := dev.NewCommandRecorder("a")
	idx, err := dev.Submit(rec)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Completed() != 0 {
		t.Fatalf("Completed = %d before any wait", dev.Completed())
	}
	if _, err := dev.Submit(rec); err == nil {
		t.Error("submitting a recorder twice should fail")
	}
	if err := dev.WaitForSubmission(idx); err != nil {
		t.Fatal(err)
	}
	if dev.Completed() != idx {
		t.Errorf("Completed = %d, want %d", dev.Completed(), idx)
	}
	if err := dev.WaitForSubmission(idx + 5); err == nil {
		t.Error("waiting for a future submission should fail")
	}
}

func TestHeadlessSampleCountRequiresReleasedColorPipelines(t *testing.T) {
	dev := NewHeadlessDevice()
	p, err := dev.CreateGraphicsPipeline(&GraphicsPipelineDescriptor{Label: "mesh", Pass: RenderPassColor})
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetSampleCount(4); err == nil {
		t.Fatal("SetSampleCount should fail while a color pipeline is alive")
	}
	p.Release()
	p.Release()
	if dev.LivePipelines() != 0 {
		t.Fatalf("LivePipelines = %d, want 0", dev.LivePipelines())
	}
	if err := dev.SetSampleCount(4); err != nil {
		t.Fatalf("SetSampleCount: %v", err)
	}
	if dev.SampleCount() != 4 {
		t.Errorf("SampleCount = %d, want 4", dev.SampleCount())
	}
	if n := len(dev.EventsOfKind(EventReleasePipeline)); n != 1 {
		t.Errorf("release events = %d, want 1", n)
	}
}

func TestHeadlessPipelineCreationHook(t *testing.T) {
	boom := errors.New("compile failed")
	dev := NewHeadlessDevice(WithPipelineCreationHook(func(label string) error {
		if label == "broken" {
			return boom
		}
		return nil
	}))
	if _, err := dev.CreateComputePipeline(&ComputePipelineDescriptor{Label: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped compile error", err)
	}
	if dev.LivePipelines() != 0 {
		t.Errorf("LivePipelines = %d after failure", dev.LivePipelines())
	}
}

func TestHeadlessWriteBufferBounds(t *testing.T) {
	dev := NewHeadlessDevice()
	b, _ := dev.CreateBuffer(BufferDescriptor{Label: "small", Size: 16})
	if err := dev.WriteBuffer(b, 8, make([]byte, 8)); err != nil {
		t.Errorf("in-bounds write: %v", err)
	}
	if err := dev.WriteBuffer(b, 8, make([]byte, 9)); err == nil {
		t.Error("overflowing write should fail")
	}
}

func TestHeadlessReleasedDeviceIsLost(t *testing.T) {
	dev := NewHeadlessDevice()
	rec, _ := dev.NewCommandRecorder("late")
	dev.Release()
	dev.Release()

	if _, err := dev.Submit(rec); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Submit() error = %v, want ErrDeviceLost", err)
	}
	if err := dev.WaitIdle(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("WaitIdle() error = %v, want ErrDeviceLost", err)
	}
	if err := dev.AcquireNextImage(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("AcquireNextImage() error = %v, want ErrDeviceLost", err)
	}
}
