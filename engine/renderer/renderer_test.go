package renderer_test

import (
	"testing"

	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/Carmen-Shannon/lumen/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

type fixture struct {
	dev   gpu.HeadlessDevice
	r     renderer.Renderer
	scene scene.Scene
}

// newFixture builds a renderer on a 320x180 headless surface with two opaque cubes in front of
// the camera and one behind it.
func newFixture(t *testing.T, opts ...renderer.RendererBuilderOption) *fixture {
	t.Helper()
	dev := gpu.NewHeadlessDevice(gpu.WithHeadlessSurfaceSize(320, 180))
	r, err := renderer.NewRenderer(dev, opts...)
	if err != nil {
		t.Fatal(err)
	}
	cam := camera.NewCamera(camera.WithLookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}), camera.WithAspect(16.0/9.0))
	s := scene.NewScene("test", cam, r.Lighting())

	mat, err := material.NewMaterial(r.Pipelines(), material.WithName("stone"))
	if err != nil {
		t.Fatal(err)
	}
	mesh, bounds, err := scene.NewCubeMesh(dev, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, pos := range []mgl32.Vec3{{-2, 0, 0}, {2, 0, 0}, {0, 0, 20}} {
		s.AddMesh(scene.NewMeshNode(mesh, mat,
			scene.WithLocalBounds(bounds),
			scene.WithTransform(pos, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})))
	}
	t.Cleanup(func() {
		s.Release()
		mat.Release()
		r.Release()
	})
	return &fixture{dev: dev, r: r, scene: s}
}

func (f *fixture) draw(t *testing.T) {
	t.Helper()
	if err := f.r.DrawNextFrame(f.scene); err != nil {
		t.Fatalf("DrawNextFrame() error = %v", err)
	}
}

// step is the coarse shape of a logged event used to compare frame structure.
type step struct {
	kind gpu.EventKind
	pass gpu.RenderPassKind
}

func frameSteps(events []gpu.Event) []step {
	var out []step
	for _, e := range events {
		switch e.Kind {
		case gpu.EventBeginRenderPass:
			out = append(out, step{kind: e.Kind, pass: e.Pass})
		case gpu.EventDispatch, gpu.EventSubmit, gpu.EventPresent, gpu.EventAcquireImage:
			out = append(out, step{kind: e.Kind})
		}
	}
	return out
}

func TestDrawNextFramePassOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.scene.AddLight(light.NewLight(light.LightTypePoint, light.WithPosition(0, 1, 0))); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scene.AddLight(light.NewLight(light.LightTypeSpot,
		light.WithPosition(0, 5, 0),
		light.WithDirection(0, -1, 0),
		light.WithRange(20),
		light.WithSpotCone(30, 45),
		light.WithCastsShadows(true))); err != nil {
		t.Fatal(err)
	}
	f.dev.ResetEvents()
	f.draw(t)

	want := []step{
		{kind: gpu.EventBeginRenderPass, pass: gpu.RenderPassShadow},
		{kind: gpu.EventBeginRenderPass, pass: gpu.RenderPassDepthPrePass},
		{kind: gpu.EventDispatch},
		{kind: gpu.EventDispatch},
		{kind: gpu.EventAcquireImage},
		{kind: gpu.EventBeginRenderPass, pass: gpu.RenderPassColor},
		{kind: gpu.EventSubmit},
		{kind: gpu.EventPresent},
	}
	got := frameSteps(f.dev.Events())
	if len(got) != len(want) {
		t.Fatalf("frame steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Two visible cubes per pass: shadow, depth pre-pass and colour.
	if got := len(f.dev.EventsOfKind(gpu.EventDraw)); got != 6 {
		t.Errorf("draws = %d, want 6", got)
	}
	dispatches := f.dev.EventsOfKind(gpu.EventDispatch)
	if got, want := dispatches[0].Groups, [3]uint32{3, 2, 1}; got != want {
		t.Errorf("frustum grid groups = %v, want %v", got, want)
	}
	if got, want := dispatches[1].Groups, [3]uint32{20, 11, 1}; got != want {
		t.Errorf("light culling groups = %v, want %v", got, want)
	}
	if got := f.r.FramesSubmitted(); got != 1 {
		t.Errorf("FramesSubmitted() = %d, want 1", got)
	}
}

// colourPassCounts returns the descriptor binds and draws recorded inside the colour pass.
func colourPassCounts(events []gpu.Event) (binds, draws int) {
	inColour := false
	for _, e := range events {
		switch {
		case e.Kind == gpu.EventBeginRenderPass:
			inColour = e.Pass == gpu.RenderPassColor
		case e.Kind == gpu.EventEndRenderPass:
			inColour = false
		case inColour && e.Kind == gpu.EventBindDescriptor:
			binds++
		case inColour && e.Kind == gpu.EventDraw:
			draws++
		}
	}
	return binds, draws
}

func TestColourPassBindsOncePerPipeline(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.draw(t)
	}
	f.dev.ResetEvents()
	f.draw(t)
	binds, draws := colourPassCounts(f.dev.Events())
	if draws != 2 {
		t.Fatalf("colour draws = %d, want 2", draws)
	}

	mat, err := material.NewMaterial(f.r.Pipelines(), material.WithName("stone-2"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mat.Release)
	mesh, bounds, err := scene.NewCubeMesh(f.dev, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, pos := range []mgl32.Vec3{{0, 1, 0}, {0, -1, 0}, {1, 1, 0}} {
		f.scene.AddMesh(scene.NewMeshNode(mesh, mat,
			scene.WithLocalBounds(bounds),
			scene.WithTransform(pos, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})))
	}
	for range 3 {
		f.draw(t)
	}
	f.dev.ResetEvents()
	f.draw(t)
	gotBinds, gotDraws := colourPassCounts(f.dev.Events())
	if gotDraws != 5 {
		t.Errorf("colour draws = %d, want 5", gotDraws)
	}
	if gotBinds != binds {
		t.Errorf("colour pass binds = %d with a second material on the shared pipeline, want %d", gotBinds, binds)
	}
}

func TestFrameSlotReuseWaitsForSubmission(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.draw(t)
	}

	events := f.dev.Events()
	lastWrite, wait, secondSubmit := -1, -1, -1
	for i, e := range events {
		switch {
		case e.Kind == gpu.EventWriteBuffer && e.Label == "Frame Constants 0":
			lastWrite = i
		case e.Kind == gpu.EventWait && e.Submission == 1:
			wait = i
		case e.Kind == gpu.EventSubmit && e.Submission == 2:
			secondSubmit = i
		}
	}
	if wait < 0 {
		t.Fatal("slot 0 was reused without waiting for submission 1")
	}
	if wait < secondSubmit {
		t.Errorf("wait for submission 1 at %d, want after submission 2 at %d", wait, secondSubmit)
	}
	if lastWrite < wait {
		t.Errorf("slot 0 constants written at %d, before the wait at %d", lastWrite, wait)
	}
}

func TestTileGridFollowsResolution(t *testing.T) {
	f := newFixture(t)
	dispatchesPerFrame := func() int {
		f.dev.ResetEvents()
		f.draw(t)
		return len(f.dev.EventsOfKind(gpu.EventDispatch))
	}

	if got := dispatchesPerFrame(); got != 2 {
		t.Errorf("first frame dispatches = %d, want 2", got)
	}
	if got := dispatchesPerFrame(); got != 1 {
		t.Errorf("unchanged frame dispatches = %d, want 1", got)
	}
	if err := f.r.Resize(640, 360); err != nil {
		t.Fatal(err)
	}
	if got := dispatchesPerFrame(); got != 2 {
		t.Errorf("resized frame dispatches = %d, want 2", got)
	}
	if got, want := f.r.Lighting().TileCount(), [2]uint32{40, 22}; got != want {
		t.Errorf("TileCount() = %v, want %v", got, want)
	}
	f.scene.Camera().SetFov(1.2)
	if got := dispatchesPerFrame(); got != 2 {
		t.Errorf("projection change dispatches = %d, want 2", got)
	}
}

func TestSetSampleCountRestoresPipelines(t *testing.T) {
	f := newFixture(t)
	f.draw(t)
	before := f.r.Pipelines().GetCurrentGraphicsPipelineCount()

	if err := f.r.SetSampleCount(4); err != nil {
		t.Fatal(err)
	}
	if got := f.dev.SampleCount(); got != 4 {
		t.Errorf("SampleCount() = %d, want 4", got)
	}
	if got := f.r.Pipelines().GetCurrentGraphicsPipelineCount(); got != before {
		t.Errorf("graphics pipelines = %d, want %d", got, before)
	}
	f.dev.ResetEvents()
	f.draw(t)
	if got := len(f.dev.EventsOfKind(gpu.EventDraw)); got != 4 {
		t.Errorf("draws after restore = %d, want 4", got)
	}
}

func TestDrawAfterRelease(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	r, err := renderer.NewRenderer(dev, renderer.WithPrecompile(false))
	if err != nil {
		t.Fatal(err)
	}
	s := scene.NewScene("empty", camera.NewCamera(), r.Lighting())
	defer s.Release()
	if err := r.DrawNextFrame(s); err != nil {
		t.Fatalf("DrawNextFrame() on an empty scene error = %v", err)
	}
	r.Release()
	r.Release()
	if err := r.DrawNextFrame(s); err != renderer.ErrReleased {
		t.Errorf("DrawNextFrame() after Release error = %v, want ErrReleased", err)
	}
}
