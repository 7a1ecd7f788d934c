package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/scene"
	"github.com/Carmen-Shannon/lumen/engine/settings"
)

func newTestRenderer(t *testing.T) (gpu.HeadlessDevice, renderer.Renderer, scene.Scene) {
	t.Helper()
	dev := gpu.NewHeadlessDevice(gpu.WithHeadlessSurfaceSize(320, 180))
	r, err := renderer.NewRenderer(dev, renderer.WithPrecompile(false))
	if err != nil {
		t.Fatal(err)
	}
	s := scene.NewScene("engine", camera.NewCamera(), r.Lighting())
	t.Cleanup(func() {
		s.Release()
		r.Release()
	})
	return dev, r, s
}

func TestRunDrawsUntilQuit(t *testing.T) {
	dev, r, s := newTestRenderer(t)
	e, err := NewEngine(r, WithScene(s), WithTickRate(1000))
	if err != nil {
		t.Fatal(err)
	}
	frames := 0
	e.SetRenderCallback(func(time.Duration) {
		frames++
		if frames == 3 {
			e.Quit()
		}
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := r.FramesSubmitted(); got != 3 {
		t.Errorf("FramesSubmitted() = %d, want 3", got)
	}
	if len(dev.EventsOfKind(gpu.EventWaitIdle)) == 0 {
		t.Error("Run() returned without waiting for the GPU to go idle")
	}
	if err := e.Run(context.Background()); err != nil {
		t.Errorf("second Run() after shutdown error = %v", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	_, r, s := newTestRenderer(t)
	e, err := NewEngine(r, WithScene(s))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.SetRenderCallback(func(time.Duration) { cancel() })

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after the context was cancelled")
	}
}

func TestRunReturnsFrameError(t *testing.T) {
	_, r, s := newTestRenderer(t)
	e, err := NewEngine(r, WithScene(s))
	if err != nil {
		t.Fatal(err)
	}
	r.Release()
	if err := e.Run(context.Background()); !errors.Is(err, renderer.ErrReleased) {
		t.Errorf("Run() error = %v, want ErrReleased", err)
	}
}

func TestSettingsApplied(t *testing.T) {
	dev, r, s := newTestRenderer(t)
	store := settings.NewStore(settings.Default())
	e, err := NewEngine(r, WithScene(s), WithSettings(store), WithFrameLimit(240))
	if err != nil {
		t.Fatal(err)
	}
	eng := e.(*engine)

	if got := time.Duration(eng.frameLimit.Load()); got != 0 {
		t.Errorf("frame limit = %v, want the store's uncapped default", got)
	}
	if got := dev.PresentMode(); got != gpu.PresentModeVSync {
		t.Errorf("PresentMode() = %v, want vsync", got)
	}

	err = store.Update(func(v *settings.Settings) {
		v.SampleCount = 4
		v.VSync = false
		v.FrameLimit = 30
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := dev.SampleCount(); got != 4 {
		t.Errorf("SampleCount() = %d, want 4", got)
	}
	if got := dev.PresentMode(); got != gpu.PresentModeUncapped {
		t.Errorf("PresentMode() = %v, want uncapped", got)
	}
	if got, want := time.Duration(eng.frameLimit.Load()), time.Second/30; got != want {
		t.Errorf("frame limit = %v, want %v", got, want)
	}
}

func TestHandleResizeUpdatesCameraAspect(t *testing.T) {
	dev, r, s := newTestRenderer(t)
	e, err := NewEngine(r, WithScene(s))
	if err != nil {
		t.Fatal(err)
	}
	e.(*engine).handleResize(800, 400)
	if w, h := dev.SurfaceSize(); w != 800 || h != 400 {
		t.Errorf("SurfaceSize() = %dx%d, want 800x400", w, h)
	}
	if got := s.Camera().Aspect(); got != 2 {
		t.Errorf("Aspect() = %v, want 2", got)
	}

	// Minimised windows report a zero framebuffer.
	e.(*engine).handleResize(0, 0)
	if w, h := dev.SurfaceSize(); w != 800 || h != 400 {
		t.Errorf("SurfaceSize() after a zero resize = %dx%d, want 800x400", w, h)
	}
}

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{0, 0},
		{-5, 0},
		{60, time.Duration(float64(time.Second) / 60)},
		{0.5, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := frameDuration(tt.fps); got != tt.want {
			t.Errorf("frameDuration(%v) = %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestSetTickRateNeverBlocks(t *testing.T) {
	_, r, s := newTestRenderer(t)
	eng, err := NewEngine(r, WithScene(s))
	if err != nil {
		t.Fatal(err)
	}
	e := eng.(*engine)
	// Marked running with no tick loop reading the channel, as after Run returns mid-call.
	e.running.Store(true)
	defer e.running.Store(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.SetTickRate(float64(30 + i))
			}()
		}
		wg.Wait()
		e.SetTickRate(120)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SetTickRate() blocked with no tick loop reading")
	}

	want := time.Duration(float64(time.Second) / 120)
	select {
	case got := <-e.tickRateCh:
		if got != want {
			t.Errorf("pending tick rate = %v, want %v", got, want)
		}
	default:
		t.Errorf("pending tick rate = none, want %v", want)
	}
}
