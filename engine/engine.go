package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/profiler"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/scene"
	"github.com/Carmen-Shannon/lumen/engine/settings"
	"github.com/Carmen-Shannon/lumen/engine/window"
)

// Engine is the main entry point for the engine.
// It owns the tick loop, the render loop and the window message pump.
type Engine interface {
	// Window returns the window the engine pumps, or nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are drawn with.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Settings returns the settings store the engine follows, or nil.
	//
	// Returns:
	//   - settings.Store: the store
	Settings() settings.Store

	// SetScene replaces the scene that is updated and drawn. A nil scene pauses drawing.
	//
	// Parameters:
	//   - s: the scene
	SetScene(s scene.Scene)

	// Scene returns the current scene.
	//
	// Returns:
	//   - scene.Scene: the scene, or nil
	Scene() scene.Scene

	// SetTickRate sets the engine tick rate in ticks per second.
	// The scene and the tick callback are updated at this rate.
	//
	// Parameters:
	//   - tps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(tps float64)

	// SetTickCallback registers the function called each engine tick, after the scene update.
	//
	// Parameters:
	//   - callback: function receiving the time since the previous tick
	SetTickCallback(callback func(dt time.Duration))

	// SetRenderCallback registers the function called after each drawn frame.
	//
	// Parameters:
	//   - callback: function receiving the time since the previous frame
	SetRenderCallback(callback func(dt time.Duration))

	// SetFrameLimit caps the render loop in frames per second. Pass 0 to uncap it.
	//
	// Parameters:
	//   - fps: maximum render frames per second
	SetFrameLimit(fps float64)

	// EnableProfiler turns on periodic frame statistics.
	EnableProfiler()

	// DisableProfiler turns off periodic frame statistics.
	DisableProfiler()

	// Run starts the tick and render loops and blocks until the window closes, ctx is done,
	// Quit is called or a frame fails. It waits for the GPU to go idle before returning.
	// When the engine has a window, Run must be called from the thread that created it.
	//
	// Parameters:
	//   - ctx: cancels the run
	//
	// Returns:
	//   - error: the first frame error, or nil on a clean shutdown
	Run(ctx context.Context) error

	// Quit signals the loops to stop. Safe to call multiple times and from any goroutine.
	Quit()
}

// engine implements the Engine interface.
type engine struct {
	mu *sync.Mutex

	window   window.Window
	renderer renderer.Renderer
	settings settings.Store

	scene scene.Scene

	tickRate       time.Duration
	tickRateCh     chan time.Duration
	tickCallback   func(dt time.Duration)
	renderCallback func(dt time.Duration)

	// frameLimit is the minimum frame duration in nanoseconds; 0 is uncapped.
	frameLimit atomic.Int64

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	applied     settings.Settings
	unsubscribe func()

	running  atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	errMu    sync.Mutex
	frameErr error
}

var _ Engine = &engine{}

// NewEngine creates an Engine drawing with r. When a settings store is given, its frame limit,
// sample count and vsync are applied immediately and again on every change.
//
// Parameters:
//   - r: the renderer
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error applying the initial settings
func NewEngine(r renderer.Renderer, options ...EngineBuilderOption) (Engine, error) {
	if r == nil {
		panic("engine: nil renderer")
	}
	e := &engine{
		mu:         &sync.Mutex{},
		renderer:   r,
		tickRate:   time.Second / 60,
		tickRateCh: make(chan time.Duration, 1),
		profiler:   profiler.NewProfiler(),
		quit:       make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.handleResize)
	}

	if e.settings != nil {
		current := e.settings.Get()
		if err := e.applySettings(current, true); err != nil {
			return nil, err
		}
		e.unsubscribe = e.settings.Subscribe(func(next settings.Settings) {
			if err := e.applySettings(next, false); err != nil {
				logger.Logger().Warn("apply settings", slog.Any("error", err))
			}
		})
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Settings() settings.Store {
	return e.settings
}

func (e *engine) SetScene(s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scene = s
}

func (e *engine) Scene() scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scene
}

func (e *engine) SetTickRate(tps float64) {
	if tps <= 0 {
		tps = 60
	}
	rate := time.Duration(float64(time.Second) / tps)
	if !e.running.Load() {
		e.tickRate = rate
		return
	}
	// Replace any pending rate so the tick loop always sees the latest one. The send never blocks:
	// the loop may have exited, or a concurrent caller may have refilled the slot.
	select {
	case <-e.tickRateCh:
	default:
	}
	select {
	case e.tickRateCh <- rate:
	default:
	}
}

func (e *engine) SetTickCallback(callback func(dt time.Duration)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(dt time.Duration)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetFrameLimit(fps float64) {
	e.frameLimit.Store(int64(frameDuration(fps)))
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	logger.Logger().Info("engine started",
		slog.String("backend", e.renderer.Device().Backend().String()),
		slog.Bool("windowed", e.window != nil))

	e.wg.Add(2)
	go e.handleTick()
	go e.handleRender()

	if e.window != nil {
		e.pumpWindow(ctx)
	} else {
		select {
		case <-ctx.Done():
		case <-e.quit:
		}
	}
	e.signalQuit()
	e.wg.Wait()

	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if err := e.renderer.Device().WaitIdle(); err != nil {
		logger.Logger().Warn("wait for GPU idle on shutdown", slog.Any("error", err))
	}
	e.running.Store(false)
	logger.Logger().Info("engine stopped", slog.Uint64("frames", e.renderer.FramesSubmitted()))

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.frameErr
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel exactly once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

// pumpWindow processes window events on the calling thread until the window closes, ctx is
// done or the engine quits.
func (e *engine) pumpWindow(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		default:
		}
		if !e.window.PollEvents() {
			return
		}
		// Events are polled rather than waited on so the pump notices quit promptly.
		time.Sleep(time.Millisecond)
	}
}

func (e *engine) handleResize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if err := e.renderer.Resize(width, height); err != nil {
		logger.Logger().Warn("resize", slog.Int("width", width), slog.Int("height", height), slog.Any("error", err))
	}
	if s := e.Scene(); s != nil {
		s.Camera().SetAspect(float32(width) / float32(height))
	}
}

// handleTick runs the fixed-rate update loop in its own goroutine.
func (e *engine) handleTick() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-e.quit:
			return
		case rate := <-e.tickRateCh:
			ticker.Reset(rate)
			e.tickRate = rate
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			e.mu.Lock()
			s, cb := e.scene, e.tickCallback
			e.mu.Unlock()
			if s != nil && s.Active() {
				s.Update(dt)
			}
			if cb != nil {
				cb(dt)
			}
		}
	}
}

// handleRender draws frames as fast as the frame limit allows in its own goroutine. A frame
// error or a panic stops the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("engine: render loop panic: %v", r))
		}
	}()

	last := time.Now()
	for {
		select {
		case <-e.quit:
			return
		default:
		}

		start := time.Now()
		dt := start.Sub(last)
		last = start

		e.mu.Lock()
		s, cb := e.scene, e.renderCallback
		e.mu.Unlock()

		if s != nil && s.Active() {
			if err := e.renderer.DrawNextFrame(s); err != nil {
				e.fail(err)
				return
			}
		}
		if cb != nil {
			cb(dt)
		}
		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		if limit := time.Duration(e.frameLimit.Load()); limit > 0 {
			if remaining := limit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// fail records the first frame error and stops the engine.
func (e *engine) fail(err error) {
	logger.Logger().Error("frame failed", slog.Any("error", err))
	e.errMu.Lock()
	if e.frameErr == nil {
		e.frameErr = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

// applySettings brings the renderer in line with s. Only fields that differ from the last
// applied settings are touched, unless initial is set.
func (e *engine) applySettings(s settings.Settings, initial bool) error {
	e.mu.Lock()
	prev := e.applied
	e.applied = s
	e.mu.Unlock()

	var errs []error
	if initial || s.FrameLimit != prev.FrameLimit {
		e.SetFrameLimit(s.FrameLimit)
	}
	if initial || s.SampleCount != prev.SampleCount {
		if err := e.renderer.SetSampleCount(s.SampleCount); err != nil {
			errs = append(errs, fmt.Errorf("engine: sample count: %w", err))
		}
	}
	if initial || s.VSync != prev.VSync {
		if err := e.renderer.SetPresentMode(s.PresentMode()); err != nil {
			errs = append(errs, fmt.Errorf("engine: present mode: %w", err))
		}
	}
	if !initial && s.Backend != prev.Backend {
		logger.Logger().Info("backend change takes effect on restart",
			slog.String("current", e.renderer.Device().Backend().String()),
			slog.String("next", s.Backend.String()))
	}
	return errors.Join(errs...)
}

// frameDuration converts a frame rate cap into a minimum frame duration.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
