// Command lumen opens a window and renders a lit demo scene with the Forward+ renderer.
//
// Controls: left-drag orbits, scroll zooms, Space pauses the lights, V toggles vsync,
// M toggles 4x MSAA, Escape quits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Carmen-Shannon/lumen/engine"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/settings"
	"github.com/Carmen-Shannon/lumen/engine/window"
	"github.com/pkg/profile"
)

type options struct {
	settingsPath string
	backend      string
	profile      string
	stats        bool
	verbose      bool
	gridSide     int
}

func main() {
	var opts options
	flag.StringVar(&opts.settingsPath, "settings", defaultSettingsPath(), "path of the JSON settings file")
	flag.StringVar(&opts.backend, "backend", "", "graphics API for this run: vulkan or directx (default from settings)")
	flag.StringVar(&opts.profile, "profile", "", "write a pprof profile to the working directory: cpu or mem")
	flag.BoolVar(&opts.stats, "stats", false, "log frame statistics every second")
	flag.BoolVar(&opts.verbose, "v", false, "enable debug logging")
	flag.IntVar(&opts.gridSide, "grid", 12, "cubes per side of the demo grid")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	switch opts.profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q, want cpu or mem", opts.profile)
	}

	store, err := settings.Load(opts.settingsPath)
	if err != nil {
		return err
	}
	current := store.Get()
	backend := current.Backend
	if opts.backend != "" {
		if backend, err = gpu.ParseBackend(opts.backend); err != nil {
			return err
		}
	}

	win := window.NewWindow(window.WithTitle("lumen"), window.WithSize(1280, 720))
	defer win.Close()

	width, height := win.Size()
	dev := gpu.NewWGPUDevice(win.SurfaceDescriptor(), width, height,
		gpu.WithBackend(backend),
		gpu.WithSampleCount(current.SampleCount),
		gpu.WithPresentMode(current.PresentMode()),
	)
	defer dev.Release()

	r, err := renderer.NewRenderer(dev, renderer.WithClearColor([4]float64{0.02, 0.02, 0.03, 1}))
	if err != nil {
		return err
	}
	defer r.Release()

	d, err := newDemo(r, float32(width)/float32(max(height, 1)), opts.gridSide)
	if err != nil {
		return err
	}
	defer d.release()

	eng, err := engine.NewEngine(r,
		engine.WithWindow(win),
		engine.WithScene(d.scene),
		engine.WithSettings(store),
		engine.WithProfiling(opts.stats),
	)
	if err != nil {
		return err
	}
	eng.SetTickCallback(d.tick)
	d.bindInput(win, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return eng.Run(ctx)
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "lumen.json"
	}
	return filepath.Join(dir, "lumen", "settings.json")
}
