package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/lighting"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/Carmen-Shannon/lumen/engine/scene"
	"github.com/Carmen-Shannon/lumen/engine/settings"
	"github.com/Carmen-Shannon/lumen/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	cubeSpacing      = 3
	orbitLightCount  = 6
	orbitLightRadius = 14
	orbitLightHeight = 3
	dragSensitivity  = 0.005
)

// orbitLight is a point light circling the grid.
type orbitLight struct {
	light  light.Light
	handle lighting.LightHandle
	phase  float64
}

// demo is the lit cube grid shown by the lumen command.
type demo struct {
	scene     scene.Scene
	materials []material.Material
	meshes    []gpu.MeshBuffers

	orbiters []orbitLight
	elapsed  time.Duration
	paused   atomic.Bool

	// input is only touched from the window thread.
	input struct {
		dragging bool
		lastX    float32
		lastY    float32
	}
	releaseOnce sync.Once
}

func newDemo(r renderer.Renderer, aspect float32, side int) (*demo, error) {
	cam := camera.NewCamera(
		camera.WithFov(mgl32.DegToRad(60)),
		camera.WithAspect(aspect),
		camera.WithNear(0.1),
		camera.WithFar(500),
		camera.WithController(camera.NewCameraController(
			camera.WithRadius(40),
			camera.WithElevation(0.6),
			camera.WithAzimuth(0.3),
			camera.WithRadiusLimits(4, 300),
		)),
	)
	d := &demo{scene: scene.NewScene("demo", cam, r.Lighting())}
	d.scene.SetAmbientColor(mgl32.Vec3{0.04, 0.04, 0.05})

	if err := d.buildGeometry(r, max(side, 1)); err != nil {
		d.release()
		return nil, err
	}
	if err := d.buildLights(); err != nil {
		d.release()
		return nil, err
	}
	logger.Logger().Info("demo scene ready",
		slog.Int("meshes", d.scene.MeshCount()),
		slog.Int("lights", d.scene.LightCount()))
	return d, nil
}

func (d *demo) buildGeometry(r renderer.Renderer, side int) error {
	stone, err := material.NewMaterial(r.Pipelines(),
		material.WithName("stone"),
		material.WithBaseColor([4]float32{0.75, 0.72, 0.68, 1}),
		material.WithRoughness(0.8))
	if err != nil {
		return err
	}
	d.materials = append(d.materials, stone)

	glass, err := material.NewMaterial(r.Pipelines(),
		material.WithName("glass"),
		material.WithBaseColor([4]float32{0.4, 0.7, 1, 0.35}),
		material.WithRoughness(0.1),
		material.WithTransparent(true))
	if err != nil {
		return err
	}
	d.materials = append(d.materials, glass)

	cube, cubeBounds, err := scene.NewCubeMesh(r.Device(), 1)
	if err != nil {
		return err
	}
	d.meshes = append(d.meshes, cube)

	floor, floorBounds, err := scene.NewBoxMesh(r.Device(), mgl32.Vec3{float32(side*cubeSpacing + 8), 0.2, float32(side*cubeSpacing + 8)})
	if err != nil {
		return err
	}
	d.meshes = append(d.meshes, floor)
	d.scene.AddMesh(scene.NewMeshNode(floor, stone,
		scene.WithNodeName("floor"),
		scene.WithLocalBounds(floorBounds),
		scene.WithTransform(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})))

	offset := float32(side-1) * cubeSpacing / 2
	for x := range side {
		for z := range side {
			pos := mgl32.Vec3{float32(x)*cubeSpacing - offset, 0, float32(z)*cubeSpacing - offset}
			mat := stone
			if (x+z)%5 == 0 {
				mat = glass
			}
			speed := float32(0.3 + 0.1*float64((x*7+z*3)%5))
			d.scene.AddMesh(scene.NewMeshNode(cube, mat,
				scene.WithNodeName(fmt.Sprintf("cube %d,%d", x, z)),
				scene.WithLocalBounds(cubeBounds),
				scene.WithTransform(pos, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}),
				scene.WithUpdater(spinner(pos, speed))))
		}
	}
	return nil
}

// spinner returns an updater rotating a node about Y at speed radians per second.
func spinner(pos mgl32.Vec3, speed float32) scene.NodeUpdater {
	var angle float32
	return func(n scene.MeshNode, dt time.Duration) {
		angle = float32(math.Mod(float64(angle+speed*float32(dt.Seconds())), 2*math.Pi))
		n.SetWorldMatrix(common.BuildModelMatrix(pos, mgl32.Vec3{0, angle, 0}, mgl32.Vec3{1, 1, 1}))
	}
}

func (d *demo) buildLights() error {
	sun := light.NewLight(light.LightTypeDirectional,
		light.WithDirection(-0.4, -1, -0.3),
		light.WithColor(1, 0.95, 0.85),
		light.WithIntensity(0.6),
		light.WithCastsShadows(true))
	spot := light.NewLight(light.LightTypeSpot,
		light.WithPosition(0, 18, 0),
		light.WithDirection(0, -1, 0),
		light.WithColor(1, 1, 1),
		light.WithIntensity(4),
		light.WithRange(40),
		light.WithSpotCone(20, 30),
		light.WithCastsShadows(true))

	var errs []error
	for _, l := range []light.Light{sun, spot} {
		if _, err := d.scene.AddLight(l); err != nil {
			errs = append(errs, err)
		}
	}

	colors := [][3]float32{{1, 0.3, 0.2}, {0.2, 1, 0.3}, {0.3, 0.4, 1}, {1, 0.8, 0.2}, {0.8, 0.2, 1}, {0.2, 0.9, 1}}
	for i := range orbitLightCount {
		c := colors[i%len(colors)]
		l := light.NewLight(light.LightTypePoint,
			light.WithColor(c[0], c[1], c[2]),
			light.WithIntensity(3),
			light.WithRange(12))
		o := orbitLight{light: l, phase: 2 * math.Pi * float64(i) / orbitLightCount}
		o.place(0)
		h, err := d.scene.AddLight(l)
		if err != nil {
			errs = append(errs, err)
		}
		o.handle = h
		d.orbiters = append(d.orbiters, o)
	}
	return errors.Join(errs...)
}

// place positions the light on its orbit at time t seconds.
func (o *orbitLight) place(t float64) {
	a := o.phase + 0.4*t
	o.light.SetPosition(
		float32(orbitLightRadius*math.Cos(a)),
		orbitLightHeight+float32(math.Sin(2*a)),
		float32(orbitLightRadius*math.Sin(a)))
}

// tick advances the orbiting lights. It runs on the engine tick goroutine.
func (d *demo) tick(dt time.Duration) {
	if d.paused.Load() {
		return
	}
	d.elapsed += dt
	t := d.elapsed.Seconds()
	for i := range d.orbiters {
		o := &d.orbiters[i]
		o.place(t)
		if err := d.scene.UpdateLight(o.handle); err != nil {
			logger.Logger().Warn("update orbit light", slog.Int("index", i), slog.Any("error", err))
		}
	}
}

// bindInput connects window input to the camera controller and the settings store.
func (d *demo) bindInput(win window.Window, store settings.Store) {
	ctrl := d.scene.Camera().Controller()

	win.SetMouseButtonCallback(func(button window.MouseButton, down bool, x, y float32) {
		if button != window.MouseButtonLeft {
			return
		}
		d.input.dragging = down
		d.input.lastX, d.input.lastY = x, y
	})
	win.SetMouseMoveCallback(func(x, y float32) {
		if !d.input.dragging || ctrl == nil {
			return
		}
		ctrl.Orbit(-(x-d.input.lastX)*dragSensitivity, (y-d.input.lastY)*dragSensitivity)
		d.input.lastX, d.input.lastY = x, y
	})
	win.SetScrollCallback(func(delta float32) {
		if ctrl != nil {
			ctrl.Zoom(delta)
		}
	})
	win.SetKeyCallback(func(key window.Key, down bool) {
		if !down {
			return
		}
		var err error
		switch key {
		case window.KeySpace:
			d.paused.Store(!d.paused.Load())
		case window.KeyV:
			err = store.Update(func(s *settings.Settings) { s.VSync = !s.VSync })
		case window.KeyM:
			err = store.Update(func(s *settings.Settings) {
				if s.SampleCount == 1 {
					s.SampleCount = 4
				} else {
					s.SampleCount = 1
				}
			})
		}
		if err != nil {
			logger.Logger().Warn("update settings", slog.Any("error", err))
		}
	})
}

// release frees the scene, then the materials and meshes it referenced.
func (d *demo) release() {
	d.releaseOnce.Do(func() {
		d.scene.Release()
		for _, m := range d.materials {
			m.Release()
		}
		for _, m := range d.meshes {
			m.Release()
		}
	})
}
