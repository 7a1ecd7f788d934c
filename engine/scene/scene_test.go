package scene

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/lighting"
	"github.com/go-gl/mathgl/mgl32"
)

type fakeLights struct {
	mu      sync.Mutex
	next    lighting.LightHandle
	live    map[lighting.LightHandle]light.Light
	ambient mgl32.Vec3
}

func newFakeLights() *fakeLights {
	return &fakeLights{live: make(map[lighting.LightHandle]light.Light)}
}

func (f *fakeLights) AddLight(l light.Light) (lighting.LightHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.live[f.next] = l
	return f.next, nil
}

func (f *fakeLights) UpdateLight(h lighting.LightHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[h]; !ok {
		return lighting.ErrUnknownLight
	}
	return nil
}

func (f *fakeLights) RemoveLight(h lighting.LightHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[h]; !ok {
		return lighting.ErrUnknownLight
	}
	delete(f.live, h)
	return nil
}

func (f *fakeLights) SetAmbientColor(c mgl32.Vec3) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ambient = c
}

func TestMeshes(t *testing.T) {
	s := NewScene("test", camera.NewCamera(), newFakeLights(),
		WithMeshes(NewMeshNode(gpu.MeshBuffers{}, nil, WithNodeName("first"))))
	t.Cleanup(s.Release)

	second := NewMeshNode(gpu.MeshBuffers{}, nil, WithNodeName("second"))
	third := NewMeshNode(gpu.MeshBuffers{}, nil, WithNodeName("third"))
	if id := s.AddMesh(second); id != 2 {
		t.Errorf("AddMesh() = %d, want 2", id)
	}
	if id := s.AddMesh(third); id != 3 {
		t.Errorf("AddMesh() = %d, want 3", id)
	}
	if got := second.ID(); got != 2 {
		t.Errorf("ID() = %d, want 2", got)
	}
	if !s.RemoveMesh(2) {
		t.Error("RemoveMesh(2) = false, want true")
	}
	if s.RemoveMesh(2) {
		t.Error("second RemoveMesh(2) = true, want false")
	}
	if _, ok := s.Mesh(2); ok {
		t.Error("Mesh(2) found a removed node")
	}

	var names []string
	for _, d := range s.Drawables() {
		names = append(names, d.(MeshNode).Name())
	}
	if want := []string{"first", "third"}; !slices.Equal(names, want) {
		t.Errorf("Drawables() = %v, want %v", names, want)
	}
}

func TestUpdateRunsEveryUpdater(t *testing.T) {
	s := NewScene("test", camera.NewCamera(), newFakeLights(), WithComputeWorkers(4))
	t.Cleanup(s.Release)

	bounds := WithLocalBounds(cubeBounds(1))
	move := WithUpdater(func(n MeshNode, dt time.Duration) {
		n.SetWorldMatrix(n.WorldMatrix().Mul4(mgl32.Translate3D(float32(dt.Seconds()), 0, 0)))
	})
	const count = 32
	for range count {
		s.AddMesh(NewMeshNode(gpu.MeshBuffers{}, nil, bounds, move))
	}
	static := NewMeshNode(gpu.MeshBuffers{}, nil, bounds)
	s.AddMesh(static)

	s.Update(2 * time.Second)
	s.Update(time.Second)

	for _, d := range s.Drawables() {
		n := d.(MeshNode)
		want := float32(3)
		if n == static {
			want = 0
		}
		if got := n.WorldMatrix().Col(3).X(); got != want {
			t.Errorf("node %d translation x = %v, want %v", n.ID(), got, want)
		}
		if got := n.WorldBounds().Min.X(); got != want-0.5 {
			t.Errorf("node %d WorldBounds().Min.X = %v, want %v", n.ID(), got, want-0.5)
		}
	}
}

func TestLightsForwarded(t *testing.T) {
	lights := newFakeLights()
	s := NewScene("test", camera.NewCamera(), lights)
	t.Cleanup(s.Release)

	a, err := s.AddLight(light.NewLight(light.LightTypePoint))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.AddLight(light.NewLight(light.LightTypeDirectional))
	if err := s.UpdateLight(a); err != nil {
		t.Errorf("UpdateLight() error = %v", err)
	}
	if err := s.RemoveLight(a); err != nil {
		t.Errorf("RemoveLight() error = %v", err)
	}
	if err := s.RemoveLight(a); !errors.Is(err, lighting.ErrUnknownLight) {
		t.Errorf("second RemoveLight() error = %v, want ErrUnknownLight", err)
	}
	if got := s.LightCount(); got != 1 {
		t.Errorf("LightCount() = %d, want 1", got)
	}

	s.SetAmbientColor(mgl32.Vec3{0.1, 0.2, 0.3})
	if lights.ambient != (mgl32.Vec3{0.1, 0.2, 0.3}) {
		t.Errorf("ambient = %v, want forwarded colour", lights.ambient)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := lights.live[b]; ok {
		t.Error("Clear() left the scene's light in the lighting manager")
	}
	if got := s.LightCount(); got != 0 {
		t.Errorf("LightCount() after Clear = %d, want 0", got)
	}
}

func TestBoxMesh(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	mesh, bounds, err := NewBoxMesh(dev, mgl32.Vec3{2, 4, 6})
	if err != nil {
		t.Fatal(err)
	}
	if got := mesh.IndexCount; got != 36 {
		t.Errorf("IndexCount = %d, want 36", got)
	}
	if got := len(dev.BufferContents(mesh.Vertex)); got != 24*VertexStride {
		t.Errorf("vertex bytes = %d, want %d", got, 24*VertexStride)
	}
	if got := len(dev.BufferContents(mesh.Index)); got != 36*4 {
		t.Errorf("index bytes = %d, want %d", got, 36*4)
	}
	if want := (mgl32.Vec3{1, 2, 3}); bounds.Max != want || bounds.Min != want.Mul(-1) {
		t.Errorf("bounds = %v, want ±%v", bounds, want)
	}
}

func TestBoxWindingFacesOutward(t *testing.T) {
	vertices, indices := boxGeometry(mgl32.Vec3{1, 1, 1})
	vertex := func(i uint32) (pos, normal mgl32.Vec3) {
		off := int(i) * VertexStride
		for c := range 3 {
			pos[c] = math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+c*4:]))
			normal[c] = math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+12+c*4:]))
		}
		return pos, normal
	}
	for tri := 0; tri < len(indices); tri += 3 {
		a, n := vertex(indices[tri])
		b, _ := vertex(indices[tri+1])
		c, _ := vertex(indices[tri+2])
		if face := b.Sub(a).Cross(c.Sub(a)); face.Dot(n) <= 0 {
			t.Errorf("triangle %d winds inward for normal %v", tri/3, n)
		}
		if a.Dot(n) != 1 {
			t.Errorf("triangle %d is not on the face with normal %v", tri/3, n)
		}
	}
}

func cubeBounds(size float32) common.AABB {
	h := size / 2
	return common.AABB{Min: mgl32.Vec3{-h, -h, -h}, Max: mgl32.Vec3{h, h, h}}
}
