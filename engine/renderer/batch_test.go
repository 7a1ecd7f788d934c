package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

type stubPipeline struct {
	pipeline.Pipeline
	label string
}

type stubMaterial struct {
	material.Material
	transparent bool
	color       [4]float32
	pipe        *stubPipeline
}

func (m *stubMaterial) Name() string { return "stub" }
func (m *stubMaterial) Kind() pipeline.PipelineKind {
	if m.transparent {
		return pipeline.PipelineKindTransparent
	}
	return pipeline.PipelineKindOpaque
}

func (m *stubMaterial) Pipeline(pipeline.PipelineKind) (pipeline.Pipeline, error) {
	if m.pipe == nil {
		return nil, errors.New("no pipeline")
	}
	return m.pipe, nil
}

func (m *stubMaterial) Transparent() bool     { return m.transparent }
func (m *stubMaterial) BaseColor() [4]float32 { return m.color }
func (m *stubMaterial) Metallic() float32     { return 0.25 }
func (m *stubMaterial) Roughness() float32    { return 0.75 }

type stubDrawable struct {
	name string
	pos  mgl32.Vec3
	mat  material.Material
}

func (d *stubDrawable) WorldMatrix() mgl32.Mat4 {
	return mgl32.Translate3D(d.pos.X(), d.pos.Y(), d.pos.Z())
}

func (d *stubDrawable) WorldBounds() common.AABB {
	half := mgl32.Vec3{0.5, 0.5, 0.5}
	return common.AABB{Min: d.pos.Sub(half), Max: d.pos.Add(half)}
}

func (d *stubDrawable) Material() material.Material { return d.mat }
func (d *stubDrawable) Mesh() gpu.MeshBuffers       { return gpu.MeshBuffers{} }

func testFrustum(eye mgl32.Vec3) common.Frustum {
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := common.PerspectiveZO(mgl32.DegToRad(60), 1, 0.1, 100)
	return common.ExtractFrustumFromMatrix(proj.Mul4(view))
}

func names(items []drawItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.drawable.(*stubDrawable).name
	}
	return out
}

func TestFrameBatchCull(t *testing.T) {
	opaque := &stubMaterial{color: [4]float32{1, 0, 0, 1}, pipe: &stubPipeline{label: "opaque"}}
	glass := &stubMaterial{transparent: true, color: [4]float32{0, 0, 1, 0.5}, pipe: &stubPipeline{label: "glass"}}
	eye := mgl32.Vec3{0, 0, 10}

	drawables := []Drawable{
		&stubDrawable{name: "far", pos: mgl32.Vec3{0, 0, -5}, mat: opaque},
		&stubDrawable{name: "near", pos: mgl32.Vec3{0, 0, 5}, mat: opaque},
		&stubDrawable{name: "glass-near", pos: mgl32.Vec3{1, 0, 4}, mat: glass},
		&stubDrawable{name: "glass-far", pos: mgl32.Vec3{1, 0, -4}, mat: glass},
		&stubDrawable{name: "behind", pos: mgl32.Vec3{0, 0, 20}, mat: opaque},
		&stubDrawable{name: "untextured", pos: mgl32.Vec3{0, 0, 0}},
	}

	b := newFrameBatch()
	if err := b.cull(drawables, testFrustum(eye), eye); err != nil {
		t.Fatalf("cull() error = %v", err)
	}

	wantOpaque := []string{"near", "far"}
	if got := names(b.opaque); !slices.Equal(got, wantOpaque) {
		t.Errorf("opaque = %v, want %v", got, wantOpaque)
	}
	wantTransparent := []string{"glass-far", "glass-near"}
	if got := names(b.transparent); !slices.Equal(got, wantTransparent) {
		t.Errorf("transparent = %v, want %v", got, wantTransparent)
	}

	for i, it := range append(append([]drawItem{}, b.opaque...), b.transparent...) {
		if it.instance != uint32(i) {
			t.Errorf("%s instance = %d, want %d", it.drawable.(*stubDrawable).name, it.instance, i)
		}
	}
	if got, want := len(b.objects), 4*(&GPUObjectData{}).Size(); got != want {
		t.Errorf("len(objects) = %d, want %d", got, want)
	}
}

func groupShape(groups []drawGroup) []string {
	var out []string
	for _, g := range groups {
		for _, items := range g.materials {
			out = append(out, g.pipeline.(*stubPipeline).label+":"+strings.Join(names(items), ","))
		}
	}
	return out
}

func TestFrameBatchGroupsByPipelineAndMaterial(t *testing.T) {
	pipeA := &stubPipeline{label: "a"}
	pipeB := &stubPipeline{label: "b"}
	pipeGlass := &stubPipeline{label: "glass"}
	a1 := &stubMaterial{pipe: pipeA}
	a2 := &stubMaterial{pipe: pipeA}
	b1 := &stubMaterial{pipe: pipeB}
	g1 := &stubMaterial{transparent: true, pipe: pipeGlass}
	g2 := &stubMaterial{transparent: true, pipe: pipeGlass}
	eye := mgl32.Vec3{0, 0, 10}

	drawables := []Drawable{
		&stubDrawable{name: "b-near", pos: mgl32.Vec3{0, 0, 6}, mat: b1},
		&stubDrawable{name: "a1-far", pos: mgl32.Vec3{0, 0, -6}, mat: a1},
		&stubDrawable{name: "a2-mid", pos: mgl32.Vec3{0, 0, 0}, mat: a2},
		&stubDrawable{name: "a1-near", pos: mgl32.Vec3{0, 0, 3}, mat: a1},
		&stubDrawable{name: "b-far", pos: mgl32.Vec3{0, 0, -8}, mat: b1},
		&stubDrawable{name: "g1-near", pos: mgl32.Vec3{0, 0, 4}, mat: g1},
		&stubDrawable{name: "g2-far", pos: mgl32.Vec3{0, 0, -4}, mat: g2},
		&stubDrawable{name: "g1-mid", pos: mgl32.Vec3{0, 0, -2}, mat: g1},
	}
	b := newFrameBatch()
	if err := b.cull(drawables, testFrustum(eye), eye); err != nil {
		t.Fatalf("cull() error = %v", err)
	}

	tests := []struct {
		name       string
		groups     []drawGroup
		wantGroups int
		wantShape  []string
	}{
		{"opaque", b.opaqueGroups, 2, []string{"b:b-near,b-far", "a:a1-near,a1-far", "a:a2-mid"}},
		{"transparent", b.transparentGroups, 1, []string{"glass:g2-far", "glass:g1-mid,g1-near"}},
	}
	for _, tt := range tests {
		if got := len(tt.groups); got != tt.wantGroups {
			t.Errorf("%s: len(groups) = %d, want %d", tt.name, got, tt.wantGroups)
		}
		if got := groupShape(tt.groups); !slices.Equal(got, tt.wantShape) {
			t.Errorf("%s: groups = %v, want %v", tt.name, got, tt.wantShape)
		}
	}

	var next uint32
	for _, groups := range [][]drawGroup{b.opaqueGroups, b.transparentGroups} {
		for _, g := range groups {
			for _, items := range g.materials {
				for _, it := range items {
					if it.instance != next {
						t.Errorf("%s instance = %d, want %d", it.drawable.(*stubDrawable).name, it.instance, next)
					}
					next++
				}
			}
		}
	}
}

func TestFrameBatchCullPipelineError(t *testing.T) {
	eye := mgl32.Vec3{0, 0, 10}
	b := newFrameBatch()
	err := b.cull([]Drawable{&stubDrawable{name: "broken", mat: &stubMaterial{}}}, testFrustum(eye), eye)
	if err == nil {
		t.Error("cull() with an unresolvable pipeline error = nil, want an error")
	}
}

func TestFrameBatchInstanceIsStable(t *testing.T) {
	mat := &stubMaterial{}
	d := &stubDrawable{name: "a", mat: mat}
	b := newFrameBatch()

	first := b.instance(d, mat)
	second := b.instance(d, mat)
	if first != second {
		t.Errorf("instance() = %d then %d, want the same record", first, second)
	}
	if got := b.instance(&stubDrawable{name: "b", mat: mat}, mat); got != 1 {
		t.Errorf("second drawable instance = %d, want 1", got)
	}

	b.reset()
	if b.count != 0 || len(b.objects) != 0 || len(b.instances) != 0 {
		t.Errorf("reset left count=%d objects=%d instances=%d", b.count, len(b.objects), len(b.instances))
	}
}

func TestGPUObjectDataLayout(t *testing.T) {
	obj := GPUObjectData{
		Model:     mgl32.Translate3D(1, 2, 3),
		BaseColor: [4]float32{0.1, 0.2, 0.3, 0.4},
		Metallic:  0.5,
		Roughness: 0.6,
	}
	if got := obj.Size(); got != 96 {
		t.Fatalf("Size() = %d, want 96", got)
	}
	buf := obj.AppendTo(nil)
	if len(buf) != 96 {
		t.Fatalf("len(AppendTo()) = %d, want 96", len(buf))
	}
	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	tests := []struct {
		name   string
		offset int
		want   float32
	}{
		{"translation x", 48, 1},
		{"translation z", 56, 3},
		{"base color r", 64, 0.1},
		{"base color a", 76, 0.4},
		{"metallic", 80, 0.5},
		{"roughness", 84, 0.6},
		{"padding", 88, 0},
	}
	for _, tt := range tests {
		if got := f32(tt.offset); got != tt.want {
			t.Errorf("%s at %d = %v, want %v", tt.name, tt.offset, got, tt.want)
		}
	}
}
