package shader

import (
	"testing"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

const reflectCompute = `
const TILE_SIZE = 16u;

struct PointLight {
    position: vec3<f32>,
    range: f32,
    color: vec3<f32>,
    intensity: f32,
}

struct Params {
    inverse_projection: mat4x4<f32>,
    resolution: vec2<u32>,
    tile_count: vec2<u32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> lights: array<PointLight>;
/* @group(0) @binding(9) var<uniform> commented: Params; */
@group(1) @binding(0) var<storage, read_write> counter: array<atomic<u32>, 2>;
@group(1) @binding(1) var depth_texture: texture_depth_2d;
// @group(1) @binding(7) var<uniform> also_commented: Params;

@compute @workgroup_size(TILE_SIZE, TILE_SIZE)
fn cull_main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

func TestReflectCompute(t *testing.T) {
	r, err := Reflect(reflectCompute, gpu.ShaderStageCompute)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if r.EntryPoint != "cull_main" {
		t.Errorf("EntryPoint = %q, want cull_main", r.EntryPoint)
	}
	if r.WorkgroupSize != [3]uint32{16, 16, 1} {
		t.Errorf("WorkgroupSize = %v, want [16 16 1]", r.WorkgroupSize)
	}

	want := []gpu.BindingLayout{
		{Group: 0, Binding: 0, Name: "params", Kind: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageCompute, MinSize: 80},
		{Group: 0, Binding: 1, Name: "lights", Kind: gpu.BindingReadOnlyStorageBuffer, Visibility: gpu.ShaderStageCompute, MinSize: 32},
		{Group: 1, Binding: 0, Name: "counter", Kind: gpu.BindingStorageBuffer, Visibility: gpu.ShaderStageCompute, MinSize: 8},
		{Group: 1, Binding: 1, Name: "depth_texture", Kind: gpu.BindingDepthTexture, Visibility: gpu.ShaderStageCompute},
	}
	if len(r.Bindings) != len(want) {
		t.Fatalf("got %d bindings, want %d: %+v", len(r.Bindings), len(want), r.Bindings)
	}
	for i := range want {
		if r.Bindings[i] != want[i] {
			t.Errorf("binding %d = %+v, want %+v", i, r.Bindings[i], want[i])
		}
	}
}

func TestReflectVertexInputs(t *testing.T) {
	src := `
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
}

struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) world: vec3<f32>,
}

@vertex
fn vs_main(in: VertexInput, @builtin(instance_index) instance: u32) -> VertexOutput {
    var out: VertexOutput;
    return out;
}
`
	r, err := Reflect(src, gpu.ShaderStageVertex)
	if err != nil {
		t.Fatal(err)
	}
	if r.EntryPoint != "vs_main" {
		t.Errorf("EntryPoint = %q", r.EntryPoint)
	}
	if len(r.VertexBuffers) != 1 {
		t.Fatalf("VertexBuffers = %+v, want one layout", r.VertexBuffers)
	}
	vb := r.VertexBuffers[0]
	if vb.Stride != 32 {
		t.Errorf("Stride = %d, want 32", vb.Stride)
	}
	if len(vb.Attributes) != 3 || vb.Attributes[2].Offset != 24 || vb.Attributes[2].Format != gpu.VertexFormatFloat32x2 {
		t.Errorf("Attributes = %+v", vb.Attributes)
	}
}

func TestReflectMissingEntryPoint(t *testing.T) {
	if _, err := Reflect("fn helper() {}", gpu.ShaderStageFragment); err == nil {
		t.Error("expected an error for a fragment source without @fragment")
	}
}

func TestMergeBindings(t *testing.T) {
	vs := []gpu.BindingLayout{
		{Group: 0, Binding: 0, Name: "frame", Kind: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageVertex, MinSize: 64},
		{Group: 0, Binding: 1, Name: "objects", Kind: gpu.BindingReadOnlyStorageBuffer, Visibility: gpu.ShaderStageVertex},
	}
	ps := []gpu.BindingLayout{
		{Group: 0, Binding: 0, Name: "frame", Kind: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageFragment, MinSize: 64},
		{Group: 1, Binding: 0, Name: "lighting", Kind: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageFragment},
	}
	merged, err := MergeBindings(vs, ps)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 3 {
		t.Fatalf("merged = %+v, want 3 entries", merged)
	}
	if merged[0].Visibility != gpu.ShaderStageVertex|gpu.ShaderStageFragment {
		t.Errorf("frame visibility = %v, want vertex|fragment", merged[0].Visibility)
	}
	if merged[2].Group != 1 {
		t.Errorf("entries not sorted by group: %+v", merged)
	}

	conflict := []gpu.BindingLayout{{Group: 0, Binding: 1, Kind: gpu.BindingStorageBuffer}}
	if _, err := MergeBindings(vs, conflict); err == nil {
		t.Error("expected an error for conflicting kinds")
	}
}

func TestResolveTypeLayout(t *testing.T) {
	known := map[string]wgslTypeLayout{"TileFrustum": {64, 16}}
	tests := []struct {
		typ  string
		want wgslTypeLayout
		ok   bool
	}{
		{"vec3<f32>", wgslTypeLayout{12, 16}, true},
		{"array<TileFrustum, 4>", wgslTypeLayout{256, 16}, true},
		{"array<vec3<f32>, 2>", wgslTypeLayout{32, 16}, true},
		{"array<u32>", wgslTypeLayout{4, 4}, true},
		{"Unknown", wgslTypeLayout{}, false},
	}
	for _, tt := range tests {
		got, ok := resolveTypeLayout(tt.typ, known)
		if ok != tt.ok || got != tt.want {
			t.Errorf("resolveTypeLayout(%q) = %v, %v; want %v, %v", tt.typ, got, ok, tt.want, tt.ok)
		}
	}
}
