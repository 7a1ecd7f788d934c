package material

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

const testVertexShader = `
struct Transform {
    model: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> transform: Transform;

struct VertexInput {
    @location(0) position: vec3<f32>,
}

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return transform.model * vec4<f32>(in.position, 1.0);
}
`

const testPixelShader = `
@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

func newTestManager(t *testing.T) pipeline.Manager {
	t.Helper()
	reg := shader.NewRegistry(gpu.ShaderFormatWGSL)
	if err := reg.Register(DefaultVertexShader, gpu.ShaderStageVertex, testVertexShader); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(DefaultPixelShader, gpu.ShaderStageFragment, testPixelShader); err != nil {
		t.Fatal(err)
	}
	reg.MarkReady()
	return pipeline.NewManager(gpu.NewHeadlessDevice(), reg)
}

func TestMaterialPipelines(t *testing.T) {
	pm := newTestManager(t)
	mat, err := NewMaterial(pm, WithName("stone"), WithBaseColor([4]float32{0.5, 0.5, 0.5, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if got := mat.Kind(); got != pipeline.PipelineKindOpaque {
		t.Errorf("Kind() = %s, want opaque", got)
	}
	if got := pm.GetCurrentGraphicsPipelineCount(); got != 1 {
		t.Errorf("pipelines after creation = %d, want 1", got)
	}

	main, err := mat.Pipeline(pipeline.PipelineKindOpaque)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[pipeline.Pipeline]bool{main: true}
	for i, kind := range []pipeline.PipelineKind{
		pipeline.PipelineKindDepthOnly,
		pipeline.PipelineKindShadowDirectionalSpot,
		pipeline.PipelineKindShadowPoint,
	} {
		p, err := mat.Pipeline(kind)
		if err != nil {
			t.Fatalf("Pipeline(%s): %v", kind, err)
		}
		if seen[p] {
			t.Errorf("Pipeline(%s) reused another kind's pipeline", kind)
		}
		seen[p] = true
		if got := p.Identity().VertexShader; got != DefaultVertexShader {
			t.Errorf("Pipeline(%s) vertex shader = %q, want %q", kind, got, DefaultVertexShader)
		}
		if got, want := pm.GetCurrentGraphicsPipelineCount(), i+2; got != want {
			t.Errorf("pipelines after %s = %d, want %d", kind, got, want)
		}
		again, _ := mat.Pipeline(kind)
		if again != p {
			t.Errorf("second Pipeline(%s) acquired a new pipeline", kind)
		}
	}

	mat.Release()
	mat.Release()
	if got := pm.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("pipelines after Release = %d, want 0", got)
	}
	if _, err := mat.Pipeline(pipeline.PipelineKindOpaque); err == nil {
		t.Error("Pipeline() after Release succeeded")
	}
}

func TestMaterialsSharePipelines(t *testing.T) {
	pm := newTestManager(t)
	a, err := NewMaterial(pm, WithName("a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewMaterial(pm, WithName("b"), WithBaseColor([4]float32{1, 0, 0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	pa, _ := a.Pipeline(pipeline.PipelineKindOpaque)
	pb, _ := b.Pipeline(pipeline.PipelineKindOpaque)
	if pa != pb {
		t.Error("materials with the same shaders should share a pipeline")
	}
	if got := pa.Users(); got != 2 {
		t.Errorf("Users() = %d, want 2", got)
	}

	glass, err := NewMaterial(pm, WithName("glass"), WithTransparent(true))
	if err != nil {
		t.Fatal(err)
	}
	if got := glass.Kind(); got != pipeline.PipelineKindTransparent {
		t.Errorf("Kind() = %s, want transparent", got)
	}
	if got := pm.GetCurrentGraphicsPipelineCount(); got != 2 {
		t.Errorf("pipelines = %d, want 2", got)
	}

	a.Release()
	if got := pb.Users(); got != 1 {
		t.Errorf("Users() after one release = %d, want 1", got)
	}
	b.Release()
	glass.Release()
	if got := pm.GetCurrentGraphicsPipelineCount(); got != 0 {
		t.Errorf("pipelines after all releases = %d, want 0", got)
	}
}

func TestMaterialMacroPrefix(t *testing.T) {
	pm := newTestManager(t)
	tests := []struct {
		name string
		opt  MaterialBuilderOption
	}{
		{"vertex", WithVertexMacros("SKINNED")},
		{"pixel", WithPixelMacros("VS_WRONG_STAGE")},
	}
	for _, tt := range tests {
		if _, err := NewMaterial(pm, tt.opt); !errors.Is(err, pipeline.ErrInvalidMacroPrefix) {
			t.Errorf("%s: err = %v, want ErrInvalidMacroPrefix", tt.name, err)
		}
	}
}
