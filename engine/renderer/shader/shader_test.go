package shader

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

const doubleCompute = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x * 2u;
}
`

const maskedFragment = `
//@lumen:include common
@group(0) @binding(0) var<uniform> tint: vec4<f32>;
//@lumen:ifdef PS_PIPELINE_TRANSPARENT
@group(0) @binding(1) var<uniform> alpha: f32;
//@lumen:endif

@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return tint;
}
`

type countingCompiler struct {
	calls atomic.Int32
}

func (c *countingCompiler) Compile(source string, format gpu.ShaderFormat) ([]byte, error) {
	c.calls.Add(1)
	return []byte("bytecode:" + format.String()), nil
}

func TestRegistryProgramPermutations(t *testing.T) {
	r := NewRegistry(gpu.ShaderFormatWGSL)
	r.RegisterInclude("common", "// shared helpers")
	if err := r.Register("mesh.ps", gpu.ShaderStageFragment, maskedFragment); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("mesh.ps", gpu.ShaderStageFragment, maskedFragment); err == nil {
		t.Error("registering a name twice should fail")
	}

	opaque, err := r.Program("mesh.ps", nil)
	if err != nil {
		t.Fatal(err)
	}
	transparent, err := r.Program("mesh.ps", []string{"PS_PIPELINE_TRANSPARENT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(opaque.Bindings) != 1 || len(transparent.Bindings) != 2 {
		t.Errorf("bindings opaque=%d transparent=%d, want 1 and 2", len(opaque.Bindings), len(transparent.Bindings))
	}
	if opaque.Bytecode != nil {
		t.Error("WGSL programs should carry no bytecode")
	}
	if m := transparent.Module(); m.EntryPoint != "ps_main" || !strings.Contains(m.Label, "PS_PIPELINE_TRANSPARENT") {
		t.Errorf("Module = %+v", m)
	}

	if _, err := r.Program("missing", nil); !errors.Is(err, ErrUnknownShader) {
		t.Errorf("err = %v, want ErrUnknownShader", err)
	}
}

func TestRegistryCachesCompiledPrograms(t *testing.T) {
	c := &countingCompiler{}
	r := NewRegistry(gpu.ShaderFormatSPIRV, WithCompiler(c))
	_ = r.Register("double", gpu.ShaderStageCompute, doubleCompute)

	a, err := r.Program("double", []string{"B", "A", "A"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Program("double", []string{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("equal macro sets should share the cached program")
	}
	if c.calls.Load() != 1 {
		t.Errorf("compiler called %d times, want 1", c.calls.Load())
	}
	if string(a.Bytecode) != "bytecode:spirv" {
		t.Errorf("Bytecode = %q", a.Bytecode)
	}
	if got := strings.Join(a.Macros, ","); got != "A,B" {
		t.Errorf("Macros = %q, want A,B", got)
	}
	if a.WorkgroupSize != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize = %v", a.WorkgroupSize)
	}
}

func TestRegistryReady(t *testing.T) {
	r := NewRegistry(gpu.ShaderFormatWGSL)
	if r.Ready() {
		t.Fatal("new registry should not be ready")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady = %v, want deadline exceeded", err)
	}
	r.MarkReady()
	r.MarkReady()
	if !r.Ready() {
		t.Error("registry should be ready after MarkReady")
	}
	if err := r.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady after MarkReady = %v", err)
	}
}

func TestNagaCompilerSPIRV(t *testing.T) {
	out, err := NewCompiler().Compile(doubleCompute, gpu.ShaderFormatSPIRV)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(out) < 20 || out[0] != 0x03 || out[1] != 0x02 || out[2] != 0x23 || out[3] != 0x07 {
		t.Fatalf("output does not start with the SPIR-V magic number")
	}
}

func TestNagaCompilerPassesWGSLThrough(t *testing.T) {
	out, err := NewCompiler().Compile(doubleCompute, gpu.ShaderFormatWGSL)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != doubleCompute {
		t.Error("WGSL output should equal the input")
	}
}

func TestNagaCompilerRejectsInvalidSource(t *testing.T) {
	if _, err := NewCompiler().Compile("fn broken( {", gpu.ShaderFormatSPIRV); err == nil {
		t.Error("expected a parse error")
	}
}
