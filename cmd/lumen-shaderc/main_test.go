package main

import (
	"slices"
	"testing"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

func TestProgramsAreDistinct(t *testing.T) {
	var got []string
	for _, p := range programs() {
		got = append(got, p.fileName(gpu.ShaderFormatSPIRV))
	}
	want := []string{
		"lighting_frustum_grid.spv",
		"lighting_light_culling.spv",
		"mesh.ps.spv",
		"mesh.ps__ps_pipeline_transparent.spv",
		"mesh.vs.spv",
		"mesh.vs__vs_shadow_pass.spv",
		"mesh.vs__vs_shadow_pass__vs_shadow_point.spv",
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("programs() = %v, want %v", got, want)
	}
}

func TestFileName(t *testing.T) {
	p := program{name: "mesh.vs", macros: []string{"VS_SHADOW_POINT", "VS_SHADOW_PASS"}}
	tests := []struct {
		format gpu.ShaderFormat
		want   string
	}{
		{gpu.ShaderFormatSPIRV, "mesh.vs__vs_shadow_pass__vs_shadow_point.spv"},
		{gpu.ShaderFormatHLSL, "mesh.vs__vs_shadow_pass__vs_shadow_point.hlsl"},
	}
	for _, tt := range tests {
		if got := p.fileName(tt.format); got != tt.want {
			t.Errorf("fileName(%v) = %q, want %q", tt.format, got, tt.want)
		}
	}
	if p.macros[0] != "VS_SHADOW_POINT" {
		t.Error("fileName() reordered the program's macros")
	}
}

func TestParseFormats(t *testing.T) {
	if got, err := parseFormats("all"); err != nil || len(got) != 2 {
		t.Errorf("parseFormats(all) = %v, %v, want two formats", got, err)
	}
	if got, err := parseFormats("HLSL"); err != nil || len(got) != 1 || got[0] != gpu.ShaderFormatHLSL {
		t.Errorf("parseFormats(HLSL) = %v, %v, want [hlsl]", got, err)
	}
	if _, err := parseFormats("msl"); err == nil {
		t.Error("parseFormats(msl) error = nil, want an error")
	}
}
