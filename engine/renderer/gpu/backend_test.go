package gpu

import "testing"

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"vulkan", BackendVulkan, false},
		{"VK", BackendVulkan, false},
		{" directx ", BackendDirectX, false},
		{"dx12", BackendDirectX, false},
		{"d3d12", BackendDirectX, false},
		{"metal", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBackendText(t *testing.T) {
	text, err := BackendDirectX.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "directx" {
		t.Errorf("MarshalText = %q, want directx", text)
	}

	var b Backend
	if err := b.UnmarshalText([]byte("vk")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != BackendVulkan {
		t.Errorf("UnmarshalText(vk) = %v, want vulkan", b)
	}

	if _, err := Backend(9).MarshalText(); err == nil {
		t.Error("MarshalText of an unknown backend should fail")
	}
}

func TestBytecodeFormat(t *testing.T) {
	if got := BackendVulkan.BytecodeFormat(); got != ShaderFormatSPIRV {
		t.Errorf("vulkan bytecode = %v, want spirv", got)
	}
	if got := BackendDirectX.BytecodeFormat(); got != ShaderFormatHLSL {
		t.Errorf("directx bytecode = %v, want hlsl", got)
	}
}
