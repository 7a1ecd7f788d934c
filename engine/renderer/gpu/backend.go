package gpu

import (
	"fmt"
	"strings"
)

// Backend identifies the native graphics API the renderer was created for.
// It is chosen once at renderer creation and never inspected by type afterwards.
type Backend int

const (
	// BackendVulkan selects the Vulkan API. Shader bytecode is SPIR-V.
	BackendVulkan Backend = iota

	// BackendDirectX selects the DirectX 12 API. Shader bytecode is HLSL.
	BackendDirectX
)

// ShaderFormat is the shader representation a device consumes when creating pipelines.
type ShaderFormat int

const (
	// ShaderFormatWGSL hands WGSL text to the device, which translates it internally.
	ShaderFormatWGSL ShaderFormat = iota

	// ShaderFormatSPIRV is SPIR-V binary, consumed by Vulkan.
	ShaderFormatSPIRV

	// ShaderFormatHLSL is HLSL source, consumed by DirectX.
	ShaderFormatHLSL
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	PresentModeUncapped
)

func (b Backend) String() string {
	switch b {
	case BackendVulkan:
		return "vulkan"
	case BackendDirectX:
		return "directx"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// BytecodeFormat returns the native shader representation of the backend API.
func (b Backend) BytecodeFormat() ShaderFormat {
	if b == BackendDirectX {
		return ShaderFormatHLSL
	}
	return ShaderFormatSPIRV
}

// MarshalText implements encoding.TextMarshaler so settings files store the API by name.
func (b Backend) MarshalText() ([]byte, error) {
	switch b {
	case BackendVulkan, BackendDirectX:
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("gpu: unknown backend %d", int(b))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	parsed, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBackend converts a backend name into a Backend. Matching is case-insensitive and accepts
// common aliases ("vk", "dx12", "d3d12").
//
// Parameters:
//   - s: the backend name
//
// Returns:
//   - Backend: the parsed backend
//   - error: an error if the name is not recognized
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vulkan", "vk":
		return BackendVulkan, nil
	case "directx", "dx12", "d3d12", "dx":
		return BackendDirectX, nil
	default:
		return 0, fmt.Errorf("gpu: unknown backend %q", s)
	}
}

func (f ShaderFormat) String() string {
	switch f {
	case ShaderFormatWGSL:
		return "wgsl"
	case ShaderFormatSPIRV:
		return "spirv"
	case ShaderFormatHLSL:
		return "hlsl"
	default:
		return fmt.Sprintf("ShaderFormat(%d)", int(f))
	}
}
