package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// wgslTypeLayout is the byte size and alignment of a WGSL type in host-shareable memory.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// vertexFormatInfo pairs a vertex attribute format with its byte size.
type vertexFormatInfo struct {
	format gpu.VertexFormat
	size   uint64
}

type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

type parsedStruct struct {
	name   string
	fields []parsedField
}

// wgslPrimitiveLayouts holds size and alignment of the scalar, vector, matrix and atomic types.
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayouts = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// wgslVertexFormats maps vertex input field types to attribute formats.
var wgslVertexFormats = map[string]vertexFormatInfo{
	"f32":       {gpu.VertexFormatFloat32, 4},
	"vec2<f32>": {gpu.VertexFormatFloat32x2, 8},
	"vec2f":     {gpu.VertexFormatFloat32x2, 8},
	"vec3<f32>": {gpu.VertexFormatFloat32x3, 12},
	"vec3f":     {gpu.VertexFormatFloat32x3, 12},
	"vec4<f32>": {gpu.VertexFormatFloat32x4, 16},
	"vec4f":     {gpu.VertexFormatFloat32x4, 16},
	"u32":       {gpu.VertexFormatUint32, 4},
	"vec2<u32>": {gpu.VertexFormatUint32x2, 8},
	"vec3<u32>": {gpu.VertexFormatUint32x3, 12},
	"vec4<u32>": {gpu.VertexFormatUint32x4, 16},
	"vec4u":     {gpu.VertexFormatUint32x4, 16},
	"i32":       {gpu.VertexFormatSint32, 4},
	"vec2<i32>": {gpu.VertexFormatSint32x2, 8},
	"vec3<i32>": {gpu.VertexFormatSint32x3, 12},
	"vec4<i32>": {gpu.VertexFormatSint32x4, 16},
}

// resolveTypeLayout resolves a type to its layout from the primitives and the already computed
// structs. A runtime-sized array resolves to one element stride so callers can use it as the
// minimum binding size.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "f32", "PointLight", "array<TileFrustum, 4>"
//   - knownTypes: struct layouts computed so far
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayouts[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}
	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return wgslTypeLayout{}, false
	}

	inner := typeName[len("array<") : len(typeName)-1]
	parts := splitAtTopLevelCommas(inner)
	elem, ok := resolveTypeLayout(strings.TrimSpace(parts[0]), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := common.NextMultipleOf(elem.size, elem.align)
	if len(parts) == 2 {
		count, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(parts[1]), "u"), 10, 64)
		if err != nil {
			return wgslTypeLayout{}, false
		}
		return wgslTypeLayout{count * stride, elem.align}, true
	}
	return wgslTypeLayout{stride, elem.align}, true
}

// computeStructLayout lays a struct out field by field. A trailing runtime-sized array adds
// nothing to the size; a struct made only of one contributes its element stride.
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		layout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		if isRuntimeArray(field.typeName) {
			if offset == 0 {
				return layout, true
			}
			return wgslTypeLayout{common.NextMultipleOf(offset, maxAlign), maxAlign}, true
		}
		offset = common.NextMultipleOf(offset, layout.align)
		offset += layout.size
		maxAlign = max(maxAlign, layout.align)
	}
	return wgslTypeLayout{common.NextMultipleOf(offset, maxAlign), maxAlign}, true
}

func isRuntimeArray(typeName string) bool {
	if !strings.HasPrefix(typeName, "array<") {
		return false
	}
	return len(splitAtTopLevelCommas(typeName[len("array<"):len(typeName)-1])) == 1
}

// computeStructSizes resolves every struct, repeating until no further struct can be resolved so
// that structs may reference structs declared later in the source.
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return resolved
}

// splitAtTopLevelCommas splits at commas outside angle brackets, so "array<T, 4>, u32" yields two parts.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
