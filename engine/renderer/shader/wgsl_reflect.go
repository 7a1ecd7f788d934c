package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

var (
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	locationRegex    = regexp.MustCompile(`@location\((\d+)\)`)
	builtinRegex     = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches "[attributes] name: type". The type capture is greedy for array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\w+)\s*(?:,\s*(\w+)\s*(?:,\s*(\w+)\s*)?)?\)`)

	// constRegex captures module-scope integer constants so @workgroup_size(TILE_SIZE) resolves.
	constRegex = regexp.MustCompile(`const\s+(\w+)\s*(?::\s*\w+\s*)?=\s*(\d+)[ui]?\s*;`)

	// bindingDeclRegex captures group, binding, address space, name and type of
	// "@group(0) @binding(1) var<storage, read> lights: array<PointLight>;"
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// Reflection is the resource interface of one shader stage recovered from its WGSL source.
type Reflection struct {
	EntryPoint    string
	Bindings      []gpu.BindingLayout
	VertexBuffers []gpu.VertexBufferLayout
	WorkgroupSize [3]uint32
}

// Reflect extracts the entry point, resource bindings, vertex inputs and workgroup size of a
// preprocessed WGSL stage.
//
// Parameters:
//   - source: preprocessed WGSL source
//   - stage: the stage the source is compiled for
//
// Returns:
//   - Reflection: the reflected interface
//   - error: an error if the stage has no entry point or a binding type is not recognized
func Reflect(source string, stage gpu.ShaderStage) (Reflection, error) {
	cleaned := stripComments(source)
	r := Reflection{EntryPoint: parseEntryPoint(cleaned, stage)}
	if r.EntryPoint == "" {
		return Reflection{}, fmt.Errorf("shader: no entry point for stage %d", stage)
	}

	bindings, err := parseBindings(cleaned, stage)
	if err != nil {
		return Reflection{}, err
	}
	r.Bindings = bindings

	switch stage {
	case gpu.ShaderStageVertex:
		r.VertexBuffers = parseVertexLayouts(cleaned)
	case gpu.ShaderStageCompute:
		r.WorkgroupSize = parseWorkgroupSize(cleaned)
	}
	return r, nil
}

// MergeBindings merges the bindings of several stages of one pipeline. Entries declared by more
// than one stage get the union of the visibilities. The result is sorted by group then binding.
//
// Parameters:
//   - stages: the per-stage binding lists
//
// Returns:
//   - []gpu.BindingLayout: the merged bindings
//   - error: an error if two stages declare the same slot with different kinds
func MergeBindings(stages ...[]gpu.BindingLayout) ([]gpu.BindingLayout, error) {
	type slot struct{ group, binding uint32 }
	merged := make(map[slot]gpu.BindingLayout)
	for _, bindings := range stages {
		for _, b := range bindings {
			key := slot{b.Group, b.Binding}
			existing, ok := merged[key]
			if !ok {
				merged[key] = b
				continue
			}
			if existing.Kind != b.Kind {
				return nil, fmt.Errorf("shader: group %d binding %d declared as %s and %s", b.Group, b.Binding, existing.Kind, b.Kind)
			}
			existing.Visibility |= b.Visibility
			existing.MinSize = max(existing.MinSize, b.MinSize)
			merged[key] = existing
		}
	}

	out := make([]gpu.BindingLayout, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out, nil
}

func parseBindings(cleaned string, stage gpu.ShaderStage) ([]gpu.BindingLayout, error) {
	sizes := computeStructSizes(parseStructBlocks(cleaned))

	var out []gpu.BindingLayout
	for _, m := range bindingDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		addressSpace := strings.TrimSpace(m[3])
		typeName := strings.TrimSpace(m[5])

		b := gpu.BindingLayout{
			Group:      uint32(group),
			Binding:    uint32(binding),
			Name:       strings.TrimSpace(m[4]),
			Visibility: stage,
		}
		if err := classifyResource(&b, addressSpace, typeName); err != nil {
			return nil, err
		}
		if b.Kind.IsBuffer() {
			if layout, ok := resolveTypeLayout(typeName, sizes); ok {
				b.MinSize = layout.size
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out, nil
}

// classifyResource sets the binding kind from the address space (buffers) or the handle type
// (textures and samplers).
func classifyResource(b *gpu.BindingLayout, addressSpace, typeName string) error {
	if addressSpace != "" {
		switch {
		case addressSpace == "uniform":
			b.Kind = gpu.BindingUniformBuffer
		case strings.HasPrefix(addressSpace, "storage"):
			b.Kind = gpu.BindingReadOnlyStorageBuffer
			if strings.Contains(addressSpace, "read_write") {
				b.Kind = gpu.BindingStorageBuffer
			}
		default:
			return fmt.Errorf("shader: %s has unsupported address space %q", b.Name, addressSpace)
		}
		return nil
	}

	base, params := splitTypeParams(typeName)
	switch {
	case typeName == "sampler":
		b.Kind = gpu.BindingSampler
	case typeName == "sampler_comparison":
		b.Kind = gpu.BindingComparisonSampler
	case strings.HasPrefix(base, "texture_storage_"):
		b.Kind = gpu.BindingStorageTexture
		format, _, _ := strings.Cut(params, ",")
		b.TexelFormat = strings.TrimSpace(format)
	case strings.HasPrefix(base, "texture_depth_"):
		b.Kind = gpu.BindingDepthTexture
		b.Multisampled = strings.Contains(base, "multisampled")
	case strings.HasPrefix(base, "texture_"):
		b.Kind = gpu.BindingSampledTexture
		b.Multisampled = strings.Contains(base, "multisampled")
	default:
		return fmt.Errorf("shader: %s has unsupported handle type %q", b.Name, typeName)
	}
	return nil
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32").
func splitTypeParams(typeName string) (string, string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

func parseEntryPoint(cleaned string, stage gpu.ShaderStage) string {
	var re *regexp.Regexp
	switch stage {
	case gpu.ShaderStageVertex:
		re = vertexEntryRegex
	case gpu.ShaderStageFragment:
		re = fragmentEntryRegex
	case gpu.ShaderStageCompute:
		re = computeEntryRegex
	default:
		return ""
	}
	if m := re.FindStringSubmatch(cleaned); m != nil {
		return m[1]
	}
	return ""
}

// parseWorkgroupSize returns the @workgroup_size dimensions. Omitted dimensions are 1, and
// named dimensions are resolved through module-scope integer constants.
func parseWorkgroupSize(cleaned string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(cleaned)
	if m == nil {
		return result
	}
	consts := make(map[string]uint64)
	for _, c := range constRegex.FindAllStringSubmatch(cleaned, -1) {
		if v, err := strconv.ParseUint(c[2], 10, 32); err == nil {
			consts[c[1]] = v
		}
	}
	for i := 0; i < 3; i++ {
		dim := m[i+1]
		if dim == "" {
			continue
		}
		if v, err := strconv.ParseUint(dim, 10, 32); err == nil {
			result[i] = uint32(v)
		} else if v, ok := consts[dim]; ok {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseVertexLayouts builds one vertex buffer layout per pure vertex input struct, meaning a
// struct with @location fields and no @builtin field.
func parseVertexLayouts(cleaned string) []gpu.VertexBufferLayout {
	var out []gpu.VertexBufferLayout
	for _, ps := range parseStructBlocks(cleaned) {
		if !isVertexInputStruct(ps) {
			continue
		}
		if layout, ok := buildVertexBufferLayout(ps); ok {
			out = append(out, layout)
		}
	}
	return out
}

func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

func buildVertexBufferLayout(ps parsedStruct) (gpu.VertexBufferLayout, bool) {
	attrs := make([]gpu.VertexAttribute, 0, len(ps.fields))
	var offset uint64
	for _, f := range ps.fields {
		info, ok := wgslVertexFormats[f.typeName]
		if !ok {
			return gpu.VertexBufferLayout{}, false
		}
		attrs = append(attrs, gpu.VertexAttribute{
			Format:   info.format,
			Offset:   offset,
			Location: uint32(f.location),
		})
		offset += info.size
	}
	return gpu.VertexBufferLayout{Stride: offset, Attributes: attrs}, true
}

func parseStructBlocks(cleaned string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(cleaned, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		structs = append(structs, parsedStruct{name: m[1], fields: parseStructFields(m[2])})
	}
	return structs
}

func parseStructFields(body string) []parsedField {
	parts := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field := parsedField{location: -1, isBuiltin: builtinRegex.MatchString(part)}
		if m := locationRegex.FindStringSubmatch(part); m != nil {
			if loc, err := strconv.Atoi(m[1]); err == nil {
				field.location = loc
			}
		}
		m := fieldRegex.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		field.name = m[1]
		field.typeName = strings.TrimSpace(m[2])
		fields = append(fields, field)
	}
	return fields
}

// stripComments removes line comments and (nested) block comments.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i++
				continue
			}
			if source[i] == '*' && source[i+1] == '/' && depth > 0 {
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}
