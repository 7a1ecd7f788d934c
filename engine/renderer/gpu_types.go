package renderer

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUObjectData is the per-draw record read by the mesh shaders through the instance index.
// Size: 96 bytes.
//
// Layout:
//
//	mat4x4<f32> model       (offset  0)
//	vec4<f32>   base_color  (offset 64)
//	f32         metallic    (offset 80)
//	f32         roughness   (offset 84)
//	f32         padding     (offset 88)
//	f32         padding     (offset 92)
type GPUObjectData struct {
	Model     mgl32.Mat4
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
	_pad      [2]float32
}

// Size returns the size of the GPUObjectData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (g *GPUObjectData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// AppendTo serializes the record onto buf.
//
// Parameters:
//   - buf: the destination
//
// Returns:
//   - []byte: buf extended by 96 bytes
func (g *GPUObjectData) AppendTo(buf []byte) []byte {
	for _, v := range g.Model {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, v := range g.BaseColor {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(g.Metallic))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(g.Roughness))
	return append(buf, make([]byte, 8)...)
}
