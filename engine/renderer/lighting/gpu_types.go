package lighting

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// gridEntryWords is the number of u32 words the light grid holds per tile: an (offset, count)
// pair per light kind for the opaque list followed by the same for the transparent list.
const gridEntryWords = 12

// gpuGridParams is the uniform block of the frustum grid shader.
// Size: 80 bytes.
//
// Layout:
//
//	mat4x4<f32> inverse_projection  (offset  0)
//	vec2<f32>   resolution          (offset 64)
//	vec2<u32>   tile_count          (offset 72)
type gpuGridParams struct {
	InverseProjection mgl32.Mat4
	Resolution        [2]float32
	TileCount         [2]uint32
}

func (g gpuGridParams) Marshal() []byte {
	buf := make([]byte, 80)
	for i, v := range g.InverseProjection {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(g.Resolution[0]))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(g.Resolution[1]))
	binary.LittleEndian.PutUint32(buf[72:], g.TileCount[0])
	binary.LittleEndian.PutUint32(buf[76:], g.TileCount[1])
	return buf
}

// packIndices serializes light indices as consecutive u32 values.
func packIndices(runs ...[]uint32) []byte {
	n := 0
	for _, r := range runs {
		n += len(r)
	}
	buf := make([]byte, 0, n*4)
	for _, r := range runs {
		for _, v := range r {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
	}
	return buf
}
