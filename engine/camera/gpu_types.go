package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUFrameConstantsSource is the canonical WGSL definition of the FrameConstants struct.
// Matches GPUFrameConstants layout exactly (288 bytes).
//
//go:embed assets/frame_constants.wgsl
var GPUFrameConstantsSource string

// GPUFrameConstants is the per-frame camera block written into each frame slot's constant buffer.
// Size: 288 bytes.
//
// Layout:
//
//	mat4x4<f32> view                (offset   0)
//	mat4x4<f32> projection          (offset  64)
//	mat4x4<f32> view_projection     (offset 128)
//	mat4x4<f32> inverse_projection  (offset 192)
//	vec3<f32>   camera_position     (offset 256)
//	f32         near                (offset 268)
//	vec2<f32>   resolution          (offset 272)
//	f32         far                 (offset 280)
//	f32         padding             (offset 284)
type GPUFrameConstants struct {
	View              mgl32.Mat4
	Projection        mgl32.Mat4
	ViewProjection    mgl32.Mat4
	InverseProjection mgl32.Mat4
	CameraPosition    [3]float32
	Near              float32
	Resolution        [2]float32
	Far               float32
	_pad              float32
}

// Size returns the size of the GPUFrameConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (288)
func (g *GPUFrameConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUFrameConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUFrameConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	for m, mat := range []mgl32.Mat4{g.View, g.Projection, g.ViewProjection, g.InverseProjection} {
		for i, v := range mat {
			binary.LittleEndian.PutUint32(buf[m*64+i*4:], math.Float32bits(v))
		}
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[256+i*4:], math.Float32bits(g.CameraPosition[i]))
	}
	binary.LittleEndian.PutUint32(buf[268:], math.Float32bits(g.Near))
	binary.LittleEndian.PutUint32(buf[272:], math.Float32bits(g.Resolution[0]))
	binary.LittleEndian.PutUint32(buf[276:], math.Float32bits(g.Resolution[1]))
	binary.LittleEndian.PutUint32(buf[280:], math.Float32bits(g.Far))
	return buf
}
