package light

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUPointLight is the GPU-aligned representation of a point light.
// Matches the WGSL PointLight struct of the light culling and mesh shaders.
// Size: 32 bytes.
//
// Layout:
//
//	vec3<f32> position   (offset  0)
//	f32       range      (offset 12)
//	vec3<f32> color      (offset 16)
//	f32       intensity  (offset 28)
type GPUPointLight struct {
	Position  [3]float32
	Range     float32
	Color     [3]float32
	Intensity float32
}

// NewGPUPointLight captures the current state of a point light.
//
// Parameters:
//   - l: the light
//
// Returns:
//   - GPUPointLight: the record ready for upload
func NewGPUPointLight(l Light) GPUPointLight {
	return GPUPointLight{
		Position:  l.Position(),
		Range:     l.Range(),
		Color:     l.Color(),
		Intensity: l.Intensity(),
	}
}

// Size returns the size of the GPUPointLight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g GPUPointLight) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUPointLight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g GPUPointLight) Marshal() []byte {
	buf := make([]byte, 32)
	putVec3(buf[0:12], g.Position)
	putFloat(buf[12:16], g.Range)
	putVec3(buf[16:28], g.Color)
	putFloat(buf[28:32], g.Intensity)
	return buf
}

// GPUSpotLight is the GPU-aligned representation of a spot light.
// Size: 64 bytes.
//
// Layout:
//
//	vec3<f32> position   (offset  0)
//	f32       range      (offset 12)
//	vec3<f32> direction  (offset 16)
//	f32       cos_outer  (offset 28)
//	vec3<f32> color      (offset 32)
//	f32       intensity  (offset 44)
//	f32       cos_inner  (offset 48)
//	3 x u32   padding    (offset 52)
type GPUSpotLight struct {
	Position  [3]float32
	Range     float32
	Direction [3]float32
	CosOuter  float32
	Color     [3]float32
	Intensity float32
	CosInner  float32
	_pad      [3]uint32
}

// NewGPUSpotLight captures the current state of a spot light.
//
// Parameters:
//   - l: the light
//
// Returns:
//   - GPUSpotLight: the record ready for upload
func NewGPUSpotLight(l Light) GPUSpotLight {
	return GPUSpotLight{
		Position:  l.Position(),
		Range:     l.Range(),
		Direction: l.Direction(),
		CosOuter:  l.OuterCone(),
		Color:     l.Color(),
		Intensity: l.Intensity(),
		CosInner:  l.InnerCone(),
	}
}

// Size returns the size of the GPUSpotLight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g GPUSpotLight) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUSpotLight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g GPUSpotLight) Marshal() []byte {
	buf := make([]byte, 64)
	putVec3(buf[0:12], g.Position)
	putFloat(buf[12:16], g.Range)
	putVec3(buf[16:28], g.Direction)
	putFloat(buf[28:32], g.CosOuter)
	putVec3(buf[32:44], g.Color)
	putFloat(buf[44:48], g.Intensity)
	putFloat(buf[48:52], g.CosInner)
	return buf
}

// GPUDirectionalLight is the GPU-aligned representation of a directional light.
// Size: 32 bytes.
//
// Layout:
//
//	vec3<f32> direction  (offset  0)
//	f32       intensity  (offset 12)
//	vec3<f32> color      (offset 16)
//	u32       padding    (offset 28)
type GPUDirectionalLight struct {
	Direction [3]float32
	Intensity float32
	Color     [3]float32
	_pad      uint32
}

// NewGPUDirectionalLight captures the current state of a directional light.
//
// Parameters:
//   - l: the light
//
// Returns:
//   - GPUDirectionalLight: the record ready for upload
func NewGPUDirectionalLight(l Light) GPUDirectionalLight {
	return GPUDirectionalLight{
		Direction: l.Direction(),
		Intensity: l.Intensity(),
		Color:     l.Color(),
	}
}

// Size returns the size of the GPUDirectionalLight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g GPUDirectionalLight) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUDirectionalLight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g GPUDirectionalLight) Marshal() []byte {
	buf := make([]byte, 32)
	putVec3(buf[0:12], g.Direction)
	putFloat(buf[12:16], g.Intensity)
	putVec3(buf[16:28], g.Color)
	return buf
}

// GPUGeneralLighting is the per-frame lighting constant block read by the culling shader and the
// lit color pass. The counts are the capacities of the light arrays; the visible counts are the
// lengths of the per-kind runs in the packed visible-index buffer.
// Size: 48 bytes.
//
// Layout:
//
//	vec3<f32> ambient              (offset  0)
//	u32       lights_per_tile      (offset 12)
//	u32       point_count          (offset 16)
//	u32       spot_count           (offset 20)
//	u32       directional_count    (offset 24)
//	u32       visible_point        (offset 28)
//	u32       visible_spot         (offset 32)
//	u32       visible_directional  (offset 36)
//	vec2<u32> tile_count           (offset 40)
type GPUGeneralLighting struct {
	Ambient            [3]float32
	LightsPerTile      uint32
	PointCount         uint32
	SpotCount          uint32
	DirectionalCount   uint32
	VisiblePoint       uint32
	VisibleSpot        uint32
	VisibleDirectional uint32
	TileCount          [2]uint32
}

// Size returns the size of the GPUGeneralLighting struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g GPUGeneralLighting) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUGeneralLighting struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g GPUGeneralLighting) Marshal() []byte {
	buf := make([]byte, 48)
	putVec3(buf[0:12], g.Ambient)
	binary.LittleEndian.PutUint32(buf[12:16], g.LightsPerTile)
	binary.LittleEndian.PutUint32(buf[16:20], g.PointCount)
	binary.LittleEndian.PutUint32(buf[20:24], g.SpotCount)
	binary.LittleEndian.PutUint32(buf[24:28], g.DirectionalCount)
	binary.LittleEndian.PutUint32(buf[28:32], g.VisiblePoint)
	binary.LittleEndian.PutUint32(buf[32:36], g.VisibleSpot)
	binary.LittleEndian.PutUint32(buf[36:40], g.VisibleDirectional)
	binary.LittleEndian.PutUint32(buf[40:44], g.TileCount[0])
	binary.LittleEndian.PutUint32(buf[44:48], g.TileCount[1])
	return buf
}

// GPUTileFrustum is one screen tile's view-space frustum as written by the frustum grid shader:
// left, right, top and bottom planes, each as (normal, distance). The near and far planes come
// from the tile's depth range during culling.
// Size: 64 bytes.
type GPUTileFrustum struct {
	Planes [4][4]float32
}

// Size returns the size of the GPUTileFrustum struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g GPUTileFrustum) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUTileFrustum struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g GPUTileFrustum) Marshal() []byte {
	buf := make([]byte, 64)
	for i, p := range g.Planes {
		for j, v := range p {
			putFloat(buf[i*16+j*4:], v)
		}
	}
	return buf
}

// GPUShadowConstants is the uniform block of one shadow pass: the light view-projection of the
// rendered face plus the light position and far plane used for point-light distance depth.
// Size: 80 bytes.
//
// Layout:
//
//	mat4x4<f32> light_vp        (offset  0)
//	vec3<f32>   light_position  (offset 64)
//	f32         far_plane       (offset 76)
type GPUShadowConstants struct {
	LightVP       mgl32.Mat4
	LightPosition [3]float32
	FarPlane      float32
}

// Size returns the size of the GPUShadowConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g GPUShadowConstants) Size() int {
	return int(unsafe.Sizeof(g))
}

// Marshal serializes the GPUShadowConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (g GPUShadowConstants) Marshal() []byte {
	buf := make([]byte, 80)
	for i, v := range g.LightVP {
		putFloat(buf[i*4:], v)
	}
	putVec3(buf[64:76], g.LightPosition)
	putFloat(buf[76:80], g.FarPlane)
	return buf
}

func putFloat(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putVec3(buf []byte, v [3]float32) {
	putFloat(buf[0:4], v[0])
	putFloat(buf[4:8], v[1])
	putFloat(buf[8:12], v[2])
}
