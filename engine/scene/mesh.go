package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the byte size of one mesh vertex: a vec3 position followed by a vec3 normal.
const VertexStride = 24

// boxFaces are the face normals with a tangent each; the bitangent is normal x tangent so the
// corners wind counter-clockwise seen from outside.
var boxFaces = [6][2]mgl32.Vec3{
	{{1, 0, 0}, {0, 0, -1}},
	{{-1, 0, 0}, {0, 0, 1}},
	{{0, 1, 0}, {1, 0, 0}},
	{{0, -1, 0}, {1, 0, 0}},
	{{0, 0, 1}, {1, 0, 0}},
	{{0, 0, -1}, {-1, 0, 0}},
}

// NewCubeMesh creates the buffers of an axis-aligned cube centred on the origin.
//
// Parameters:
//   - device: the device that owns the buffers
//   - size: the edge length
//
// Returns:
//   - gpu.MeshBuffers: the vertex and index buffers
//   - common.AABB: the model-space bounds
//   - error: the buffer creation or upload error
func NewCubeMesh(device gpu.Device, size float32) (gpu.MeshBuffers, common.AABB, error) {
	return NewBoxMesh(device, mgl32.Vec3{size, size, size})
}

// NewBoxMesh creates the buffers of an axis-aligned box centred on the origin, with flat normals
// per face.
//
// Parameters:
//   - device: the device that owns the buffers
//   - extents: the box size along X, Y and Z
//
// Returns:
//   - gpu.MeshBuffers: the vertex and index buffers
//   - common.AABB: the model-space bounds
//   - error: the buffer creation or upload error
func NewBoxMesh(device gpu.Device, extents mgl32.Vec3) (gpu.MeshBuffers, common.AABB, error) {
	half := extents.Mul(0.5)
	vertices, indices := boxGeometry(half)

	vb, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label: "Box Vertices",
		Size:  uint64(len(vertices)),
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return gpu.MeshBuffers{}, common.AABB{}, fmt.Errorf("scene: box vertex buffer: %w", err)
	}
	ib, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label: "Box Indices",
		Size:  uint64(len(indices) * 4),
		Usage: gpu.BufferUsageIndex | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		vb.Release()
		return gpu.MeshBuffers{}, common.AABB{}, fmt.Errorf("scene: box index buffer: %w", err)
	}

	indexBytes := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(indexBytes[i*4:], idx)
	}
	if err := device.WriteBuffer(vb, 0, vertices); err != nil {
		vb.Release()
		ib.Release()
		return gpu.MeshBuffers{}, common.AABB{}, fmt.Errorf("scene: box vertices: %w", err)
	}
	if err := device.WriteBuffer(ib, 0, indexBytes); err != nil {
		vb.Release()
		ib.Release()
		return gpu.MeshBuffers{}, common.AABB{}, fmt.Errorf("scene: box indices: %w", err)
	}

	mesh := gpu.MeshBuffers{Vertex: vb, Index: ib, IndexCount: uint32(len(indices))}
	return mesh, common.AABB{Min: half.Mul(-1), Max: half}, nil
}

// boxGeometry returns the packed vertex bytes and the triangle indices of a box, four vertices
// and two triangles per face.
func boxGeometry(half mgl32.Vec3) ([]byte, []uint32) {
	vertices := make([]byte, 0, len(boxFaces)*4*VertexStride)
	indices := make([]uint32, 0, len(boxFaces)*6)
	for f, face := range boxFaces {
		n, u := face[0], face[1]
		v := n.Cross(u)
		center := mul3(n, half)
		du, dv := mul3(u, half), mul3(v, half)
		corners := [4]mgl32.Vec3{
			center.Sub(du).Sub(dv),
			center.Add(du).Sub(dv),
			center.Add(du).Add(dv),
			center.Sub(du).Add(dv),
		}
		for _, c := range corners {
			vertices = appendVec3(vertices, c)
			vertices = appendVec3(vertices, n)
		}
		base := uint32(f * 4)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

func mul3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func appendVec3(buf []byte, v mgl32.Vec3) []byte {
	for _, c := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
	}
	return buf
}
