package renderer

import (
	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/camera"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/go-gl/mathgl/mgl32"
)

// Drawable is one mesh instance the renderer culls and draws. Implementations are used as map
// keys within a frame and must be comparable.
type Drawable interface {
	// WorldMatrix returns the model-to-world transform.
	WorldMatrix() mgl32.Mat4

	// WorldBounds returns the world-space bounding box used for frustum culling.
	WorldBounds() common.AABB

	// Material returns the material the mesh is drawn with.
	Material() material.Material

	// Mesh returns the vertex and index buffers.
	Mesh() gpu.MeshBuffers
}

// Scene supplies the camera and the drawables of one frame.
type Scene interface {
	// Camera returns the camera the frame is rendered from.
	Camera() camera.Camera

	// Drawables returns the meshes to consider for this frame.
	Drawables() []Drawable
}

// FrameResource is a CPU-written resource registered with the renderer. It is updated once per
// frame, after the frame slot has been acquired and before any pass is recorded.
type FrameResource interface {
	// UpdateResource uploads the resource's pending writes for a frame-in-flight slot.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//
	// Returns:
	//   - error: the upload error
	UpdateResource(frame int) error
}
