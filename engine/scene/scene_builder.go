package scene

import (
	"github.com/Carmen-Shannon/lumen/common"
	"github.com/go-gl/mathgl/mgl32"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering. Scenes start active.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithMeshes adds initial mesh nodes to the scene in argument order.
//
// Parameters:
//   - nodes: the nodes to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMeshes(nodes ...MeshNode) SceneBuilderOption {
	return func(s *scene) {
		for _, n := range nodes {
			n.setID(s.nextID)
			s.meshes[s.nextID] = n
			s.nextID++
		}
	}
}

// WithComputeWorkers sets the number of worker goroutines that run node updaters during Update.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		s.computeWorkers = max(n, 1)
	}
}

// MeshNodeBuilderOption is a functional option for configuring a MeshNode.
type MeshNodeBuilderOption func(n *meshNode)

// WithNodeName sets the debug name of the node.
//
// Parameters:
//   - name: the node name
//
// Returns:
//   - MeshNodeBuilderOption: option function to apply
func WithNodeName(name string) MeshNodeBuilderOption {
	return func(n *meshNode) {
		n.name = name
	}
}

// WithLocalBounds sets the model-space bounds of the mesh.
//
// Parameters:
//   - bounds: the bounds, usually returned by the mesh helper that built the buffers
//
// Returns:
//   - MeshNodeBuilderOption: option function to apply
func WithLocalBounds(bounds common.AABB) MeshNodeBuilderOption {
	return func(n *meshNode) {
		n.local = bounds
	}
}

// WithTransform sets the initial world transform from a position, Euler rotation in radians and
// scale.
//
// Parameters:
//   - position: the world position
//   - rotation: rotation around X, Y and Z in radians
//   - scale: the scale per axis
//
// Returns:
//   - MeshNodeBuilderOption: option function to apply
func WithTransform(position, rotation, scale mgl32.Vec3) MeshNodeBuilderOption {
	return func(n *meshNode) {
		n.world = common.BuildModelMatrix(position, rotation, scale)
	}
}

// WithUpdater sets the per-update callback of the node.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - MeshNodeBuilderOption: option function to apply
func WithUpdater(fn NodeUpdater) MeshNodeBuilderOption {
	return func(n *meshNode) {
		n.updater = fn
	}
}
