package scene

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/renderer"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeUpdater is called once per scene update on a worker goroutine. It may change the node's
// transform through SetWorldMatrix.
type NodeUpdater func(node MeshNode, dt time.Duration)

// MeshNode is a mesh instance in a scene: mesh buffers drawn with a material at a world transform.
type MeshNode interface {
	renderer.Drawable

	// ID returns the scene-assigned ID, 0 until the node is added to a scene.
	ID() uint64

	// Name returns the debug name of the node.
	Name() string

	// LocalBounds returns the mesh bounds in model space.
	LocalBounds() common.AABB

	// SetWorldMatrix replaces the model-to-world transform.
	//
	// Parameters:
	//   - m: the new transform
	SetWorldMatrix(m mgl32.Mat4)

	// SetUpdater sets the per-update callback. A nil updater removes it.
	//
	// Parameters:
	//   - fn: the callback
	SetUpdater(fn NodeUpdater)

	// Update runs the node's updater, if any.
	//
	// Parameters:
	//   - dt: the time elapsed since the previous update
	Update(dt time.Duration)

	setID(id uint64)
	hasUpdater() bool
}

type meshNode struct {
	mu *sync.Mutex

	id       uint64
	name     string
	mesh     gpu.MeshBuffers
	material material.Material
	local    common.AABB
	world    mgl32.Mat4
	updater  NodeUpdater

	// bounds caches WorldBounds until the transform changes.
	bounds      common.AABB
	boundsValid bool
}

var _ MeshNode = &meshNode{}

// NewMeshNode creates a mesh node at the identity transform.
//
// Parameters:
//   - mesh: the vertex and index buffers
//   - mat: the material the mesh is drawn with
//   - options: functional options to configure the node
//
// Returns:
//   - MeshNode: the new node
func NewMeshNode(mesh gpu.MeshBuffers, mat material.Material, options ...MeshNodeBuilderOption) MeshNode {
	n := &meshNode{
		mu:       &sync.Mutex{},
		mesh:     mesh,
		material: mat,
		world:    mgl32.Ident4(),
	}
	for _, option := range options {
		option(n)
	}
	return n
}

func (n *meshNode) ID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

func (n *meshNode) setID(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
}

func (n *meshNode) Name() string {
	return n.name
}

func (n *meshNode) Mesh() gpu.MeshBuffers {
	return n.mesh
}

func (n *meshNode) Material() material.Material {
	return n.material
}

func (n *meshNode) LocalBounds() common.AABB {
	return n.local
}

func (n *meshNode) WorldMatrix() mgl32.Mat4 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.world
}

func (n *meshNode) SetWorldMatrix(m mgl32.Mat4) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.world = m
	n.boundsValid = false
}

func (n *meshNode) WorldBounds() common.AABB {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.boundsValid {
		n.bounds = n.local.Transform(n.world)
		n.boundsValid = true
	}
	return n.bounds
}

func (n *meshNode) SetUpdater(fn NodeUpdater) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updater = fn
}

func (n *meshNode) hasUpdater() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updater != nil
}

func (n *meshNode) Update(dt time.Duration) {
	n.mu.Lock()
	fn := n.updater
	n.mu.Unlock()
	if fn != nil {
		fn(n, dt)
	}
}
