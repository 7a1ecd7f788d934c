package renderer

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/renderer/material"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

// drawItem is one culled draw of a frame.
type drawItem struct {
	drawable Drawable
	material material.Material
	pipeline pipeline.Pipeline
	instance uint32

	// depth is the squared distance from the camera to the bounds centre.
	depth float32
}

// drawGroup is the visible draws sharing one colour pass pipeline, split per material. Each
// material list is a sub-slice of the batch's flat list.
type drawGroup struct {
	pipeline  pipeline.Pipeline
	materials [][]drawItem
}

// frameBatch collects the draws of one frame and the object records they index. Records are
// appended in first-use order, so the visible draws come first and shadow-only draws follow.
type frameBatch struct {
	opaque      []drawItem
	transparent []drawItem

	opaqueGroups      []drawGroup
	transparentGroups []drawGroup

	objects   []byte
	count     uint32
	instances map[Drawable]uint32
}

func newFrameBatch() *frameBatch {
	return &frameBatch{instances: make(map[Drawable]uint32)}
}

func (b *frameBatch) reset() {
	b.opaque = b.opaque[:0]
	b.transparent = b.transparent[:0]
	b.opaqueGroups = b.opaqueGroups[:0]
	b.transparentGroups = b.transparentGroups[:0]
	b.objects = b.objects[:0]
	b.count = 0
	clear(b.instances)
}

// cull keeps the drawables whose world bounds intersect the frustum, split by colour pass kind,
// and groups them per pipeline and material. Opaque groups and the draws inside them run front to
// back, transparent ones back to front. Object records are assigned in that order.
//
// Parameters:
//   - drawables: every drawable of the scene
//   - frustum: the camera frustum
//   - eye: the camera position used for depth ordering
//
// Returns:
//   - error: the material's error if its colour pass pipeline could not be resolved
func (b *frameBatch) cull(drawables []Drawable, frustum common.Frustum, eye mgl32.Vec3) error {
	for _, d := range drawables {
		mat := d.Material()
		if mat == nil {
			continue
		}
		bounds := d.WorldBounds()
		if !frustum.IntersectsAABB(bounds) {
			continue
		}
		p, err := mat.Pipeline(mat.Kind())
		if err != nil {
			return fmt.Errorf("material %s: %w", mat.Name(), err)
		}
		item := drawItem{drawable: d, material: mat, pipeline: p, depth: bounds.Center().Sub(eye).LenSqr()}
		if mat.Transparent() {
			b.transparent = append(b.transparent, item)
		} else {
			b.opaque = append(b.opaque, item)
		}
	}
	b.opaqueGroups = groupDraws(b.opaqueGroups, b.opaque, 1)
	b.transparentGroups = groupDraws(b.transparentGroups, b.transparent, -1)
	for i := range b.opaque {
		b.opaque[i].instance = b.instance(b.opaque[i].drawable, b.opaque[i].material)
	}
	for i := range b.transparent {
		b.transparent[i].instance = b.instance(b.transparent[i].drawable, b.transparent[i].material)
	}
	return nil
}

// drawRank orders a pipeline or material by its leading draw, then by first appearance.
type drawRank struct {
	depth float32
	order int
}

// groupDraws sorts items in place so that draws of one pipeline, and within it of one material,
// are contiguous, then returns the runs. dir is 1 for front to back and -1 for back to front; a
// group ranks by its nearest draw (front to back) or its farthest (back to front).
func groupDraws(groups []drawGroup, items []drawItem, dir int) []drawGroup {
	pipes := make(map[pipeline.Pipeline]*drawRank)
	mats := make(map[material.Material]*drawRank)
	leads := func(depth float32, r *drawRank) bool {
		return dir*cmp.Compare(depth, r.depth) < 0
	}
	for _, it := range items {
		if r, ok := pipes[it.pipeline]; !ok {
			pipes[it.pipeline] = &drawRank{depth: it.depth, order: len(pipes)}
		} else if leads(it.depth, r) {
			r.depth = it.depth
		}
		if r, ok := mats[it.material]; !ok {
			mats[it.material] = &drawRank{depth: it.depth, order: len(mats)}
		} else if leads(it.depth, r) {
			r.depth = it.depth
		}
	}
	byRank := func(x, y *drawRank) int {
		if c := dir * cmp.Compare(x.depth, y.depth); c != 0 {
			return c
		}
		return cmp.Compare(x.order, y.order)
	}
	slices.SortStableFunc(items, func(x, y drawItem) int {
		if c := byRank(pipes[x.pipeline], pipes[y.pipeline]); c != 0 {
			return c
		}
		if c := byRank(mats[x.material], mats[y.material]); c != 0 {
			return c
		}
		return dir * cmp.Compare(x.depth, y.depth)
	})

	for i := 0; i < len(items); {
		g := drawGroup{pipeline: items[i].pipeline}
		j := i
		for j < len(items) && items[j].pipeline == g.pipeline {
			k := j
			for k < len(items) && items[k].pipeline == g.pipeline && items[k].material == items[j].material {
				k++
			}
			g.materials = append(g.materials, items[j:k])
			j = k
		}
		groups = append(groups, g)
		i = j
	}
	return groups
}

// instance returns the object record index of a drawable, appending its record on first use.
func (b *frameBatch) instance(d Drawable, mat material.Material) uint32 {
	if idx, ok := b.instances[d]; ok {
		return idx
	}
	obj := GPUObjectData{
		Model:     d.WorldMatrix(),
		BaseColor: mat.BaseColor(),
		Metallic:  mat.Metallic(),
		Roughness: mat.Roughness(),
	}
	b.objects = obj.AppendTo(b.objects)
	idx := b.count
	b.instances[d] = idx
	b.count++
	return idx
}
