package lighting

import (
	"github.com/Carmen-Shannon/lumen/common"
	"github.com/Carmen-Shannon/lumen/engine/light"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// kindEntry adapts one typed light array to the operations the manager runs for every kind.
type kindEntry struct {
	kind    light.LightType
	binding string

	add      func(l light.Light) (int, error)
	set      func(index int, l light.Light) error
	remove   func(index int) error
	capacity func() int
	upload   func(frame int) error
	buffer   func(frame int) gpu.Buffer
	release  func()

	setVisible func(frame int, indices []uint32)
	visibleOf  func(frame int) []uint32

	// cull reports whether an enabled light of this kind can light anything inside the frustum.
	cull func(l light.Light, f common.Frustum) bool
}

func newKindEntry[T light.Record](m *manager, kind light.LightType, binding string, encode func(light.Light) T, cull func(light.Light, common.Frustum) bool) (*kindEntry, error) {
	arr, err := light.NewShaderLightArray[T](m.device, binding,
		light.WithInitialCapacity(m.initialCapacity),
		light.WithResizeCallback(m.resize(kind)))
	if err != nil {
		return nil, err
	}
	return &kindEntry{
		kind:    kind,
		binding: binding,
		add: func(l light.Light) (int, error) {
			return arr.Add(encode(l))
		},
		set: func(index int, l light.Light) error {
			return arr.Set(index, encode(l))
		},
		remove:   arr.Remove,
		capacity: arr.Capacity,
		upload:   arr.Upload,
		buffer:   arr.Buffer,
		release:  arr.Release,

		setVisible: arr.SetVisible,
		visibleOf:  arr.Visible,
		cull:       cull,
	}, nil
}

// newKindTable builds the entries in the order their runs appear in the packed visible-index
// buffer: point, spot, directional.
func newKindTable(m *manager) ([]*kindEntry, error) {
	var table []*kindEntry
	release := func() {
		for _, e := range table {
			e.release()
		}
	}

	point, err := newKindEntry(m, light.LightTypePoint, "point_lights", light.NewGPUPointLight,
		func(l light.Light, f common.Frustum) bool {
			return f.IntersectsSphere(l.BoundingSphere())
		})
	if err != nil {
		return nil, err
	}
	table = append(table, point)

	spot, err := newKindEntry(m, light.LightTypeSpot, "spot_lights", light.NewGPUSpotLight,
		func(l light.Light, f common.Frustum) bool {
			return f.IntersectsCone(l.BoundingCone())
		})
	if err != nil {
		release()
		return nil, err
	}
	table = append(table, spot)

	directional, err := newKindEntry(m, light.LightTypeDirectional, "directional_lights", light.NewGPUDirectionalLight,
		func(light.Light, common.Frustum) bool {
			return true
		})
	if err != nil {
		release()
		return nil, err
	}
	return append(table, directional), nil
}
