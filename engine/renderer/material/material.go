// Package material describes surfaces and holds the pipelines that draw them.
package material

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/pipeline"
)

// DefaultVertexShader and DefaultPixelShader are the mesh shaders used when no shader is set.
const (
	DefaultVertexShader = "mesh.vs"
	DefaultPixelShader  = "mesh.ps"
)

// material is the implementation of the Material interface.
type material struct {
	mu *sync.Mutex

	name         string
	baseColor    [4]float32
	metallic     float32
	roughness    float32
	vertexShader string
	pixelShader  string
	vertexMacros []string
	pixelMacros  []string
	transparent  bool

	manager   pipeline.Manager
	requester pipeline.Requester

	// main is the colour pass pipeline; the others are acquired on first use.
	main    *pipeline.SharedPtr
	derived map[pipeline.PipelineKind]*pipeline.SharedPtr
}

// Material defines the interface for a render material: surface properties plus the pipelines
// that draw meshes using it.
//
// The colour pass pipeline is acquired when the material is created. The depth-only and shadow
// pipelines share its vertex shader and are acquired the first time a pass asks for them. Every
// handle is released exactly once by Release.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// Transparent reports whether the material is drawn in the blended transparent pass.
	//
	// Returns:
	//   - bool: true for transparent materials
	Transparent() bool

	// Config returns the pipeline configuration the material requests.
	//
	// Returns:
	//   - pipeline.GraphicsPipelineConfig: the shader names, blending flag and macros
	Config() pipeline.GraphicsPipelineConfig

	// Kind returns the colour pass kind of the material: opaque or transparent.
	Kind() pipeline.PipelineKind

	// Pipeline returns the pipeline of a kind for this material. The colour pass kind is always
	// available; other kinds are acquired from the manager on first use.
	//
	// Parameters:
	//   - kind: the pipeline kind
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline
	//   - error: the manager's error, or an error after Release
	Pipeline(kind pipeline.PipelineKind) (pipeline.Pipeline, error)

	// Release releases every pipeline handle the material holds. Calling Release more than once
	// is a no-op.
	Release()
}

var _ Material = &material{}

// NewMaterial creates a Material and acquires its colour pass pipeline.
//
// Parameters:
//   - manager: the pipeline manager that owns the pipelines
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
//   - error: the manager's error if the colour pass pipeline could not be created
func NewMaterial(manager pipeline.Manager, options ...MaterialBuilderOption) (Material, error) {
	m := &material{
		mu:           &sync.Mutex{},
		baseColor:    [4]float32{1, 1, 1, 1},
		roughness:    1.0,
		vertexShader: DefaultVertexShader,
		pixelShader:  DefaultPixelShader,
		manager:      manager,
		derived:      make(map[pipeline.PipelineKind]*pipeline.SharedPtr),
	}
	for _, opt := range options {
		opt(m)
	}
	m.requester = pipeline.NewRequester(pipeline.RequesterMaterial, m.name)

	main, err := manager.GetGraphicsPipelineForMaterial(m.Config(), m.requester)
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", m.name, err)
	}
	m.main = main
	return m, nil
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	return m.baseColor
}

func (m *material) Metallic() float32 {
	return m.metallic
}

func (m *material) Roughness() float32 {
	return m.roughness
}

func (m *material) Transparent() bool {
	return m.transparent
}

func (m *material) Config() pipeline.GraphicsPipelineConfig {
	return pipeline.GraphicsPipelineConfig{
		VertexShader:     m.vertexShader,
		PixelShader:      m.pixelShader,
		UsePixelBlending: m.transparent,
		VertexMacros:     m.vertexMacros,
		PixelMacros:      m.pixelMacros,
	}
}

func (m *material) Kind() pipeline.PipelineKind {
	return m.Config().Kind()
}

func (m *material) Pipeline(kind pipeline.PipelineKind) (pipeline.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.main == nil {
		return nil, fmt.Errorf("material %q: pipeline requested after release", m.name)
	}
	if kind == m.Kind() {
		return m.main.Pipeline(), nil
	}
	if ptr, ok := m.derived[kind]; ok {
		return ptr.Pipeline(), nil
	}

	ptr, err := m.manager.GetGraphicsPipeline(kind, m.Config(), m.requester)
	if err != nil {
		return nil, fmt.Errorf("material %q: %s pipeline: %w", m.name, kind, err)
	}
	m.derived[kind] = ptr
	logger.Logger().Debug("material pipeline acquired",
		slog.String("material", m.name),
		slog.String("kind", kind.String()))
	return ptr.Pipeline(), nil
}

func (m *material) Release() {
	m.mu.Lock()
	main, derived := m.main, m.derived
	m.main, m.derived = nil, make(map[pipeline.PipelineKind]*pipeline.SharedPtr)
	m.mu.Unlock()
	if main == nil {
		return
	}
	main.Release()
	for _, ptr := range derived {
		ptr.Release()
	}
}
