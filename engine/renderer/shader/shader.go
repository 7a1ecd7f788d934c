// Package shader owns shader sources and turns a (shader name, macro set) pair into a compiled
// Program: the source is preprocessed, reflected for its resource bindings, and compiled into the
// representation the device consumes.
package shader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// ErrUnknownShader is returned when a program is requested for a name that was never registered.
var ErrUnknownShader = errors.New("shader: unknown shader")

// Program is one compiled permutation of a registered shader.
type Program struct {
	Name   string
	Stage  gpu.ShaderStage
	Macros []string

	// Source is the preprocessed WGSL.
	Source string

	// Bytecode is nil when the device consumes WGSL.
	Bytecode []byte

	Reflection
}

// Module returns the program as a device shader module.
func (p *Program) Module() gpu.ShaderModule {
	label := p.Name
	if len(p.Macros) > 0 {
		label += "[" + strings.Join(p.Macros, ",") + "]"
	}
	return gpu.ShaderModule{
		Label:         label,
		Stage:         p.Stage,
		EntryPoint:    p.EntryPoint,
		Source:        p.Source,
		Bytecode:      p.Bytecode,
		WorkgroupSize: p.WorkgroupSize,
	}
}

// Registry stores named shader sources and produces compiled programs from them.
type Registry interface {
	// Register adds a shader source under a name.
	//
	// Parameters:
	//   - name: the shader name, e.g. "mesh.vs" or "lighting/light_culling"
	//   - stage: the single stage the source provides
	//   - source: the raw WGSL with @lumen directives
	//
	// Returns:
	//   - error: an error if the name is already registered
	Register(name string, stage gpu.ShaderStage, source string) error

	// RegisterInclude adds a source that other shaders pull in with //@lumen:include.
	RegisterInclude(name, source string)

	// Has reports whether a shader name is registered.
	Has(name string) bool

	// Stage returns the stage of a registered shader.
	Stage(name string) (gpu.ShaderStage, bool)

	// Names returns every registered shader name in sorted order.
	Names() []string

	// Program returns the compiled permutation of a shader for a macro set. Results are cached.
	//
	// Parameters:
	//   - name: the registered shader name
	//   - macros: the macro names defined for this permutation, in any order
	//
	// Returns:
	//   - *Program: the compiled program
	//   - error: ErrUnknownShader, or a preprocess, reflection or compile error
	Program(name string, macros []string) (*Program, error)

	// MarkReady declares that every built-in shader has been registered.
	MarkReady()

	// Ready reports whether MarkReady has been called.
	Ready() bool

	// WaitReady blocks until MarkReady has been called or ctx is done.
	WaitReady(ctx context.Context) error

	// Format returns the representation programs are compiled to.
	Format() gpu.ShaderFormat
}

var _ Registry = &registry{}

type registryEntry struct {
	stage  gpu.ShaderStage
	source string
}

type registry struct {
	mu        *sync.RWMutex
	format    gpu.ShaderFormat
	compiler  Compiler
	cache     *ProgramCache
	cacheSize int
	shaders   map[string]registryEntry
	includes  map[string]string
	constants map[string]string

	readyOnce *sync.Once
	ready     chan struct{}
}

// NewRegistry creates an empty registry that compiles programs to format.
//
// Parameters:
//   - format: the representation the device consumes
//   - opts: optional settings
//
// Returns:
//   - Registry: the registry
func NewRegistry(format gpu.ShaderFormat, opts ...RegistryBuilderOption) Registry {
	r := &registry{
		mu:        &sync.RWMutex{},
		format:    format,
		shaders:   make(map[string]registryEntry),
		includes:  make(map[string]string),
		constants: make(map[string]string),
		readyOnce: &sync.Once{},
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.compiler == nil {
		r.compiler = NewCompiler()
	}
	r.cache = NewProgramCache(r.cacheSize)
	return r
}

func (r *registry) Register(name string, stage gpu.ShaderStage, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shaders[name]; ok {
		return fmt.Errorf("shader: %q is already registered", name)
	}
	r.shaders[name] = registryEntry{stage: stage, source: source}
	return nil
}

func (r *registry) RegisterInclude(name, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.includes[name] = source
}

func (r *registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.shaders[name]
	return ok
}

func (r *registry) Stage(name string) (gpu.ShaderStage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.shaders[name]
	return e.stage, ok
}

func (r *registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shaders))
	for name := range r.shaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *registry) Format() gpu.ShaderFormat {
	return r.format
}

func (r *registry) Program(name string, macros []string) (*Program, error) {
	macros = normalizeMacros(macros)
	key := strings.Join(macros, ",")
	if p, ok := r.cache.Get(name, key, r.format); ok {
		return p, nil
	}

	r.mu.RLock()
	entry, ok := r.shaders[name]
	pre := NewPreprocessor(r.includes, r.constants)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShader, name)
	}

	source, err := pre.Process(entry.source, macros)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	refl, err := Reflect(source, entry.stage)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	p := &Program{
		Name:       name,
		Stage:      entry.stage,
		Macros:     macros,
		Source:     source,
		Reflection: refl,
	}
	if r.format != gpu.ShaderFormatWGSL {
		p.Bytecode, err = r.compiler.Compile(source, r.format)
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", name, err)
		}
	}
	r.cache.Add(p, r.format)
	logger.Logger().Debug("shader compiled",
		slog.String("shader", name),
		slog.String("macros", key),
		slog.String("format", r.format.String()),
		slog.Int("bindings", len(refl.Bindings)))
	return p, nil
}

func (r *registry) MarkReady() {
	r.readyOnce.Do(func() {
		close(r.ready)
	})
}

func (r *registry) Ready() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

func (r *registry) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// normalizeMacros returns the sorted, de-duplicated macro list.
func normalizeMacros(macros []string) []string {
	out := slices.Clone(macros)
	slices.Sort(out)
	return slices.Compact(out)
}

func macroKey(macros []string) string {
	return strings.Join(normalizeMacros(macros), ",")
}
