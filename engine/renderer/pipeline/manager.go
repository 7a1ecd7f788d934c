package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	"github.com/Carmen-Shannon/lumen/engine/renderer/shader"
)

// PipelineResourceListener is told when pipelines gain fresh backend state so it can attach the
// resources it owns to their descriptor sets.
type PipelineResourceListener interface {
	// BindDescriptorsToRecreatedPipelineResources is called after every graphics pipeline has been
	// recreated by RestoreGuard.Restore.
	BindDescriptorsToRecreatedPipelineResources() error

	// UpdateDescriptorsForPipelineResource is called once for every brand-new graphics pipeline.
	UpdateDescriptorsForPipelineResource(p Pipeline) error
}

// shaderPipelines maps a macro set key to the pipeline built for it.
type shaderPipelines map[string]*pipeline

type manager struct {
	mu      *sync.Mutex
	device  gpu.Device
	shaders shader.Registry

	// renderLock is the render-resources lock held while backend state is released.
	renderLock sync.Locker

	graphics  [graphicsKinds]map[ShaderIdentity]shaderPipelines
	compute   map[string]shaderPipelines
	suspended bool

	listenerMu *sync.Mutex
	listeners  []PipelineResourceListener

	queueMu *sync.Mutex
	queue   [executionStages]map[int]map[uint64]QueuedCompute

	poolOnce       *sync.Once
	pool           worker.DynamicWorkerPool
	compileWorkers int
}

// Manager owns every pipeline of the renderer. Graphics pipelines are registered per kind under a
// shader identity and a macro set; compute pipelines are registered per shader name. Holders get
// counted SharedPtr handles and pipelines nobody holds are swept when the last handle is released.
type Manager interface {
	// GetGraphicsPipelineForMaterial returns the colour pass pipeline for a material, creating it
	// when no pipeline with the same kind, shader identity and macro set exists.
	//
	// Parameters:
	//   - cfg: the shader names, blending flag and permutation macros
	//   - requester: the material the handle is issued to
	//
	// Returns:
	//   - *SharedPtr: a counted handle to the pipeline
	//   - error: ErrInvalidMacroPrefix, ErrShaderNotRegistered, or the wrapped backend error
	GetGraphicsPipelineForMaterial(cfg GraphicsPipelineConfig, requester Requester) (*SharedPtr, error)

	// GetGraphicsPipeline is GetGraphicsPipelineForMaterial for an explicit kind, used for the
	// depth-only and shadow pipelines of a material.
	//
	// Parameters:
	//   - kind: the graphics kind to look up
	//   - cfg: the shader names and permutation macros
	//   - requester: the material the handle is issued to
	//
	// Returns:
	//   - *SharedPtr: a counted handle to the pipeline
	//   - error: ErrInvalidMacroPrefix, ErrShaderNotRegistered, or the wrapped backend error
	GetGraphicsPipeline(kind PipelineKind, cfg GraphicsPipelineConfig, requester Requester) (*SharedPtr, error)

	// OnPipelineNoLongerUsedByMaterial sweeps an identity bucket and erases every pipeline whose
	// user count is zero. The bucket itself is erased once empty.
	//
	// Parameters:
	//   - kind: the graphics kind of the bucket
	//   - identity: the shader identity of the bucket
	OnPipelineNoLongerUsedByMaterial(kind PipelineKind, identity ShaderIdentity)

	// GetCurrentGraphicsPipelineCount returns the number of live graphics pipelines, one per
	// distinct kind, shader identity and macro set.
	//
	// Returns:
	//   - int: the number of registered graphics pipelines
	GetCurrentGraphicsPipelineCount() int

	// GraphicsPipelines returns a snapshot of every registered graphics pipeline.
	//
	// Returns:
	//   - []Pipeline: the pipelines in no particular order
	GraphicsPipelines() []Pipeline

	// ClearGraphicsPipelinesInternalResourcesAndDelayRestoring pauses rendering, waits for the GPU to
	// go idle and releases the backend state of every graphics pipeline. The logical pipelines stay
	// registered. Rendering stays paused until the returned guard is restored.
	//
	// Returns:
	//   - *RestoreGuard: the guard that recreates the backend state
	//   - error: the device error if waiting for idle fails; rendering is not paused in that case
	ClearGraphicsPipelinesInternalResourcesAndDelayRestoring() (*RestoreGuard, error)

	// AddResourceListener registers a listener for new and recreated pipelines.
	//
	// Parameters:
	//   - l: the listener
	AddResourceListener(l PipelineResourceListener)

	// RemoveResourceListener unregisters a listener.
	//
	// Parameters:
	//   - l: the listener
	RemoveResourceListener(l PipelineResourceListener)

	// GetComputePipelineForShader returns the compute pipeline for a shader and macro set, creating
	// it when absent.
	//
	// Parameters:
	//   - name: the registered compute shader name
	//   - macros: the permutation macros
	//   - requester: the compute interface the handle is issued to
	//
	// Returns:
	//   - *SharedPtr: a counted handle to the pipeline
	//   - error: ErrShaderNotRegistered, or the wrapped backend error
	GetComputePipelineForShader(name string, macros []string, requester Requester) (*SharedPtr, error)

	// GetCurrentComputePipelineCount returns the number of live compute pipelines.
	//
	// Returns:
	//   - int: the number of registered compute pipelines
	GetCurrentComputePipelineCount() int

	// QueueShaderExecutionOnGraphicsQueue queues compute work for its execution stage and group.
	// Queuing the same requester again before the stage is drained is a no-op.
	//
	// Parameters:
	//   - q: the compute work
	QueueShaderExecutionOnGraphicsQueue(q QueuedCompute)

	// QueuedCount returns the number of entries waiting in a stage.
	//
	// Parameters:
	//   - stage: the execution stage
	//
	// Returns:
	//   - int: the number of queued entries across all groups
	QueuedCount(stage ExecutionStage) int

	// ExecuteQueuedComputeShaders drains one stage in ascending group order. Each group is recorded as
	// its own compute region so group N completes on the GPU before group N+1 starts.
	//
	// Parameters:
	//   - stage: the stage to drain
	//   - rec: the recorder of the current frame
	//
	// Returns:
	//   - error: the first recording or dispatch error
	ExecuteQueuedComputeShaders(stage ExecutionStage, rec gpu.CommandRecorder) error

	// OnPipelineNoLongerUsedByComputeShaderInterface removes every queued entry of a requester and
	// erases the named compute pipelines whose user count is zero.
	//
	// Parameters:
	//   - name: the compute shader name
	//   - requester: the compute interface that released its handle
	OnPipelineNoLongerUsedByComputeShaderInterface(name string, requester Requester)

	// Precompile compiles the shader programs of the given requests in parallel so the first
	// request of each pipeline only has to create the backend object.
	//
	// Parameters:
	//   - reqs: the pipelines expected to be requested
	//
	// Returns:
	//   - error: every compile error joined together
	Precompile(reqs []PrecompileRequest) error

	// Device returns the device the manager creates backend objects on.
	Device() gpu.Device

	// Release frees the backend state of every pipeline and stops the compile workers. The caller
	// waits for GPU idle first and releases every handle before calling it; a pipeline that still
	// has holders is logged and Release panics.
	Release()
}

var _ Manager = &manager{}

// NewManager creates an empty pipeline manager.
//
// Parameters:
//   - device: the device that creates the backend objects
//   - shaders: the registry programs are compiled from
//   - opts: optional settings
//
// Returns:
//   - Manager: the manager
func NewManager(device gpu.Device, shaders shader.Registry, opts ...ManagerBuilderOption) Manager {
	m := &manager{
		mu:             &sync.Mutex{},
		device:         device,
		shaders:        shaders,
		renderLock:     &sync.Mutex{},
		compute:        make(map[string]shaderPipelines),
		listenerMu:     &sync.Mutex{},
		queueMu:        &sync.Mutex{},
		poolOnce:       &sync.Once{},
		compileWorkers: 4,
	}
	for k := range m.graphics {
		m.graphics[k] = make(map[ShaderIdentity]shaderPipelines)
	}
	for s := range m.queue {
		m.queue[s] = make(map[int]map[uint64]QueuedCompute)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) GetGraphicsPipelineForMaterial(cfg GraphicsPipelineConfig, requester Requester) (*SharedPtr, error) {
	return m.GetGraphicsPipeline(cfg.Kind(), cfg, requester)
}

func (m *manager) GetGraphicsPipeline(kind PipelineKind, cfg GraphicsPipelineConfig, requester Requester) (*SharedPtr, error) {
	if !kind.IsGraphics() {
		return nil, fmt.Errorf("pipeline: %s is not a graphics kind", kind)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	identity, macros := cfg.identityFor(kind)
	if err := m.checkRegistered(identity.VertexShader, gpu.ShaderStageVertex); err != nil {
		return nil, err
	}
	if kind.UsesPixelShader() {
		if err := m.checkRegistered(identity.PixelShader, gpu.ShaderStageFragment); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if p := m.graphics[kind][identity][macros.Key()]; p != nil {
		ptr := newSharedPtr(m, p, requester)
		m.mu.Unlock()
		return ptr, nil
	}
	m.mu.Unlock()

	p, err := m.buildGraphics(kind, cfg, identity, macros)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	bucket := m.graphics[kind][identity]
	if bucket == nil {
		bucket = make(shaderPipelines)
		m.graphics[kind][identity] = bucket
	}
	if existing := bucket[macros.Key()]; existing != nil {
		// another goroutine registered the same pipeline while this one was compiling
		ptr := newSharedPtr(m, existing, requester)
		m.mu.Unlock()
		p.releaseBackend()
		return ptr, nil
	}
	if !m.suspended {
		if err := p.create(); err != nil {
			if len(bucket) == 0 {
				delete(m.graphics[kind], identity)
			}
			m.mu.Unlock()
			return nil, err
		}
	}
	bucket[macros.Key()] = p
	ptr := newSharedPtr(m, p, requester)
	suspended := m.suspended
	m.mu.Unlock()

	logger.Logger().Debug("graphics pipeline registered",
		slog.String("pipeline", p.label),
		slog.String("requester", requester.Name))
	if !suspended {
		m.notifyNewPipeline(p)
	}
	return ptr, nil
}

// buildGraphics compiles the programs of a graphics pipeline without touching the registry.
func (m *manager) buildGraphics(kind PipelineKind, cfg GraphicsPipelineConfig, identity ShaderIdentity, macros MacroSet) (*pipeline, error) {
	vs, ps, err := m.programs(kind, cfg)
	if err != nil {
		return nil, err
	}
	opts := []PipelineBuilderOption{WithIdentity(identity, macros), WithVertexProgram(vs)}
	if ps != nil {
		opts = append(opts, WithPixelProgram(ps))
	}
	return newPipeline(m.device, kind, opts...)
}

// programs compiles the vertex and, for colour kinds, pixel program of a request.
func (m *manager) programs(kind PipelineKind, cfg GraphicsPipelineConfig) (vs, ps *shader.Program, err error) {
	vsMacros, psMacros := cfg.ProgramMacros(kind)
	vs, err = m.shaders.Program(cfg.VertexShader, vsMacros)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %s: %w", kind, err)
	}
	if !kind.UsesPixelShader() {
		return vs, nil, nil
	}
	ps, err = m.shaders.Program(cfg.PixelShader, psMacros)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %s: %w", kind, err)
	}
	return vs, ps, nil
}

func (m *manager) checkRegistered(name string, stage gpu.ShaderStage) error {
	got, ok := m.shaders.Stage(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrShaderNotRegistered, name)
	}
	if got != stage {
		return fmt.Errorf("pipeline: shader %q is not a %s shader", name, stageName(stage))
	}
	return nil
}

func stageName(stage gpu.ShaderStage) string {
	switch stage {
	case gpu.ShaderStageVertex:
		return "vertex"
	case gpu.ShaderStageFragment:
		return "pixel"
	case gpu.ShaderStageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

func (m *manager) OnPipelineNoLongerUsedByMaterial(kind PipelineKind, identity ShaderIdentity) {
	if !kind.IsGraphics() {
		logger.Logger().Error("internal error: graphics sweep for a non-graphics kind", slog.String("kind", kind.String()))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.graphics[kind][identity]
	if !ok {
		logger.Logger().Error("internal error: sweep of an unknown pipeline identity",
			slog.String("kind", kind.String()),
			slog.String("identity", identity.String()))
		return
	}
	sweep(bucket)
	if len(bucket) == 0 {
		delete(m.graphics[kind], identity)
	}
}

// sweep erases every pipeline of a bucket that has no users left. The caller holds m.mu.
func sweep(bucket shaderPipelines) {
	for key, p := range bucket {
		if p.users.Load() > 0 {
			continue
		}
		p.releaseBackend()
		delete(bucket, key)
		logger.Logger().Debug("pipeline erased", slog.String("pipeline", p.label))
	}
}

func (m *manager) GetCurrentGraphicsPipelineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byIdentity := range m.graphics {
		for _, bucket := range byIdentity {
			n += len(bucket)
		}
	}
	return n
}

func (m *manager) GraphicsPipelines() []Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graphicsLocked()
}

func (m *manager) graphicsLocked() []Pipeline {
	var out []Pipeline
	for _, byIdentity := range m.graphics {
		for _, bucket := range byIdentity {
			for _, p := range bucket {
				out = append(out, p)
			}
		}
	}
	return out
}

func (m *manager) AddResourceListener(l PipelineResourceListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *manager) RemoveResourceListener(l PipelineResourceListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x PipelineResourceListener) bool {
		return x == l
	})
}

func (m *manager) snapshotListeners() []PipelineResourceListener {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	return slices.Clone(m.listeners)
}

// notifyNewPipeline tells every listener about a brand-new pipeline. It runs without m.mu held.
func (m *manager) notifyNewPipeline(p *pipeline) {
	for _, l := range m.snapshotListeners() {
		if err := l.UpdateDescriptorsForPipelineResource(p); err != nil {
			logger.Logger().Error("pipeline listener failed",
				slog.String("pipeline", p.label),
				slog.Any("error", err))
		}
	}
}

// liveLocked returns every registered pipeline that still has handle holders. The caller holds m.mu.
func (m *manager) liveLocked() []*pipeline {
	var live []*pipeline
	for _, p := range m.graphicsLocked() {
		if pp := p.(*pipeline); pp.users.Load() > 0 {
			live = append(live, pp)
		}
	}
	for _, bucket := range m.compute {
		for _, p := range bucket {
			if p.users.Load() > 0 {
				live = append(live, p)
			}
		}
	}
	return live
}

func (m *manager) Device() gpu.Device {
	return m.device
}

func (m *manager) Release() {
	m.mu.Lock()
	if live := m.liveLocked(); len(live) > 0 {
		m.mu.Unlock()
		for _, p := range live {
			logger.Logger().Error("internal error: pipeline still in use at release",
				slog.String("pipeline", p.label),
				slog.Int("users", int(p.users.Load())))
		}
		panic(fmt.Sprintf("pipeline: %d pipelines still in use at release", len(live)))
	}
	for _, p := range m.graphicsLocked() {
		p.(*pipeline).releaseBackend()
	}
	for _, bucket := range m.compute {
		for _, p := range bucket {
			p.releaseBackend()
		}
	}
	m.mu.Unlock()
	if m.pool != nil {
		m.pool.Stop()
	}
}
