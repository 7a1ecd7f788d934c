package pipeline

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// QueuedCompute is compute work waiting for its execution stage.
type QueuedCompute interface {
	// ExecutionStage returns the stage the work runs in.
	ExecutionStage() ExecutionStage

	// ExecutionGroup returns the ordinal group inside the stage. Lower groups finish on the GPU first.
	ExecutionGroup() int

	// Requester returns the identity the work is queued under. Queuing is idempotent per requester.
	Requester() Requester

	// Dispatch records the work inside an open compute region.
	Dispatch(rec gpu.CommandRecorder, caps gpu.Capabilities) error
}

func (m *manager) GetComputePipelineForShader(name string, macros []string, requester Requester) (*SharedPtr, error) {
	if err := m.checkRegistered(name, gpu.ShaderStageCompute); err != nil {
		return nil, err
	}
	set := NewMacroSet(macros...)

	m.mu.Lock()
	if p := m.compute[name][set.Key()]; p != nil {
		ptr := newSharedPtr(m, p, requester)
		m.mu.Unlock()
		return ptr, nil
	}
	m.mu.Unlock()

	prog, err := m.shaders.Program(name, set.Macros())
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", PipelineKindCompute, err)
	}
	p, err := newPipeline(m.device, PipelineKindCompute,
		WithIdentity(ShaderIdentity{VertexShader: name}, set),
		WithComputeProgram(prog))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.compute[name]
	if bucket == nil {
		bucket = make(shaderPipelines)
		m.compute[name] = bucket
	}
	if existing := bucket[set.Key()]; existing != nil {
		return newSharedPtr(m, existing, requester), nil
	}
	if err := p.create(); err != nil {
		if len(bucket) == 0 {
			delete(m.compute, name)
		}
		return nil, err
	}
	bucket[set.Key()] = p
	logger.Logger().Debug("compute pipeline registered",
		slog.String("pipeline", p.label),
		slog.String("requester", requester.Name))
	return newSharedPtr(m, p, requester), nil
}

func (m *manager) GetCurrentComputePipelineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, bucket := range m.compute {
		n += len(bucket)
	}
	return n
}

func (m *manager) QueueShaderExecutionOnGraphicsQueue(q QueuedCompute) {
	stage := q.ExecutionStage()
	if stage < 0 || stage >= executionStages {
		logger.Logger().Error("internal error: compute queued for an unknown stage", slog.Int("stage", int(stage)))
		return
	}
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	group := m.queue[stage][q.ExecutionGroup()]
	if group == nil {
		group = make(map[uint64]QueuedCompute)
		m.queue[stage][q.ExecutionGroup()] = group
	}
	group[q.Requester().ID] = q
}

func (m *manager) QueuedCount(stage ExecutionStage) int {
	if stage < 0 || stage >= executionStages {
		return 0
	}
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	n := 0
	for _, group := range m.queue[stage] {
		n += len(group)
	}
	return n
}

func (m *manager) ExecuteQueuedComputeShaders(stage ExecutionStage, rec gpu.CommandRecorder) error {
	if stage < 0 || stage >= executionStages {
		return fmt.Errorf("pipeline: unknown execution stage %d", stage)
	}
	m.queueMu.Lock()
	table := m.queue[stage]
	m.queue[stage] = make(map[int]map[uint64]QueuedCompute)
	m.queueMu.Unlock()

	for _, g := range slices.Sorted(maps.Keys(table)) {
		group := table[g]
		if len(group) == 0 {
			continue
		}
		if err := rec.BeginComputeRegion(fmt.Sprintf("%s/group-%d", stage, g)); err != nil {
			return fmt.Errorf("compute group %d: %w", g, err)
		}
		for _, id := range slices.Sorted(maps.Keys(group)) {
			q := group[id]
			if err := q.Dispatch(rec, m.device); err != nil {
				_ = rec.EndComputeRegion()
				return fmt.Errorf("compute group %d, %s: %w", g, q.Requester().Name, err)
			}
		}
		if err := rec.EndComputeRegion(); err != nil {
			return fmt.Errorf("compute group %d: %w", g, err)
		}
	}
	return nil
}

func (m *manager) OnPipelineNoLongerUsedByComputeShaderInterface(name string, requester Requester) {
	m.queueMu.Lock()
	for s := range m.queue {
		for _, group := range m.queue[s] {
			delete(group, requester.ID)
		}
	}
	m.queueMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.compute[name]
	if !ok {
		logger.Logger().Error("internal error: sweep of an unknown compute shader", slog.String("shader", name))
		return
	}
	sweep(bucket)
	if len(bucket) == 0 {
		delete(m.compute, name)
	}
}
