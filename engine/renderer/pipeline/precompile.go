package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// PrecompileRequest names a pipeline expected to be requested later.
type PrecompileRequest struct {
	Kind PipelineKind

	// Config is used for graphics kinds. Compute requests set VertexShader to the compute shader
	// name and VertexMacros to its macros.
	Config GraphicsPipelineConfig
}

func (m *manager) workers() worker.DynamicWorkerPool {
	m.poolOnce.Do(func() {
		m.pool = worker.NewDynamicWorkerPool(m.compileWorkers, 64, time.Second)
	})
	return m.pool
}

func (m *manager) Precompile(reqs []PrecompileRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	pool := m.workers()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	start := time.Now()
	for i, req := range reqs {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID:      i,
			Payload: req,
			Do: func() (any, error) {
				defer wg.Done()
				err := m.precompileOne(req)
				if err != nil {
					errMu.Lock()
					errs = append(errs, err)
					errMu.Unlock()
				}
				return nil, err
			},
		})
	}
	wg.Wait()

	logger.Logger().Debug("pipelines precompiled",
		slog.Int("requests", len(reqs)),
		slog.Int("failed", len(errs)),
		slog.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}

func (m *manager) precompileOne(req PrecompileRequest) error {
	if req.Kind == PipelineKindCompute {
		if err := m.checkRegistered(req.Config.VertexShader, gpu.ShaderStageCompute); err != nil {
			return err
		}
		_, err := m.shaders.Program(req.Config.VertexShader, req.Config.VertexMacros)
		return err
	}
	if !req.Kind.IsGraphics() {
		return fmt.Errorf("pipeline: cannot precompile kind %d", req.Kind)
	}
	if err := req.Config.validate(); err != nil {
		return err
	}
	_, _, err := m.programs(req.Kind, req.Config)
	return err
}
