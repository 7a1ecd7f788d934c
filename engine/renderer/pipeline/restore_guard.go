package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
)

// RestoreGuard keeps rendering paused while graphics pipelines have no backend state. Global render
// targets such as the MSAA target or the swap chain format can be changed until Restore is called.
type RestoreGuard struct {
	m    *manager
	once sync.Once
	err  error
}

func (m *manager) ClearGraphicsPipelinesInternalResourcesAndDelayRestoring() (*RestoreGuard, error) {
	m.renderLock.Lock()
	if err := m.device.WaitIdle(); err != nil {
		m.renderLock.Unlock()
		return nil, fmt.Errorf("pipeline: waiting for idle before release: %w", err)
	}

	m.mu.Lock()
	m.suspended = true
	released := m.graphicsLocked()
	for _, p := range released {
		p.(*pipeline).releaseBackend()
	}
	m.mu.Unlock()

	logger.Logger().Debug("graphics pipelines released", slog.Int("count", len(released)))
	return &RestoreGuard{m: m}, nil
}

// Restore recreates the backend state of every graphics pipeline, lets every listener rebind its
// descriptors and resumes rendering. Calls after the first return the first call's result.
func (g *RestoreGuard) Restore() error {
	g.once.Do(func() {
		m := g.m
		defer m.renderLock.Unlock()

		var errs []error
		m.mu.Lock()
		m.suspended = false
		restored := m.graphicsLocked()
		for _, p := range restored {
			if err := p.(*pipeline).create(); err != nil {
				errs = append(errs, err)
			}
		}
		m.mu.Unlock()

		for _, l := range m.snapshotListeners() {
			if err := l.BindDescriptorsToRecreatedPipelineResources(); err != nil {
				errs = append(errs, err)
			}
		}
		g.err = errors.Join(errs...)
		if g.err != nil {
			logger.Logger().Error("pipeline restore failed", slog.Any("error", g.err))
			return
		}
		logger.Logger().Debug("graphics pipelines restored", slog.Int("count", len(restored)))
	})
	return g.err
}
