package pipeline

import (
	"log/slog"
	"sync/atomic"

	"github.com/Carmen-Shannon/lumen/engine/logger"
)

// RequesterKind tells the manager which sweep a released handle triggers.
type RequesterKind int

const (
	RequesterMaterial RequesterKind = iota
	RequesterComputeInterface
)

func (k RequesterKind) String() string {
	switch k {
	case RequesterMaterial:
		return "material"
	case RequesterComputeInterface:
		return "compute-interface"
	default:
		return "unknown"
	}
}

var requesterIDs atomic.Uint64

// Requester identifies the holder of a SharedPtr.
type Requester struct {
	Kind RequesterKind
	ID   uint64
	Name string
}

// NewRequester returns a requester with a process-unique ID.
func NewRequester(kind RequesterKind, name string) Requester {
	return Requester{Kind: kind, ID: requesterIDs.Add(1), Name: name}
}

// noCopy makes go vet's copylocks check flag copies of the struct that embeds it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// SharedPtr is a counted reference to a registered pipeline. It is only ever handed out as a
// pointer and must not be copied. Release notifies the manager exactly once.
type SharedPtr struct {
	_ noCopy

	manager   *manager
	pipeline  *pipeline
	requester Requester
	released  atomic.Bool
}

// newSharedPtr counts a new user of p. The caller holds the manager's registry lock.
func newSharedPtr(m *manager, p *pipeline, requester Requester) *SharedPtr {
	p.users.Add(1)
	return &SharedPtr{manager: m, pipeline: p, requester: requester}
}

// Pipeline returns the referenced pipeline. It stays valid until Release.
func (s *SharedPtr) Pipeline() Pipeline {
	return s.pipeline
}

// Requester returns the holder the handle was issued to.
func (s *SharedPtr) Requester() Requester {
	return s.requester
}

// Released reports whether Release has been called.
func (s *SharedPtr) Released() bool {
	return s.released.Load()
}

// Release drops the reference and lets the manager sweep pipelines nobody uses anymore.
// Calling Release more than once is a no-op.
func (s *SharedPtr) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	if n := s.pipeline.users.Add(-1); n < 0 {
		logger.Logger().Error("pipeline user count went negative",
			slog.String("pipeline", s.pipeline.label),
			slog.String("requester", s.requester.Name),
			slog.Int("users", int(n)))
		panic("pipeline: negative user count for " + s.pipeline.label)
	}
	switch s.requester.Kind {
	case RequesterComputeInterface:
		s.manager.OnPipelineNoLongerUsedByComputeShaderInterface(s.pipeline.identity.VertexShader, s.requester)
	default:
		s.manager.OnPipelineNoLongerUsedByMaterial(s.pipeline.kind, s.pipeline.identity)
	}
}
