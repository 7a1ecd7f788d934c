package profiler

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/lumen/engine/logger"
)

// Stats is one reporting window of frame and memory statistics.
type Stats struct {
	FPS       float64
	FrameTime time.Duration
	MaxFrame  time.Duration
	HeapMB    float64
	AllocRate float64 // MB/s
	GCCount   uint32
	MaxPause  time.Duration
	SysMB     float64
}

// Profiler tracks frame rate, frame time and memory statistics. Every interval it logs a summary
// at info level through the engine logger.
type Profiler struct {
	mu sync.Mutex

	interval time.Duration
	now      func() time.Time
	readMem  func(*runtime.MemStats)

	frameCount     int
	windowStart    time.Time
	lastFrame      time.Time
	maxFrame       time.Duration
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
	onReport       func(Stats)
	memStats       runtime.MemStats
}

// NewProfiler creates a Profiler. The reporting interval defaults to one second.
//
// Parameters:
//   - opts: functional options
//
// Returns:
//   - *Profiler: the profiler, with its window starting now
func NewProfiler(opts ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		interval: time.Second,
		now:      time.Now,
		readMem:  runtime.ReadMemStats,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.windowStart = p.now()
	p.lastFrame = p.windowStart
	return p
}

// Tick records the end of a frame. When the interval has elapsed it computes the window's
// statistics, logs them and resets the window.
//
// Returns:
//   - bool: true if stats were reported this tick
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	now := p.now()
	p.frameCount++
	if ft := now.Sub(p.lastFrame); ft > p.maxFrame {
		p.maxFrame = ft
	}
	p.lastFrame = now

	elapsed := now.Sub(p.windowStart)
	if elapsed < p.interval || elapsed <= 0 {
		p.mu.Unlock()
		return false
	}

	p.readMem(&p.memStats)
	stats := Stats{
		FPS:       float64(p.frameCount) / elapsed.Seconds(),
		FrameTime: elapsed / time.Duration(p.frameCount),
		MaxFrame:  p.maxFrame,
		HeapMB:    float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRate: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:   p.memStats.NumGC,
		MaxPause:  maxPause(&p.memStats, p.lastGCCount),
		SysMB:     float64(p.memStats.Sys) / 1024 / 1024,
	}
	p.frameCount = 0
	p.maxFrame = 0
	p.windowStart = now
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = stats
	onReport := p.onReport
	p.mu.Unlock()

	logger.Logger().Info("profiler",
		slog.Float64("fps", stats.FPS),
		slog.Duration("frame_time", stats.FrameTime),
		slog.Duration("max_frame", stats.MaxFrame),
		slog.Float64("heap_mb", stats.HeapMB),
		slog.Float64("alloc_mb_per_s", stats.AllocRate),
		slog.Uint64("gc", uint64(stats.GCCount)),
		slog.Duration("max_gc_pause", stats.MaxPause),
		slog.Float64("sys_mb", stats.SysMB),
	)
	if onReport != nil {
		onReport(stats)
	}
	return true
}

// Last returns the statistics of the most recent completed window.
func (p *Profiler) Last() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// maxPause returns the longest GC pause since the since-th collection. PauseNs is a circular
// buffer of the last 256 pauses.
func maxPause(m *runtime.MemStats, since uint32) time.Duration {
	if m.NumGC == 0 {
		return 0
	}
	start := since
	if m.NumGC-start > 256 {
		start = m.NumGC - 256
	}
	var longest uint64
	for i := start; i < m.NumGC; i++ {
		longest = max(longest, m.PauseNs[i%256])
	}
	return time.Duration(longest)
}
