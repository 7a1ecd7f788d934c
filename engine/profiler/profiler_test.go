package profiler

import (
	"runtime"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestProfiler(clock *fakeClock, opts ...ProfilerBuilderOption) *Profiler {
	p := NewProfiler(opts...)
	p.now = clock.now
	p.readMem = func(m *runtime.MemStats) {
		m.Alloc = 2 << 20
		m.TotalAlloc = 4 << 20
		m.Sys = 8 << 20
		m.NumGC = 3
		m.PauseNs[0] = 100
		m.PauseNs[1] = 500
		m.PauseNs[2] = 200
	}
	p.windowStart = clock.now()
	p.lastFrame = clock.now()
	return p
}

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var reports []Stats
	p := newTestProfiler(clock, WithReportCallback(func(s Stats) { reports = append(reports, s) }))

	frames := []time.Duration{
		100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond,
		100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond,
		100 * time.Millisecond,
	}
	for i, d := range frames {
		clock.advance(d)
		reported := p.Tick()
		if last := i == len(frames)-1; reported != last {
			t.Errorf("Tick() %d = %v, want %v", i, reported, last)
		}
	}

	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	got := reports[0]
	if got.FPS != 9 {
		t.Errorf("FPS = %v, want 9", got.FPS)
	}
	if want := time.Second / 9; got.FrameTime != want {
		t.Errorf("FrameTime = %v, want %v", got.FrameTime, want)
	}
	if got.MaxFrame != 200*time.Millisecond {
		t.Errorf("MaxFrame = %v, want 200ms", got.MaxFrame)
	}
	if got.HeapMB != 2 || got.SysMB != 8 || got.AllocRate != 4 {
		t.Errorf("memory = heap %v sys %v rate %v, want 2 8 4", got.HeapMB, got.SysMB, got.AllocRate)
	}
	if got.MaxPause != 500 {
		t.Errorf("MaxPause = %v, want 500ns", got.MaxPause)
	}
	if p.Last() != got {
		t.Errorf("Last() = %+v, want %+v", p.Last(), got)
	}
}

func TestTickStartsNewWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newTestProfiler(clock, WithInterval(500*time.Millisecond))

	clock.advance(time.Second)
	if !p.Tick() {
		t.Fatal("Tick() after a full interval = false, want true")
	}
	clock.advance(100 * time.Millisecond)
	if p.Tick() {
		t.Error("Tick() 100ms into a new window = true, want false")
	}
	clock.advance(400 * time.Millisecond)
	if !p.Tick() {
		t.Error("Tick() at the end of the second window = false, want true")
	}
	if got := p.Last().FPS; got != 4 {
		t.Errorf("second window FPS = %v, want 4", got)
	}
}

func TestMaxPauseWrapsRing(t *testing.T) {
	var m runtime.MemStats
	m.NumGC = 300
	for i := range m.PauseNs {
		m.PauseNs[i] = uint64(i)
	}
	if got := maxPause(&m, 0); got != 255 {
		t.Errorf("maxPause() = %v, want 255ns", got)
	}
	if got := maxPause(&m, 299); got != time.Duration(299%256) {
		t.Errorf("maxPause() since 299 = %v, want %v", got, time.Duration(299%256))
	}
}
