package gpu

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
)

// FrameResource is one frame-in-flight slot: the frame-constant buffer plus the submission that
// last used the slot.
type FrameResource struct {
	index          int
	constants      Buffer
	lastSubmission SubmissionIndex
}

// Index returns the slot index in [0, N).
func (f *FrameResource) Index() int {
	return f.index
}

// Constants returns the slot's frame-constant buffer.
func (f *FrameResource) Constants() Buffer {
	return f.constants
}

// LastSubmission returns the submission that last used this slot, 0 if never used.
func (f *FrameResource) LastSubmission() SubmissionIndex {
	return f.lastSubmission
}

// FrameRing rotates N frame-in-flight slots. The slot count equals the device's swap chain image
// count and never changes. A slot is handed back to the CPU only after the GPU finished the
// submission that last used it.
type FrameRing struct {
	mu      *sync.Mutex
	device  Device
	frames  []*FrameResource
	current int
}

// NewFrameRing creates one FrameResource per frame in flight, each with its own constant buffer.
//
// Parameters:
//   - device: the device that owns the buffers and submissions
//   - constantsSize: size of the per-slot frame-constant buffer in bytes
//
// Returns:
//   - *FrameRing: the ring positioned at slot 0
//   - error: an error if a constant buffer could not be created
func NewFrameRing(device Device, constantsSize uint64) (*FrameRing, error) {
	count := device.FramesInFlight()
	if count < 1 {
		return nil, fmt.Errorf("gpu: frames in flight must be at least 1, got %d", count)
	}
	r := &FrameRing{
		mu:     &sync.Mutex{},
		device: device,
		frames: make([]*FrameResource, count),
	}
	for i := range r.frames {
		buf, err := device.CreateBuffer(BufferDescriptor{
			Label: "Frame Constants " + strconv.Itoa(i),
			Size:  constantsSize,
			Usage: BufferUsageUniform | BufferUsageCopyDst,
		})
		if err != nil {
			r.Release()
			return nil, fmt.Errorf("gpu: failed to create frame constants for slot %d: %w", i, err)
		}
		r.frames[i] = &FrameResource{index: i, constants: buf}
	}
	return r, nil
}

// Acquire returns the current slot after blocking until the GPU has finished the slot's
// previous submission.
//
// Returns:
//   - *FrameResource: the slot the CPU may now write
//   - error: the device error if the wait failed
func (r *FrameRing) Acquire() (*FrameResource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.frames[r.current]
	if f.lastSubmission != 0 {
		if err := r.device.WaitForSubmission(f.lastSubmission); err != nil {
			return nil, fmt.Errorf("gpu: wait for frame slot %d: %w", f.index, err)
		}
	}
	return f, nil
}

// MarkSubmitted records the submission that used the current slot.
func (r *FrameRing) MarkSubmitted(idx SubmissionIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[r.current].lastSubmission = idx
}

// Advance moves to the next slot round-robin.
func (r *FrameRing) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = (r.current + 1) % len(r.frames)
}

// Current returns the current slot without waiting.
func (r *FrameRing) Current() *FrameResource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[r.current]
}

// CurrentIndex returns the index of the current slot.
func (r *FrameRing) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Count returns the number of slots.
func (r *FrameRing) Count() int {
	return len(r.frames)
}

// Frame returns slot i.
func (r *FrameRing) Frame(i int) *FrameResource {
	return r.frames[i]
}

// WaitAll blocks until every slot's last submission has finished.
func (r *FrameRing) WaitAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.frames {
		if f.lastSubmission == 0 {
			continue
		}
		if err := r.device.WaitForSubmission(f.lastSubmission); err != nil {
			return err
		}
	}
	return nil
}

// Release frees every slot's constant buffer.
func (r *FrameRing) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.frames {
		if f != nil && f.constants != nil {
			f.constants.Release()
		}
	}
	logger.Logger().Debug("frame ring released", slog.Int("slots", len(r.frames)))
}
