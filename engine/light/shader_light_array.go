package light

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// Record is a fixed-size GPU struct stored in a ShaderLightArray.
type Record interface {
	// Marshal serializes the record into exactly Size() bytes.
	Marshal() []byte

	// Size returns the serialized size in bytes.
	Size() int
}

// ResizeFunc is called after a ShaderLightArray grew. The array lock is not held, and the old
// buffers stay alive until the callback returns.
type ResizeFunc func(capacity int) error

// ShaderLightArray stores light records in one storage buffer per frame in flight. Slots freed by
// Remove are reused by later Adds, and the buffers double in size when every slot is taken.
// Changes are tracked per frame so each slot's buffer is written only with what it missed.
type ShaderLightArray[T Record] interface {
	// Add stores a record in a free slot, growing the array when none is left.
	//
	// Parameters:
	//   - record: the record to store
	//
	// Returns:
	//   - int: the slot index, stable until Remove
	//   - error: an error if new buffers could not be created or the resize callback failed
	Add(record T) (int, error)

	// Set replaces the record in an occupied slot.
	//
	// Parameters:
	//   - index: the slot index returned by Add
	//   - record: the new record
	//
	// Returns:
	//   - error: an error if the slot is not occupied
	Set(index int, record T) error

	// Remove frees a slot. The slot is zeroed in every frame buffer on the next uploads.
	//
	// Parameters:
	//   - index: the slot index returned by Add
	//
	// Returns:
	//   - error: an error if the slot is not occupied
	Remove(index int) error

	// Get returns the record in a slot.
	//
	// Returns:
	//   - T: the record
	//   - bool: false if the slot is not occupied
	Get(index int) (T, bool)

	// Len returns the number of occupied slots.
	Len() int

	// Capacity returns the number of slots each frame buffer holds.
	Capacity() int

	// Buffer returns the storage buffer of a frame slot.
	Buffer(frame int) gpu.Buffer

	// Upload writes every slot changed since the frame's previous upload into its buffer.
	// Contiguous changed slots are written with a single call.
	//
	// Parameters:
	//   - frame: the frame-in-flight index
	//
	// Returns:
	//   - error: the device error of a failed write
	Upload(frame int) error

	// SetVisible stores the slot indices that passed culling for a frame.
	SetVisible(frame int, indices []uint32)

	// Visible returns the slot indices that passed culling for a frame.
	Visible(frame int) []uint32

	// Release frees every frame buffer.
	Release()
}

var _ ShaderLightArray[GPUPointLight] = &shaderLightArray[GPUPointLight]{}

type shaderLightArray[T Record] struct {
	mu *sync.Mutex

	device gpu.Device
	label  string
	stride int

	records []T
	used    []bool
	free    []int
	count   int

	buffers []gpu.Buffer
	dirty   []map[int]struct{}
	visible [][]uint32

	onResize ResizeFunc
}

// NewShaderLightArray creates the frame buffers of a light array.
//
// Parameters:
//   - device: the device that owns the buffers
//   - label: debug label prefix of the buffers
//   - opts: optional settings
//
// Returns:
//   - ShaderLightArray[T]: the array
//   - error: an error if a buffer could not be created
func NewShaderLightArray[T Record](device gpu.Device, label string, opts ...ShaderLightArrayBuilderOption) (ShaderLightArray[T], error) {
	cfg := shaderLightArrayConfig{capacity: 16}
	for _, opt := range opts {
		opt(&cfg)
	}
	var zero T
	frames := device.FramesInFlight()
	a := &shaderLightArray[T]{
		mu:       &sync.Mutex{},
		device:   device,
		label:    label,
		stride:   zero.Size(),
		dirty:    make([]map[int]struct{}, frames),
		visible:  make([][]uint32, frames),
		onResize: cfg.onResize,
	}
	for i := range a.dirty {
		a.dirty[i] = make(map[int]struct{})
	}
	if err := a.allocate(max(cfg.capacity, 1)); err != nil {
		return nil, err
	}
	return a, nil
}

// allocate creates frame buffers of the given capacity, moves the records over and returns the
// buffers it replaced. Every occupied slot is marked dirty in every frame.
func (a *shaderLightArray[T]) allocate(capacity int) error {
	buffers := make([]gpu.Buffer, len(a.dirty))
	for i := range buffers {
		b, err := a.device.CreateBuffer(gpu.BufferDescriptor{
			Label: a.label + " " + strconv.Itoa(i),
			Size:  uint64(capacity * a.stride),
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			for _, created := range buffers[:i] {
				created.Release()
			}
			return fmt.Errorf("light: failed to create %s buffer for frame %d: %w", a.label, i, err)
		}
		buffers[i] = b
	}

	old := len(a.records)
	a.records = append(a.records, make([]T, capacity-old)...)
	a.used = append(a.used, make([]bool, capacity-old)...)
	for i := capacity - 1; i >= old; i-- {
		a.free = append(a.free, i)
	}
	for index, used := range a.used {
		if used {
			a.markDirty(index)
		}
	}
	a.buffers = buffers
	return nil
}

func (a *shaderLightArray[T]) markDirty(index int) {
	for _, d := range a.dirty {
		d[index] = struct{}{}
	}
}

func (a *shaderLightArray[T]) Add(record T) (int, error) {
	a.mu.Lock()
	var replaced []gpu.Buffer
	if len(a.free) == 0 {
		replaced = a.buffers
		if err := a.allocate(len(a.records) * 2); err != nil {
			a.mu.Unlock()
			return -1, err
		}
	}
	index := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.records[index] = record
	a.used[index] = true
	a.count++
	a.markDirty(index)
	capacity := len(a.records)
	a.mu.Unlock()

	if replaced == nil {
		return index, nil
	}
	logger.Logger().Debug("light array grown",
		slog.String("array", a.label),
		slog.Int("capacity", capacity))
	var err error
	if a.onResize != nil {
		err = a.onResize(capacity)
	}
	for _, b := range replaced {
		b.Release()
	}
	if err != nil {
		return index, fmt.Errorf("light: %s resize callback: %w", a.label, err)
	}
	return index, nil
}

func (a *shaderLightArray[T]) Set(index int, record T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.occupied(index) {
		return fmt.Errorf("light: %s slot %d is not occupied", a.label, index)
	}
	a.records[index] = record
	a.markDirty(index)
	return nil
}

func (a *shaderLightArray[T]) Remove(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.occupied(index) {
		return fmt.Errorf("light: %s slot %d is not occupied", a.label, index)
	}
	var zero T
	a.records[index] = zero
	a.used[index] = false
	a.free = append(a.free, index)
	a.count--
	a.markDirty(index)
	return nil
}

func (a *shaderLightArray[T]) occupied(index int) bool {
	return index >= 0 && index < len(a.used) && a.used[index]
}

func (a *shaderLightArray[T]) Get(index int) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.occupied(index) {
		var zero T
		return zero, false
	}
	return a.records[index], true
}

func (a *shaderLightArray[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *shaderLightArray[T]) Capacity() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *shaderLightArray[T]) Buffer(frame int) gpu.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffers[frame]
}

func (a *shaderLightArray[T]) Upload(frame int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.dirty[frame]) == 0 {
		return nil
	}
	indices := slices.Sorted(maps.Keys(a.dirty[frame]))
	for start := 0; start < len(indices); {
		end := start + 1
		for end < len(indices) && indices[end] == indices[end-1]+1 {
			end++
		}
		data := make([]byte, 0, (end-start)*a.stride)
		for _, index := range indices[start:end] {
			data = append(data, a.records[index].Marshal()...)
		}
		offset := uint64(indices[start] * a.stride)
		if err := a.device.WriteBuffer(a.buffers[frame], offset, data); err != nil {
			return fmt.Errorf("light: failed to upload %s for frame %d: %w", a.label, frame, err)
		}
		start = end
	}
	clear(a.dirty[frame])
	return nil
}

func (a *shaderLightArray[T]) SetVisible(frame int, indices []uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visible[frame] = append(a.visible[frame][:0], indices...)
}

func (a *shaderLightArray[T]) Visible(frame int) []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.visible[frame])
}

func (a *shaderLightArray[T]) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.buffers {
		b.Release()
	}
	a.buffers = nil
}
