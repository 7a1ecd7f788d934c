// Package settings persists the user-facing engine settings as a JSON file and notifies
// subscribers when they change.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("settings: invalid value")

// Settings are the persisted engine options.
type Settings struct {
	// Backend is the preferred graphics API. Changes take effect on the next start.
	Backend gpu.Backend `json:"backend"`

	// FrameLimit caps the render loop in frames per second. 0 is uncapped.
	FrameLimit float64 `json:"frame_limit"`

	// SampleCount is the MSAA sample count of the colour pass, 1 or 4.
	SampleCount uint32 `json:"sample_count"`

	// VSync selects vertical-blank presentation.
	VSync bool `json:"vsync"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		Backend:     gpu.BackendVulkan,
		FrameLimit:  0,
		SampleCount: 1,
		VSync:       true,
	}
}

// Validate reports the first out-of-range field.
//
// Returns:
//   - error: an error wrapping ErrInvalid, or nil
func (s Settings) Validate() error {
	if _, err := s.Backend.MarshalText(); err != nil {
		return fmt.Errorf("%w: backend: %v", ErrInvalid, err)
	}
	if s.FrameLimit < 0 {
		return fmt.Errorf("%w: frame_limit %v is negative", ErrInvalid, s.FrameLimit)
	}
	if s.SampleCount != 1 && s.SampleCount != 4 {
		return fmt.Errorf("%w: sample_count %d, want 1 or 4", ErrInvalid, s.SampleCount)
	}
	return nil
}

// PresentMode maps VSync onto the device present mode.
func (s Settings) PresentMode() gpu.PresentMode {
	if s.VSync {
		return gpu.PresentModeVSync
	}
	return gpu.PresentModeUncapped
}

// Store holds the current settings and the subscribers interested in them. All methods are safe
// for concurrent use.
type Store interface {
	// Get returns a copy of the current settings.
	Get() Settings

	// Update applies fn to a copy of the settings. The result is validated, stored, saved when
	// the store has a path and auto-save is on, and then passed to every subscriber. Subscribers
	// run on the calling goroutine after the store lock has been released.
	//
	// Parameters:
	//   - fn: the mutation
	//
	// Returns:
	//   - error: the validation error, in which case nothing changes, or the save error
	Update(fn func(*Settings)) error

	// Subscribe registers fn to be called after every successful Update.
	//
	// Parameters:
	//   - fn: the subscriber, receiving the new settings
	//
	// Returns:
	//   - func(): cancels the subscription
	Subscribe(fn func(Settings)) func()

	// Save writes the current settings to the store's path.
	//
	// Returns:
	//   - error: the write error, or an error if the store has no path
	Save() error

	// Path returns the file the store reads and writes, empty for an in-memory store.
	Path() string
}

type store struct {
	mu          sync.Mutex
	path        string
	autoSave    bool
	current     Settings
	nextID      int
	subscribers map[int]func(Settings)
}

var _ Store = &store{}

// NewStore creates an in-memory store holding initial. Use WithPath to give it a file.
//
// Parameters:
//   - initial: the starting settings
//   - opts: functional options
//
// Returns:
//   - Store: the store
func NewStore(initial Settings, opts ...StoreBuilderOption) Store {
	s := &store{
		autoSave:    true,
		current:     initial,
		subscribers: make(map[int]func(Settings)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the settings file at path. A missing file yields the defaults, bound to path so
// the first Save creates it. Fields absent from the file keep their default values.
//
// Parameters:
//   - path: the JSON file
//   - opts: functional options
//
// Returns:
//   - Store: the store
//   - error: a read, parse or validation error
func Load(path string, opts ...StoreBuilderOption) (Store, error) {
	current := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Logger().Info("settings file not found, using defaults", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &current); err != nil {
			return nil, fmt.Errorf("settings: parse %s: %w", path, err)
		}
		if err := current.Validate(); err != nil {
			return nil, fmt.Errorf("settings: %s: %w", path, err)
		}
	}
	return NewStore(current, append([]StoreBuilderOption{WithPath(path)}, opts...)...), nil
}

func (s *store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *store) Path() string {
	return s.path
}

func (s *store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.current
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := next != s.current
	s.current = next
	var saveErr error
	if changed && s.autoSave && s.path != "" {
		saveErr = s.saveLocked()
	}
	subs := make([]func(Settings), 0, len(s.subscribers))
	for id := range s.nextID {
		if sub, ok := s.subscribers[id]; ok {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	if !changed {
		return saveErr
	}
	logger.Logger().Info("settings changed",
		slog.String("backend", next.Backend.String()),
		slog.Float64("frame_limit", next.FrameLimit),
		slog.Int("sample_count", int(next.SampleCount)),
		slog.Bool("vsync", next.VSync))
	for _, sub := range subs {
		sub(next)
	}
	return saveErr
}

func (s *store) Subscribe(fn func(Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.New("settings: store has no path")
	}
	return s.saveLocked()
}

// saveLocked writes the settings to a temporary file next to path and renames it into place.
func (s *store) saveLocked() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("settings: save %s: %w", s.path, err)
	}
	_, werr := tmp.Write(append(data, '\n'))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: save %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: save %s: %w", s.path, err)
	}
	return nil
}
