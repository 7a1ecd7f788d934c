package shader

import (
	"log/slog"

	"github.com/Carmen-Shannon/lumen/engine/logger"
	"github.com/Carmen-Shannon/lumen/engine/renderer/gpu"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of compiled programs kept when no size is configured.
const DefaultCacheSize = 128

// cacheKey identifies one compiled permutation of a shader.
type cacheKey struct {
	name   string
	macros string
	format gpu.ShaderFormat
}

// ProgramCache is a bounded cache of compiled programs. Compiling the same permutation twice
// (for example when a pipeline is recreated after a device reset) hits the cache.
type ProgramCache struct {
	cache *lru.Cache[cacheKey, *Program]
}

// NewProgramCache creates a cache holding at most size programs.
//
// Parameters:
//   - size: capacity, DefaultCacheSize when not positive
//
// Returns:
//   - *ProgramCache: the cache
func NewProgramCache(size int) *ProgramCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.NewWithEvict[cacheKey, *Program](size, onProgramEvicted)
	return &ProgramCache{cache: c}
}

func onProgramEvicted(key cacheKey, _ *Program) {
	logger.Logger().Debug("shader program evicted",
		slog.String("shader", key.name),
		slog.String("macros", key.macros),
		slog.String("format", key.format.String()))
}

// Get returns the cached program for a permutation.
func (c *ProgramCache) Get(name, macroKey string, format gpu.ShaderFormat) (*Program, bool) {
	return c.cache.Get(cacheKey{name, macroKey, format})
}

// Add stores a compiled program.
func (c *ProgramCache) Add(p *Program, format gpu.ShaderFormat) {
	c.cache.Add(cacheKey{p.Name, macroKey(p.Macros), format}, p)
}

// Len returns the number of cached programs.
func (c *ProgramCache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached program.
func (c *ProgramCache) Purge() {
	c.cache.Purge()
}
