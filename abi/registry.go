package abi

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// EnvSurface names the environment variable consulted by Default.
const EnvSurface = "JSRT_SURFACE"

// DefaultSurfaceName is used when EnvSurface is unset.
const DefaultSurfaceName = "embedded"

// Factory builds a Surface implementation.
type Factory func() (Surface, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)

	defaultOnce    sync.Once
	defaultSurface Surface
	defaultErr     error
)

// Register makes a surface implementation available under name.
// It panics if the name is registered twice.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("abi: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("abi: Register called twice for surface " + name)
	}
	factories[name] = f
}

// Surfaces returns the sorted names of the registered implementations.
func Surfaces() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds a new instance of the named surface.
func Open(name string) (Surface, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("abi: unknown surface %q (registered: %v)", name, Surfaces())
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("abi: open surface %q: %w", name, err)
	}
	return s, nil
}

// Default returns the process-wide surface. The implementation is chosen
// once, on first use, from EnvSurface (or DefaultSurfaceName) and reused by
// every later call.
func Default() (Surface, error) {
	defaultOnce.Do(func() {
		name := os.Getenv(EnvSurface)
		if name == "" {
			name = DefaultSurfaceName
		}
		defaultSurface, defaultErr = Open(name)
	})
	return defaultSurface, defaultErr
}
