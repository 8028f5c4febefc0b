package recording

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// BackendFactory creates a new backend instance.
type BackendFactory func() Backend

// registry maps backend names to factories. Passes look backends up by
// name when they dump their command lists.
type registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

var backends = &registry{factories: make(map[string]BackendFactory)}

func (r *registry) add(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch _, taken := r.factories[name]; {
	case factory == nil:
		panic("recording: nil factory for backend " + name)
	case taken:
		panic("recording: backend " + name + " registered twice")
	}
	r.factories[name] = factory
}

func (r *registry) lookup(name string) (BackendFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Register makes a backend available to NewBackend under name. Backend
// packages call it from init, so a blank import is enough to enable them:
//
//	import _ "github.com/gogpu/gfx/recording/backends/trace"
//
// It panics on a nil factory or a name that is already taken.
func Register(name string, factory BackendFactory) { backends.add(name, factory) }

// Unregister removes a backend. Unknown names are ignored.
func Unregister(name string) {
	backends.mu.Lock()
	defer backends.mu.Unlock()
	delete(backends.factories, name)
}

// NewBackend returns a fresh instance of the backend registered as name.
func NewBackend(name string) (Backend, error) {
	f, ok := backends.lookup(name)
	if !ok {
		return nil, fmt.Errorf("recording: no backend %q registered (missing import?)", name)
	}
	return f(), nil
}

// Backends returns the registered names, sorted.
func Backends() []string {
	backends.mu.RLock()
	defer backends.mu.RUnlock()
	return slices.Sorted(maps.Keys(backends.factories))
}

// IsRegistered reports whether name has a backend.
func IsRegistered(name string) bool {
	_, ok := backends.lookup(name)
	return ok
}
