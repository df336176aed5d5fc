package storage

import (
	"fmt"
	"sync"
)

// Registry maps backend names to Storage implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Storage
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Storage)}
}

// NewDefaultRegistry wires memory backends for localStorage and
// sessionStorage and a file backend under dir.
func NewDefaultRegistry(dir string) (*Registry, error) {
	r := NewRegistry()
	r.Register(BackendLocal, NewMemory())
	r.Register(BackendSession, NewMemory())
	fileBackend, err := NewFile(dir)
	if err != nil {
		return nil, err
	}
	r.Register(BackendFile, fileBackend)
	return r, nil
}

// Register installs a backend under name, replacing any existing one.
func (r *Registry) Register(name string, backend Storage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backend
}

// Backend returns the backend registered under name.
func (r *Registry) Backend(name string) (Storage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s", name)
	}
	return backend, nil
}
