package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Registry maps storage driver identifiers, as recorded on data files, to
// configured backends. A driver may be registered as not directly accessible
// (e.g. remote stores the repository cannot read from); the checksum validator
// skips files on such drivers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	store      Store
	accessible bool
}

// NewRegistry returns an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds a driver identifier to a backend. The accessible flag marks
// whether the repository can read file bytes through this driver.
func (r *Registry) Register(driverID string, store Store, accessible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[driverID] = entry{store: store, accessible: accessible}
}

// Accessible reports whether the driver is registered and readable.
func (r *Registry) Accessible(driverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[driverID]
	return ok && e.accessible
}

// Lookup returns the backend registered for the driver identifier.
func (r *Registry) Lookup(driverID string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[driverID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Open returns a reader for the object stored under (driverID, key).
func (r *Registry) Open(ctx context.Context, driverID, key string) (io.ReadCloser, error) {
	store, ok := r.Lookup(driverID)
	if !ok {
		return nil, fmt.Errorf("storage driver %q not registered", driverID)
	}
	_, rc, err := store.Get(ctx, key)
	return rc, err
}
