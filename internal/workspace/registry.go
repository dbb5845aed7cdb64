package workspace

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/local/pdfslicer/internal/metrics"
)

// Registry holds the open workspaces of the HTTP API.
type Registry struct {
	deps Deps
	mu   sync.RWMutex
	m    map[string]*Workspace
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps.withDefaults(), m: map[string]*Workspace{}}
}

// Create opens an empty workspace under a new id.
func (r *Registry) Create() *Workspace {
	w := New(uuid.NewString(), r.deps)
	r.mu.Lock()
	r.m[w.ID()] = w
	n := len(r.m)
	r.mu.Unlock()
	metrics.SetOpenDocuments(n)
	return w
}

func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.m[id]
	return w, ok
}

// Delete resets and forgets the workspace. It reports false for unknown ids.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	w, ok := r.m[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if err := w.Reset(ctx); err != nil {
		r.mu.Unlock()
		return true, err
	}
	delete(r.m, id)
	n := len(r.m)
	r.mu.Unlock()
	metrics.SetOpenDocuments(n)
	return true, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
