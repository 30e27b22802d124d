package extension

import (
	"slices"
	"sync"
)

// Well-known extension ids.
const (
	Default    = "@ohif/extension-default"
	Microscopy = "@ohif/extension-dicom-microscopy"
)

// Registry records which viewer extensions are available.
type Registry struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewRegistry(ids ...string) *Registry {
	r := &Registry{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		r.Register(id)
	}
	return r
}

func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
}

func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
