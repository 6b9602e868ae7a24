package metadata

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrPageNotFound is returned when no page definition exists for an id.
var ErrPageNotFound = errors.New("page not found")

// Registry caches page definitions by id. Definitions are replaced wholesale
// on reload and never mutated in place.
type Registry struct {
	mu    sync.RWMutex
	pages map[string]*PageDefinition
}

func NewRegistry() *Registry {
	return &Registry{
		pages: make(map[string]*PageDefinition),
	}
}

// GetPage returns the page with the given id, or nil.
func (r *Registry) GetPage(id string) *PageDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages[id]
}

// ResolvePage returns the page with the given id or ErrPageNotFound.
func (r *Registry) ResolvePage(_ context.Context, id string) (*PageDefinition, error) {
	if p := r.GetPage(id); p != nil {
		return p, nil
	}
	return nil, ErrPageNotFound
}

// AllPages returns all registered pages ordered by id.
func (r *Registry) AllPages() []*PageDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pages := make([]*PageDefinition, 0, len(r.pages))
	for _, p := range r.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages
}

// Load replaces all pages in the registry.
func (r *Registry) Load(pages []*PageDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages = make(map[string]*PageDefinition, len(pages))
	for _, p := range pages {
		r.pages[p.ID] = p
	}
}
