package cache

import "sync"

// Registry fans invalidations out to every registered cache. It is the
// single place webhooks and file watchers report changes to.
type Registry struct {
	mu      sync.RWMutex
	members []Invalidator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds inv to the registry.
func (r *Registry) Register(inv Invalidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, inv)
}

// Invalidate marks everything matching any of tags or paths as stale and
// returns the number of entries affected.
func (r *Registry) Invalidate(tags, paths []string) int {
	r.mu.RLock()
	members := append([]Invalidator(nil), r.members...)
	r.mu.RUnlock()

	n := 0
	for _, m := range members {
		for _, t := range tags {
			n += m.InvalidateTag(t)
		}
		for _, p := range paths {
			n += m.InvalidatePath(p)
		}
	}
	return n
}
