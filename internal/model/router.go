package model

import (
	"sync"

	"github.com/ggcore/gg-core/internal/errs"
)

// Router is an atomic routing table from model_id to Handle. One
// reader-writer lock over the whole table gives concurrent resolvers a
// consistent view: a
// resolve in flight during a swap sees either the old or the new handle,
// never a torn value.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handle
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handle)}
}

// Resolve returns the handle routed for modelID, or false if unrouted.
func (r *Router) Resolve(modelID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.routes[modelID]
	return h, ok
}

// AddRoute creates a new route, failing if one already exists for modelID.
func (r *Router) AddRoute(modelID string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[modelID]; exists {
		return &errs.Validation{Field: "model_id", Reason: "route already exists: " + modelID}
	}
	r.routes[modelID] = h
	return nil
}

// SwapRoute atomically repoints modelID at newHandle and returns the
// previous handle, if a route existed.
func (r *Router) SwapRoute(modelID string, newHandle Handle) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, existed := r.routes[modelID]
	r.routes[modelID] = newHandle
	return old, existed
}

// RemoveRoute deletes the route for modelID and returns its handle, if any.
func (r *Router) RemoveRoute(modelID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.routes[modelID]
	if ok {
		delete(r.routes, modelID)
	}
	return h, ok
}

// Route pairs a model_id with its resolved handle, for listing.
type Route struct {
	ModelID string
	Handle  Handle
}

// ListRoutes returns a snapshot of all active routes.
func (r *Router) ListRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes))
	for id, h := range r.routes {
		out = append(out, Route{ModelID: id, Handle: h})
	}
	return out
}

// HasRoute reports whether modelID currently routes anywhere.
func (r *Router) HasRoute(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[modelID]
	return ok
}

// RouteCount returns the number of active routes.
func (r *Router) RouteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
