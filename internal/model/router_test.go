package model

import "testing"

func TestRouter_AddAndResolve(t *testing.T) {
	r := NewRouter()
	if err := r.AddRoute("m1", Handle(1)); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	h, ok := r.Resolve("m1")
	if !ok || h != Handle(1) {
		t.Errorf("Resolve(m1) = (%v, %v), want (1, true)", h, ok)
	}
}

func TestRouter_AddRouteFailsOnDuplicate(t *testing.T) {
	r := NewRouter()
	_ = r.AddRoute("m1", Handle(1))
	if err := r.AddRoute("m1", Handle(2)); err == nil {
		t.Error("expected AddRoute to fail on existing route")
	}
}

func TestRouter_SwapRouteReturnsOldHandle(t *testing.T) {
	r := NewRouter()
	_ = r.AddRoute("m1", Handle(1))
	old, existed := r.SwapRoute("m1", Handle(2))
	if !existed || old != Handle(1) {
		t.Errorf("SwapRoute = (%v, %v), want (1, true)", old, existed)
	}
	h, _ := r.Resolve("m1")
	if h != Handle(2) {
		t.Errorf("post-swap Resolve = %v, want 2", h)
	}
}

func TestRouter_SwapRouteOnFreshModelCreatesRoute(t *testing.T) {
	r := NewRouter()
	_, existed := r.SwapRoute("new-model", Handle(7))
	if existed {
		t.Error("expected no prior route for fresh model id")
	}
	if !r.HasRoute("new-model") {
		t.Error("expected SwapRoute to create the route when absent")
	}
}

func TestRouter_RemoveRoute(t *testing.T) {
	r := NewRouter()
	_ = r.AddRoute("m1", Handle(1))
	h, ok := r.RemoveRoute("m1")
	if !ok || h != Handle(1) {
		t.Errorf("RemoveRoute = (%v, %v), want (1, true)", h, ok)
	}
	if r.HasRoute("m1") {
		t.Error("expected route gone after RemoveRoute")
	}
}

func TestRouter_ListAndCount(t *testing.T) {
	r := NewRouter()
	_ = r.AddRoute("a", Handle(1))
	_ = r.AddRoute("b", Handle(2))
	if got := r.RouteCount(); got != 2 {
		t.Errorf("RouteCount() = %d, want 2", got)
	}
	if len(r.ListRoutes()) != 2 {
		t.Errorf("ListRoutes() length = %d, want 2", len(r.ListRoutes()))
	}
}
