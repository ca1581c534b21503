package backend

import "testing"

func TestStubBackend_DecodeFinishesAtMaxTokens(t *testing.T) {
	b := NewStubBackend("m1", []string{"text_generation"}, 1024, 42, 3, 4)

	r0, err := b.Decode(1, 0)
	if err != nil || r0.Token != 42 || r0.Finished {
		t.Errorf("Decode(0) = %+v, %v; want token=42 finished=false", r0, err)
	}
	r1, _ := b.Decode(1, 1)
	if r1.Finished {
		t.Error("expected not finished at tokensGenerated=1 of max 3")
	}
	r2, _ := b.Decode(1, 2)
	if !r2.Finished {
		t.Error("expected finished once tokensGenerated+1 reaches maxTokens")
	}
}

func TestStubBackend_UnloadIsIdempotent(t *testing.T) {
	b := NewStubBackend("m1", nil, 1, 0, 1, 4)
	if b.Unloaded() {
		t.Fatal("fresh backend should not be unloaded")
	}
	if err := b.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if err := b.Unload(); err != nil {
		t.Fatalf("second Unload: %v", err)
	}
	if !b.Unloaded() {
		t.Error("expected Unloaded() true after Unload")
	}
}

func TestStubBackend_PrefillReturnsEmptyKV(t *testing.T) {
	b := NewStubBackend("m1", nil, 1, 0, 1, 4)
	res, err := b.Prefill([]uint32{1, 2, 3}, 0)
	if err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if res.KVBytes == nil {
		t.Error("expected non-nil (possibly empty) KVBytes")
	}
}
