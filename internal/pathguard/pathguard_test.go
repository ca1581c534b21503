package pathguard

import "testing"

func TestValidate_AcceptsPathUnderRoot(t *testing.T) {
	resolved, err := Validate("/srv/models", "llama/weights.gguf")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := "/srv/models/llama/weights.gguf"
	if resolved != want {
		t.Fatalf("got %q, want %q", resolved, want)
	}
}

func TestValidate_RejectsAbsolutePath(t *testing.T) {
	if _, err := Validate("/srv/models", "/etc/passwd"); err == nil {
		t.Fatal("expected error for absolute path")
	}
}

func TestValidate_RejectsDotDotEscape(t *testing.T) {
	if _, err := Validate("/srv/models", "../../etc/passwd"); err == nil {
		t.Fatal("expected error for escaping path")
	}
}

func TestValidate_RejectsDotDotNestedDeepEnoughToEscape(t *testing.T) {
	if _, err := Validate("/srv/models", "a/b/../../../etc/passwd"); err == nil {
		t.Fatal("expected error for nested escaping path")
	}
}

func TestValidate_RejectsUNCPath(t *testing.T) {
	if _, err := Validate("/srv/models", `\\server\share\file`); err == nil {
		t.Fatal("expected error for UNC path")
	}
}

func TestValidate_RejectsNullByte(t *testing.T) {
	if _, err := Validate("/srv/models", "weights\x00.gguf"); err == nil {
		t.Fatal("expected error for embedded null byte")
	}
}

func TestValidate_AllowsHarmlessDotDotThatStaysUnderRoot(t *testing.T) {
	resolved, err := Validate("/srv/models", "a/../b/weights.gguf")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := "/srv/models/b/weights.gguf"
	if resolved != want {
		t.Fatalf("got %q, want %q", resolved, want)
	}
}
