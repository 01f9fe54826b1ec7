package strx

import "testing"

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "", "text"); got != "text" {
		t.Fatalf("Coalesce = %q", got)
	}
	if got := Coalesce("json", "text"); got != "json" {
		t.Fatalf("Coalesce = %q", got)
	}
	if got := Coalesce(); got != "" {
		t.Fatalf("Coalesce() = %q", got)
	}
}

func TestTrimNUL(t *testing.T) {
	if got := TrimNUL("console=ttyAMA0\x00\x00"); got != "console=ttyAMA0" {
		t.Fatalf("TrimNUL = %q", got)
	}
}
