package diff

import (
	"strings"
	"testing"
)

func TestUnifiedShowsChangedLines(t *testing.T) {
	a := "member run ()V\n  0000: 12015701\n#1 = \"hello\"\n"
	b := "member run ()V\n  0000: 12015701\n#1 = \"bye\"\n"
	got, truncated := Unified("client/a/B", "server/a/B", a, b, Options{})
	if truncated {
		t.Fatalf("unexpected truncation")
	}
	for _, want := range []string{"--- client/a/B", "+++ server/a/B", "-#1 = \"hello\"", "+#1 = \"bye\""} {
		if !strings.Contains(got, want) {
			t.Fatalf("diff missing %q:\n%s", want, got)
		}
	}
}

func TestUnifiedOverLimit(t *testing.T) {
	got, truncated := Unified("a", "b", strings.Repeat("x", 10), "y", Options{MaxBytes: 5})
	if !truncated || !strings.Contains(got, "6 bytes over limit") {
		t.Fatalf("expected stub, got %q (truncated=%v)", got, truncated)
	}
}

func TestUnifiedIdenticalText(t *testing.T) {
	got, _ := Unified("a", "b", "same\n", "same\n", Options{})
	if !strings.Contains(got, "no line differences") {
		t.Fatalf("expected stub for equal input, got %q", got)
	}
}
