package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("")

	first := gen.Next()
	second := gen.Next()

	if first != "apt-1" || second != "apt-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestScriptedIDGenerator(t *testing.T) {
	gen := NewScriptedIDGenerator("dup", "dup")

	got := []string{gen.Next(), gen.Next(), gen.Next()}
	want := []string{"dup", "dup", "apt-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if issued := gen.Issued(); len(issued) != 3 {
		t.Fatalf("expected 3 issued ids, got %v", issued)
	}
}
