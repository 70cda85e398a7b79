package dnsname

import (
	"strings"
	"testing"
)

func TestNormalizeCaseFold(t *testing.T) {
	got, err := Normalize("Ads.Example.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ads.example.com" {
		t.Errorf("got %q, want ads.example.com", got)
	}
}

func TestNormalizeTrailingDot(t *testing.T) {
	got, err := Normalize("a.b.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a.b" {
		t.Errorf("got %q, want a.b", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := Normalize(".")
	if err == nil {
		t.Fatal("expected error for empty name")
	}
	var ine *InvalidNameError
	if !asInvalidName(err, &ine) || ine.Reason != ReasonEmpty {
		t.Errorf("expected ReasonEmpty, got %v", err)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Example.COM.", "a.b.c", "x-y.z"}
	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) second pass: %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q != %q", once, twice)
		}
	}
}

func TestNormalizeLabelBounds(t *testing.T) {
	longLabel := strings.Repeat("a", 64)
	if _, err := Normalize(longLabel + ".com"); err == nil {
		t.Error("expected error for 64-char label")
	}

	longName := strings.Repeat("a.", 128) + "com"
	if _, err := Normalize(longName); err == nil {
		t.Error("expected error for name over 255 bytes")
	}
}

func TestNormalizeBadLabel(t *testing.T) {
	cases := []string{"-bad.com", "bad-.com", "ba d.com", "under_score.com"}
	for _, c := range cases {
		if _, err := Normalize(c); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestAncestors(t *testing.T) {
	got := Ancestors("a.b.c")
	want := []string{"b.c", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestAncestorsSingleLabel(t *testing.T) {
	if got := Ancestors("com"); got != nil {
		t.Errorf("expected nil ancestors for single label, got %v", got)
	}
}

func asInvalidName(err error, target **InvalidNameError) bool {
	ine, ok := err.(*InvalidNameError)
	if !ok {
		return false
	}
	*target = ine
	return true
}
