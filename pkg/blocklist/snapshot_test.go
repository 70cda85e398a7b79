package blocklist

import "testing"

func buildFromLines(t *testing.T, lines ...string) *Snapshot {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/custom.txt"
	if err := writeLines(path, lines); err != nil {
		t.Fatal(err)
	}
	snap, err := NewBuilder(nil).Build(Sources{CustomList: path, EnableWildcards: true})
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func writeLines(path string, lines []string) error {
	return rewriteFile(path, lines)
}

func TestEmptySnapshotAllowsEverything(t *testing.T) {
	s := Empty()
	if got := s.Classify("example.com"); got != Allowed {
		t.Errorf("got %v, want Allowed", got)
	}
}

func TestExactMatch(t *testing.T) {
	s := buildFromLines(t, "ads.example.com")
	if got := s.Classify("ads.example.com"); got != BlockedExact {
		t.Errorf("got %v, want BlockedExact", got)
	}
	if got := s.Classify("example.com"); got != Allowed {
		t.Errorf("got %v, want Allowed", got)
	}
}

func TestWildcardDoesNotMatchBase(t *testing.T) {
	s := buildFromLines(t, "*.doubleclick.net")
	if got := s.Classify("doubleclick.net"); got != Allowed {
		t.Errorf("base domain: got %v, want Allowed", got)
	}
	if got := s.Classify("x.doubleclick.net"); got != BlockedWildcard {
		t.Errorf("child: got %v, want BlockedWildcard", got)
	}
	if got := s.Classify("a.b.doubleclick.net"); got != BlockedWildcard {
		t.Errorf("grandchild: got %v, want BlockedWildcard", got)
	}
}

func TestExactDominatesWildcard(t *testing.T) {
	s := buildFromLines(t, "ads.x", "*.ads.x")
	if got := s.Classify("ads.x"); got != BlockedExact {
		t.Errorf("got %v, want BlockedExact", got)
	}
	if got := s.Classify("y.ads.x"); got != BlockedWildcard {
		t.Errorf("got %v, want BlockedWildcard", got)
	}
}

func TestInvalidNameIsAllowed(t *testing.T) {
	s := buildFromLines(t, "ads.example.com")
	if got := s.Classify(""); got != Allowed {
		t.Errorf("got %v, want Allowed for invalid name", got)
	}
}

func TestWildcardDisabledDropsEntries(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/custom.txt"
	if err := writeLines(path, []string{"*.ads.example.com"}); err != nil {
		t.Fatal(err)
	}
	snap, err := NewBuilder(nil).Build(Sources{CustomList: path, EnableWildcards: false})
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Classify("x.ads.example.com"); got != Allowed {
		t.Errorf("got %v, want Allowed when wildcards disabled", got)
	}
	if snap.Stats().WildcardCount != 0 {
		t.Errorf("expected 0 wildcard entries, got %d", snap.Stats().WildcardCount)
	}
}
