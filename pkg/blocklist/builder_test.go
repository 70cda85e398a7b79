package blocklist

import (
	"reflect"
	"sort"
	"testing"
)

func TestParseLineHostsFormat(t *testing.T) {
	got := parseLine("0.0.0.0 ads.example.com tracker.example.com")
	names := entryNames(got)
	sort.Strings(names)
	want := []string{"ads.example.com", "tracker.example.com"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestParseLineWildcard(t *testing.T) {
	got := parseLine("*.doubleclick.net")
	if len(got) != 1 || got[0].kind != wildcardEntry || got[0].name != "doubleclick.net" {
		t.Errorf("got %v", got)
	}
}

func TestParseLineBareWildcardRejected(t *testing.T) {
	if got := parseLine("*"); got != nil {
		t.Errorf("expected bare * to be rejected, got %v", got)
	}
	if got := parseLine("*."); got != nil {
		t.Errorf("expected bare *. to be rejected, got %v", got)
	}
}

func TestParseLineComment(t *testing.T) {
	if got := parseLine("# a comment"); got != nil {
		t.Errorf("expected nil for comment line, got %v", got)
	}
	if got := parseLine(""); got != nil {
		t.Errorf("expected nil for blank line, got %v", got)
	}
}

func TestParseLineInlineComment(t *testing.T) {
	got := parseLine("ads.example.com # tracking pixel")
	if len(got) != 1 || got[0].name != "ads.example.com" {
		t.Errorf("got %v", got)
	}
}

func TestParseLineAdblockFormat(t *testing.T) {
	got := parseLine("||ads.example.com^")
	if len(got) != 1 || got[0].kind != exactEntry || got[0].name != "ads.example.com" {
		t.Errorf("got %v", got)
	}
}

func TestParseLineMalformedLineDropped(t *testing.T) {
	if got := parseLine("not a valid multi token line"); got != nil {
		t.Errorf("expected malformed line dropped, got %v", got)
	}
}

func TestBuilderDeduplicatesAcrossSources(t *testing.T) {
	dir := t.TempDir()
	local := dir + "/local.txt"
	custom := dir + "/custom.txt"
	must(t, rewriteFile(local, []string{"ads.example.com"}))
	must(t, rewriteFile(custom, []string{"ads.example.com", "ADS.EXAMPLE.COM"}))

	snap, err := NewBuilder(nil).Build(Sources{LocalLists: []string{local}, CustomList: custom, EnableWildcards: true})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Stats().ExactCount != 1 {
		t.Errorf("expected 1 deduplicated exact entry, got %d", snap.Stats().ExactCount)
	}
}

func TestBuilderMissingSourcesStillSucceed(t *testing.T) {
	dir := t.TempDir()
	custom := dir + "/custom.txt"
	must(t, rewriteFile(custom, []string{"ads.example.com"}))

	snap, err := NewBuilder(nil).Build(Sources{
		RemoteCacheFile: dir + "/missing-cache.txt",
		CustomList:      custom,
		EnableWildcards: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Classify("ads.example.com") != BlockedExact {
		t.Error("expected custom list entry to still be blocked")
	}
}

func TestBuilderNoSourcesReadableProducesEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	snap, err := NewBuilder(nil).Build(Sources{CustomList: dir + "/missing.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Stats().ExactCount != 0 || snap.Stats().WildcardCount != 0 {
		t.Error("expected empty snapshot when no source is readable")
	}
}

func entryNames(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
