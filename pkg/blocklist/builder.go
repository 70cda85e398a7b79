package blocklist

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"

	"github.com/smolgroot/skypier-blackhole/pkg/dnsname"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
)

type entryKind int

const (
	exactEntry entryKind = iota
	wildcardEntry
)

type entry struct {
	kind entryKind
	name string
}

// Sources is the fixed-order list of inputs a Builder reads, per spec.md
// §4.3: remote-cache file first, then local files, then the custom list.
type Sources struct {
	RemoteCacheFile string
	LocalLists      []string
	CustomList      string
	EnableWildcards bool
}

// Builder turns Sources into a new Snapshot. It performs no network I/O;
// that is the Fetcher's job. Build is deterministic: identical source bytes
// produce a structurally equal Snapshot.
type Builder struct {
	logger *logging.Logger
}

// NewBuilder creates a Builder that logs unreadable source files at debug
// level. Tokens dropped by the line parser are not logged.
func NewBuilder(logger *logging.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build reads every configured source, in order, and returns a fresh,
// unpublished Snapshot. A source file that cannot be opened is skipped (not
// fatal) and reported via the logger; the build still succeeds if at least
// one source was readable, and returns the empty snapshot otherwise.
func (b *Builder) Build(sources Sources) (*Snapshot, error) {
	// Exact and wildcard entries are independently deduplicated sets: the
	// same literal name may appear in both (spec.md §3), so a single
	// name-keyed map would incorrectly collapse the two.
	exactNames := make(map[string]struct{})
	wildcardNames := make(map[string]struct{})
	anyRead := false

	paths := make([]string, 0, 2+len(sources.LocalLists))
	if sources.RemoteCacheFile != "" {
		paths = append(paths, sources.RemoteCacheFile)
	}
	paths = append(paths, sources.LocalLists...)
	if sources.CustomList != "" {
		paths = append(paths, sources.CustomList)
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if b.logger != nil {
				b.logger.Debug("blocklist source unreadable, skipping", "path", path, "error", err)
			}
			continue
		}
		anyRead = true
		b.consume(f, exactNames, wildcardNames, sources.EnableWildcards)
		f.Close()
	}

	exact := make(map[string]struct{}, len(exactNames))
	for name := range exactNames {
		exact[name] = struct{}{}
	}

	root := &trieNode{children: make(map[string]*trieNode)}
	for name := range wildcardNames {
		insertWildcard(root, name)
	}
	wildcardCount := len(wildcardNames)

	snap := &Snapshot{
		exact:    exact,
		wildcard: root,
		stats: Stats{
			ExactCount:         len(exact),
			WildcardCount:      wildcardCount,
			TotalBytesEstimate: estimateBytes(exact, wildcardCount),
		},
	}

	if !anyRead && b.logger != nil {
		b.logger.Warn("no blocklist source readable, publishing empty snapshot")
	}

	return snap, nil
}

func (b *Builder) consume(r io.Reader, exactNames, wildcardNames map[string]struct{}, enableWildcards bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, e := range parseLine(scanner.Text()) {
			switch e.kind {
			case exactEntry:
				exactNames[e.name] = struct{}{}
			case wildcardEntry:
				if enableWildcards {
					wildcardNames[e.name] = struct{}{}
				}
			}
		}
	}
}

// parseLine parses one blocklist line per spec.md §3: comments and blank
// lines are ignored; "*.name" is a Wildcard entry; a hosts-file line
// ("ip name [name...]") yields one Exact entry per name; otherwise the line
// is a single Exact entry. IP-address tokens and tokens failing name
// validation are dropped; the line's other tokens are retained.
func parseLine(line string) []entry {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)

	if adblock := strings.TrimPrefix(line, "||"); adblock != line {
		adblock = strings.TrimSuffix(adblock, "^")
		if e, ok := toEntry(adblock); ok {
			return []entry{e}
		}
		return nil
	}

	if len(fields) >= 2 && net.ParseIP(fields[0]) != nil {
		var out []entry
		for _, tok := range fields[1:] {
			if e, ok := toEntry(tok); ok {
				out = append(out, e)
			}
		}
		return out
	}

	if len(fields) != 1 {
		// Not a recognized hosts-file line and not a single token; drop it.
		return nil
	}

	if e, ok := toEntry(fields[0]); ok {
		return []entry{e}
	}
	return nil
}

func toEntry(tok string) (entry, bool) {
	if strings.HasPrefix(tok, "*.") {
		rest := tok[2:]
		if rest == "" {
			return entry{}, false
		}
		name, err := dnsname.Normalize(rest)
		if err != nil {
			return entry{}, false
		}
		return entry{kind: wildcardEntry, name: name}, true
	}

	if tok == "*" || net.ParseIP(tok) != nil {
		return entry{}, false
	}

	name, err := dnsname.Normalize(tok)
	if err != nil {
		return entry{}, false
	}
	return entry{kind: exactEntry, name: name}, true
}

func insertWildcard(root *trieNode, name string) {
	node := root
	for _, label := range reverseLabels(name) {
		next, ok := node.children[label]
		if !ok {
			next = &trieNode{children: make(map[string]*trieNode)}
			node.children[label] = next
		}
		node = next
	}
	node.terminal = true
}

func estimateBytes(exact map[string]struct{}, wildcardCount int) int64 {
	var total int64
	for name := range exact {
		total += int64(len(name)) + 48 // map entry + string header overhead, rough
	}
	total += int64(wildcardCount) * 64 // trie node overhead, rough
	return total
}
