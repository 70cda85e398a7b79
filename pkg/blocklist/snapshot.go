// Package blocklist implements the immutable blocklist Snapshot, the Builder
// that produces one from heterogeneous source files, the Registry that
// publishes it atomically, and the Fetcher that refreshes the remote-cache
// file. The wildcard structure replaces the teacher's suffix-scanning
// pattern.Matcher (pkg/pattern in the reference repo) with a reverse-label
// trie, trading O(n) patterns for O(k) lookups at the scale this spec
// targets (~10^6 names).
package blocklist

import "github.com/smolgroot/skypier-blackhole/pkg/dnsname"

// Classification is the result of matching a name against a Snapshot.
type Classification int

const (
	Allowed Classification = iota
	BlockedExact
	BlockedWildcard
)

func (c Classification) String() string {
	switch c {
	case BlockedExact:
		return "BlockedExact"
	case BlockedWildcard:
		return "BlockedWildcard"
	default:
		return "Allowed"
	}
}

// trieNode is one label of the reverse-label wildcard trie. The root
// represents the TLD boundary; children are keyed by label, walked from the
// rightmost label inward. terminal marks "every strictly deeper descendant
// of this node is blocked".
type trieNode struct {
	children map[string]*trieNode
	terminal bool
}

// Snapshot is an immutable, read-optimized blocklist. It is built once by a
// Builder and never mutated after construction; Builder.Build always
// produces a new value.
type Snapshot struct {
	exact    map[string]struct{}
	wildcard *trieNode
	stats    Stats
}

// Stats summarizes the size of a Snapshot.
type Stats struct {
	ExactCount      int
	WildcardCount   int
	TotalBytesEstimate int64
}

// Empty returns the initial Snapshot with no entries; every name classifies
// Allowed.
func Empty() *Snapshot {
	return &Snapshot{
		exact:    make(map[string]struct{}),
		wildcard: &trieNode{children: make(map[string]*trieNode)},
	}
}

// Classify reports how name is treated by the snapshot. It is read-only,
// pure, and safe for concurrent use by any number of readers. name is
// expected already normalized; a name that fails normalization is treated as
// Allowed here (the caller is responsible for rejecting InvalidName earlier
// in the request path, per spec.md §4.6 step 3).
func (s *Snapshot) Classify(raw string) Classification {
	name, err := dnsname.Normalize(raw)
	if err != nil {
		return Allowed
	}

	if _, ok := s.exact[name]; ok {
		return BlockedExact
	}

	if s.matchesWildcard(name) {
		return BlockedWildcard
	}

	return Allowed
}

// matchesWildcard walks the proper ancestors of name, right to left, looking
// for the closest ancestor carrying a wildcard terminator.
func (s *Snapshot) matchesWildcard(name string) bool {
	for _, ancestor := range dnsname.Ancestors(name) {
		if node := s.lookupNode(ancestor); node != nil && node.terminal {
			return true
		}
	}
	return false
}

// lookupNode walks the trie from the root for the exact node matching name's
// labels (reversed), or nil if no such node exists.
func (s *Snapshot) lookupNode(name string) *trieNode {
	node := s.wildcard
	for _, label := range reverseLabels(name) {
		next, ok := node.children[label]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

// Stats returns the snapshot's size counters.
func (s *Snapshot) Stats() Stats {
	return s.stats
}

func reverseLabels(name string) []string {
	labels := splitLabels(name)
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	labels = append(labels, name[start:])
	return labels
}
