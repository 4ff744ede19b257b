package denylist

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// prefixSet accumulates IPv4 prefixes for coverage checks while a block list
// is assembled. Uses a BART (Balanced Routing Table) for O(log n) lookups.
type prefixSet struct {
	trie *bart.Lite
}

// newPrefixSet creates an empty prefixSet.
func newPrefixSet() *prefixSet {
	return &prefixSet{trie: new(bart.Lite)}
}

// covers returns true if the network address of p lies within any prefix
// already in the set.
func (ps *prefixSet) covers(p netip.Prefix) bool {
	return ps.trie.Contains(p.Masked().Addr())
}

// insert adds p to the set.
func (ps *prefixSet) insert(p netip.Prefix) {
	if p.IsValid() {
		ps.trie.Insert(p.Masked())
	}
}

// size returns the total number of prefixes in the set.
func (ps *prefixSet) size() int {
	return ps.trie.Size()
}
