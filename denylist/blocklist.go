package denylist

import (
	"github.com/ipshipyard/adguard-blocklist/country"
)

// Group holds the entries fetched for one country.
type Group struct {
	Country country.Code
	Entries []Entry
}

// BlockList is the ordered result of one update: country groups in
// resolution order followed by the manual entries in file order. Duplicates
// are kept.
type BlockList struct {
	Groups []Group
	Manual []Entry
}

// Assemble combines the per-country groups and the manual entries.
func Assemble(groups []Group, manual []Entry) BlockList {
	return BlockList{Groups: groups, Manual: manual}
}

// Len returns the total number of entries.
func (b BlockList) Len() int {
	n := len(b.Manual)
	for _, g := range b.Groups {
		n += len(g.Entries)
	}
	return n
}

// CIDRCount returns the number of entries coming from country feeds.
func (b BlockList) CIDRCount() int {
	return b.Len() - len(b.Manual)
}

// Entries returns the flattened list, CIDR entries before manual entries.
func (b BlockList) Entries() []string {
	out := make([]string, 0, b.Len())
	for _, g := range b.Groups {
		for _, e := range g.Entries {
			out = append(out, string(e))
		}
	}
	for _, e := range b.Manual {
		out = append(out, string(e))
	}
	return out
}

// Overlap summarizes entries that are already covered by an earlier entry.
// It is purely diagnostic; nothing is removed from the list.
type Overlap struct {
	// Covered counts country entries whose network address falls inside an
	// earlier entry.
	Covered int
	// ManualCovered counts manual entries already covered by a country entry
	// or an earlier manual entry.
	ManualCovered int
	// Distinct is the number of distinct prefixes in the list.
	Distinct int
}

// Overlaps computes coverage diagnostics for the list.
func (b BlockList) Overlaps() Overlap {
	var o Overlap
	ps := newPrefixSet()

	for _, g := range b.Groups {
		for _, e := range g.Entries {
			p, ok := parseEntry(string(e))
			if !ok {
				continue
			}
			if ps.covers(p) {
				o.Covered++
			}
			ps.insert(p)
		}
	}
	for _, e := range b.Manual {
		p, ok := parseEntry(string(e))
		if !ok {
			continue
		}
		if ps.covers(p) {
			o.ManualCovered++
			log.Debugf("manual entry %s is already covered by another entry", e)
		}
		ps.insert(p)
	}

	o.Distinct = ps.size()
	return o
}
