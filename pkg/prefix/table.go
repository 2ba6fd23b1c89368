// Package prefix implements the sorted longest-prefix-match table used by
// the bogon filter and the flow-rate filter's watched-network lookup.
//
// The table is sorted once at load time by the raw network-address bytes
// (not by prefix length) and probed with a binary search that compares the
// candidate address, masked to the probed entry's length, against that
// entry's stored network address. This mirrors the original C++
// v4_bogon_filter/v6_bogon_filter routines: a single binary-search pass is
// sufficient because the filter only needs "does any prefix match", not
// "which is the longest match".
package prefix

import (
	"bytes"
	"sort"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
)

// Entry is one loaded prefix.
type Entry struct {
	Addr   ipaddr.Address
	Length int
}

// Table is an immutable, sorted set of prefixes for one address family.
type Table struct {
	family  ipaddr.Family
	entries []Entry
}

// New builds a Table from entries, sorting them by raw network-address
// bytes. The table is immutable after construction (spec.md §3 invariant).
func New(family ipaddr.Family, entries []Entry) *Table {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Addr.Window(), sorted[j].Addr.Window()) < 0
	})
	return &Table{family: family, entries: sorted}
}

// Len reports the number of prefixes in the table.
func (t *Table) Len() int { return len(t.entries) }

// Family reports the table's address family.
func (t *Table) Family() ipaddr.Family { return t.family }

// Contains reports whether addr falls within any prefix in the table, and
// if so the index of the matching entry. Ties among overlapping prefixes
// are broken by whichever equality the binary search lands on first —
// sufficient because every caller only needs a boolean "some match"
// (spec.md §4.1).
func (t *Table) Contains(addr ipaddr.Address) (int, bool) {
	begin, end := 0, len(t.entries)-1
	for begin <= end {
		mid := (begin + end) >> 1
		entry := t.entries[mid]
		masked := addr.MaskWithLength(entry.Length)
		cmp := bytes.Compare(entry.Addr.Window(), masked.Window())
		switch {
		case cmp < 0:
			begin = mid + 1
		case cmp > 0:
			end = mid - 1
		default:
			return mid, true
		}
	}
	return 0, false
}

// At returns the entry at the given index, as returned by Contains.
func (t *Table) At(i int) Entry { return t.entries[i] }
