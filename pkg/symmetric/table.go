// Package symmetric implements the symmetric-routing filter: a per-family
// table that remembers which uplinks have carried egress traffic toward a
// destination aggregate, and flags ingress traffic that arrives on an
// uplink never confirmed as the egress path to that same peer.
package symmetric

import (
	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// entry mirrors the original sym_src_t: a link mask and the last-write
// timestamp used to gate whether an egress record refreshes it.
type entry struct {
	linkMask  uint64
	timestamp uint32
}

// Table is the per-family symmetric-route map. It grows monotonically and
// is never explicitly evicted (spec.md §3 Lifecycle) — compaction is an
// explicit non-goal.
type Table struct {
	family  ipaddr.Family
	entries map[uint64]*entry
}

// New creates an empty table for one address family.
func New(family ipaddr.Family) *Table {
	return &Table{family: family, entries: make(map[uint64]*entry)}
}

// Len reports the number of distinct keys currently tracked.
func (t *Table) Len() int { return len(t.entries) }

func key(family ipaddr.Family, addr ipaddr.Address) uint64 {
	if family == ipaddr.V4 {
		return uint64(addr.AsV4Uint32() & 0xFFFFFF00)
	}
	return addr.AsV6HighUint64()
}

// Check implements the symmetric-routing filter contract (spec.md §4.3).
//
// Addresses must already be in network byte order by the time they reach
// here: no byte-swap happens in this filter, because ipaddr.FromNetIP and
// ipaddr.ParseAddress store both families in network byte order.
func (t *Table) Check(r *types.FlowRecord, rwTime uint32) types.Verdict {
	now := r.TimestampSecs()

	if r.Direction == types.Outgoing {
		k := key(t.family, r.Dst)
		if e, ok := t.entries[k]; ok && now-e.timestamp < rwTime {
			e.linkMask |= r.LinkMask
			e.timestamp = now
		} else {
			t.entries[k] = &entry{linkMask: r.LinkMask, timestamp: now}
		}
		return types.SpoofNegative
	}

	k := key(t.family, r.Src)
	e, ok := t.entries[k]
	if !ok {
		return types.SpoofNegative
	}
	if e.linkMask&r.LinkMask == 0 {
		return types.SpoofPositive
	}
	return types.SpoofNegative
}
