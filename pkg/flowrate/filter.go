// Package flowrate implements the per-destination-prefix new-flow-rate
// filter: a double-buffered pair of approximate-membership sets per watched
// prefix, with count-based thresholding and scheduled rotation.
package flowrate

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
	"github.com/cesnet/ipspoof-detector/pkg/prefix"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

const (
	// ProjectedElements and FalsePositiveRate are the default Bloom filter
	// sizing parameters from spec.md §4.4.
	ProjectedElements = 1_000_000
	FalsePositiveRate = 0.01

	// aggregation prefix lengths, per family, used to coalesce a source
	// address into the flow-rate key (spec.md §4.4 step 2).
	v4AggregationLength = 24
	v6AggregationLength = 64

	// keyWidth is the fixed buffer length (INET6_ADDRSTRLEN) the rendered
	// aggregation key is zero-padded to before it is hashed.
	keyWidth = 46
)

// slot is one half of the active/learning pair: a Bloom filter, its
// distinct-key count, and the timestamp (whole seconds) of the last
// rotation, or of the first matching record before any rotation.
type slot struct {
	set       *bloom.BloomFilter
	count     uint64
	timestamp uint32
}

func newSlot() *slot {
	return &slot{set: bloom.NewWithEstimates(ProjectedElements, FalsePositiveRate)}
}

func (s *slot) clear() {
	s.set.ClearAll()
	s.count = 0
}

// watched is one watched-prefix's pair of slots plus the active/learning
// role indices, reified as an instance field (rather than the file-scope
// globals the C original used) so that each Filter rotates independently
// and tests can construct isolated instances — per spec.md §9 "Global
// mutable state".
type watched struct {
	slots       [2]*slot
	active      int // index into slots; slots[1-active] is learning
	initialized bool
}

func newWatched() *watched {
	return &watched{slots: [2]*slot{newSlot(), newSlot()}}
}

func (w *watched) activeSlot() *slot   { return w.slots[w.active] }
func (w *watched) learningSlot() *slot { return w.slots[1-w.active] }

func (w *watched) rotate(now uint32) {
	w.active = 1 - w.active
	w.learningSlot().clear()
	w.slots[0].timestamp = now
	w.slots[1].timestamp = now
}

// Filter is one family's flow-rate filter: a set of watched prefixes, each
// with its own active/learning pair.
type Filter struct {
	family           ipaddr.Family
	specific         *prefix.Table
	threshold        uint64
	rotationInterval uint32
	watched          []*watched
}

// New builds a Filter for the given family's watched-prefix table. If
// specific is nil (no specific_file configured) the filter has zero
// watched prefixes and always returns Negative, per spec.md §4.4 / §6.
func New(family ipaddr.Family, specific *prefix.Table, threshold uint64, rotationInterval uint32) *Filter {
	f := &Filter{
		family:           family,
		specific:         specific,
		threshold:        threshold,
		rotationInterval: rotationInterval,
	}
	if specific != nil {
		f.watched = make([]*watched, specific.Len())
		for i := range f.watched {
			f.watched[i] = newWatched()
		}
	}
	return f
}

func (f *Filter) matchAddr(r *types.FlowRecord) ipaddr.Address {
	// spec.md §9 Open Question 1: the v6 variant matches the source
	// address where v4 matches the destination. This asymmetry is
	// preserved from the original implementation rather than "fixed",
	// since the distilled spec explicitly calls for replicating it.
	if f.family == ipaddr.V4 {
		return r.Dst
	}
	return r.Src
}

func (f *Filter) aggregationLength() int {
	if f.family == ipaddr.V4 {
		return v4AggregationLength
	}
	return v6AggregationLength
}

// Check implements the flow-rate filter contract (spec.md §4.4).
func (f *Filter) Check(r *types.FlowRecord) types.Verdict {
	if f.specific == nil {
		return types.SpoofNegative
	}
	idx, ok := f.specific.Contains(f.matchAddr(r))
	if !ok {
		return types.SpoofNegative
	}
	w := f.watched[idx]
	now := r.TimestampSecs()

	if !w.initialized {
		w.slots[0].timestamp = now
		w.slots[1].timestamp = now
		w.initialized = true
	}

	active := w.activeSlot()
	if now-active.timestamp > f.rotationInterval {
		w.rotate(now)
		active = w.activeSlot()
	}

	key := make([]byte, keyWidth)
	copy(key, r.Src.MaskWithLength(f.aggregationLength()).String())
	if active.set.Test(key) {
		return types.SpoofNegative
	}

	active.set.Add(key)
	w.learningSlot().set.Add(key)
	active.count++
	w.learningSlot().count++

	if active.count > f.threshold {
		return types.SpoofPositive
	}
	return types.SpoofNegative
}
