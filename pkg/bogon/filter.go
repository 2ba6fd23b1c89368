// Package bogon implements the bogon/reserved-prefix filter: the first of
// the three decision filters in the detector pipeline.
package bogon

import (
	"github.com/cesnet/ipspoof-detector/pkg/prefix"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// Filter holds the bogon table and the optional watched/specific-network
// table for one address family.
type Filter struct {
	bogons   *prefix.Table
	specific *prefix.Table // may be nil: specific checks are then skipped
}

// New builds a Filter from a mandatory bogon table and an optional
// specific-prefix table.
func New(bogons, specific *prefix.Table) *Filter {
	return &Filter{bogons: bogons, specific: specific}
}

// Check implements the bogon filter contract (spec.md §4.2): a match
// against the bogon table is always positive; a match against the
// specific table is positive only for incoming traffic, since outbound
// traffic to a watched network is not interesting to this filter.
func (f *Filter) Check(r *types.FlowRecord) types.Verdict {
	if _, ok := f.bogons.Contains(r.Src); ok {
		return types.SpoofPositive
	}
	if f.specific == nil || r.Direction != types.Incoming {
		return types.SpoofNegative
	}
	if _, ok := f.specific.Contains(r.Src); ok {
		return types.SpoofPositive
	}
	return types.SpoofNegative
}
