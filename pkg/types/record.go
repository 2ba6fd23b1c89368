package types

import (
	"time"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
)

// Direction is the one-sided flow direction bit carried by a FlowRecord.
type Direction uint8

const (
	Outgoing Direction = 0
	Incoming Direction = 1
)

// FlowRecord is the unit of work flowing through the pipeline: one
// directional observation of a flow, as produced by a flow exporter
// upstream of this detector. Only Src, Dst, Direction, LinkMask and
// FirstTime are read by the filters (spec.md §6); the remaining
// fields are carried through to the output unmodified.
type FlowRecord struct {
	Src, Dst    ipaddr.Address
	SrcPort     uint16
	DstPort     uint16
	Protocol    uint8
	Direction   Direction
	LinkMask    uint64
	FirstTime   uint64 // whole seconds in the high 32 bits, per spec.md §3
	LastTime    uint64
	PacketCount uint64
	ByteCount   uint64
	TCPFlags    uint8
}

// TimestampSecs extracts the whole-second portion of FirstTime.
func (r *FlowRecord) TimestampSecs() uint32 {
	return uint32(r.FirstTime >> 32)
}

// NewTimestamp packs a time.Time into the record's 64-bit timestamp
// representation, for sources that construct records from wall-clock time
// rather than an upstream exporter's own counter.
func NewTimestamp(t time.Time) uint64 {
	return uint64(uint32(t.Unix())) << 32
}

// Stage identifies a pipeline processor's position, following the same
// ordering convention as the upstream pipeline package this was adapted
// from: processors run in ascending Stage order.
type Stage int

const (
	StagePolicyOverride Stage = iota + 1
	StageDetection
)

// Verdict is the result of a filter or of the orchestrator as a whole.
type Verdict uint8

const (
	SpoofNegative Verdict = iota
	SpoofPositive
)

func (v Verdict) String() string {
	if v == SpoofPositive {
		return "SPOOF_POSITIVE"
	}
	return "SPOOF_NEGATIVE"
}
