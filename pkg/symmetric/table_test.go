package symmetric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

func addr(t *testing.T, s string) ipaddr.Address {
	t.Helper()
	a, err := ipaddr.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func ts(secs uint32) uint64 { return uint64(secs) << 32 }

func TestOutgoingAlwaysNegativeAndLearns(t *testing.T) {
	tbl := New(ipaddr.V4)
	rec := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x04, FirstTime: ts(100),
	}
	assert.Equal(t, types.SpoofNegative, tbl.Check(rec, 45))
	assert.Equal(t, 1, tbl.Len())
}

func TestIncomingConfirmedBySameLink(t *testing.T) {
	tbl := New(ipaddr.V4)
	a := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x04, FirstTime: ts(100),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(a, 45))

	b := &types.FlowRecord{
		Src: addr(t, "203.0.113.7"), Dst: addr(t, "198.51.100.5"),
		Direction: types.Incoming, LinkMask: 0x04, FirstTime: ts(110),
	}
	assert.Equal(t, types.SpoofNegative, tbl.Check(b, 45))
}

func TestIncomingMismatchedLinkIsPositive(t *testing.T) {
	tbl := New(ipaddr.V4)
	a := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x04, FirstTime: ts(100),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(a, 45))

	c := &types.FlowRecord{
		Src: addr(t, "203.0.113.7"), Dst: addr(t, "198.51.100.5"),
		Direction: types.Incoming, LinkMask: 0x01, FirstTime: ts(110),
	}
	assert.Equal(t, types.SpoofPositive, tbl.Check(c, 45))
}

func TestIncomingUnknownKeyIsNegative(t *testing.T) {
	tbl := New(ipaddr.V4)
	rec := &types.FlowRecord{
		Src: addr(t, "203.0.113.7"), Dst: addr(t, "198.51.100.5"),
		Direction: types.Incoming, LinkMask: 0x01, FirstTime: ts(10),
	}
	assert.Equal(t, types.SpoofNegative, tbl.Check(rec, 45))
}

// TestWindowExpiryGatesWritesNotReads exercises spec.md §8 scenario 4: the
// window only gates whether an egress record refreshes an entry, not
// whether an ingress record may read it. A stale entry is still consulted.
func TestWindowExpiryGatesWritesNotReads(t *testing.T) {
	tbl := New(ipaddr.V4)
	a := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x04, FirstTime: ts(100),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(a, 45))

	c := &types.FlowRecord{
		Src: addr(t, "203.0.113.7"), Dst: addr(t, "198.51.100.5"),
		Direction: types.Incoming, LinkMask: 0x01, FirstTime: ts(200),
	}
	assert.Equal(t, types.SpoofPositive, tbl.Check(c, 45))
}

func TestOutgoingRefreshWithinWindowMergesLinkMask(t *testing.T) {
	tbl := New(ipaddr.V4)
	a := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x04, FirstTime: ts(100),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(a, 45))

	aAgain := &types.FlowRecord{
		Src: addr(t, "198.51.100.5"), Dst: addr(t, "203.0.113.7"),
		Direction: types.Outgoing, LinkMask: 0x01, FirstTime: ts(110),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(aAgain, 45))

	confirm := &types.FlowRecord{
		Src: addr(t, "203.0.113.7"), Dst: addr(t, "198.51.100.5"),
		Direction: types.Incoming, LinkMask: 0x01, FirstTime: ts(120),
	}
	assert.Equal(t, types.SpoofNegative, tbl.Check(confirm, 45), "mask must now include the 0x01 bit merged in by the refresh")
}

func TestV6KeyUsesHighHalf(t *testing.T) {
	tbl := New(ipaddr.V6)
	rec := &types.FlowRecord{
		Src: addr(t, "2001:db8:abcd::1"), Dst: addr(t, "2001:db8:1234::2"),
		Direction: types.Outgoing, LinkMask: 0x01, FirstTime: ts(1),
	}
	require.Equal(t, types.SpoofNegative, tbl.Check(rec, 45))
	assert.Equal(t, 1, tbl.Len())

	otherLowHalf := &types.FlowRecord{
		Src: addr(t, "2001:db8:1234::99"), Dst: addr(t, "2001:db8:abcd::ffff"),
		Direction: types.Incoming, LinkMask: 0x01, FirstTime: ts(2),
	}
	assert.Equal(t, types.SpoofNegative, tbl.Check(otherLowHalf, 45), "low 64 bits must not affect the v6 key")
}
