package ipaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskWithLength_V4(t *testing.T) {
	addr, err := ParseAddress("192.168.1.200")
	require.NoError(t, err)

	cases := []struct {
		length int
		want   string
	}{
		{24, "192.168.1.0"},
		{16, "192.168.0.0"},
		{0, "0.0.0.0"},
		{32, "192.168.1.200"},
	}
	for _, c := range cases {
		masked := addr.MaskWithLength(c.length)
		assert.Equal(t, c.want, masked.String())
	}
}

func TestMaskWithLength_V6(t *testing.T) {
	addr, err := ParseAddress("2001:db8:abcd:1234::1")
	require.NoError(t, err)

	masked := addr.MaskWithLength(32)
	assert.Equal(t, "2001:db8::", masked.String())

	masked64 := addr.MaskWithLength(64)
	assert.Equal(t, "2001:db8:abcd:1234::", masked64.String())
}

func TestAsV4Uint32RoundTrip(t *testing.T) {
	addr, err := ParseAddress("10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, uint32(10)<<24|uint32(1)<<16|uint32(2)<<8|uint32(3), addr.AsV4Uint32())
}

func TestFamilyMaxLength(t *testing.T) {
	assert.Equal(t, 32, V4.MaxLength())
	assert.Equal(t, 128, V6.MaxLength())
}

func TestParseAddressInvalid(t *testing.T) {
	_, err := ParseAddress("not-an-address")
	assert.Error(t, err)
}
