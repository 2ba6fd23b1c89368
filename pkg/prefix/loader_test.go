package prefix

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
)

func TestLoadFileBucketsByFamily(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "10.0.0.0/8\n192.168.1.0/24\n2001:db8::/32\n  \nnot-a-prefix\n172.16.0.0\nfe80::/10"
	require.NoError(t, afero.WriteFile(fs, "/prefixes.txt", []byte(content), 0644))

	v4, v6, err := LoadFile(fs, "/prefixes.txt")
	require.NoError(t, err)

	assert.Equal(t, 2, v4.Len())
	assert.Equal(t, 2, v6.Len())

	addr, _ := ipaddr.ParseAddress("10.1.2.3")
	_, ok := v4.Contains(addr)
	assert.True(t, ok)
}

func TestLoadFileSkipsMalformedLinesSilently(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/prefixes.txt", []byte("garbage/xyz\n10.0.0.0/8"), 0644))

	v4, _, err := LoadFile(fs, "/prefixes.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, v4.Len())
}

func TestLoadFileMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, _, err := LoadFile(fs, "/does-not-exist.txt")
	assert.Error(t, err)
}

func TestLoadFileAcceptsUnterminatedFinalLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/prefixes.txt", []byte("10.0.0.0/8\n192.168.0.0/16"), 0644))

	v4, _, err := LoadFile(fs, "/prefixes.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, v4.Len())
}
