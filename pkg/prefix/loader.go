package prefix

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
)

// LoadFile reads a prefix list file ("ADDRESS/LENGTH" per line, whitespace
// stripped, malformed addresses skipped silently, unterminated final line
// accepted) and returns one Table per address family it encountered.
//
// fs lets tests substitute an in-memory filesystem (afero.NewMemMapFs)
// instead of touching disk, the way the original's load_pref read a single
// hardcoded path but this implementation needs to be testable in isolation.
func LoadFile(fs afero.Fs, path string) (v4, v6 *Table, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("prefix: open %s: %w", path, err)
	}
	defer f.Close()

	var v4Entries, v6Entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addrPart, lenPart, ok := strings.Cut(line, "/")
		addrPart = strings.Join(strings.Fields(addrPart), "")
		if !ok {
			continue
		}
		addr, perr := ipaddr.ParseAddress(addrPart)
		if perr != nil {
			continue
		}
		length, lerr := strconv.Atoi(strings.TrimSpace(lenPart))
		if lerr != nil || length < 0 || length > addr.Family().MaxLength() {
			continue
		}
		entry := Entry{Addr: addr.MaskWithLength(length), Length: length}
		if addr.Family() == ipaddr.V4 {
			v4Entries = append(v4Entries, entry)
		} else {
			v6Entries = append(v6Entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("prefix: read %s: %w", path, err)
	}

	return New(ipaddr.V4, v4Entries), New(ipaddr.V6, v6Entries), nil
}
