package ipaddr

// V4Masks[i] is the network mask for prefix length i, 0..32. Index 0 is
// explicitly zero rather than relying on a 32-bit shift by 32, which is
// undefined in C and easy to get wrong when porting; Go shifts are
// well-defined but the explicit entry keeps the table symmetric with
// V6Masks and documents the invariant from spec.md §3.
var V4Masks [33]uint32

// V6Masks[i] holds the high and low 64-bit halves of the /i netmask, 0..128.
var V6Masks [129][2]uint64

func init() {
	V4Masks[0] = 0x00000000
	for i := 1; i <= 32; i++ {
		V4Masks[i] = 0xFFFFFFFF << uint(32-i)
	}

	V6Masks[0] = [2]uint64{0, 0}
	for i := 1; i <= 128; i++ {
		switch {
		case i < 64:
			V6Masks[i] = [2]uint64{0xFFFFFFFFFFFFFFFF << uint(64-i), 0}
		case i == 64:
			V6Masks[i] = [2]uint64{0xFFFFFFFFFFFFFFFF, 0}
		default:
			V6Masks[i] = [2]uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF << uint(128-i)}
		}
	}
}

// MaxLength returns the maximum valid prefix length for a family.
func (f Family) MaxLength() int {
	if f == V4 {
		return 32
	}
	return 128
}
