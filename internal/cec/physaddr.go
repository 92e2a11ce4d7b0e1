// internal/cec/physaddr.go
package cec

import (
	"fmt"
	"strconv"
	"strings"
)

// PhysAddr is a 16-bit topological position written as four nibbles (a.b.c.d).
type PhysAddr uint16

// PhysAddrInvalid marks an unknown or unassigned physical address.
const PhysAddrInvalid PhysAddr = 0xFFFF

// PhysAddrRoot is the address of the root device (normally the TV).
const PhysAddrRoot PhysAddr = 0x0000

func (p PhysAddr) String() string {
	if p == PhysAddrInvalid {
		return "f.f.f.f"
	}
	v := uint16(p)
	return fmt.Sprintf("%x.%x.%x.%x", v>>12, (v>>8)&0xF, (v>>4)&0xF, v&0xF)
}

// Valid reports whether p is not the invalid address.
func (p PhysAddr) Valid() bool { return p != PhysAddrInvalid }

// Nibble returns nibble i (0 = most significant).
func (p PhysAddr) Nibble(i int) uint8 {
	return uint8(p>>(12-4*uint(i))) & 0xF
}

// ParsePhysAddr parses "a.b.c.d" (hex nibbles) or a plain hex value like "0x1000".
func ParsePhysAddr(s string) (PhysAddr, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ".") {
		parts := strings.Split(s, ".")
		if len(parts) != 4 {
			return PhysAddrInvalid, fmt.Errorf("cec: physical address %q: want four nibbles", s)
		}
		var v uint16
		for _, part := range parts {
			n, err := strconv.ParseUint(part, 16, 4)
			if err != nil {
				return PhysAddrInvalid, fmt.Errorf("cec: physical address %q: %w", s, err)
			}
			v = v<<4 | uint16(n)
		}
		return PhysAddr(v), nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return PhysAddrInvalid, fmt.Errorf("cec: physical address %q: %w", s, err)
	}
	return PhysAddr(n), nil
}

// depth returns the number of leading non-zero nibbles.
func (p PhysAddr) depth() int {
	for i := 0; i < 4; i++ {
		if p.Nibble(i) == 0 {
			return i
		}
	}
	return 4
}

// Adjacent reports whether a and b sit on the two ends of a single HDMI link.
//
// After the longest common nibble prefix, all trailing nibbles past the
// divergence point must be zero in both addresses, and exactly one of the
// two diverging nibbles must be zero (parent and child, not siblings).
func Adjacent(a, b PhysAddr) bool {
	if a == PhysAddrInvalid || b == PhysAddrInvalid || a == b {
		return false
	}
	i := 0
	for i < 4 && a.Nibble(i) == b.Nibble(i) {
		i++
	}
	for j := i + 1; j < 4; j++ {
		if a.Nibble(j) != 0 || b.Nibble(j) != 0 {
			return false
		}
	}
	return (a.Nibble(i) == 0) != (b.Nibble(i) == 0)
}

// UpstreamFrom reports whether a is strictly closer to the root than b on
// the same branch, i.e. b is reachable through a's outputs.
func UpstreamFrom(a, b PhysAddr) bool {
	if a == PhysAddrInvalid || b == PhysAddrInvalid || a == b {
		return false
	}
	d := a.depth()
	if d == 4 {
		return false
	}
	for i := 0; i < d; i++ {
		if a.Nibble(i) != b.Nibble(i) {
			return false
		}
	}
	return b.depth() > d
}
