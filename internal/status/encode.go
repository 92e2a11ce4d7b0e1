// internal/status/encode.go
package status

import "github.com/tamzrod/cec-compliance/internal/cec"

// Encode converts a Snapshot into a full device status block.
// Layout is protocol-locked. No IO.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealth] = s.Health
	regs[SlotPower] = uint16(s.Power)

	secs := s.SecondsSinceSeen
	if secs > MaxSeconds {
		secs = MaxSeconds
	}
	regs[SlotSecondsSinceSeen] = uint16(secs)

	regs[SlotPhysAddr] = uint16(s.PhysAddr)
	regs[SlotVersion] = uint16(s.Version)

	vendor := s.VendorID
	if vendor == cec.VendorIDNone {
		vendor = 0xFFFFFF
	}
	regs[SlotVendorHi] = uint16(vendor>>16) & 0xFF
	regs[SlotVendorLo] = uint16(vendor)

	regs[SlotAudio] = uint16(s.Volume)
	if s.Mute {
		regs[SlotAudio] |= 1 << 8
	}

	copy(regs[SlotNameStart:SlotNameEnd+1], EncodeName(s.Name))
	return regs
}

// EncodeName packs up to NameMaxChars ASCII characters into SlotNameSlots
// registers, two bytes per register, big-endian.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotNameSlots)

	b := []byte(name)
	if len(b) > NameMaxChars {
		b = b[:NameMaxChars]
	}

	for i := 0; i < NameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = printable(b[i])
		}
		if i+1 < len(b) {
			lo = printable(b[i+1])
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}
	return out
}

func printable(c byte) byte {
	if c < 0x20 || c > 0x7E {
		return '?'
	}
	return c
}
