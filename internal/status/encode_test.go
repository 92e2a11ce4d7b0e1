// internal/status/encode_test.go
package status

import (
	"testing"
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

func TestEncode_Layout(t *testing.T) {
	s := Snapshot{
		Health:           HealthPresent,
		Power:            cec.PowerStandby,
		SecondsSinceSeen: 12,
		PhysAddr:         0x1200,
		Version:          cec.Version1_4,
		VendorID:         0x0000F0,
		Volume:           30,
		Mute:             true,
		Name:             "Blu-ray",
	}
	regs := Encode(s)

	if len(regs) != SlotsPerDevice {
		t.Fatalf("block length %d", len(regs))
	}
	want := map[int]uint16{
		SlotHealth:           HealthPresent,
		SlotPower:            1,
		SlotSecondsSinceSeen: 12,
		SlotPhysAddr:         0x1200,
		SlotVersion:          5,
		SlotVendorHi:         0x00,
		SlotVendorLo:         0x00F0,
		SlotAudio:            0x0100 | 30,
		SlotNameStart:        uint16('B')<<8 | 'l',
		SlotNameStart + 3:    uint16('y') << 8,
		SlotNameEnd:          0,
	}
	for slot, v := range want {
		if regs[slot] != v {
			t.Fatalf("slot %d = 0x%04x want 0x%04x", slot, regs[slot], v)
		}
	}
	for slot := SlotReservedStart; slot <= SlotReservedEnd; slot++ {
		if regs[slot] != 0 {
			t.Fatalf("reserved slot %d written", slot)
		}
	}
}

func TestEncode_Limits(t *testing.T) {
	regs := Encode(Snapshot{SecondsSinceSeen: 1 << 20, VendorID: cec.VendorIDNone, Name: "a\x01cdefghijklmnopqrstu"})

	if regs[SlotSecondsSinceSeen] != MaxSeconds {
		t.Fatalf("seconds wrapped: %d", regs[SlotSecondsSinceSeen])
	}
	if regs[SlotVendorHi] != 0xFF || regs[SlotVendorLo] != 0xFFFF {
		t.Fatalf("unknown vendor encoded as %04x %04x", regs[SlotVendorHi], regs[SlotVendorLo])
	}
	if regs[SlotNameStart] != uint16('a')<<8|'?' {
		t.Fatalf("non-printable not replaced: %04x", regs[SlotNameStart])
	}
	if regs[SlotNameEnd] != uint16('o')<<8|'p' {
		t.Fatalf("name not truncated at %d chars: %04x", NameMaxChars, regs[SlotNameEnd])
	}
}

func TestFromRecord(t *testing.T) {
	now := time.Unix(2000, 0)
	r := topology.Record{
		LA:       cec.LogAddrPlayback1,
		Self:     true,
		PhysAddr: 0x1000,
		Power:    cec.PowerOn,
		LastSeen: now.Add(-90 * time.Second),
	}
	s := FromRecord(r, now)
	if s.Health != HealthSelf || s.SecondsSinceSeen != 90 || s.PhysAddr != 0x1000 {
		t.Fatalf("snapshot %+v", s)
	}

	r.Self = false
	r.LastSeen = now.Add(time.Second)
	if s := FromRecord(r, now); s.Health != HealthPresent || s.SecondsSinceSeen != 0 {
		t.Fatalf("snapshot %+v", s)
	}

	if l := Lost(); Encode(l)[SlotHealth] != HealthLost || Encode(l)[SlotPhysAddr] != 0xFFFF {
		t.Fatalf("lost block %v", Encode(l))
	}
}
