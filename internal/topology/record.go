// internal/topology/record.go
package topology

import (
	"math/bits"
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// OpcodeSet is a 256-entry opcode bitmap.
type OpcodeSet [4]uint64

func (s *OpcodeSet) Add(op cec.Opcode) { s[op>>6] |= 1 << (op & 63) }

func (s OpcodeSet) Has(op cec.Opcode) bool { return s[op>>6]&(1<<(op&63)) != 0 }

func (s OpcodeSet) Len() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// Intersect returns the opcodes present in both sets.
func (s OpcodeSet) Intersect(o OpcodeSet) []cec.Opcode {
	var out []cec.Opcode
	for i := 0; i < 256; i++ {
		op := cec.Opcode(i)
		if s.Has(op) && o.Has(op) {
			out = append(out, op)
		}
	}
	return out
}

// List returns the opcodes in ascending order.
func (s OpcodeSet) List() []cec.Opcode {
	var out []cec.Opcode
	for i := 0; i < 256; i++ {
		if s.Has(cec.Opcode(i)) {
			out = append(out, cec.Opcode(i))
		}
	}
	return out
}

// Record is everything known about one remote logical address.
type Record struct {
	LA   cec.LogicalAddress
	Self bool

	PhysAddr    cec.PhysAddr
	Version     cec.Version // clamped to [1.3a, 2.0]
	RawVersion  cec.Version
	PrimaryType cec.DeviceType
	AllDevTypes uint8
	VendorID    uint32
	OSDName     string
	MenuLang    string

	Power          cec.PowerStatus
	HasPowerStatus bool

	Recognized   OpcodeSet
	Unrecognized OpcodeSet

	HasARC            bool
	HasSAC            bool
	HasAudioRate      bool
	HasDeckControl    bool
	HasRecordTVScreen bool

	Volume uint8
	Mute   bool

	LastSeen time.Time
	// Misses counts consecutive non-OK liveness polls.
	Misses int
}

// newRecord returns a record with every capability unknown.
func newRecord(la cec.LogicalAddress, now time.Time) *Record {
	return &Record{
		LA:          la,
		PhysAddr:    cec.PhysAddrInvalid,
		PrimaryType: cec.DevTypeUnknown,
		VendorID:    cec.VendorIDNone,
		Power:       cec.PowerUnknown,
		Volume:      cec.AudioVolumeUnknown,
		LastSeen:    now,
	}
}
