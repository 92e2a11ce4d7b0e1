// internal/status/snapshot.go
package status

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// Snapshot represents exactly what the writer is allowed to deliver for
// one logical address.
type Snapshot struct {
	Health           uint16
	Power            cec.PowerStatus
	SecondsSinceSeen uint32
	PhysAddr         cec.PhysAddr
	Version          cec.Version
	VendorID         uint32
	Volume           uint8
	Mute             bool
	Name             string
}

// Lost is the snapshot of an address whose device has gone away.
func Lost() Snapshot {
	return Snapshot{
		Health:   HealthLost,
		Power:    cec.PowerUnknown,
		PhysAddr: cec.PhysAddrInvalid,
		VendorID: cec.VendorIDNone,
		Volume:   cec.AudioVolumeUnknown,
	}
}

// FromRecord converts a topology record as seen at now.
func FromRecord(r topology.Record, now time.Time) Snapshot {
	s := Snapshot{
		Health:   HealthPresent,
		Power:    r.Power,
		PhysAddr: r.PhysAddr,
		Version:  r.Version,
		VendorID: r.VendorID,
		Volume:   r.Volume,
		Mute:     r.Mute,
		Name:     r.OSDName,
	}
	if r.Self {
		s.Health = HealthSelf
	}
	if d := now.Sub(r.LastSeen); d > 0 {
		s.SecondsSinceSeen = uint32(d / time.Second)
	}
	return s
}
