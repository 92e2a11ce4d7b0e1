// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the export protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per logical address.
const SlotsPerDevice = 20

// BlockCount is the number of exported blocks, one per logical address 0..14.
const BlockCount = 15

// ---- SLOT INDICES ----

// SlotHealth holds the presence state.
const SlotHealth = 0

// SlotPower holds the last reported power status (0xFF unknown).
const SlotPower = 1

// SlotSecondsSinceSeen holds the seconds since the device was last heard.
const SlotSecondsSinceSeen = 2

// SlotPhysAddr holds the physical address (0xFFFF unknown).
const SlotPhysAddr = 3

// SlotVersion holds the clamped CEC version code.
const SlotVersion = 4

// SlotVendorHi and SlotVendorLo hold the 24-bit vendor id.
const (
	SlotVendorHi = 5
	SlotVendorLo = 6
)

// SlotAudio holds volume in the low byte and mute in bit 8.
const SlotAudio = 7

// Slots 8-10 are reserved.
const (
	SlotReservedStart = 8
	SlotReservedEnd   = 10
)

// ---- DEVICE NAME ----

// SlotNameStart is the first slot of the OSD name.
const SlotNameStart = 11

// SlotNameSlots is the number of slots reserved for the OSD name.
const SlotNameSlots = 8

// SlotNameEnd is the last OSD name slot (inclusive).
const SlotNameEnd = SlotNameStart + SlotNameSlots - 1

// NameMaxChars is the number of ASCII characters the name slots hold.
const NameMaxChars = SlotNameSlots * 2

// ---- HEALTH CODES ----

const (
	HealthUnknown uint16 = 0
	HealthPresent uint16 = 1
	HealthLost    uint16 = 2
	HealthSelf    uint16 = 4
)

// ---- LIMITS ----

// MaxSeconds caps SlotSecondsSinceSeen; the counter never wraps.
const MaxSeconds = 0xFFFF
