// internal/cec/types.go
package cec

import "strings"

// LogicalAddress is the 4-bit device role on the bus.
// 15 means Unregistered as an initiator and Broadcast as a destination.
type LogicalAddress uint8

const (
	LogAddrTV           LogicalAddress = 0
	LogAddrRecord1      LogicalAddress = 1
	LogAddrRecord2      LogicalAddress = 2
	LogAddrTuner1       LogicalAddress = 3
	LogAddrPlayback1    LogicalAddress = 4
	LogAddrAudioSystem  LogicalAddress = 5
	LogAddrTuner2       LogicalAddress = 6
	LogAddrTuner3       LogicalAddress = 7
	LogAddrPlayback2    LogicalAddress = 8
	LogAddrRecord3      LogicalAddress = 9
	LogAddrTuner4       LogicalAddress = 10
	LogAddrPlayback3    LogicalAddress = 11
	LogAddrBackup1      LogicalAddress = 12
	LogAddrBackup2      LogicalAddress = 13
	LogAddrSpecific     LogicalAddress = 14
	LogAddrUnregistered LogicalAddress = 15
	LogAddrBroadcast    LogicalAddress = 15
)

// NumLogAddrs is the number of addressable (non-broadcast) logical addresses.
const NumLogAddrs = 15

var logAddrNames = [16]string{
	"TV", "Recording Device 1", "Recording Device 2", "Tuner 1",
	"Playback Device 1", "Audio System", "Tuner 2", "Tuner 3",
	"Playback Device 2", "Recording Device 3", "Tuner 4", "Playback Device 3",
	"Backup 1", "Backup 2", "Specific", "Unregistered",
}

func (l LogicalAddress) String() string {
	if l > 15 {
		return "Invalid"
	}
	return logAddrNames[l]
}

// Valid reports whether l addresses a single device (0..14).
func (l LogicalAddress) Valid() bool { return l < NumLogAddrs }

// LogAddrMask is a bitmask of logical addresses, bit n for address n.
type LogAddrMask uint16

func (m LogAddrMask) Has(l LogicalAddress) bool { return l <= 15 && m&(1<<l) != 0 }

func (m LogAddrMask) With(l LogicalAddress) LogAddrMask { return m | 1<<l }

// Addrs lists the addresses set in m in ascending order.
func (m LogAddrMask) Addrs() []LogicalAddress {
	var out []LogicalAddress
	for l := LogicalAddress(0); l <= 15; l++ {
		if m.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// ---- DEVICE TYPES ----

// DeviceType is the primary device type carried in Report Physical Address.
type DeviceType uint8

const (
	DevTypeTV          DeviceType = 0
	DevTypeRecord      DeviceType = 1
	DevTypeReserved    DeviceType = 2
	DevTypeTuner       DeviceType = 3
	DevTypePlayback    DeviceType = 4
	DevTypeAudioSystem DeviceType = 5
	DevTypeSwitch      DeviceType = 6
	DevTypeProcessor   DeviceType = 7
	DevTypeUnknown     DeviceType = 0xFF
)

func (d DeviceType) String() string {
	switch d {
	case DevTypeTV:
		return "TV"
	case DevTypeRecord:
		return "Record"
	case DevTypeTuner:
		return "Tuner"
	case DevTypePlayback:
		return "Playback"
	case DevTypeAudioSystem:
		return "Audio System"
	case DevTypeSwitch:
		return "Switch"
	case DevTypeProcessor:
		return "Processor"
	case DevTypeUnknown:
		return "Unknown"
	default:
		return "Reserved"
	}
}

// ParseDeviceType maps a config name ("tv", "playback", ...) to a DeviceType.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tv":
		return DevTypeTV, true
	case "record", "recorder", "recording":
		return DevTypeRecord, true
	case "tuner":
		return DevTypeTuner, true
	case "playback":
		return DevTypePlayback, true
	case "audio", "audiosystem", "audio-system", "audio_system":
		return DevTypeAudioSystem, true
	case "switch":
		return DevTypeSwitch, true
	case "processor":
		return DevTypeProcessor, true
	default:
		return DevTypeUnknown, false
	}
}

// AllDevType returns the Report Features "all device types" bit for d.
func (d DeviceType) AllDevType() uint8 {
	switch d {
	case DevTypeTV:
		return AllDevTypeTV
	case DevTypeRecord:
		return AllDevTypeRecord
	case DevTypeTuner:
		return AllDevTypeTuner
	case DevTypePlayback:
		return AllDevTypePlayback
	case DevTypeAudioSystem:
		return AllDevTypeAudioSys
	case DevTypeSwitch, DevTypeProcessor:
		return AllDevTypeSwitch
	default:
		return 0
	}
}

// ---- USER CONTROL CODES ----

type UICommand uint8

const (
	UISelect                UICommand = 0x00
	UIUp                    UICommand = 0x01
	UIDown                  UICommand = 0x02
	UILeft                  UICommand = 0x03
	UIRight                 UICommand = 0x04
	UIChannelUp             UICommand = 0x30
	UIChannelDown           UICommand = 0x31
	UIPower                 UICommand = 0x40
	UIVolumeUp              UICommand = 0x41
	UIVolumeDown            UICommand = 0x42
	UIMute                  UICommand = 0x43
	UIPlay                  UICommand = 0x44
	UIStop                  UICommand = 0x45
	UIPause                 UICommand = 0x46
	UIMuteFunction          UICommand = 0x65
	UIRestoreVolumeFunction UICommand = 0x66
	UIPowerToggleFunction   UICommand = 0x6B
	UIPowerOffFunction      UICommand = 0x6C
	UIPowerOnFunction       UICommand = 0x6D
)

func (u UICommand) String() string {
	switch u {
	case UISelect:
		return "Select"
	case UIUp:
		return "Up"
	case UIDown:
		return "Down"
	case UILeft:
		return "Left"
	case UIRight:
		return "Right"
	case UIChannelUp:
		return "Channel Up"
	case UIChannelDown:
		return "Channel Down"
	case UIPower:
		return "Power"
	case UIVolumeUp:
		return "Volume Up"
	case UIVolumeDown:
		return "Volume Down"
	case UIMute:
		return "Mute"
	case UIPlay:
		return "Play"
	case UIStop:
		return "Stop"
	case UIPause:
		return "Pause"
	case UIMuteFunction:
		return "Mute Function"
	case UIRestoreVolumeFunction:
		return "Restore Volume Function"
	case UIPowerToggleFunction:
		return "Power Toggle Function"
	case UIPowerOffFunction:
		return "Power Off Function"
	case UIPowerOnFunction:
		return "Power On Function"
	default:
		return "UI 0x" + hex2(uint8(u))
	}
}

// ---- TRANSMIT / RECEIVE STATUS ----

// TxStatus is the transmit status bitmask reported by the adapter.
type TxStatus uint8

const (
	TxOK         TxStatus = 1 << 0
	TxArbLost    TxStatus = 1 << 1
	TxNACK       TxStatus = 1 << 2
	TxLowDrive   TxStatus = 1 << 3
	TxError      TxStatus = 1 << 4
	TxMaxRetries TxStatus = 1 << 5
)

func (s TxStatus) OK() bool { return s&TxOK != 0 }

func (s TxStatus) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	names := []struct {
		bit  TxStatus
		name string
	}{
		{TxOK, "OK"}, {TxArbLost, "ARB_LOST"}, {TxNACK, "NACK"},
		{TxLowDrive, "LOW_DRIVE"}, {TxError, "ERROR"}, {TxMaxRetries, "MAX_RETRIES"},
	}
	for _, n := range names {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// RxStatus is the receive status bitmask for the reply of a transmit.
type RxStatus uint8

const (
	RxOK           RxStatus = 1 << 0
	RxTimeout      RxStatus = 1 << 1
	RxFeatureAbort RxStatus = 1 << 2
)

func (s RxStatus) OK() bool { return s&RxOK != 0 }

func (s RxStatus) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	if s&RxOK != 0 {
		parts = append(parts, "OK")
	}
	if s&RxTimeout != 0 {
		parts = append(parts, "TIMEOUT")
	}
	if s&RxFeatureAbort != 0 {
		parts = append(parts, "FEATURE_ABORT")
	}
	return strings.Join(parts, "|")
}
