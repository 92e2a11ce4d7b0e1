// internal/cec/constants.go
package cec

import "time"

// Frame geometry. These values are fixed by the CEC bus and MUST NOT be configurable.

// MaxMsgSize is the largest frame on the bus: header + opcode + 14 operands.
const MaxMsgSize = 16

// MaxOperands is the largest operand count a frame can carry.
const MaxOperands = MaxMsgSize - 2

// ---- BIT TIMING ----

// ByteTime is the nominal time to transfer one frame byte (10 bits of 2.4 ms).
const ByteTime = 24 * time.Millisecond

// StartBitTime is the nominal duration of the start bit.
const StartBitTime = 4500 * time.Microsecond

// ---- OPCODES ----

type Opcode uint8

const (
	OpFeatureAbort            Opcode = 0x00
	OpImageViewOn             Opcode = 0x04
	OpTunerStepIncrement      Opcode = 0x05
	OpTunerStepDecrement      Opcode = 0x06
	OpTunerDeviceStatus       Opcode = 0x07
	OpGiveTunerDeviceStatus   Opcode = 0x08
	OpRecordOn                Opcode = 0x09
	OpRecordStatus            Opcode = 0x0A
	OpRecordOff               Opcode = 0x0B
	OpTextViewOn              Opcode = 0x0D
	OpRecordTVScreen          Opcode = 0x0F
	OpGiveDeckStatus          Opcode = 0x1A
	OpDeckStatus              Opcode = 0x1B
	OpSetMenuLanguage         Opcode = 0x32
	OpClearAnalogueTimer      Opcode = 0x33
	OpSetAnalogueTimer        Opcode = 0x34
	OpTimerStatus             Opcode = 0x35
	OpStandby                 Opcode = 0x36
	OpPlay                    Opcode = 0x41
	OpDeckControl             Opcode = 0x42
	OpTimerClearedStatus      Opcode = 0x43
	OpUserControlPressed      Opcode = 0x44
	OpUserControlReleased     Opcode = 0x45
	OpGiveOSDName             Opcode = 0x46
	OpSetOSDName              Opcode = 0x47
	OpSetOSDString            Opcode = 0x64
	OpSetTimerProgramTitle    Opcode = 0x67
	OpSystemAudioModeRequest  Opcode = 0x70
	OpGiveAudioStatus         Opcode = 0x71
	OpSetSystemAudioMode      Opcode = 0x72
	OpReportAudioStatus       Opcode = 0x7A
	OpGiveSystemAudioModeStat Opcode = 0x7D
	OpSystemAudioModeStatus   Opcode = 0x7E
	OpRoutingChange           Opcode = 0x80
	OpRoutingInformation      Opcode = 0x81
	OpActiveSource            Opcode = 0x82
	OpGivePhysicalAddr        Opcode = 0x83
	OpReportPhysicalAddr      Opcode = 0x84
	OpRequestActiveSource     Opcode = 0x85
	OpSetStreamPath           Opcode = 0x86
	OpDeviceVendorID          Opcode = 0x87
	OpVendorCommand           Opcode = 0x89
	OpVendorRemoteButtonDown  Opcode = 0x8A
	OpVendorRemoteButtonUp    Opcode = 0x8B
	OpGiveDeviceVendorID      Opcode = 0x8C
	OpMenuRequest             Opcode = 0x8D
	OpMenuStatus              Opcode = 0x8E
	OpGiveDevicePowerStatus   Opcode = 0x8F
	OpReportPowerStatus       Opcode = 0x90
	OpGetMenuLanguage         Opcode = 0x91
	OpSelectAnalogueService   Opcode = 0x92
	OpSelectDigitalService    Opcode = 0x93
	OpSetDigitalTimer         Opcode = 0x97
	OpClearDigitalTimer       Opcode = 0x99
	OpSetAudioRate            Opcode = 0x9A
	OpInactiveSource          Opcode = 0x9D
	OpCECVersion              Opcode = 0x9E
	OpGetCECVersion           Opcode = 0x9F
	OpVendorCommandWithID     Opcode = 0xA0
	OpClearExtTimer           Opcode = 0xA1
	OpSetExtTimer             Opcode = 0xA2
	OpReportShortAudioDesc    Opcode = 0xA3
	OpRequestShortAudioDesc   Opcode = 0xA4
	OpGiveFeatures            Opcode = 0xA5
	OpReportFeatures          Opcode = 0xA6
	OpRequestCurrentLatency   Opcode = 0xA7
	OpReportCurrentLatency    Opcode = 0xA8
	OpInitiateARC             Opcode = 0xC0
	OpReportARCInitiated      Opcode = 0xC1
	OpReportARCTerminated     Opcode = 0xC2
	OpRequestARCInitiation    Opcode = 0xC3
	OpRequestARCTermination   Opcode = 0xC4
	OpTerminateARC            Opcode = 0xC5
	OpCDCMessage              Opcode = 0xF8
	OpAbort                   Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	OpFeatureAbort:            "Feature Abort",
	OpImageViewOn:             "Image View On",
	OpTunerStepIncrement:      "Tuner Step Increment",
	OpTunerStepDecrement:      "Tuner Step Decrement",
	OpTunerDeviceStatus:       "Tuner Device Status",
	OpGiveTunerDeviceStatus:   "Give Tuner Device Status",
	OpRecordOn:                "Record On",
	OpRecordStatus:            "Record Status",
	OpRecordOff:               "Record Off",
	OpTextViewOn:              "Text View On",
	OpRecordTVScreen:          "Record TV Screen",
	OpGiveDeckStatus:          "Give Deck Status",
	OpDeckStatus:              "Deck Status",
	OpSetMenuLanguage:         "Set Menu Language",
	OpClearAnalogueTimer:      "Clear Analogue Timer",
	OpSetAnalogueTimer:        "Set Analogue Timer",
	OpTimerStatus:             "Timer Status",
	OpStandby:                 "Standby",
	OpPlay:                    "Play",
	OpDeckControl:             "Deck Control",
	OpTimerClearedStatus:      "Timer Cleared Status",
	OpUserControlPressed:      "User Control Pressed",
	OpUserControlReleased:     "User Control Released",
	OpGiveOSDName:             "Give OSD Name",
	OpSetOSDName:              "Set OSD Name",
	OpSetOSDString:            "Set OSD String",
	OpSetTimerProgramTitle:    "Set Timer Program Title",
	OpSystemAudioModeRequest:  "System Audio Mode Request",
	OpGiveAudioStatus:         "Give Audio Status",
	OpSetSystemAudioMode:      "Set System Audio Mode",
	OpReportAudioStatus:       "Report Audio Status",
	OpGiveSystemAudioModeStat: "Give System Audio Mode Status",
	OpSystemAudioModeStatus:   "System Audio Mode Status",
	OpRoutingChange:           "Routing Change",
	OpRoutingInformation:      "Routing Information",
	OpActiveSource:            "Active Source",
	OpGivePhysicalAddr:        "Give Physical Address",
	OpReportPhysicalAddr:      "Report Physical Address",
	OpRequestActiveSource:     "Request Active Source",
	OpSetStreamPath:           "Set Stream Path",
	OpDeviceVendorID:          "Device Vendor ID",
	OpVendorCommand:           "Vendor Command",
	OpVendorRemoteButtonDown:  "Vendor Remote Button Down",
	OpVendorRemoteButtonUp:    "Vendor Remote Button Up",
	OpGiveDeviceVendorID:      "Give Device Vendor ID",
	OpMenuRequest:             "Menu Request",
	OpMenuStatus:              "Menu Status",
	OpGiveDevicePowerStatus:   "Give Device Power Status",
	OpReportPowerStatus:       "Report Power Status",
	OpGetMenuLanguage:         "Get Menu Language",
	OpSelectAnalogueService:   "Select Analogue Service",
	OpSelectDigitalService:    "Select Digital Service",
	OpSetDigitalTimer:         "Set Digital Timer",
	OpClearDigitalTimer:       "Clear Digital Timer",
	OpSetAudioRate:            "Set Audio Rate",
	OpInactiveSource:          "Inactive Source",
	OpCECVersion:              "CEC Version",
	OpGetCECVersion:           "Get CEC Version",
	OpVendorCommandWithID:     "Vendor Command With ID",
	OpClearExtTimer:           "Clear External Timer",
	OpSetExtTimer:             "Set External Timer",
	OpReportShortAudioDesc:    "Report Short Audio Descriptor",
	OpRequestShortAudioDesc:   "Request Short Audio Descriptor",
	OpGiveFeatures:            "Give Features",
	OpReportFeatures:          "Report Features",
	OpRequestCurrentLatency:   "Request Current Latency",
	OpReportCurrentLatency:    "Report Current Latency",
	OpInitiateARC:             "Initiate ARC",
	OpReportARCInitiated:      "Report ARC Initiated",
	OpReportARCTerminated:     "Report ARC Terminated",
	OpRequestARCInitiation:    "Request ARC Initiation",
	OpRequestARCTermination:   "Request ARC Termination",
	OpTerminateARC:            "Terminate ARC",
	OpCDCMessage:              "CDC Message",
	OpAbort:                   "Abort",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return "Unknown (0x" + hex2(uint8(o)) + ")"
}

// ---- FEATURE ABORT REASONS ----

type AbortReason uint8

const (
	AbortUnrecognizedOp AbortReason = 0
	AbortIncorrectMode  AbortReason = 1
	AbortNoSource       AbortReason = 2
	AbortInvalidOp      AbortReason = 3
	AbortRefused        AbortReason = 4
	AbortUndetermined   AbortReason = 5
)

func (r AbortReason) String() string {
	switch r {
	case AbortUnrecognizedOp:
		return "Unrecognized Opcode"
	case AbortIncorrectMode:
		return "Not in Correct Mode to Respond"
	case AbortNoSource:
		return "Cannot Provide Source"
	case AbortInvalidOp:
		return "Invalid Operand"
	case AbortRefused:
		return "Refused"
	case AbortUndetermined:
		return "Undetermined"
	default:
		return "Unknown (0x" + hex2(uint8(r)) + ")"
	}
}

// ---- POWER STATUS ----

type PowerStatus uint8

const (
	PowerOn        PowerStatus = 0x00
	PowerStandby   PowerStatus = 0x01
	PowerToOn      PowerStatus = 0x02
	PowerToStandby PowerStatus = 0x03
	PowerUnknown   PowerStatus = 0xFF
)

func (p PowerStatus) String() string {
	switch p {
	case PowerOn:
		return "On"
	case PowerStandby:
		return "Standby"
	case PowerToOn:
		return "In transition Standby to On"
	case PowerToStandby:
		return "In transition On to Standby"
	default:
		return "Unknown"
	}
}

// ---- CEC VERSION ----

type Version uint8

const (
	Version1_3A Version = 0x04
	Version1_4  Version = 0x05
	Version2_0  Version = 0x06
)

func (v Version) String() string {
	switch v {
	case 0x01:
		return "1.2"
	case 0x02:
		return "1.2a"
	case 0x03:
		return "1.3"
	case Version1_3A:
		return "1.3a"
	case Version1_4:
		return "1.4"
	case Version2_0:
		return "2.0"
	default:
		return "Unknown (0x" + hex2(uint8(v)) + ")"
	}
}

// ParseVersion maps "1.3a", "1.4" or "2.0" to a Version.
func ParseVersion(s string) (Version, bool) {
	for _, v := range []Version{Version1_3A, Version1_4, Version2_0} {
		if v.String() == s {
			return v, true
		}
	}
	return 0, false
}

// ---- VENDOR ----

// VendorIDNone marks a device that never reported its vendor id.
const VendorIDNone uint32 = 0xFFFFFFFF

// ---- SYSTEM AUDIO / AUDIO STATUS ----

const (
	SysAudioOff uint8 = 0
	SysAudioOn  uint8 = 1
)

// AudioMuteBit is set in the Report Audio Status operand when muted.
const AudioMuteBit uint8 = 0x80

// AudioVolumeMask selects the volume part of the Report Audio Status operand.
const AudioVolumeMask uint8 = 0x7F

// AudioVolumeUnknown is the volume value for "unknown".
const AudioVolumeUnknown uint8 = 0x7F

// ---- TIMER STATUS ----

const (
	TimerOverlapWarning  uint8 = 0x80
	TimerProgrammed      uint8 = 0x10
	TimerProgEnoughSpace uint8 = 0x08
	TimerClearedOK       uint8 = 0x80
)

// ---- TUNER ----

const (
	TunerDisplayDigital  uint8 = 0
	TunerDisplayNone     uint8 = 1
	TunerDisplayAnalogue uint8 = 2
)

const (
	StatusReqOn   uint8 = 1
	StatusReqOff  uint8 = 2
	StatusReqOnce uint8 = 3
)

// Digital broadcast systems used by the tuner catalog.
const (
	DigBcastARIBGen   uint8 = 0x00
	DigBcastATSCGen   uint8 = 0x01
	DigBcastDVBGen    uint8 = 0x02
	DigBcastARIBBS    uint8 = 0x08
	DigBcastARIBCS    uint8 = 0x09
	DigBcastARIBT     uint8 = 0x0A
	DigBcastATSCCable uint8 = 0x10
	DigBcastATSCSat   uint8 = 0x11
	DigBcastATSCT     uint8 = 0x12
	DigBcastDVBC      uint8 = 0x18
	DigBcastDVBS      uint8 = 0x19
	DigBcastDVBS2     uint8 = 0x1A
	DigBcastDVBT      uint8 = 0x1B
)

// Service identification methods.
const (
	ServiceIDByDigID   uint8 = 0
	ServiceIDByChannel uint8 = 1
)

// Analogue broadcast types.
const (
	AnaBcastCable       uint8 = 0
	AnaBcastSatellite   uint8 = 1
	AnaBcastTerrestrial uint8 = 2
)

// AnaBcastSystems is the number of analogue broadcast systems (PAL B/G .. PAL DK).
const AnaBcastSystems = 9

// ---- CDC ----

const (
	CDCOpHECInquireState     uint8 = 0x00
	CDCOpHECReportState      uint8 = 0x01
	CDCOpHECSetStateAdjacent uint8 = 0x02
	CDCOpHECSetState         uint8 = 0x03
	CDCOpHECRequestDeact     uint8 = 0x04
	CDCOpHECNotifyAlive      uint8 = 0x05
	CDCOpHECDiscover         uint8 = 0x06
	CDCOpHPDSetState         uint8 = 0x10
	CDCOpHPDReportState      uint8 = 0x11
)

const (
	HECFuncNotSupported  uint8 = 0
	HostFuncNotSupported uint8 = 0
	EncFuncNotSupported  uint8 = 0
)

// ---- REPORT FEATURES ----

// Device features (byte 1 of the features operand).
const (
	DevFeatRecordTVScreen uint8 = 0x40
	DevFeatSetOSDString   uint8 = 0x20
	DevFeatDeckControl    uint8 = 0x10
	DevFeatSetAudioRate   uint8 = 0x08
	DevFeatSinkARCTx      uint8 = 0x04
	DevFeatSourceARCRx    uint8 = 0x02
)

// All device types (operand of Report Features).
const (
	AllDevTypeTV       uint8 = 0x80
	AllDevTypeRecord   uint8 = 0x40
	AllDevTypeTuner    uint8 = 0x20
	AllDevTypePlayback uint8 = 0x10
	AllDevTypeAudioSys uint8 = 0x08
	AllDevTypeSwitch   uint8 = 0x04
)

func hex2(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
