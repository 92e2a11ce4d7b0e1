// internal/cec/messages.go
package cec

import (
	"fmt"
	"time"
)

// Builders for every message the engine and the prober emit, and parsers for
// the replies they consume. Builders never fail: operand lists are bounded here.

// ------------------------------------------------------------
// Requests
// ------------------------------------------------------------

func GetCECVersion(from, to LogicalAddress) *Msg { return build(from, to, OpGetCECVersion) }

func GivePhysicalAddr(from, to LogicalAddress) *Msg { return build(from, to, OpGivePhysicalAddr) }

func GiveDeviceVendorID(from, to LogicalAddress) *Msg {
	return build(from, to, OpGiveDeviceVendorID)
}

func GiveOSDName(from, to LogicalAddress) *Msg { return build(from, to, OpGiveOSDName) }

func GetMenuLanguage(from, to LogicalAddress) *Msg { return build(from, to, OpGetMenuLanguage) }

func GiveDevicePowerStatus(from, to LogicalAddress) *Msg {
	return build(from, to, OpGiveDevicePowerStatus)
}

func GiveFeatures(from, to LogicalAddress) *Msg { return build(from, to, OpGiveFeatures) }

func GiveAudioStatus(from, to LogicalAddress) *Msg { return build(from, to, OpGiveAudioStatus) }

func ImageViewOn(from, to LogicalAddress) *Msg { return build(from, to, OpImageViewOn) }

func TextViewOn(from, to LogicalAddress) *Msg { return build(from, to, OpTextViewOn) }

func Standby(from, to LogicalAddress) *Msg { return build(from, to, OpStandby) }

func RequestActiveSource(from LogicalAddress) *Msg {
	return build(from, LogAddrBroadcast, OpRequestActiveSource)
}

// ------------------------------------------------------------
// System information
// ------------------------------------------------------------

func FeatureAbort(from, to LogicalAddress, op Opcode, reason AbortReason) *Msg {
	return build(from, to, OpFeatureAbort, byte(op), byte(reason))
}

func ReportPhysicalAddr(from LogicalAddress, pa PhysAddr, dt DeviceType) *Msg {
	return build(from, LogAddrBroadcast, OpReportPhysicalAddr, byte(pa>>8), byte(pa), byte(dt))
}

func CECVersion(from, to LogicalAddress, v Version) *Msg {
	return build(from, to, OpCECVersion, byte(v))
}

func DeviceVendorID(from LogicalAddress, id uint32) *Msg {
	return build(from, LogAddrBroadcast, OpDeviceVendorID, byte(id>>16), byte(id>>8), byte(id))
}

// SetOSDName truncates name to MaxOperands bytes.
func SetOSDName(from, to LogicalAddress, name string) *Msg {
	b := []byte(name)
	if len(b) > MaxOperands {
		b = b[:MaxOperands]
	}
	return build(from, to, OpSetOSDName, b...)
}

// SetMenuLanguage takes a three-letter ISO 639-2 code.
func SetMenuLanguage(from LogicalAddress, lang string) *Msg {
	b := []byte(lang + "   ")[:3]
	return build(from, LogAddrBroadcast, OpSetMenuLanguage, b...)
}

func ReportPowerStatus(from, to LogicalAddress, ps PowerStatus) *Msg {
	return build(from, to, OpReportPowerStatus, byte(ps))
}

// ReportFeatures encodes version, all device types, an empty RC profile and
// a single device features byte.
func ReportFeatures(from LogicalAddress, v Version, allDevTypes, rcProfile, devFeatures uint8) *Msg {
	return build(from, LogAddrBroadcast, OpReportFeatures,
		byte(v), allDevTypes, rcProfile&0x7F, devFeatures&0x7F)
}

func RequestCurrentLatency(from LogicalAddress, pa PhysAddr) *Msg {
	return build(from, LogAddrBroadcast, OpRequestCurrentLatency, byte(pa>>8), byte(pa))
}

// ReportCurrentLatency carries the audio output delay only when audioComp is 3.
func ReportCurrentLatency(from LogicalAddress, pa PhysAddr, videoLatency uint8, lowLatency bool, audioComp, audioDelay uint8) *Msg {
	ops := []byte{byte(pa >> 8), byte(pa), videoLatency, boolByte(lowLatency)<<2 | audioComp&3}
	if audioComp&3 == 3 {
		ops = append(ops, audioDelay)
	}
	return build(from, LogAddrBroadcast, OpReportCurrentLatency, ops...)
}

// ------------------------------------------------------------
// Routing
// ------------------------------------------------------------

func ActiveSource(from LogicalAddress, pa PhysAddr) *Msg {
	return build(from, LogAddrBroadcast, OpActiveSource, byte(pa>>8), byte(pa))
}

func InactiveSource(from, to LogicalAddress, pa PhysAddr) *Msg {
	return build(from, to, OpInactiveSource, byte(pa>>8), byte(pa))
}

func SetStreamPath(from LogicalAddress, pa PhysAddr) *Msg {
	return build(from, LogAddrBroadcast, OpSetStreamPath, byte(pa>>8), byte(pa))
}

// ------------------------------------------------------------
// Remote control
// ------------------------------------------------------------

func UserControlPressed(from, to LogicalAddress, ui UICommand) *Msg {
	return build(from, to, OpUserControlPressed, byte(ui))
}

func UserControlReleased(from, to LogicalAddress) *Msg {
	return build(from, to, OpUserControlReleased)
}

// ------------------------------------------------------------
// Audio / system audio control / ARC
// ------------------------------------------------------------

// ReportAudioStatus packs mute into bit 7 and volume into bits 6-0.
func ReportAudioStatus(from, to LogicalAddress, mute bool, volume uint8) *Msg {
	b := volume & AudioVolumeMask
	if mute {
		b |= AudioMuteBit
	}
	return build(from, to, OpReportAudioStatus, b)
}

func SetSystemAudioMode(from, to LogicalAddress, on bool) *Msg {
	return build(from, to, OpSetSystemAudioMode, boolByte(on))
}

func SystemAudioModeStatus(from, to LogicalAddress, on bool) *Msg {
	return build(from, to, OpSystemAudioModeStatus, boolByte(on))
}

// SystemAudioModeRequest with pa == PhysAddrInvalid sends no operand (turn off).
func SystemAudioModeRequest(from, to LogicalAddress, pa PhysAddr) *Msg {
	if pa == PhysAddrInvalid {
		return build(from, to, OpSystemAudioModeRequest)
	}
	return build(from, to, OpSystemAudioModeRequest, byte(pa>>8), byte(pa))
}

func RequestShortAudioDesc(from, to LogicalAddress, formatIDs, codes []uint8) *Msg {
	var ops []byte
	for i := 0; i < len(formatIDs) && i < len(codes) && i < 4; i++ {
		ops = append(ops, formatIDs[i]<<6|codes[i]&0x3F)
	}
	return build(from, to, OpRequestShortAudioDesc, ops...)
}

// ReportShortAudioDesc carries up to four 3-byte descriptors.
func ReportShortAudioDesc(from, to LogicalAddress, descs []uint32) *Msg {
	var ops []byte
	for i := 0; i < len(descs) && i < 4; i++ {
		d := descs[i]
		ops = append(ops, byte(d>>16), byte(d>>8), byte(d))
	}
	return build(from, to, OpReportShortAudioDesc, ops...)
}

func InitiateARC(from, to LogicalAddress) *Msg { return build(from, to, OpInitiateARC) }

func TerminateARC(from, to LogicalAddress) *Msg { return build(from, to, OpTerminateARC) }

func RequestARCInitiation(from, to LogicalAddress) *Msg {
	return build(from, to, OpRequestARCInitiation)
}

func RequestARCTermination(from, to LogicalAddress) *Msg {
	return build(from, to, OpRequestARCTermination)
}

func ReportARCInitiated(from, to LogicalAddress) *Msg {
	return build(from, to, OpReportARCInitiated)
}

func ReportARCTerminated(from, to LogicalAddress) *Msg {
	return build(from, to, OpReportARCTerminated)
}

// ------------------------------------------------------------
// Tuner
// ------------------------------------------------------------

// DigitalServiceID is the 7-byte digital service identification operand.
type DigitalServiceID struct {
	Method uint8 // ServiceIDByDigID or ServiceIDByChannel
	System uint8 // DigBcast*

	// By digital ids (ARIB/DVB use all three; ATSC uses the first two).
	TransportID       uint16
	ServiceID         uint16
	OriginalNetworkID uint16

	// By channel.
	ChannelFormat uint8
	Major         uint16
	Minor         uint16
}

func (d DigitalServiceID) bytes() []byte {
	b := make([]byte, 7)
	b[0] = d.Method<<7 | d.System&0x7F
	if d.Method == ServiceIDByChannel {
		v := uint16(d.ChannelFormat&0x3F)<<10 | d.Major&0x3FF
		b[1], b[2] = byte(v>>8), byte(v)
		b[3], b[4] = byte(d.Minor>>8), byte(d.Minor)
		return b
	}
	b[1], b[2] = byte(d.TransportID>>8), byte(d.TransportID)
	b[3], b[4] = byte(d.ServiceID>>8), byte(d.ServiceID)
	b[5], b[6] = byte(d.OriginalNetworkID>>8), byte(d.OriginalNetworkID)
	return b
}

func parseDigitalServiceID(b []byte) (DigitalServiceID, bool) {
	if len(b) < 7 {
		return DigitalServiceID{}, false
	}
	d := DigitalServiceID{Method: b[0] >> 7, System: b[0] & 0x7F}
	if d.Method == ServiceIDByChannel {
		v := uint16(b[1])<<8 | uint16(b[2])
		d.ChannelFormat = uint8(v >> 10)
		d.Major = v & 0x3FF
		d.Minor = uint16(b[3])<<8 | uint16(b[4])
		return d, true
	}
	d.TransportID = uint16(b[1])<<8 | uint16(b[2])
	d.ServiceID = uint16(b[3])<<8 | uint16(b[4])
	d.OriginalNetworkID = uint16(b[5])<<8 | uint16(b[6])
	return d, true
}

// AnalogueService is the analogue service operand triple.
type AnalogueService struct {
	BcastType uint8
	Freq      uint16 // units of 62.5 kHz
	System    uint8
}

func (d DigitalServiceID) String() string {
	if d.Method == ServiceIDByChannel {
		return fmt.Sprintf("system 0x%02x channel %d.%d", d.System, d.Major, d.Minor)
	}
	return fmt.Sprintf("system 0x%02x tsid 0x%04x sid 0x%04x onid 0x%04x",
		d.System, d.TransportID, d.ServiceID, d.OriginalNetworkID)
}

func (a AnalogueService) String() string {
	return fmt.Sprintf("type %d %.2f MHz system %d", a.BcastType, float64(a.Freq)/16, a.System)
}

func SelectDigitalService(from, to LogicalAddress, d DigitalServiceID) *Msg {
	return build(from, to, OpSelectDigitalService, d.bytes()...)
}

func SelectAnalogueService(from, to LogicalAddress, a AnalogueService) *Msg {
	return build(from, to, OpSelectAnalogueService, a.BcastType, byte(a.Freq>>8), byte(a.Freq), a.System)
}

func GiveTunerDeviceStatus(from, to LogicalAddress, req uint8) *Msg {
	return build(from, to, OpGiveTunerDeviceStatus, req)
}

func TunerStepIncrement(from, to LogicalAddress) *Msg { return build(from, to, OpTunerStepIncrement) }

func TunerStepDecrement(from, to LogicalAddress) *Msg { return build(from, to, OpTunerStepDecrement) }

func TunerDeviceStatusDigital(from, to LogicalAddress, recording bool, d DigitalServiceID) *Msg {
	ops := append([]byte{boolByte(recording)<<7 | TunerDisplayDigital}, d.bytes()...)
	return build(from, to, OpTunerDeviceStatus, ops...)
}

func TunerDeviceStatusAnalogue(from, to LogicalAddress, recording bool, a AnalogueService) *Msg {
	return build(from, to, OpTunerDeviceStatus,
		boolByte(recording)<<7|TunerDisplayAnalogue, a.BcastType, byte(a.Freq>>8), byte(a.Freq), a.System)
}

// ParseSelectDigitalService decodes the operand of Select Digital Service.
func ParseSelectDigitalService(m *Msg) (DigitalServiceID, bool) {
	return parseDigitalServiceID(m.Operands())
}

// ParseSelectAnalogueService decodes the operand of Select Analogue Service.
func ParseSelectAnalogueService(m *Msg) (AnalogueService, bool) {
	b := m.Operands()
	if len(b) < 4 {
		return AnalogueService{}, false
	}
	return AnalogueService{BcastType: b[0], Freq: uint16(b[1])<<8 | uint16(b[2]), System: b[3]}, true
}

// ------------------------------------------------------------
// Timers
// ------------------------------------------------------------

// TimerSpan is the date and time part shared by all Set/Clear timer messages.
type TimerSpan struct {
	Day, Month      uint8
	StartHour       uint8
	StartMin        uint8
	DurationHours   uint8
	DurationMinutes uint8
	RecordingSeq    uint8
}

// Start returns minutes since midnight.
func (t TimerSpan) Start() int { return int(t.StartHour)*60 + int(t.StartMin) }

// End returns the end in minutes since midnight of the start day.
func (t TimerSpan) End() int {
	return t.Start() + int(t.DurationHours)*60 + int(t.DurationMinutes)
}

// timerRefYear anchors day and month; a leap year keeps 29 February valid.
const timerRefYear = 2024

// interval returns the span as absolute times within timerRefYear.
func (t TimerSpan) interval() (time.Time, time.Time) {
	start := time.Date(timerRefYear, time.Month(t.Month), int(t.Day), 0, t.Start(), 0, 0, time.UTC)
	return start, start.Add(time.Duration(t.End()-t.Start()) * time.Minute)
}

// Overlaps reports whether two spans intersect in time. Spans may run past
// midnight, and a span late in December meets one early in January.
func (t TimerSpan) Overlaps(o TimerSpan) bool {
	ts, te := t.interval()
	ps, pe := o.interval()
	// timers carry no year: take the closer of the two readings
	const halfYear = 183 * 24 * time.Hour
	switch {
	case ps.Sub(ts) > halfYear:
		ts, te = ts.AddDate(1, 0, 0), te.AddDate(1, 0, 0)
	case ts.Sub(ps) > halfYear:
		ps, pe = ps.AddDate(1, 0, 0), pe.AddDate(1, 0, 0)
	}
	return ts.Before(pe) && ps.Before(te)
}

// SameSlot compares the identifying fields used by Clear.
func (t TimerSpan) SameSlot(o TimerSpan) bool {
	return t.Day == o.Day && t.Month == o.Month && t.Start() == o.Start() && t.End() == o.End()
}

func (t TimerSpan) bytes() []byte {
	return []byte{t.Day, t.Month, toBCD(t.StartHour), toBCD(t.StartMin),
		toBCD(t.DurationHours), toBCD(t.DurationMinutes), t.RecordingSeq}
}

// ParseTimerSpan decodes the leading 7 operands of any Set/Clear timer message.
func ParseTimerSpan(m *Msg) (TimerSpan, error) {
	b := m.Operands()
	if len(b) < 7 {
		return TimerSpan{}, fmt.Errorf("%w: timer needs 7 operands, got %d", ErrShortFrame, len(b))
	}
	t := TimerSpan{
		Day: b[0], Month: b[1],
		StartHour: fromBCD(b[2]), StartMin: fromBCD(b[3]),
		DurationHours: fromBCD(b[4]), DurationMinutes: fromBCD(b[5]),
		RecordingSeq: b[6],
	}
	if t.Day < 1 || t.Day > 31 || t.Month < 1 || t.Month > 12 || t.StartHour > 23 || t.StartMin > 59 || t.DurationMinutes > 59 {
		return t, fmt.Errorf("cec: timer span out of range: %+v", t)
	}
	return t, nil
}

func SetAnalogueTimer(from, to LogicalAddress, t TimerSpan, a AnalogueService) *Msg {
	ops := append(t.bytes(), a.BcastType, byte(a.Freq>>8), byte(a.Freq), a.System)
	return build(from, to, OpSetAnalogueTimer, ops...)
}

func ClearAnalogueTimer(from, to LogicalAddress, t TimerSpan, a AnalogueService) *Msg {
	ops := append(t.bytes(), a.BcastType, byte(a.Freq>>8), byte(a.Freq), a.System)
	return build(from, to, OpClearAnalogueTimer, ops...)
}

func SetDigitalTimer(from, to LogicalAddress, t TimerSpan, d DigitalServiceID) *Msg {
	return build(from, to, OpSetDigitalTimer, append(t.bytes(), d.bytes()...)...)
}

func ClearDigitalTimer(from, to LogicalAddress, t TimerSpan, d DigitalServiceID) *Msg {
	return build(from, to, OpClearDigitalTimer, append(t.bytes(), d.bytes()...)...)
}

// SetExtTimer addresses an external plug (source 4) or physical address (source 5).
func SetExtTimer(from, to LogicalAddress, t TimerSpan, source uint8, plugOrPA uint16) *Msg {
	return build(from, to, OpSetExtTimer, append(t.bytes(), source, byte(plugOrPA>>8), byte(plugOrPA))...)
}

func ClearExtTimer(from, to LogicalAddress, t TimerSpan, source uint8, plugOrPA uint16) *Msg {
	return build(from, to, OpClearExtTimer, append(t.bytes(), source, byte(plugOrPA>>8), byte(plugOrPA))...)
}

func TimerStatus(from, to LogicalAddress, status uint8) *Msg {
	return build(from, to, OpTimerStatus, status)
}

func TimerClearedStatus(from, to LogicalAddress, status uint8) *Msg {
	return build(from, to, OpTimerClearedStatus, status)
}

// ------------------------------------------------------------
// CDC
// ------------------------------------------------------------

func CDCHECDiscover(from LogicalAddress, pa PhysAddr) *Msg {
	return build(from, LogAddrBroadcast, OpCDCMessage, byte(pa>>8), byte(pa), CDCOpHECDiscover)
}

// CDCHECReportState reports the HEC state of pa towards target.
func CDCHECReportState(from LogicalAddress, pa, target PhysAddr, hec, host, enc, errCode uint8) *Msg {
	state := hec&3<<6 | host&3<<4 | enc&3<<2 | errCode&3
	return build(from, LogAddrBroadcast, OpCDCMessage,
		byte(pa>>8), byte(pa), CDCOpHECReportState, byte(target>>8), byte(target), state)
}

// CDCOpcode returns the initiator physical address and CDC opcode of a CDC message.
func CDCOpcode(m *Msg) (PhysAddr, uint8, bool) {
	b := m.Operands()
	if len(b) < 3 {
		return PhysAddrInvalid, 0, false
	}
	return PhysAddr(uint16(b[0])<<8 | uint16(b[1])), b[2], true
}

// ------------------------------------------------------------
// Parsers
// ------------------------------------------------------------

func expect(m *Msg, op Opcode, n int) ([]byte, error) {
	got, ok := m.Opcode()
	if !ok || got != op {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongOpcode, op, got)
	}
	b := m.Operands()
	if len(b) < n {
		return nil, fmt.Errorf("%w: %s needs %d operands, got %d", ErrShortFrame, op, n, len(b))
	}
	return b, nil
}

// ParseFeatureAbort returns the aborted opcode and the reason.
func ParseFeatureAbort(m *Msg) (Opcode, AbortReason, error) {
	b, err := expect(m, OpFeatureAbort, 2)
	if err != nil {
		return 0, 0, err
	}
	return Opcode(b[0]), AbortReason(b[1]), nil
}

// ParsePhysAddrOperand reads a physical address from the first two operands.
// Used by Active Source, Inactive Source, Set Stream Path and Routing messages.
func ParsePhysAddrOperand(m *Msg) (PhysAddr, error) {
	b := m.Operands()
	if len(b) < 2 {
		return PhysAddrInvalid, fmt.Errorf("%w: physical address operand", ErrShortFrame)
	}
	return PhysAddr(uint16(b[0])<<8 | uint16(b[1])), nil
}

func ParseReportPhysicalAddr(m *Msg) (PhysAddr, DeviceType, error) {
	b, err := expect(m, OpReportPhysicalAddr, 3)
	if err != nil {
		return PhysAddrInvalid, DevTypeUnknown, err
	}
	return PhysAddr(uint16(b[0])<<8 | uint16(b[1])), DeviceType(b[2]), nil
}

func ParseCECVersion(m *Msg) (Version, error) {
	b, err := expect(m, OpCECVersion, 1)
	if err != nil {
		return 0, err
	}
	return Version(b[0]), nil
}

func ParseDeviceVendorID(m *Msg) (uint32, error) {
	b, err := expect(m, OpDeviceVendorID, 3)
	if err != nil {
		return VendorIDNone, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func ParseOSDName(m *Msg) (string, error) {
	b, err := expect(m, OpSetOSDName, 0)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ParseMenuLanguage(m *Msg) (string, error) {
	b, err := expect(m, OpSetMenuLanguage, 3)
	if err != nil {
		return "", err
	}
	return string(b[:3]), nil
}

func ParseReportPowerStatus(m *Msg) (PowerStatus, error) {
	b, err := expect(m, OpReportPowerStatus, 1)
	if err != nil {
		return PowerUnknown, err
	}
	return PowerStatus(b[0]), nil
}

// Features is the decoded Report Features operand.
type Features struct {
	Version     Version
	AllDevTypes uint8
	RCProfile   []byte
	DevFeatures []byte
}

// ParseReportFeatures walks the two variable-length byte chains (bit 7 = more).
func ParseReportFeatures(m *Msg) (Features, error) {
	b, err := expect(m, OpReportFeatures, 4)
	if err != nil {
		return Features{}, err
	}
	f := Features{Version: Version(b[0]), AllDevTypes: b[1]}
	i := 2
	for ; i < len(b); i++ {
		f.RCProfile = append(f.RCProfile, b[i])
		if b[i]&0x80 == 0 {
			i++
			break
		}
	}
	for ; i < len(b); i++ {
		f.DevFeatures = append(f.DevFeatures, b[i])
		if b[i]&0x80 == 0 {
			break
		}
	}
	return f, nil
}

// ParseReportAudioStatus returns mute and volume.
func ParseReportAudioStatus(m *Msg) (bool, uint8, error) {
	b, err := expect(m, OpReportAudioStatus, 1)
	if err != nil {
		return false, 0, err
	}
	return b[0]&AudioMuteBit != 0, b[0] & AudioVolumeMask, nil
}

// ------------------------------------------------------------
// helpers
// ------------------------------------------------------------

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func toBCD(v uint8) byte { return (v/10)<<4 | v%10 }

func fromBCD(b byte) uint8 { return (b>>4)*10 + b&0x0F }
