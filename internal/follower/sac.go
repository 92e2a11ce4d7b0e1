// internal/follower/sac.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// ---- SYSTEM AUDIO CONTROL ----

// Audio format codes.
const (
	fmtLPCM     uint8 = 1
	fmtAC3      uint8 = 2
	fmtDTS      uint8 = 7
	fmtEAC3     uint8 = 10
	fmtDTSHD    uint8 = 11
	fmtMAT      uint8 = 12
	fmtExtended uint8 = 15
)

// Extension type codes (format code 15).
const (
	extHEAAC   uint8 = 4
	extMPEGH3D uint8 = 11
)

// Short audio descriptor format ids in Request Short Audio Descriptor.
const (
	sadByCode      uint8 = 0
	sadByExtension uint8 = 1
)

// sadCatalog is the fixed set of short audio descriptors this device
// decodes, one 24-bit descriptor each.
var sadCatalog = []uint32{
	uint32(fmtLPCM)<<19 | 1<<16 | 0x07<<8 | 0x07,
	uint32(fmtAC3)<<19 | 5<<16 | 0x07<<8 | 0x50,
	uint32(fmtDTS)<<19 | 5<<16 | 0x06<<8 | 0xC0,
	uint32(fmtEAC3)<<19 | 7<<16 | 0x06<<8 | 0x01,
	uint32(fmtDTSHD)<<19 | 7<<16 | 0x7E<<8 | 0x01,
	uint32(fmtMAT)<<19 | 7<<16 | 0x7E<<8 | 0x01,
	uint32(fmtExtended)<<19 | 1<<16 | 0x1E<<8 | uint32(extHEAAC)<<3,
	uint32(fmtExtended)<<19 | 7<<16 | 0x1E<<8 | uint32(extMPEGH3D)<<3,
}

func sadFormat(d uint32) uint8 { return uint8(d>>19) & 0x0F }

func sadExtension(d uint32) uint8 { return uint8(d) >> 3 }

// matchSADs returns the catalog descriptors named by the request bytes,
// in request order, at most four.
func matchSADs(req []byte) []uint32 {
	var out []uint32
	for _, b := range req {
		id, code := b>>6, b&0x3F
		for _, d := range sadCatalog {
			var hit bool
			switch id {
			case sadByCode:
				hit = code != fmtExtended && sadFormat(d) == code
			case sadByExtension:
				hit = sadFormat(d) == fmtExtended && sadExtension(d) == code
			}
			if hit {
				out = append(out, d)
				break
			}
		}
		if len(out) == 4 {
			break
		}
	}
	return out
}

func (e *Engine) registerSAC() {
	e.on(cec.OpSetSystemAudioMode, either, 1, handleSetSystemAudioMode)

	if e.isAudioSystem() && e.opts.SAC {
		e.on(cec.OpSystemAudioModeRequest, directed, 0, handleSystemAudioModeRequest)
		e.on(cec.OpGiveSystemAudioModeStat, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			return cec.SystemAudioModeStatus(e.la, m.Initiator(), e.st.SACActive)
		})
		e.on(cec.OpGiveAudioStatus, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			return cec.ReportAudioStatus(e.la, m.Initiator(), e.st.Mute, e.st.Volume)
		})
		e.on(cec.OpRequestShortAudioDesc, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			descs := matchSADs(m.Operands())
			if len(descs) == 0 {
				return e.abort(m, cec.AbortInvalidOp)
			}
			return cec.ReportShortAudioDesc(e.la, m.Initiator(), descs)
		})
		return
	}

	if e.isTV() {
		e.on(cec.OpReportAudioStatus, directed, 1, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			if mute, vol, err := cec.ParseReportAudioStatus(m); err == nil {
				e.table.Update(m.Initiator(), func(r *topology.Record) {
					r.Mute = mute
					r.Volume = vol
					r.HasSAC = true
				})
			}
			return nil
		})
		e.on(cec.OpSystemAudioModeStatus, directed, 1, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			on, _ := m.Operand(0)
			e.st.SACActive = on == cec.SysAudioOn
			return nil
		})
	}
}

// handleSystemAudioModeRequest: a valid requester address turns system
// audio on, no operand turns it off. The answer is always broadcast.
func handleSystemAudioModeRequest(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
	on := false
	if pa, err := cec.ParsePhysAddrOperand(m); err == nil && pa.Valid() {
		on = true
	}
	if on {
		e.setPower(cec.PowerOn, now)
	}
	e.st.SACActive = on
	return cec.SetSystemAudioMode(e.la, cec.LogAddrBroadcast, on)
}

// handleSetSystemAudioMode records the announced mode. A directed Set
// System Audio Mode to a TV is how a prober asks whether it supports SAC,
// and is ignored so the prober times out.
func handleSetSystemAudioMode(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if !m.IsBroadcast() && e.isTV() {
		return nil
	}
	if e.isAudioSystem() {
		return nil
	}
	on, _ := m.Operand(0)
	e.st.SACActive = on == cec.SysAudioOn
	return nil
}
