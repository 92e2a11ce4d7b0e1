// internal/follower/tuner.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// ---- TUNER ----

type tunerEntry struct {
	analogue bool
	dig      cec.DigitalServiceID
	ana      cec.AnalogueService
}

// Digital groups: ARIB, ATSC and DVB, each satellite then terrestrial.
var tunerDigitalSystems = []uint8{
	cec.DigBcastARIBBS, cec.DigBcastARIBT,
	cec.DigBcastATSCSat, cec.DigBcastATSCT,
	cec.DigBcastDVBS, cec.DigBcastDVBT,
}

// Analogue frequencies per broadcast type, in 62.5 kHz units.
var tunerAnalogueFreqs = [3][3]uint16{
	cec.AnaBcastCable:       {2804, 2932, 3060}, // 175.25, 183.25, 191.25 MHz
	cec.AnaBcastSatellite:   {8820, 8948, 9076}, // 551.25, 559.25, 567.25 MHz
	cec.AnaBcastTerrestrial: {7540, 7668, 7796}, // 471.25, 479.25, 487.25 MHz
}

const tunerChannelsPerGroup = 3

// tunerCatalog is every digital entry followed by every analogue entry.
var tunerCatalog = buildTunerCatalog()

func buildTunerCatalog() []tunerEntry {
	var out []tunerEntry
	for g, sys := range tunerDigitalSystems {
		for i := 0; i < tunerChannelsPerGroup; i++ {
			d := cec.DigitalServiceID{
				System:        sys,
				TransportID:   uint16(0x1000*(g+1) + i),
				ServiceID:     uint16(0x0100*(g+1) + i + 1),
				ChannelFormat: 0x02,
				Major:         uint16(g + 1),
				Minor:         uint16(i + 1),
			}
			if !isATSC(sys) {
				d.OriginalNetworkID = uint16(0x0010 + g)
			}
			out = append(out, tunerEntry{dig: d})
		}
	}
	for bt, freqs := range tunerAnalogueFreqs {
		for sys := uint8(0); sys < cec.AnaBcastSystems; sys++ {
			for _, f := range freqs {
				out = append(out, tunerEntry{
					analogue: true,
					ana:      cec.AnalogueService{BcastType: uint8(bt), Freq: f, System: sys},
				})
			}
		}
	}
	return out
}

// TunerCatalogSize is the number of selectable services.
func TunerCatalogSize() int { return len(tunerCatalog) }

func isATSC(sys uint8) bool {
	return sys == cec.DigBcastATSCGen || sys == cec.DigBcastATSCCable ||
		sys == cec.DigBcastATSCSat || sys == cec.DigBcastATSCT
}

// findDigital returns the catalog index of d, matched on digital ids or on
// the channel number depending on d.Method.
func findDigital(d cec.DigitalServiceID) (int, bool) {
	for i, t := range tunerCatalog {
		if t.analogue || t.dig.System != d.System {
			continue
		}
		if d.Method == cec.ServiceIDByChannel {
			if t.dig.Major == d.Major && t.dig.Minor == d.Minor {
				return i, true
			}
			continue
		}
		if t.dig.TransportID == d.TransportID && t.dig.ServiceID == d.ServiceID &&
			(isATSC(d.System) || t.dig.OriginalNetworkID == d.OriginalNetworkID) {
			return i, true
		}
	}
	return 0, false
}

// findAnalogue returns the entry with the same broadcast type and system
// whose frequency is nearest to a.Freq.
func findAnalogue(a cec.AnalogueService) (int, bool) {
	best, bestDiff := -1, 0
	for i, t := range tunerCatalog {
		if !t.analogue || t.ana.BcastType != a.BcastType || t.ana.System != a.System {
			continue
		}
		diff := int(t.ana.Freq) - int(a.Freq)
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best, best >= 0
}

func (e *Engine) registerTuner() {
	e.on(cec.OpGiveTunerDeviceStatus, directed, 1, handleGiveTunerDeviceStatus)
	e.on(cec.OpSelectDigitalService, directed, 7, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		d, ok := cec.ParseSelectDigitalService(m)
		if !ok {
			return e.abort(m, cec.AbortInvalidOp)
		}
		idx, ok := findDigital(d)
		if !ok {
			return e.abort(m, cec.AbortInvalidOp)
		}
		e.st.TunerByChannel = d.Method == cec.ServiceIDByChannel
		return e.tune(m, idx)
	})
	e.on(cec.OpSelectAnalogueService, directed, 4, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		a, ok := cec.ParseSelectAnalogueService(m)
		if !ok {
			return e.abort(m, cec.AbortInvalidOp)
		}
		idx, ok := findAnalogue(a)
		if !ok {
			return e.abort(m, cec.AbortInvalidOp)
		}
		return e.tune(m, idx)
	})
	e.on(cec.OpTunerStepIncrement, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		return e.tune(m, (e.st.TunerIndex+1)%len(tunerCatalog))
	})
	e.on(cec.OpTunerStepDecrement, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		return e.tune(m, (e.st.TunerIndex+len(tunerCatalog)-1)%len(tunerCatalog))
	})
}

// tune moves to idx and, when change reporting is on and the service
// changed, returns a Tuner Device Status for the subscriber.
func (e *Engine) tune(m *cec.Msg, idx int) *cec.Msg {
	changed := idx != e.st.TunerIndex
	e.st.TunerIndex = idx
	if !changed || !e.st.TunerReport {
		return nil
	}
	to := e.st.tunerReportTo
	if to == cec.LogAddrUnregistered {
		to = m.Initiator()
	}
	return e.tunerStatus(to)
}

func (e *Engine) tunerStatus(to cec.LogicalAddress) *cec.Msg {
	t := tunerCatalog[e.st.TunerIndex]
	if t.analogue {
		return cec.TunerDeviceStatusAnalogue(e.la, to, false, t.ana)
	}
	d := t.dig
	if e.st.TunerByChannel {
		d.Method = cec.ServiceIDByChannel
	}
	return cec.TunerDeviceStatusDigital(e.la, to, false, d)
}

// TunerService describes the current service for display.
func (e *Engine) TunerService() string {
	t := tunerCatalog[e.st.TunerIndex]
	if t.analogue {
		return "analogue " + t.ana.String()
	}
	return "digital " + t.dig.String()
}

func handleGiveTunerDeviceStatus(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	req, _ := m.Operand(0)
	switch req {
	case cec.StatusReqOn:
		e.st.TunerReport = true
		e.st.tunerReportTo = m.Initiator()
		return e.tunerStatus(m.Initiator())
	case cec.StatusReqOff:
		e.st.TunerReport = false
		e.st.tunerReportTo = cec.LogAddrUnregistered
		return nil
	case cec.StatusReqOnce:
		return e.tunerStatus(m.Initiator())
	default:
		return e.abort(m, cec.AbortInvalidOp)
	}
}
