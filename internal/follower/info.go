// internal/follower/info.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// ---- SYSTEM INFORMATION ----

func (e *Engine) registerInfo() {
	e.on(cec.OpGivePhysicalAddr, directed, 0, func(e *Engine, _ *cec.Msg, _ time.Time) *cec.Msg {
		return cec.ReportPhysicalAddr(e.la, e.pa, e.opts.Type)
	})
	e.on(cec.OpGetCECVersion, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		return cec.CECVersion(e.la, m.Initiator(), e.opts.Version)
	})
	e.on(cec.OpGiveDeviceVendorID, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		if e.opts.VendorID > 0xFFFFFF {
			return e.abort(m, cec.AbortUnrecognizedOp)
		}
		return cec.DeviceVendorID(e.la, e.opts.VendorID)
	})
	e.on(cec.OpGiveOSDName, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		return cec.SetOSDName(e.la, m.Initiator(), e.opts.OSDName)
	})
	e.on(cec.OpAbort, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		return e.abort(m, cec.AbortRefused)
	})

	// Menu language: the TV owns it, everybody else follows it.
	if e.isTV() {
		e.on(cec.OpGetMenuLanguage, directed, 0, func(e *Engine, _ *cec.Msg, _ time.Time) *cec.Msg {
			return cec.SetMenuLanguage(e.la, e.st.MenuLanguage)
		})
	} else {
		e.on(cec.OpSetMenuLanguage, broadcast, 3, handleSetMenuLanguage)
	}

	if e.opts.Version >= cec.Version2_0 {
		e.on(cec.OpGiveFeatures, directed, 0, func(e *Engine, _ *cec.Msg, _ time.Time) *cec.Msg {
			return e.reportFeatures()
		})
		e.on(cec.OpRequestCurrentLatency, broadcast, 2, handleRequestCurrentLatency)
	}

	// What other devices say about themselves.
	e.on(cec.OpReportPhysicalAddr, broadcast, 3, handleReportPhysicalAddr)
	e.on(cec.OpDeviceVendorID, broadcast, 3, handleDeviceVendorID)
	e.on(cec.OpSetOSDName, directed, 0, handleSetOSDName)
	e.on(cec.OpCECVersion, directed, 1, handleCECVersion)
	e.on(cec.OpReportFeatures, broadcast, 4, handleReportFeatures)

	e.on(cec.OpFeatureAbort, directed, 2, handleFeatureAbort)
}

func (e *Engine) reportFeatures() *cec.Msg {
	var feat uint8
	if e.opts.ARC {
		if e.isTV() {
			feat |= cec.DevFeatSinkARCTx
		} else {
			feat |= cec.DevFeatSourceARCRx
		}
	}
	if e.opts.Type == cec.DevTypeRecord {
		feat |= cec.DevFeatRecordTVScreen
	}
	return cec.ReportFeatures(e.la, e.opts.Version, e.opts.Type.AllDevType(), 0, feat)
}

func handleSetMenuLanguage(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if m.Initiator() != cec.LogAddrTV {
		return nil
	}
	lang, err := cec.ParseMenuLanguage(m)
	if err != nil {
		return nil
	}
	e.st.MenuLanguage = lang
	e.table.Update(m.Initiator(), func(r *topology.Record) { r.MenuLang = lang })
	return nil
}

func handleRequestCurrentLatency(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	pa, err := cec.ParsePhysAddrOperand(m)
	if err != nil || pa != e.pa {
		return nil
	}
	return cec.ReportCurrentLatency(e.la, e.pa, e.st.VideoLatency, e.st.LowLatency, e.st.AudioComp, e.st.AudioDelay)
}

func handleReportPhysicalAddr(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	pa, dt, err := cec.ParseReportPhysicalAddr(m)
	if err != nil {
		return nil
	}
	if pa == e.pa && pa.Valid() {
		e.warn.Warnf("%s reports physical address %s, which is ours", m.Initiator(), pa)
	}
	e.table.Update(m.Initiator(), func(r *topology.Record) {
		r.PhysAddr = pa
		r.PrimaryType = dt
	})
	return nil
}

func handleDeviceVendorID(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if id, err := cec.ParseDeviceVendorID(m); err == nil {
		e.table.Update(m.Initiator(), func(r *topology.Record) { r.VendorID = id })
	}
	return nil
}

func handleSetOSDName(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if name, err := cec.ParseOSDName(m); err == nil {
		e.table.Update(m.Initiator(), func(r *topology.Record) { r.OSDName = name })
	}
	return nil
}

func handleCECVersion(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if v, err := cec.ParseCECVersion(m); err == nil {
		clamped, _ := topology.ClampVersion(v)
		e.table.Update(m.Initiator(), func(r *topology.Record) {
			r.RawVersion = v
			r.Version = clamped
		})
	}
	return nil
}

func handleReportFeatures(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	f, err := cec.ParseReportFeatures(m)
	if err != nil {
		return nil
	}
	e.table.Update(m.Initiator(), func(r *topology.Record) {
		r.AllDevTypes = f.AllDevTypes
		if len(f.DevFeatures) > 0 {
			r.HasARC = f.DevFeatures[0]&(cec.DevFeatSinkARCTx|cec.DevFeatSourceARCRx) != 0
		}
	})
	return nil
}

// ---- INBOUND FEATURE ABORT ----

// handleFeatureAbort applies recognition bookkeeping and warns when one
// device aborts the same opcode abortLimit times within abortWindow.
func handleFeatureAbort(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
	op, reason, err := cec.ParseFeatureAbort(m)
	if err != nil {
		return nil
	}
	if e.aborts != nil {
		e.aborts.NoteFeatureAbort(m)
	}

	key := abortKey{la: m.Initiator(), op: op}
	c := e.st.aborts[key]
	if c == nil || now.Sub(c.first) > abortWindow {
		c = &abortCount{first: now}
		e.st.aborts[key] = c
	}
	c.n++
	if c.n == abortLimit {
		e.warn.Warnf("%s aborted %s %d times within %s (last reason: %s)",
			m.Initiator(), op, c.n, abortWindow, reason)
	}
	return nil
}
