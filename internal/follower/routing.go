// internal/follower/routing.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// ---- ROUTING ----

func (e *Engine) registerRouting() {
	e.on(cec.OpActiveSource, broadcast, 2, handleActiveSource)
	e.on(cec.OpInactiveSource, directed, 2, handleInactiveSource)
	e.on(cec.OpSetStreamPath, broadcast, 2, handleSetStreamPath)
	e.on(cec.OpRequestActiveSource, broadcast, 0, func(e *Engine, _ *cec.Msg, _ time.Time) *cec.Msg {
		if !e.st.IsActive {
			return nil
		}
		return cec.ActiveSource(e.la, e.pa)
	})
	e.on(cec.OpRoutingChange, broadcast, 4, handleRoutingChange)
	e.on(cec.OpRoutingInformation, broadcast, 2, handleRoutingInformation)
}

// becomeActive marks this device as active source and returns the announcement.
func (e *Engine) becomeActive() *cec.Msg {
	e.st.IsActive = true
	e.st.ActiveSource = e.pa
	e.st.ActiveSourceLA = e.la
	return cec.ActiveSource(e.la, e.pa)
}

func (e *Engine) recordActive(la cec.LogicalAddress, pa cec.PhysAddr) {
	e.st.ActiveSource = pa
	e.st.ActiveSourceLA = la
	if pa != e.pa {
		e.st.IsActive = false
	}
}

func handleActiveSource(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	pa, err := cec.ParsePhysAddrOperand(m)
	if err != nil {
		return nil
	}
	e.recordActive(m.Initiator(), pa)
	e.table.Update(m.Initiator(), func(r *topology.Record) { r.PhysAddr = pa })
	return nil
}

// handleInactiveSource: only the root device reacts, and only when the
// reported address is the active source it knows about.
func handleInactiveSource(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	pa, err := cec.ParsePhysAddrOperand(m)
	if err != nil {
		return nil
	}
	if e.pa != cec.PhysAddrRoot || pa != e.st.ActiveSource {
		return nil
	}
	return e.becomeActive()
}

func handleSetStreamPath(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
	pa, err := cec.ParsePhysAddrOperand(m)
	if err != nil {
		return nil
	}
	if pa != e.pa {
		e.recordActive(cec.LogAddrUnregistered, pa)
		return nil
	}
	if e.isTV() {
		e.setPower(cec.PowerOn, now)
		return nil
	}
	return e.wake(now)
}

func handleRoutingChange(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	b := m.Operands()
	to := cec.PhysAddr(uint16(b[2])<<8 | uint16(b[3]))
	e.recordActive(cec.LogAddrUnregistered, to)
	return nil
}

func handleRoutingInformation(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	pa, err := cec.ParsePhysAddrOperand(m)
	if err == nil {
		e.recordActive(cec.LogAddrUnregistered, pa)
	}
	return nil
}
