// internal/follower/arc.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// ---- AUDIO RETURN CHANNEL ----
//
// The TV transmits ARC and sits directly upstream of the audio system.
// Every ARC message is checked against that relationship.

func (e *Engine) registerARC() {
	if e.isTV() {
		e.on(cec.OpInitiateARC, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			if !e.arcPeerOK(m) {
				return e.abort(m, cec.AbortRefused)
			}
			e.st.ARCActive = true
			return cec.ReportARCInitiated(e.la, m.Initiator())
		})
		e.on(cec.OpTerminateARC, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
			if !e.arcPeerOK(m) {
				return e.abort(m, cec.AbortRefused)
			}
			e.st.ARCActive = false
			return cec.ReportARCTerminated(e.la, m.Initiator())
		})
		return
	}

	e.on(cec.OpRequestARCInitiation, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		if !e.arcPeerOK(m) {
			return e.abort(m, cec.AbortRefused)
		}
		return cec.InitiateARC(e.la, m.Initiator())
	})
	e.on(cec.OpRequestARCTermination, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		if !e.arcPeerOK(m) {
			return e.abort(m, cec.AbortRefused)
		}
		return cec.TerminateARC(e.la, m.Initiator())
	})
	e.on(cec.OpReportARCInitiated, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		if e.arcPeerOK(m) {
			e.st.ARCActive = true
		}
		return nil
	})
	e.on(cec.OpReportARCTerminated, directed, 0, func(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
		if e.arcPeerOK(m) {
			e.st.ARCActive = false
		}
		return nil
	})
}

// arcPeerOK reports whether the sender of m is on the other end of our
// HDMI link in the direction ARC flows.
func (e *Engine) arcPeerOK(m *cec.Msg) bool {
	peer := e.table.PhysAddrOf(m.Initiator())
	if !cec.Adjacent(e.pa, peer) {
		return false
	}
	if e.isTV() {
		return cec.UpstreamFrom(e.pa, peer)
	}
	return m.Initiator() == cec.LogAddrTV && cec.UpstreamFrom(peer, e.pa)
}
