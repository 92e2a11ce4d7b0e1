// internal/follower/cdc.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// ---- CAPABILITY DISCOVERY AND CONTROL ----

func (e *Engine) registerCDC() {
	e.on(cec.OpCDCMessage, broadcast, 3, handleCDC)
}

// handleCDC answers HEC Discover with a report that every HEC function is
// unsupported. Other CDC messages are dropped.
func handleCDC(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	from, op, ok := cec.CDCOpcode(m)
	if !ok || op != cec.CDCOpHECDiscover {
		return nil
	}
	return cec.CDCHECReportState(e.la, e.pa, from,
		cec.HECFuncNotSupported, cec.HostFuncNotSupported, cec.EncFuncNotSupported, 0)
}
