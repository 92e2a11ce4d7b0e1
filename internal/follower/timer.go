// internal/follower/timer.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// ---- TIMER PROGRAMMING ----
//
// Timers are never scheduled. Only their date and time spans are kept so
// that an overlapping Set can be flagged.

// Minimum operand counts: 7 bytes of date and time plus the service part.
const (
	analogueTimerOps = 7 + 4
	digitalTimerOps  = 7 + 7
	extTimerOps      = 7 + 3
)

func (e *Engine) registerTimers() {
	e.on(cec.OpSetAnalogueTimer, directed, analogueTimerOps, handleSetTimer)
	e.on(cec.OpSetDigitalTimer, directed, digitalTimerOps, handleSetTimer)
	e.on(cec.OpSetExtTimer, directed, extTimerOps, handleSetTimer)
	e.on(cec.OpClearAnalogueTimer, directed, analogueTimerOps, handleClearTimer)
	e.on(cec.OpClearDigitalTimer, directed, digitalTimerOps, handleClearTimer)
	e.on(cec.OpClearExtTimer, directed, extTimerOps, handleClearTimer)
	e.on(cec.OpSetTimerProgramTitle, directed, 1, func(*Engine, *cec.Msg, time.Time) *cec.Msg {
		return nil
	})
}

// Timers returns the remembered spans.
func (e *Engine) Timers() []cec.TimerSpan {
	return append([]cec.TimerSpan(nil), e.st.timers...)
}

func handleSetTimer(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	span, err := cec.ParseTimerSpan(m)
	if err != nil {
		return e.abort(m, cec.AbortInvalidOp)
	}

	status := cec.TimerProgrammed | cec.TimerProgEnoughSpace
	for _, t := range e.st.timers {
		if t.Overlaps(span) {
			status |= cec.TimerOverlapWarning
			break
		}
	}
	e.st.timers = append(e.st.timers, span)
	return cec.TimerStatus(e.la, m.Initiator(), status)
}

func handleClearTimer(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	span, err := cec.ParseTimerSpan(m)
	if err != nil {
		return e.abort(m, cec.AbortInvalidOp)
	}
	for i, t := range e.st.timers {
		if t.SameSlot(span) {
			e.st.timers = append(e.st.timers[:i], e.st.timers[i+1:]...)
			break
		}
	}
	return cec.TimerClearedStatus(e.la, m.Initiator(), cec.TimerClearedOK)
}
