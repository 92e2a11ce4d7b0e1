// internal/follower/rc.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// ---- RC PASSTHROUGH ----

func (e *Engine) registerRC() {
	e.on(cec.OpUserControlPressed, directed, 1, handleUserControlPressed)
	e.on(cec.OpUserControlReleased, directed, 0, func(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
		if e.st.rc.state == RCNoPress {
			e.warn.Warnf("%s sent User Control Released without a press", m.Initiator())
			return nil
		}
		e.endPress(now, true)
		return nil
	})
}

// PressState returns the current RC state and command.
func (e *Engine) PressState() (RCState, cec.UICommand) { return e.st.rc.state, e.st.rc.ui }

// handleUserControlPressed classifies the press as a hold continuation
// (same command within rcHoldWindow) or a new press, then applies it.
func handleUserControlPressed(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
	op0, _ := m.Operand(0)
	ui := cec.UICommand(op0)
	rc := &e.st.rc

	initial := true
	if rc.state != RCNoPress && ui == rc.ui && now.Sub(rc.last) <= rcHoldWindow {
		rc.state = RCPressHold
		rc.holdCount++
		rc.holdSum += now.Sub(rc.last)
		rc.last = now
		initial = false
	} else {
		if rc.state != RCNoPress {
			if gap := now.Sub(rc.last); gap > rcGapWarn {
				e.warn.Warnf("press of %s ended implicitly after %dms without User Control Released",
					rc.ui, gap.Milliseconds())
			}
			e.endPress(now, true)
		}
		*rc = rcState{state: RCPress, ui: ui, last: now}
	}

	return e.applyUI(m, ui, initial, now)
}

// endPress finishes a press or hold. A hold's mean repeat interval must
// lie within [rcMinInterval, rcMaxInterval].
func (e *Engine) endPress(now time.Time, check bool) {
	rc := &e.st.rc
	if rc.state == RCNoPress {
		return
	}
	if check && rc.state == RCPressHold && rc.holdCount > 0 {
		mean := rc.holdSum / time.Duration(rc.holdCount)
		if mean < rcMinInterval || mean > rcMaxInterval {
			e.warn.Warnf("hold of %s: mean repeat interval %dms outside [%d, %d]ms",
				rc.ui, mean.Milliseconds(), rcMinInterval.Milliseconds(), rcMaxInterval.Milliseconds())
		}
	}
	e.log.Debug().Str("ui", rc.ui.String()).Str("state", rc.state.String()).Int("repeats", rc.holdCount).Msg("press ended")
	*rc = rcState{}
}

// expirePress force-ends a press with no follow-up within rcHoldWindow.
func (e *Engine) expirePress(now time.Time) {
	if e.st.rc.state != RCNoPress && now.Sub(e.st.rc.last) > rcHoldWindow {
		e.endPress(now, true)
	}
}

// applyUI performs the side effect of a UI command.
func (e *Engine) applyUI(m *cec.Msg, ui cec.UICommand, initial bool, now time.Time) *cec.Msg {
	s := &e.st
	switch ui {
	case cec.UIVolumeUp:
		if s.Volume < 100 {
			s.Volume++
		}
		s.Mute = false
	case cec.UIVolumeDown:
		if s.Volume > 0 {
			s.Volume--
		}
		s.Mute = false
	case cec.UIMute:
		if initial {
			s.Mute = !s.Mute
		}
	case cec.UIMuteFunction:
		s.Mute = true
	case cec.UIRestoreVolumeFunction:
		s.Mute = false

	case cec.UIPower, cec.UIPowerToggleFunction:
		if !initial {
			return nil
		}
		// toggle from the target state, not the reported one
		if e.st.Power == cec.PowerOn {
			e.setPower(cec.PowerStandby, now)
			s.IsActive = false
			return nil
		}
		return e.wake(now)
	case cec.UIPowerOffFunction:
		if initial {
			e.setPower(cec.PowerStandby, now)
			s.IsActive = false
		}
		return nil
	case cec.UIPowerOnFunction:
		if initial {
			return e.wake(now)
		}
		return nil

	default:
		return nil
	}

	return cec.ReportAudioStatus(e.la, m.Initiator(), s.Mute, s.Volume)
}
