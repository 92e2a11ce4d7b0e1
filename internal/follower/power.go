// internal/follower/power.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// ---- POWER ----

func (e *Engine) registerPower() {
	e.on(cec.OpGiveDevicePowerStatus, directed, 0, func(e *Engine, m *cec.Msg, now time.Time) *cec.Msg {
		return cec.ReportPowerStatus(e.la, m.Initiator(), e.EffectivePower(now))
	})
	e.on(cec.OpStandby, either, 0, func(e *Engine, _ *cec.Msg, now time.Time) *cec.Msg {
		e.forceStandby(now)
		return nil
	})
	e.on(cec.OpReportPowerStatus, directed, 1, handleReportPowerStatus)

	if e.isTV() {
		wake := func(e *Engine, _ *cec.Msg, now time.Time) *cec.Msg {
			return e.wake(now)
		}
		e.on(cec.OpImageViewOn, directed, 0, wake)
		e.on(cec.OpTextViewOn, directed, 0, wake)
	}
}

// EffectivePower is the status reported at now under the three-window model.
func (e *Engine) EffectivePower(now time.Time) cec.PowerStatus {
	s := &e.st
	if s.PowerChanged.IsZero() {
		return s.Power
	}
	d := now.Sub(s.PowerChanged)
	switch {
	case d < powerOldWindow:
		return s.OldPower
	case d < powerTransWindow:
		if s.Power == cec.PowerOn {
			return cec.PowerToOn
		}
		return cec.PowerToStandby
	default:
		return s.Power
	}
}

// setPower starts a windowed transition towards ps.
func (e *Engine) setPower(ps cec.PowerStatus, now time.Time) bool {
	if e.st.Power == ps {
		return false
	}
	e.st.OldPower = e.EffectivePower(now)
	e.st.Power = ps
	e.st.PowerChanged = now
	e.log.Info().Str("from", e.st.OldPower.String()).Str("to", ps.String()).Msg("power transition")
	return true
}

// forceStandby is the Standby message: stable STANDBY at once, never a toggle.
func (e *Engine) forceStandby(now time.Time) {
	if e.st.Power != cec.PowerStandby || !e.st.PowerChanged.IsZero() {
		e.log.Info().Str("from", e.EffectivePower(now).String()).Msg("standby")
	}
	e.st.Power = cec.PowerStandby
	e.st.OldPower = cec.PowerStandby
	e.st.PowerChanged = time.Time{}
	e.st.IsActive = false
	e.st.ARCActive = false
	e.endPress(now, false)
}

// wake leaves standby. Non-TV devices announce themselves as active source.
func (e *Engine) wake(now time.Time) *cec.Msg {
	e.setPower(cec.PowerOn, now)
	if e.isTV() {
		return nil
	}
	return e.becomeActive()
}

// settlePower ends a transition whose last window has elapsed.
func (e *Engine) settlePower(now time.Time) {
	s := &e.st
	if s.PowerChanged.IsZero() || now.Sub(s.PowerChanged) < powerTransWindow {
		return
	}
	s.OldPower = s.Power
	s.PowerChanged = time.Time{}
}

func handleReportPowerStatus(e *Engine, m *cec.Msg, _ time.Time) *cec.Msg {
	if ps, err := cec.ParseReportPowerStatus(m); err == nil {
		e.table.Update(m.Initiator(), func(r *topology.Record) {
			r.Power = ps
			r.HasPowerStatus = true
		})
	}
	return nil
}
