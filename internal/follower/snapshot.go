// internal/follower/snapshot.go
package follower

import "time"

// Snapshot is a read-only copy of the follower state for the monitor.
type Snapshot struct {
	At           time.Time `json:"at"`
	LogAddr      string    `json:"logical_address"`
	PhysAddr     string    `json:"physical_address"`
	DeviceType   string    `json:"device_type"`
	Power        string    `json:"power"`
	ActiveSource string    `json:"active_source"`
	IsActive     bool      `json:"is_active"`
	ARC          bool      `json:"arc_active"`
	SAC          bool      `json:"sac_active"`
	Volume       uint8     `json:"volume"`
	Mute         bool      `json:"mute"`
	RC           string    `json:"rc_state"`
	Tuner        string    `json:"tuner,omitempty"`
	Timers       int       `json:"timers"`
	Warnings     int       `json:"warnings"`
}

// Snapshot copies the state as seen at now.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		At:           now,
		LogAddr:      e.la.String(),
		PhysAddr:     e.pa.String(),
		DeviceType:   e.opts.Type.String(),
		Power:        e.EffectivePower(now).String(),
		ActiveSource: e.st.ActiveSource.String(),
		IsActive:     e.st.IsActive,
		ARC:          e.st.ARCActive,
		SAC:          e.st.SACActive,
		Volume:       e.st.Volume,
		Mute:         e.st.Mute,
		RC:           e.st.rc.state.String(),
		Timers:       len(e.st.timers),
		Warnings:     e.warn.Count(),
	}
	if e.hasTuner() {
		s.Tuner = e.TunerService()
	}
	if e.st.rc.state != RCNoPress {
		s.RC += " " + e.st.rc.ui.String()
	}
	if !e.st.ActiveSource.Valid() {
		s.ActiveSource = ""
	}
	return s
}
