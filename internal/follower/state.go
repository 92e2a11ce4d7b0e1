// internal/follower/state.go
package follower

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// Protocol timing. Fixed by the CEC bus, not configurable.
const (
	// Power status: old value for powerOldWindow, transitional code until
	// powerTransWindow, then the new stable value.
	powerOldWindow   = 1 * time.Second
	powerTransWindow = 8 * time.Second

	// RC passthrough.
	rcHoldWindow  = 450 * time.Millisecond
	rcGapWarn     = 500 * time.Millisecond
	rcMinInterval = 200 * time.Millisecond
	rcMaxInterval = 500 * time.Millisecond

	// Inbound Feature Abort throttling.
	abortWindow = 1 * time.Second
	abortLimit  = 3
)

// RCState is the User Control Pressed state.
type RCState uint8

const (
	RCNoPress RCState = iota
	RCPress
	RCPressHold
)

func (s RCState) String() string {
	switch s {
	case RCPress:
		return "press"
	case RCPressHold:
		return "press-hold"
	default:
		return "no-press"
	}
}

type rcState struct {
	state RCState
	ui    cec.UICommand
	last  time.Time

	holdCount int
	holdSum   time.Duration
}

type abortKey struct {
	la cec.LogicalAddress
	op cec.Opcode
}

type abortCount struct {
	first time.Time
	n     int
}

// State is everything the emulated device remembers.
// Only the dispatch path touches it.
type State struct {
	Power        cec.PowerStatus
	OldPower     cec.PowerStatus
	PowerChanged time.Time // zero when stable

	MenuLanguage string

	// ActiveSource is the last announced active source, or PhysAddrInvalid.
	ActiveSource   cec.PhysAddr
	ActiveSourceLA cec.LogicalAddress
	IsActive       bool

	VideoLatency uint8
	LowLatency   bool
	AudioComp    uint8
	AudioDelay   uint8

	ARCActive bool
	SACActive bool
	Volume    uint8
	Mute      bool

	rc rcState

	TunerIndex     int
	TunerByChannel bool
	TunerReport    bool
	tunerReportTo  cec.LogicalAddress

	timers []cec.TimerSpan

	aborts map[abortKey]*abortCount
}

func newState(opts Options) State {
	return State{
		Power:          cec.PowerOn,
		OldPower:       cec.PowerOn,
		MenuLanguage:   opts.MenuLanguage,
		ActiveSource:   cec.PhysAddrInvalid,
		ActiveSourceLA: cec.LogAddrUnregistered,
		VideoLatency:   1,
		Volume:         50,
		TunerReport:    opts.TunerReportChanges,
		tunerReportTo:  cec.LogAddrUnregistered,
		aborts:         make(map[abortKey]*abortCount),
	}
}
