// internal/adapter/adapter.go
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

var (
	// ErrDisconnected means the adapter is gone. Fatal for the current run.
	ErrDisconnected = errors.New("adapter: disconnected")
	// ErrNoCarrier means the HDMI link lost its physical address (no hotplug).
	ErrNoCarrier = errors.New("adapter: no carrier")
	// ErrBusy means the bounded outbound queue is full. Wait and resubmit.
	ErrBusy = errors.New("adapter: busy")
	// ErrUnsupported is returned by setters the adapter cannot honor.
	ErrUnsupported = errors.New("adapter: unsupported")
)

// OutboundQueueSize is the number of transmits an adapter holds before reporting busy.
const OutboundQueueSize = 18

// DefaultReplyTimeout applies when a message wants a reply but carries no Timeout.
const DefaultReplyTimeout = time.Second

// Adapter is the bus primitive the transport and the follower are built on.
//
// Transmit returns nil for every completed bus exchange, successful or not:
// the outcome lives in msg.TxStatus, msg.RxStatus and msg.Response. Errors are
// reserved for ErrDisconnected, ErrNoCarrier, ErrBusy and context cancellation.
type Adapter interface {
	Transmit(ctx context.Context, msg *cec.Msg) error

	// Messages delivers inbound frames in arrival order. Closed on disconnect.
	Messages() <-chan *cec.Msg
	// Events delivers state changes and lost-message notices.
	Events() <-chan Event

	Mode() Mode
	SetMode(Mode) error
	Caps() Caps

	PhysAddr() cec.PhysAddr
	SetPhysAddr(cec.PhysAddr) error
	LogAddrs() cec.LogAddrMask
	SetLogAddrs(cec.LogAddrMask) error

	Close() error
}

// ---- MODES ----

// Mode governs which bus traffic the handle sees.
type Mode uint8

const (
	ModeInitiator Mode = iota
	ModeInitiatorFollower
	ModeExclusiveFollower
	ModeExclusiveFollowerPassthrough
	ModeMonitor
	ModeMonitorAll
)

func (m Mode) String() string {
	switch m {
	case ModeInitiator:
		return "initiator"
	case ModeInitiatorFollower:
		return "initiator+follower"
	case ModeExclusiveFollower:
		return "exclusive-follower"
	case ModeExclusiveFollowerPassthrough:
		return "exclusive-follower-passthrough"
	case ModeMonitor:
		return "monitor"
	case ModeMonitorAll:
		return "monitor-all"
	default:
		return "unknown"
	}
}

// Follows reports whether inbound traffic addressed to us is delivered.
func (m Mode) Follows() bool { return m != ModeInitiator }

// Monitors reports whether all bus traffic is delivered.
func (m Mode) Monitors() bool { return m == ModeMonitor || m == ModeMonitorAll }

// ParseMode maps a config name to a Mode.
func ParseMode(s string) (Mode, bool) {
	for m := ModeInitiator; m <= ModeMonitorAll; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// ---- CAPABILITIES ----

type Caps struct {
	Driver string
	Name   string

	// Bits is a set of Cap* flags.
	Bits uint32

	// AvailableLogAddrs is how many logical addresses the adapter can claim.
	AvailableLogAddrs int
}

const (
	CapPhysAddr    uint32 = 1 << 0
	CapLogAddrs    uint32 = 1 << 1
	CapTransmit    uint32 = 1 << 2
	CapPassthrough uint32 = 1 << 3
	CapMonitorAll  uint32 = 1 << 4
	CapNeedsHPD    uint32 = 1 << 5
)

func (c Caps) Has(bit uint32) bool { return c.Bits&bit != 0 }

// ---- EVENTS ----

type EventKind uint8

const (
	EventStateChange EventKind = iota + 1
	EventLostMessages
)

func (k EventKind) String() string {
	switch k {
	case EventStateChange:
		return "state-change"
	case EventLostMessages:
		return "lost-messages"
	default:
		return "unknown"
	}
}

// Event is an out-of-band adapter notification.
type Event struct {
	Kind EventKind
	At   time.Time

	// StateChange
	PhysAddr cec.PhysAddr
	LogAddrs cec.LogAddrMask

	// LostMessages
	Lost int
}
