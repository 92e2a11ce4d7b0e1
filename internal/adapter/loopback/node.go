// internal/adapter/loopback/node.go
package loopback

import (
	"context"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
)

// Node is one adapter handle on a Bus. It implements adapter.Adapter.
// Node state is guarded by the owning bus mutex.
type Node struct {
	bus  *Bus
	name string

	pa   cec.PhysAddr
	las  cec.LogAddrMask
	mode adapter.Mode

	messages chan *cec.Msg
	events   chan adapter.Event
	lost     int
	busy     int
	closed   bool

	// held back while the event queue is full
	pendingLost  int
	pendingState *adapter.Event
}

var _ adapter.Adapter = (*Node)(nil)

func (n *Node) Name() string { return n.name }

// Transmit puts msg on the bus and, when msg.WantReply is set, waits for the
// reply or msg.Timeout.
func (n *Node) Transmit(ctx context.Context, msg *cec.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := n.bus
	b.mu.Lock()
	if n.closed {
		b.mu.Unlock()
		return adapter.ErrDisconnected
	}
	if n.busy > 0 {
		n.busy--
		b.mu.Unlock()
		return adapter.ErrBusy
	}
	if !b.carrier {
		op, _ := msg.Opcode()
		if !b.RestoreOnWake || op != cec.OpImageViewOn {
			b.mu.Unlock()
			return adapter.ErrNoCarrier
		}
		b.restoreLocked()
	}

	b.transmitLocked(n, msg)

	var w *waiter
	if msg.TxStatus.OK() && msg.WantReply && !msg.IsBroadcast() {
		w = b.addWaiter(n, msg)
	}
	b.mu.Unlock()

	if w != nil {
		b.wait(ctx, w, msg.Timeout)
	}
	return nil
}

func (n *Node) Messages() <-chan *cec.Msg { return n.messages }

func (n *Node) Events() <-chan adapter.Event { return n.events }

func (n *Node) Mode() adapter.Mode {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	return n.mode
}

func (n *Node) SetMode(m adapter.Mode) error {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	if n.closed {
		return adapter.ErrDisconnected
	}
	n.mode = m
	return nil
}

func (n *Node) Caps() adapter.Caps {
	return adapter.Caps{
		Driver:            "loopback",
		Name:              n.name,
		Bits:              adapter.CapPhysAddr | adapter.CapLogAddrs | adapter.CapTransmit | adapter.CapPassthrough | adapter.CapMonitorAll,
		AvailableLogAddrs: 4,
	}
}

func (n *Node) PhysAddr() cec.PhysAddr {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	if !n.bus.carrier {
		return cec.PhysAddrInvalid
	}
	return n.pa
}

func (n *Node) SetPhysAddr(pa cec.PhysAddr) error {
	b := n.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.closed {
		return adapter.ErrDisconnected
	}
	n.pa = pa
	n.emit(adapter.Event{Kind: adapter.EventStateChange, At: b.now(), PhysAddr: pa, LogAddrs: n.las})
	return nil
}

func (n *Node) LogAddrs() cec.LogAddrMask {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	return n.las
}

func (n *Node) SetLogAddrs(m cec.LogAddrMask) error {
	b := n.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.closed {
		return adapter.ErrDisconnected
	}
	n.las = m
	n.emit(adapter.Event{Kind: adapter.EventStateChange, At: b.now(), PhysAddr: n.pa, LogAddrs: m})
	return nil
}

// Close detaches the node; pending readers see closed channels.
func (n *Node) Close() error {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	n.closeLocked()
	return nil
}

// Disconnect simulates the adapter being unplugged.
func (n *Node) Disconnect() { _ = n.Close() }

// InjectBusy makes the next count transmits return adapter.ErrBusy.
func (n *Node) InjectBusy(count int) {
	n.bus.mu.Lock()
	n.busy += count
	n.bus.mu.Unlock()
}

// Lost returns the number of inbound frames dropped on overflow.
func (n *Node) Lost() int {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	return n.lost
}

func (n *Node) closeLocked() {
	if n.closed {
		return
	}
	n.closed = true
	n.las = 0
	close(n.messages)
	close(n.events)
}

// deliver queues an inbound frame; a full queue drops it and raises LostMessages.
func (n *Node) deliver(m *cec.Msg) {
	select {
	case n.messages <- m:
		n.flushPending()
	default:
		n.lost++
		n.emit(adapter.Event{Kind: adapter.EventLostMessages, At: m.RxTimestamp, Lost: 1})
	}
}

// emit queues e. When the queue is full, lost counts are summed into one
// pending LostMessages event and only the latest state change is kept. Held
// events go out ahead of the next one.
func (n *Node) emit(e adapter.Event) {
	if n.closed {
		return
	}
	if !n.flushPending() {
		n.hold(e)
		return
	}
	select {
	case n.events <- e:
	default:
		n.hold(e)
	}
}

func (n *Node) hold(e adapter.Event) {
	switch e.Kind {
	case adapter.EventLostMessages:
		n.pendingLost += e.Lost
	case adapter.EventStateChange:
		n.pendingState = &e
	}
}

// flushPending reports whether nothing is left held back.
func (n *Node) flushPending() bool {
	if n.closed {
		return true
	}
	if n.pendingLost > 0 {
		select {
		case n.events <- adapter.Event{Kind: adapter.EventLostMessages, At: n.bus.now(), Lost: n.pendingLost}:
			n.pendingLost = 0
		default:
			return false
		}
	}
	if n.pendingState != nil {
		select {
		case n.events <- *n.pendingState:
			n.pendingState = nil
		default:
			return false
		}
	}
	return true
}
