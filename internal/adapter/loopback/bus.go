// internal/adapter/loopback/bus.go
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
)

// DefaultInboundSize is the per-node inbound queue length.
const DefaultInboundSize = 64

const eventQueueSize = 16

// Bus is an in-memory CEC bus. Nodes attached to it see each other's traffic
// according to their claimed logical addresses and mode.
type Bus struct {
	mu      sync.Mutex
	nodes   []*Node
	seq     uint32
	carrier bool
	waiters []*waiter

	// RestoreOnWake restores a dropped carrier when a node sends Image View On.
	RestoreOnWake bool

	now func() time.Time
}

type waiter struct {
	node *Node
	sent *cec.Msg
	ch   chan *cec.Msg
}

// NewBus returns an empty bus with the carrier up.
func NewBus() *Bus {
	return &Bus{carrier: true, now: time.Now}
}

// SetClock replaces the timestamp source.
func (b *Bus) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Attach adds a node with the given name and physical address.
func (b *Bus) Attach(name string, pa cec.PhysAddr) *Node {
	n := &Node{
		bus:      b,
		name:     name,
		pa:       pa,
		mode:     adapter.ModeInitiator,
		messages: make(chan *cec.Msg, DefaultInboundSize),
		events:   make(chan adapter.Event, eventQueueSize),
	}
	b.mu.Lock()
	b.nodes = append(b.nodes, n)
	b.mu.Unlock()
	return n
}

// DropCarrier simulates a hotplug loss: every node reports an invalid
// physical address and transmits fail with adapter.ErrNoCarrier.
func (b *Bus) DropCarrier() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.carrier = false
	for _, n := range b.nodes {
		n.emit(adapter.Event{Kind: adapter.EventStateChange, At: b.now(), PhysAddr: cec.PhysAddrInvalid, LogAddrs: n.las})
	}
}

// RestoreCarrier brings the link back; nodes report their physical address again.
func (b *Bus) RestoreCarrier() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restoreLocked()
}

func (b *Bus) restoreLocked() {
	b.carrier = true
	for _, n := range b.nodes {
		n.emit(adapter.Event{Kind: adapter.EventStateChange, At: b.now(), PhysAddr: n.pa, LogAddrs: n.las})
	}
}

// claimant returns the node other than from that claims la.
func (b *Bus) claimant(from *Node, la cec.LogicalAddress) *Node {
	for _, n := range b.nodes {
		if n != from && !n.closed && n.las.Has(la) {
			return n
		}
	}
	return nil
}

// transmit runs one frame on the bus. Caller holds b.mu.
func (b *Bus) transmitLocked(from *Node, m *cec.Msg) {
	b.seq++
	m.Sequence = b.seq
	m.TxTimestamp = b.now()
	m.TxStatus = 0
	m.RxStatus = 0
	m.Response = nil

	dest := m.Destination()
	switch {
	case m.IsBroadcast():
		m.TxStatus = cec.TxOK
	case b.claimant(from, dest) != nil:
		m.TxStatus = cec.TxOK
	default:
		m.TxStatus = cec.TxNACK | cec.TxMaxRetries
	}

	if !m.TxStatus.OK() {
		b.copyToMonitors(from, m)
		return
	}

	var consumer *Node
	for i, w := range b.waiters {
		if w.node != from && adapter.IsReplyTo(w.sent, m) {
			w.ch <- b.received(m)
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			consumer = w.node
			break
		}
	}

	for _, n := range b.nodes {
		if n == from || n.closed {
			continue
		}
		switch {
		case n.mode.Monitors():
			n.deliver(b.received(m))
		case n == consumer:
		case !n.mode.Follows():
		case m.IsBroadcast() || n.las.Has(dest):
			n.deliver(b.received(m))
		}
	}
}

func (b *Bus) copyToMonitors(from *Node, m *cec.Msg) {
	for _, n := range b.nodes {
		if n != from && !n.closed && n.mode == adapter.ModeMonitorAll {
			n.deliver(b.received(m))
		}
	}
}

func (b *Bus) received(m *cec.Msg) *cec.Msg {
	in := m.Clone()
	in.TxStatus = m.TxStatus
	in.RxStatus = cec.RxOK
	in.RxTimestamp = b.now()
	return in
}

func (b *Bus) addWaiter(n *Node, m *cec.Msg) *waiter {
	w := &waiter{node: n, sent: m, ch: make(chan *cec.Msg, 1)}
	b.waiters = append(b.waiters, w)
	return w
}

func (b *Bus) dropWaiter(w *waiter) {
	for i, x := range b.waiters {
		if x == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// wait blocks for a reply to m or its timeout.
func (b *Bus) wait(ctx context.Context, w *waiter, timeout time.Duration) {
	if timeout <= 0 {
		timeout = adapter.DefaultReplyTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case in := <-w.ch:
		adapter.Complete(w.sent, in)
		return
	case <-t.C:
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.dropWaiter(w)
	b.mu.Unlock()

	// A reply may have raced the timer.
	select {
	case in := <-w.ch:
		adapter.Complete(w.sent, in)
	default:
		w.sent.RxStatus = cec.RxTimeout
		w.sent.RxTimestamp = b.now()
	}
}
