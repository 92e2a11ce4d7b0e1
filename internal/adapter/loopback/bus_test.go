// internal/adapter/loopback/bus_test.go
package loopback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
)

func twoNodes(t *testing.T) (*Bus, *Node, *Node) {
	t.Helper()
	b := NewBus()
	tv := b.Attach("tv", 0x0000)
	pb := b.Attach("playback", 0x1000)
	if err := tv.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrTV)); err != nil {
		t.Fatalf("SetLogAddrs: %v", err)
	}
	if err := pb.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrPlayback1)); err != nil {
		t.Fatalf("SetLogAddrs: %v", err)
	}
	drainEvents(tv)
	drainEvents(pb)
	return b, tv, pb
}

func drainEvents(n *Node) {
	for {
		select {
		case <-n.Events():
		default:
			return
		}
	}
}

func TestPoll_PresentAndSelf(t *testing.T) {
	_, tv, _ := twoNodes(t)
	ctx := context.Background()

	m := cec.NewPoll(cec.LogAddrTV, cec.LogAddrPlayback1)
	if err := tv.Transmit(ctx, m); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if !m.TxStatus.OK() {
		t.Fatalf("poll to claimed address: tx=%s", m.TxStatus)
	}

	self := cec.NewPoll(cec.LogAddrTV, cec.LogAddrTV)
	if err := tv.Transmit(ctx, self); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if self.TxStatus != cec.TxNACK|cec.TxMaxRetries {
		t.Fatalf("self poll: tx=%s", self.TxStatus)
	}

	absent := cec.NewPoll(cec.LogAddrTV, cec.LogAddrAudioSystem)
	_ = tv.Transmit(ctx, absent)
	if absent.TxStatus.OK() {
		t.Fatalf("poll to unclaimed address must NACK")
	}
}

func TestTransmit_WaitsForReply(t *testing.T) {
	_, tv, pb := twoNodes(t)
	if err := pb.SetMode(adapter.ModeExclusiveFollower); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	go func() {
		in := <-pb.Messages()
		r, _ := cec.ReplyTo(in, cec.OpReportPowerStatus, byte(cec.PowerStandby))
		_ = pb.Transmit(context.Background(), r)
	}()

	m := cec.GiveDevicePowerStatus(cec.LogAddrTV, cec.LogAddrPlayback1)
	m.Expect(cec.OpReportPowerStatus, time.Second)
	if err := tv.Transmit(context.Background(), m); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if !m.RxStatus.OK() || m.Response == nil {
		t.Fatalf("rx=%s response=%v", m.RxStatus, m.Response)
	}
	ps, err := cec.ParseReportPowerStatus(m.Response)
	if err != nil || ps != cec.PowerStandby {
		t.Fatalf("ps=%s err=%v", ps, err)
	}
	if m.Response.InReplyTo != m.Sequence {
		t.Fatalf("InReplyTo=%d Sequence=%d", m.Response.InReplyTo, m.Sequence)
	}
}

func TestTransmit_ReplyTimeout(t *testing.T) {
	_, tv, _ := twoNodes(t)

	m := cec.GiveOSDName(cec.LogAddrTV, cec.LogAddrPlayback1)
	m.Expect(cec.OpSetOSDName, 20*time.Millisecond)
	if err := tv.Transmit(context.Background(), m); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if m.RxStatus != cec.RxTimeout {
		t.Fatalf("rx=%s want TIMEOUT", m.RxStatus)
	}
}

func TestBroadcastAndMonitor(t *testing.T) {
	b, tv, pb := twoNodes(t)
	mon := b.Attach("monitor", cec.PhysAddrInvalid)
	_ = mon.SetMode(adapter.ModeMonitorAll)
	_ = pb.SetMode(adapter.ModeInitiatorFollower)

	if err := tv.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast)); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if len(pb.Messages()) != 1 {
		t.Fatalf("follower got %d messages, want 1", len(pb.Messages()))
	}
	if len(mon.Messages()) != 1 {
		t.Fatalf("monitor got %d messages, want 1", len(mon.Messages()))
	}

	// Failed transmits reach monitor-all only.
	_ = tv.Transmit(context.Background(), cec.NewPoll(cec.LogAddrTV, cec.LogAddrTuner1))
	if len(mon.Messages()) != 2 {
		t.Fatalf("monitor-all must see NACKed frames")
	}
}

func TestLostMessages(t *testing.T) {
	_, tv, pb := twoNodes(t)
	_ = pb.SetMode(adapter.ModeInitiatorFollower)

	for i := 0; i < DefaultInboundSize+2; i++ {
		_ = tv.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrPlayback1))
	}
	if pb.Lost() != 2 {
		t.Fatalf("Lost()=%d want 2", pb.Lost())
	}
	ev := <-pb.Events()
	if ev.Kind != adapter.EventLostMessages {
		t.Fatalf("event=%s want lost-messages", ev.Kind)
	}
}

func TestEventOverflowFoldsIntoLostMessages(t *testing.T) {
	_, tv, pb := twoNodes(t)
	_ = pb.SetMode(adapter.ModeInitiatorFollower)
	las := pb.LogAddrs()
	ctx := context.Background()

	for i := 0; i < eventQueueSize; i++ {
		_ = pb.SetLogAddrs(las)
	}
	for i := 0; i < DefaultInboundSize+3; i++ {
		_ = tv.Transmit(ctx, cec.Standby(cec.LogAddrTV, cec.LogAddrPlayback1))
	}
	_ = pb.SetPhysAddr(0x2000)
	_ = pb.SetPhysAddr(0x3000)

	drainEvents(pb)
	for i := 0; i < DefaultInboundSize; i++ {
		<-pb.Messages()
	}

	// the next delivered frame releases what was held back
	_ = tv.Transmit(ctx, cec.Standby(cec.LogAddrTV, cec.LogAddrPlayback1))

	ev := <-pb.Events()
	if ev.Kind != adapter.EventLostMessages || ev.Lost != 3 {
		t.Fatalf("first event=%s lost=%d want lost-messages 3", ev.Kind, ev.Lost)
	}
	ev = <-pb.Events()
	if ev.Kind != adapter.EventStateChange || ev.PhysAddr != 0x3000 {
		t.Fatalf("second event=%s pa=%s want state-change 3.0.0.0", ev.Kind, ev.PhysAddr)
	}
	select {
	case ev := <-pb.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
	if pb.Lost() != 3 {
		t.Fatalf("Lost()=%d want 3", pb.Lost())
	}
}

func TestBusyCarrierDisconnect(t *testing.T) {
	b, tv, _ := twoNodes(t)
	ctx := context.Background()

	tv.InjectBusy(1)
	if err := tv.Transmit(ctx, cec.NewPoll(cec.LogAddrTV, cec.LogAddrPlayback1)); !errors.Is(err, adapter.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	b.DropCarrier()
	if err := tv.Transmit(ctx, cec.NewPoll(cec.LogAddrTV, cec.LogAddrPlayback1)); !errors.Is(err, adapter.ErrNoCarrier) {
		t.Fatalf("expected ErrNoCarrier, got %v", err)
	}
	if tv.PhysAddr().Valid() {
		t.Fatalf("physical address must be invalid without carrier")
	}
	ev := <-tv.Events()
	if ev.Kind != adapter.EventStateChange || ev.PhysAddr.Valid() {
		t.Fatalf("unexpected event %+v", ev)
	}

	b.RestoreCarrier()
	if err := tv.Transmit(ctx, cec.NewPoll(cec.LogAddrTV, cec.LogAddrPlayback1)); err != nil {
		t.Fatalf("after restore: %v", err)
	}

	tv.Disconnect()
	if err := tv.Transmit(ctx, cec.NewPoll(cec.LogAddrTV, cec.LogAddrPlayback1)); !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if _, ok := <-tv.Messages(); ok {
		t.Fatalf("Messages() must be closed after disconnect")
	}
}

func TestRestoreOnWake(t *testing.T) {
	b, _, pb := twoNodes(t)
	b.RestoreOnWake = true
	b.DropCarrier()

	m := cec.ImageViewOn(cec.LogAddrPlayback1, cec.LogAddrTV)
	if err := pb.Transmit(context.Background(), m); err != nil {
		t.Fatalf("wake transmit: %v", err)
	}
	if !m.TxStatus.OK() {
		t.Fatalf("wake tx=%s", m.TxStatus)
	}
	if !pb.PhysAddr().Valid() {
		t.Fatalf("carrier not restored")
	}
}
