// internal/transport/transport_test.go
package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/adapter/loopback"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
)

// fakeAdapter returns errs in order, then completes each transmit with fill.
type fakeAdapter struct {
	errs   []error
	fill   func(m *cec.Msg)
	calls  int
	pa     cec.PhysAddr
	msgs   chan *cec.Msg
	events chan adapter.Event
}

func newFake(fill func(m *cec.Msg), errs ...error) *fakeAdapter {
	return &fakeAdapter{
		errs:   errs,
		fill:   fill,
		pa:     0x1000,
		msgs:   make(chan *cec.Msg, 4),
		events: make(chan adapter.Event, 4),
	}
}

func (f *fakeAdapter) Transmit(ctx context.Context, m *cec.Msg) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	if f.fill != nil {
		f.fill(m)
	}
	return nil
}

func (f *fakeAdapter) Messages() <-chan *cec.Msg         { return f.msgs }
func (f *fakeAdapter) Events() <-chan adapter.Event      { return f.events }
func (f *fakeAdapter) Mode() adapter.Mode                { return adapter.ModeInitiator }
func (f *fakeAdapter) SetMode(adapter.Mode) error        { return nil }
func (f *fakeAdapter) Caps() adapter.Caps                { return adapter.Caps{Driver: "fake"} }
func (f *fakeAdapter) PhysAddr() cec.PhysAddr            { return f.pa }
func (f *fakeAdapter) SetPhysAddr(cec.PhysAddr) error    { return nil }
func (f *fakeAdapter) LogAddrs() cec.LogAddrMask         { return 0 }
func (f *fakeAdapter) SetLogAddrs(cec.LogAddrMask) error { return nil }
func (f *fakeAdapter) Close() error                      { return nil }

type fakeRecorder struct {
	recognized   map[cec.Opcode]bool
	unrecognized map[cec.Opcode]bool
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{recognized: map[cec.Opcode]bool{}, unrecognized: map[cec.Opcode]bool{}}
}

func (r *fakeRecorder) MarkRecognized(_ cec.LogicalAddress, op cec.Opcode) { r.recognized[op] = true }

func (r *fakeRecorder) MarkUnrecognized(_ cec.LogicalAddress, op cec.Opcode) {
	r.unrecognized[op] = true
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// reply completes a transmit with resp arriving after delay.
func reply(resp func(m *cec.Msg) *cec.Msg, delay time.Duration) func(m *cec.Msg) {
	return func(m *cec.Msg) {
		m.TxStatus = cec.TxOK
		m.TxTimestamp = t0
		if !m.WantReply {
			return
		}
		r := resp(m)
		if r == nil {
			m.RxStatus = cec.RxTimeout
			return
		}
		adapter.Complete(m, r)
		m.RxTimestamp = t0.Add(delay)
	}
}

func newTransport(ad adapter.Adapter, rec Recorder) (*Transport, *diag.Warnings) {
	w := diag.NewWarnings(zerolog.Nop())
	tr := New(ad, DefaultConfig(), rec, w, zerolog.Nop())
	tr.sleep = func(context.Context, time.Duration) error { return nil }
	return tr, w
}

func TestClassify(t *testing.T) {
	powerOn := func(m *cec.Msg) *cec.Msg {
		return cec.ReportPowerStatus(m.Destination(), m.Initiator(), cec.PowerOn)
	}
	abort := func(reason cec.AbortReason) func(m *cec.Msg) *cec.Msg {
		return func(m *cec.Msg) *cec.Msg {
			op, _ := m.Opcode()
			return cec.FeatureAbort(m.Destination(), m.Initiator(), op, reason)
		}
	}
	none := func(*cec.Msg) *cec.Msg { return nil }

	cases := []struct {
		name         string
		fill         func(m *cec.Msg)
		want         Outcome
		recognized   bool
		unrecognized bool
		warnings     int
	}{
		{"replied", reply(powerOn, 100*time.Millisecond), OutcomeReplied, true, false, 0},
		{"unrecognized", reply(abort(cec.AbortUnrecognizedOp), 0), OutcomeFeatureAborted, false, true, 0},
		{"undetermined", reply(abort(cec.AbortUndetermined), 0), OutcomeFeatureAborted, false, true, 1},
		{"refused", reply(abort(cec.AbortRefused), 0), OutcomeFeatureAborted, true, false, 0},
		{"timeout", reply(none, 0), OutcomeTimedOut, false, false, 0},
		{"slow", reply(powerOn, 1500*time.Millisecond), OutcomeReplied, true, false, 1},
		{"nack", func(m *cec.Msg) { m.TxStatus = cec.TxNACK | cec.TxMaxRetries }, OutcomeFailed, false, false, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := newRecorder()
			tr, w := newTransport(newFake(c.fill), rec)

			msg := cec.GiveDevicePowerStatus(cec.LogAddrPlayback1, cec.LogAddrTV)
			res, err := tr.Request(context.Background(), msg, cec.OpReportPowerStatus, time.Second)
			if err != nil {
				t.Fatalf("Request err=%v", err)
			}
			if res.Outcome != c.want {
				t.Fatalf("outcome=%s want %s", res.Outcome, c.want)
			}
			if rec.recognized[cec.OpGiveDevicePowerStatus] != c.recognized {
				t.Fatalf("recognized=%v want %v", !c.recognized, c.recognized)
			}
			if rec.unrecognized[cec.OpGiveDevicePowerStatus] != c.unrecognized {
				t.Fatalf("unrecognized=%v want %v", !c.unrecognized, c.unrecognized)
			}
			if w.Count() != c.warnings {
				t.Fatalf("warnings=%d want %d", w.Count(), c.warnings)
			}
		})
	}
}

func TestFeatureAbortReason(t *testing.T) {
	fill := reply(func(m *cec.Msg) *cec.Msg {
		return cec.FeatureAbort(m.Destination(), m.Initiator(), cec.OpGiveDevicePowerStatus, cec.AbortUnrecognizedOp)
	}, 0)
	tr, _ := newTransport(newFake(fill), nil)

	res, err := tr.Request(context.Background(), cec.GiveDevicePowerStatus(cec.LogAddrPlayback1, cec.LogAddrTV), cec.OpReportPowerStatus, time.Second)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Reason != cec.AbortUnrecognizedOp || !res.Absent() {
		t.Fatalf("reason=%s absent=%v", res.Reason, res.Absent())
	}
}

func TestBookkeeping_SkipsUnregistered(t *testing.T) {
	rec := newRecorder()
	fill := reply(func(m *cec.Msg) *cec.Msg {
		return cec.CECVersion(m.Destination(), m.Initiator(), cec.Version2_0)
	}, 0)
	tr, _ := newTransport(newFake(fill), rec)

	msg := cec.GetCECVersion(cec.LogAddrUnregistered, cec.LogAddrTV)
	if _, err := tr.Request(context.Background(), msg, cec.OpCECVersion, time.Second); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rec.recognized) != 0 {
		t.Fatalf("Unregistered initiator must not be booked")
	}
}

func TestResponseTime(t *testing.T) {
	m := cec.GiveDevicePowerStatus(cec.LogAddrPlayback1, cec.LogAddrTV)
	m.TxTimestamp = t0
	m.RxTimestamp = t0.Add(552500 * time.Microsecond)
	// 2 bytes * 24ms + 4.5ms = 52.5ms of bus time.
	if got := ResponseTime(m); got != 500*time.Millisecond {
		t.Fatalf("ResponseTime=%s want 500ms", got)
	}

	m.RxTimestamp = t0.Add(10 * time.Millisecond)
	if got := ResponseTime(m); got != 0 {
		t.Fatalf("ResponseTime=%s want 0 (floored)", got)
	}
}

func TestBusy_RetriesWithBackoff(t *testing.T) {
	fake := newFake(reply(nil, 0), adapter.ErrBusy, adapter.ErrBusy, adapter.ErrBusy)
	tr, _ := newTransport(fake, nil)

	var delays []time.Duration
	tr.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	res, err := tr.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if err != nil {
		t.Fatalf("busy must not surface as an error: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays=%v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays=%v want %v", delays, want)
		}
	}
}

func TestBusy_StopsOnCancel(t *testing.T) {
	fake := newFake(nil, adapter.ErrBusy, adapter.ErrBusy)
	w := diag.NewWarnings(zerolog.Nop())
	tr := New(fake, DefaultConfig(), nil, w, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Transmit(ctx, cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextBackoffDelay_Capped(t *testing.T) {
	cfg := DefaultBackoff()
	if d := NextBackoffDelay(cfg, 10); d != cfg.MaxDelay {
		t.Fatalf("delay=%s want %s", d, cfg.MaxDelay)
	}
}

func TestCarrier_SecondLossIsFatal(t *testing.T) {
	fake := newFake(reply(nil, 0), adapter.ErrNoCarrier, adapter.ErrNoCarrier)
	tr, _ := newTransport(fake, nil)

	_, err := tr.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if !errors.Is(err, ErrCarrierLost) {
		t.Fatalf("expected ErrCarrierLost, got %v", err)
	}
}

func TestCarrier_RecoversOnce(t *testing.T) {
	fake := newFake(reply(nil, 0), adapter.ErrNoCarrier)
	tr, _ := newTransport(fake, nil)

	res, err := tr.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Outcome != OutcomeOK || fake.calls != 2 {
		t.Fatalf("outcome=%s calls=%d", res.Outcome, fake.calls)
	}
	if !res.CarrierRestored || res.PhysAddr != 0x1000 {
		t.Fatalf("restored=%v pa=%s", res.CarrierRestored, res.PhysAddr)
	}

	res, err = tr.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.CarrierRestored {
		t.Fatal("plain transmit reported a carrier restore")
	}
}

func TestCarrier_WakeRestoresOnLoopback(t *testing.T) {
	bus := loopback.NewBus()
	bus.RestoreOnWake = true
	tv := bus.Attach("tv", 0x0000)
	pb := bus.Attach("playback", 0x1000)
	_ = tv.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrTV))
	_ = pb.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrPlayback1))
	bus.DropCarrier()

	cfg := DefaultConfig()
	cfg.CarrierWait = 10 * time.Millisecond
	cfg.CarrierDeadline = time.Second
	tr := New(pb, cfg, nil, diag.NewWarnings(zerolog.Nop()), zerolog.Nop())

	res, err := tr.Transmit(context.Background(), cec.NewPoll(cec.LogAddrPlayback1, cec.LogAddrTV))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome=%s tx=%s", res.Outcome, res.TxStatus)
	}
	if !res.CarrierRestored || res.PhysAddr != pb.PhysAddr() || !res.PhysAddr.Valid() {
		t.Fatalf("restored=%v pa=%s adapter pa=%s", res.CarrierRestored, res.PhysAddr, pb.PhysAddr())
	}
}

func TestCarrier_DeadlineOnLoopback(t *testing.T) {
	bus := loopback.NewBus()
	pb := bus.Attach("playback", 0x1000)
	_ = pb.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrPlayback1))
	bus.DropCarrier()

	cfg := DefaultConfig()
	cfg.CarrierWait = 10 * time.Millisecond
	cfg.CarrierDeadline = 50 * time.Millisecond
	tr := New(pb, cfg, nil, diag.NewWarnings(zerolog.Nop()), zerolog.Nop())

	_, err := tr.Transmit(context.Background(), cec.NewPoll(cec.LogAddrPlayback1, cec.LogAddrTV))
	if !errors.Is(err, ErrCarrierLost) {
		t.Fatalf("expected ErrCarrierLost, got %v", err)
	}
}

func TestDisconnectIsFatal(t *testing.T) {
	tr, _ := newTransport(newFake(nil, adapter.ErrDisconnected), nil)
	_, err := tr.Transmit(context.Background(), cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast))
	if !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestReceive_SurfacesLostMessages(t *testing.T) {
	fake := newFake(nil)
	tr, w := newTransport(fake, nil)

	fake.events <- adapter.Event{Kind: adapter.EventLostMessages, Lost: 3}
	if _, err := tr.Receive(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("expected ErrReceiveTimeout, got %v", err)
	}
	if tr.Lost() != 3 || w.Count() != 1 {
		t.Fatalf("lost=%d warnings=%d", tr.Lost(), w.Count())
	}

	fake.msgs <- cec.Standby(cec.LogAddrTV, cec.LogAddrBroadcast)
	m, err := tr.Receive(context.Background(), time.Second)
	if err != nil || m == nil {
		t.Fatalf("Receive m=%v err=%v", m, err)
	}
}

func TestNoteFeatureAbort(t *testing.T) {
	rec := newRecorder()
	tr, _ := newTransport(newFake(nil), rec)

	tr.NoteFeatureAbort(cec.FeatureAbort(cec.LogAddrTV, cec.LogAddrPlayback1, cec.OpSetOSDName, cec.AbortUnrecognizedOp))
	tr.NoteFeatureAbort(cec.FeatureAbort(cec.LogAddrTV, cec.LogAddrPlayback1, cec.OpGiveAudioStatus, cec.AbortIncorrectMode))

	if !rec.unrecognized[cec.OpSetOSDName] {
		t.Fatalf("Set OSD Name must be unrecognized")
	}
	if !rec.recognized[cec.OpGiveAudioStatus] {
		t.Fatalf("Give Audio Status must be recognized")
	}
}
