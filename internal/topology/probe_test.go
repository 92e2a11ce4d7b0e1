// internal/topology/probe_test.go
package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// fakeRequester answers each request opcode from a canned table.
// Opcodes without an entry time out.
type fakeRequester struct {
	replies map[cec.Opcode]func(m *cec.Msg) transport.Result
	asked   []cec.Opcode
	fatal   error
}

func (f *fakeRequester) Request(_ context.Context, m *cec.Msg, _ cec.Opcode, _ time.Duration) (transport.Result, error) {
	op, _ := m.Opcode()
	f.asked = append(f.asked, op)
	if f.fatal != nil {
		return transport.Result{}, f.fatal
	}
	if fn, ok := f.replies[op]; ok {
		return fn(m), nil
	}
	return transport.Result{Outcome: transport.OutcomeTimedOut, TxStatus: cec.TxOK}, nil
}

func replied(r *cec.Msg) func(m *cec.Msg) transport.Result {
	return func(*cec.Msg) transport.Result {
		return transport.Result{Outcome: transport.OutcomeReplied, Reply: r, TxStatus: cec.TxOK, RxStatus: cec.RxOK}
	}
}

func aborted(reason cec.AbortReason) func(m *cec.Msg) transport.Result {
	return func(m *cec.Msg) transport.Result {
		op, _ := m.Opcode()
		return transport.Result{
			Outcome:  transport.OutcomeFeatureAborted,
			Reason:   reason,
			Reply:    cec.FeatureAbort(m.Destination(), m.Initiator(), op, reason),
			TxStatus: cec.TxOK,
			RxStatus: cec.RxOK | cec.RxFeatureAbort,
		}
	}
}

const (
	self = cec.LogAddrPlayback1
	dut  = cec.LogAddrTV
)

func fullDevice(v cec.Version) *fakeRequester {
	return &fakeRequester{replies: map[cec.Opcode]func(m *cec.Msg) transport.Result{
		cec.OpGetCECVersion:         replied(cec.CECVersion(dut, self, v)),
		cec.OpGivePhysicalAddr:      replied(cec.ReportPhysicalAddr(dut, 0x0000, cec.DevTypeTV)),
		cec.OpGiveDeviceVendorID:    replied(cec.DeviceVendorID(dut, 0x000CE7)),
		cec.OpGiveOSDName:           replied(cec.SetOSDName(dut, self, "Living Room")),
		cec.OpGetMenuLanguage:       replied(cec.SetMenuLanguage(dut, "eng")),
		cec.OpGiveDevicePowerStatus: replied(cec.ReportPowerStatus(dut, self, cec.PowerOn)),
		cec.OpGiveFeatures:          replied(cec.ReportFeatures(dut, cec.Version2_0, cec.AllDevTypeTV, 0, cec.DevFeatSinkARCTx)),
	}}
}

func newProber(req Requester) (*Prober, *Table, *diag.Warnings) {
	tbl := NewTable()
	w := diag.NewWarnings(zerolog.Nop())
	return NewProber(req, tbl, self, time.Second, w, zerolog.Nop()), tbl, w
}

func TestProbe_FullDevice(t *testing.T) {
	req := fullDevice(cec.Version2_0)
	p, _, w := newProber(req)

	r, err := p.Probe(context.Background(), dut)
	if err != nil {
		t.Fatalf("Probe err=%v", err)
	}
	if r.PhysAddr != 0x0000 || r.PrimaryType != cec.DevTypeTV || r.VendorID != 0x000CE7 {
		t.Fatalf("identity: %+v", r)
	}
	if r.OSDName != "Living Room" || r.MenuLang != "eng" {
		t.Fatalf("names: %q %q", r.OSDName, r.MenuLang)
	}
	if !r.HasPowerStatus || r.Power != cec.PowerOn {
		t.Fatalf("power: %v %s", r.HasPowerStatus, r.Power)
	}
	if !r.HasARC || r.AllDevTypes != cec.AllDevTypeTV {
		t.Fatalf("features not applied: %+v", r)
	}
	if len(req.asked) != 7 || w.Count() != 0 {
		t.Fatalf("asked=%v warnings=%d", req.asked, w.Count())
	}
}

func TestProbe_FeaturesOnlyFor20(t *testing.T) {
	req := fullDevice(cec.Version1_4)
	p, _, _ := newProber(req)

	if _, err := p.Probe(context.Background(), dut); err != nil {
		t.Fatalf("Probe err=%v", err)
	}
	for _, op := range req.asked {
		if op == cec.OpGiveFeatures {
			t.Fatalf("Give Features must not be sent to a 1.4 device")
		}
	}
}

func TestProbe_PowerStatusUnrecognized(t *testing.T) {
	req := fullDevice(cec.Version1_4)
	req.replies[cec.OpGiveDevicePowerStatus] = aborted(cec.AbortUnrecognizedOp)
	p, _, _ := newProber(req)

	r, err := p.Probe(context.Background(), dut)
	if err != nil {
		t.Fatalf("Feature Abort must not be an error: %v", err)
	}
	if r.HasPowerStatus || r.Power != cec.PowerUnknown {
		t.Fatalf("power must stay unknown: %v %s", r.HasPowerStatus, r.Power)
	}
}

func TestProbe_VersionClamped(t *testing.T) {
	cases := []struct {
		raw  cec.Version
		want cec.Version
	}{
		{0x03, cec.Version1_3A},
		{0x07, cec.Version2_0},
	}
	for _, c := range cases {
		req := fullDevice(c.raw)
		p, _, w := newProber(req)
		r, err := p.Probe(context.Background(), dut)
		if err != nil {
			t.Fatalf("Probe err=%v", err)
		}
		if r.Version != c.want || r.RawVersion != c.raw || w.Count() != 1 {
			t.Fatalf("raw=%s: version=%s warnings=%d", c.raw, r.Version, w.Count())
		}
	}
}

func TestProbe_NackIsError(t *testing.T) {
	req := fullDevice(cec.Version1_4)
	req.replies[cec.OpGiveOSDName] = func(*cec.Msg) transport.Result {
		return transport.Result{Outcome: transport.OutcomeFailed, TxStatus: cec.TxNACK | cec.TxMaxRetries}
	}
	p, _, _ := newProber(req)

	_, err := p.Probe(context.Background(), dut)
	var pe *ProbeError
	if !errors.As(err, &pe) || pe.Op != cec.OpGiveOSDName || !errors.Is(err, ErrNoAck) {
		t.Fatalf("expected ProbeError for Give OSD Name, got %v", err)
	}
}

func TestProbe_FatalPropagates(t *testing.T) {
	boom := errors.New("boom")
	p, _, _ := newProber(&fakeRequester{fatal: boom})

	_, err := p.Probe(context.Background(), dut)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fatal error, got %v", err)
	}
}
