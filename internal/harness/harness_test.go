// internal/harness/harness_test.go
package harness

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
	"github.com/tamzrod/cec-compliance/internal/follower"
	"github.com/tamzrod/cec-compliance/internal/poller"
	"github.com/tamzrod/cec-compliance/internal/topology"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

func TestFromResult(t *testing.T) {
	cases := []struct {
		name string
		res  transport.Result
		want Code
	}{
		{"replied", transport.Result{Outcome: transport.OutcomeReplied}, Pass},
		{"acked only", transport.Result{Outcome: transport.OutcomeOK}, Presumed},
		{"unrecognized", transport.Result{Outcome: transport.OutcomeFeatureAborted, Reason: cec.AbortUnrecognizedOp}, NotApplicable},
		{"refused", transport.Result{Outcome: transport.OutcomeFeatureAborted, Reason: cec.AbortRefused}, Refused},
		{"incorrect mode", transport.Result{Outcome: transport.OutcomeFeatureAborted, Reason: cec.AbortIncorrectMode}, Refused},
		{"invalid operand", transport.Result{Outcome: transport.OutcomeFeatureAborted, Reason: cec.AbortInvalidOp}, Fail},
		{"timed out", transport.Result{Outcome: transport.OutcomeTimedOut}, Fail},
		{"nack", transport.Result{Outcome: transport.OutcomeFailed}, Fail},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := FromResult(c.res); got != c.want {
				t.Fatalf("got %s want %s", got, c.want)
			}
		})
	}
}

func fixed(code Code) CheckFunc {
	return func(context.Context, Env) (Code, string, error) { return code, "", nil }
}

func TestRunner_TimeoutFailsOnlyThatCheck(t *testing.T) {
	checks := []Check{
		{Name: "slow", Run: func(ctx context.Context, _ Env) (Code, string, error) {
			<-ctx.Done()
			return Fail, "", ctx.Err()
		}},
		{Name: "fast", Run: fixed(Pass)},
	}
	r := NewRunner(Env{Log: zerolog.Nop()}, checks, 20*time.Millisecond)

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != 2 || rep.Results[0].Code != Fail || rep.Results[1].Code != Pass {
		t.Fatalf("results %+v", rep.Results)
	}
	if rep.Results[0].Detail == "" || rep.RunID == "" || rep.Passed() {
		t.Fatalf("report %+v", rep)
	}
}

func TestRunner_FatalStopsRun(t *testing.T) {
	ran := false
	checks := []Check{
		{Name: "ok", Run: fixed(Pass)},
		{Name: "unplugged", Run: func(context.Context, Env) (Code, string, error) {
			return Fail, "", adapter.ErrDisconnected
		}},
		{Name: "never", Run: func(context.Context, Env) (Code, string, error) {
			ran = true
			return Pass, "", nil
		}},
	}
	rep, err := NewRunner(Env{Log: zerolog.Nop()}, checks, time.Second).Run(context.Background())
	if !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("err %v", err)
	}
	if ran || len(rep.Results) != 1 || rep.Finished.IsZero() {
		t.Fatalf("run continued after fatal error: %+v", rep)
	}
}

func TestRunner_PerDeviceAndWarnings(t *testing.T) {
	tbl := topology.NewTable()
	tbl.Add(cec.LogAddrPlayback1, true)
	tbl.Add(cec.LogAddrTV, false)
	tbl.Add(cec.LogAddrAudioSystem, false)

	warn := diag.NewWarnings(zerolog.Nop())
	warn.Warnf("before the run")

	var seen []cec.LogicalAddress
	checks := []Check{{Name: "each", PerDevice: true, Run: func(_ context.Context, env Env) (Code, string, error) {
		seen = append(seen, env.Target)
		env.Warn.Warnf("checked %s", env.Target)
		return NotApplicable, "", nil
	}}}
	env := Env{Self: cec.LogAddrPlayback1, Table: tbl, Warn: warn, Log: zerolog.Nop()}

	rep, err := NewRunner(env, checks, time.Second).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 || seen[0] != cec.LogAddrTV || seen[1] != cec.LogAddrAudioSystem {
		t.Fatalf("targets %v", seen)
	}
	if rep.Results[0].Target != cec.LogAddrTV.String() {
		t.Fatalf("target not recorded: %+v", rep.Results[0])
	}
	if rep.Warnings != 2 || rep.Count(NotApplicable) != 2 || !rep.Passed() {
		t.Fatalf("report %+v", rep)
	}
}

// TestCoreChecks_AgainstFollower runs the discovery sequence against an
// emulated TV on the loopback bus.
func TestCoreChecks_AgainstFollower(t *testing.T) {
	bus := loopback.NewBus()

	dutNode := bus.Attach("dut", cec.PhysAddrRoot)
	if err := dutNode.SetMode(adapter.ModeInitiatorFollower); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	_ = dutNode.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrTV))
	dut := follower.New(follower.Options{Type: cec.DevTypeTV, LA: cec.LogAddrTV, OSDName: "TV"}, nil, nil, zerolog.Nop())
	loop := follower.NewLoop(dut, transport.New(dutNode, transport.DefaultConfig(), dut.Table(), nil, zerolog.Nop()), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	me := bus.Attach("tester", 0x1000)
	_ = me.SetLogAddrs(cec.LogAddrMask(0).With(cec.LogAddrPlayback1))

	log := zerolog.Nop()
	warn := diag.NewWarnings(log)
	tbl := topology.NewTable()
	tbl.Add(cec.LogAddrPlayback1, true)
	tr := transport.New(me, transport.DefaultConfig(), tbl, warn, log)
	p, err := poller.New(poller.Config{From: cec.LogAddrPlayback1}, tr, log)
	if err != nil {
		t.Fatalf("poller: %v", err)
	}

	env := Env{
		Bus:          tr,
		Self:         cec.LogAddrPlayback1,
		Table:        tbl,
		Poller:       p,
		Prober:       topology.NewProber(tr, tbl, cec.LogAddrPlayback1, 500*time.Millisecond, warn, log),
		ReplyTimeout: 500 * time.Millisecond,
		Warn:         warn,
		Log:          log,
	}
	rep, err := NewRunner(env, CoreChecks(), 5*time.Second).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []struct {
		check, target string
	}{
		{"poll-self", ""},
		{"presence", ""},
		{"probe", "TV"},
		{"power-status", "TV"},
		{"recognition-consistency", ""},
	}
	if len(rep.Results) != len(want) {
		t.Fatalf("results %+v", rep.Results)
	}
	for i, w := range want {
		got := rep.Results[i]
		if got.Check != w.check || got.Target != w.target || got.Code != Pass {
			t.Fatalf("result %d: %+v", i, got)
		}
	}

	rec, ok := tbl.Get(cec.LogAddrTV)
	if !ok || rec.OSDName != "TV" || rec.Power != cec.PowerOn || rec.MenuLang != "eng" {
		t.Fatalf("probed record %+v", rec)
	}
}
