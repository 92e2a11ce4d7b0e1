// internal/harness/checks.go
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// CoreChecks is the fixed discovery sequence every run starts with.
func CoreChecks() []Check {
	return []Check{
		{Name: "poll-self", Run: checkPollSelf},
		{Name: "presence", Run: checkPresence},
		{Name: "probe", PerDevice: true, Run: checkProbe},
		{Name: "power-status", PerDevice: true, Run: checkPowerStatus},
		{Name: "recognition-consistency", Run: checkConsistency},
	}
}

// checkPollSelf: a poll to our own address must not be acknowledged by
// anybody else.
func checkPollSelf(ctx context.Context, env Env) (Code, string, error) {
	res, err := env.Bus.Transmit(ctx, cec.NewPoll(env.Self, env.Self))
	if err != nil {
		return Fail, "", err
	}
	switch {
	case res.TxStatus.OK():
		return Fail, fmt.Sprintf("another device acknowledged %s", env.Self), nil
	case res.TxStatus&cec.TxNACK != 0:
		return Pass, "", nil
	default:
		env.Warn.Warnf("self poll of %s: unexpected tx status %s", env.Self, res.TxStatus)
		return Presumed, res.TxStatus.String(), nil
	}
}

func checkPresence(ctx context.Context, env Env) (Code, string, error) {
	if env.Poller == nil {
		return NotApplicable, "no poller", nil
	}
	res := env.Poller.Presence(ctx)
	if res.Err != nil {
		return Fail, "", res.Err
	}
	remote := res.Remote().Addrs()
	if len(remote) == 0 {
		return Fail, "no remote device answered", nil
	}
	names := make([]string, 0, len(remote))
	for _, la := range remote {
		env.Table.Add(la, false)
		names = append(names, la.String())
	}
	return Pass, strings.Join(names, ", "), nil
}

func checkProbe(ctx context.Context, env Env) (Code, string, error) {
	if env.Prober == nil {
		return NotApplicable, "no prober", nil
	}
	rec, err := env.Prober.Probe(ctx, env.Target)
	if err != nil {
		if errors.Is(err, topology.ErrNoAck) {
			return Fail, err.Error(), nil
		}
		return Fail, "", err
	}
	if !rec.PhysAddr.Valid() {
		return Fail, "no physical address reported", nil
	}
	return Pass, fmt.Sprintf("%s %s %q", rec.PhysAddr, rec.Version, rec.OSDName), nil
}

func checkPowerStatus(ctx context.Context, env Env) (Code, string, error) {
	res, err := env.Bus.Request(ctx, cec.GiveDevicePowerStatus(env.Self, env.Target),
		cec.OpReportPowerStatus, env.ReplyTimeout)
	if err != nil {
		return Fail, "", err
	}
	code := FromResult(res)
	if code != Pass {
		return code, res.Outcome.String(), nil
	}
	ps, err := cec.ParseReportPowerStatus(res.Reply)
	if err != nil || ps > cec.PowerToStandby {
		return Fail, fmt.Sprintf("invalid power status %s", ps), nil
	}
	return Pass, ps.String(), nil
}

func checkConsistency(_ context.Context, env Env) (Code, string, error) {
	var ie *topology.InconsistentOpcodeError
	if err := env.Table.CheckConsistency(); errors.As(err, &ie) {
		return Fail, ie.Error(), nil
	}
	return Pass, "", nil
}
