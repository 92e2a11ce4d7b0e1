// internal/harness/runner.go
package harness

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
	"github.com/tamzrod/cec-compliance/internal/poller"
	"github.com/tamzrod/cec-compliance/internal/topology"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// DefaultTestTimeout bounds a single check.
const DefaultTestTimeout = 30 * time.Second

// Bus is the slice of the transport checks use.
type Bus interface {
	Transmit(ctx context.Context, msg *cec.Msg) (transport.Result, error)
	Request(ctx context.Context, msg *cec.Msg, reply cec.Opcode, timeout time.Duration) (transport.Result, error)
}

// Env is what a check can reach. Target is set for per-device checks.
type Env struct {
	Bus          Bus
	Self         cec.LogicalAddress
	Table        *topology.Table
	Poller       *poller.Poller
	Prober       *topology.Prober
	ReplyTimeout time.Duration
	Warn         *diag.Warnings
	Log          zerolog.Logger

	Target cec.LogicalAddress
}

// CheckFunc returns the verdict and a short detail. A non-nil error is
// fatal and stops the run.
type CheckFunc func(ctx context.Context, env Env) (Code, string, error)

// Check is one named test. PerDevice checks run once for every remote
// address in the table.
type Check struct {
	Name      string
	PerDevice bool
	Run       CheckFunc
}

// Runner executes checks one after another.
type Runner struct {
	env     Env
	checks  []Check
	timeout time.Duration
	now     func() time.Time
}

func NewRunner(env Env, checks []Check, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	if env.Warn == nil {
		env.Warn = diag.NewWarnings(env.Log)
	}
	if env.Table == nil {
		env.Table = topology.NewTable()
	}
	return &Runner{env: env, checks: checks, timeout: timeout, now: time.Now}
}

// SetClock replaces the time source used for report timestamps.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes every check. The report is returned even when a fatal
// error cut the run short.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: r.now()}
	warnBase := r.env.Warn.Count()
	log := r.env.Log.With().Str("run", rep.RunID).Logger()

	finish := func(err error) (Report, error) {
		rep.Finished = r.now()
		rep.Warnings = r.env.Warn.Count() - warnBase
		log.Info().
			Int("pass", rep.Count(Pass)).
			Int("fail", rep.Count(Fail)).
			Int("warnings", rep.Warnings).
			Msg("run finished")
		return rep, err
	}

	for _, c := range r.checks {
		targets := []cec.LogicalAddress{cec.LogAddrUnregistered}
		if c.PerDevice {
			targets = r.remotes()
		}
		for _, la := range targets {
			env := r.env
			env.Target = la
			res, err := r.runOne(ctx, c, env)
			if err != nil {
				return finish(err)
			}
			if c.PerDevice {
				res.Target = la.String()
			}
			rep.Results = append(rep.Results, res)

			ev := log.Info()
			if res.Code == Fail {
				ev = log.Warn()
			}
			ev.Str("check", res.Check).Str("target", res.Target).Str("result", res.Code.String()).
				Str("detail", res.Detail).Msg("check done")
		}
	}
	return finish(nil)
}

func (r *Runner) runOne(ctx context.Context, c Check, env Env) (Result, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	code, detail, err := c.Run(tctx, env)
	res := Result{Check: c.Name, Code: code, Detail: detail, Duration: r.now().Sub(start)}

	if err != nil {
		// the per-check deadline fails the check, not the run
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			res.Code = Fail
			res.Detail = "timed out after " + r.timeout.String()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func (r *Runner) remotes() []cec.LogicalAddress {
	var out []cec.LogicalAddress
	for _, rec := range r.env.Table.Snapshot() {
		if !rec.Self && rec.LA != r.env.Self {
			out = append(out, rec.LA)
		}
	}
	return out
}
