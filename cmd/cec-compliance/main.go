// cmd/cec-compliance/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter/loopback"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/config"
	"github.com/tamzrod/cec-compliance/internal/follower"
	"github.com/tamzrod/cec-compliance/internal/harness"
	"github.com/tamzrod/cec-compliance/internal/logging"
	"github.com/tamzrod/cec-compliance/internal/poller"
	"github.com/tamzrod/cec-compliance/internal/session"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

func main() {
	// report goes to stdout, logs to stderr
	boot := logging.NewWriter(os.Stderr, "cec-compliance", logging.Config{})
	if len(os.Args) < 2 {
		boot.Fatal().Msg("usage: cec-compliance <config.yaml|config.toml> [watch]")
	}
	watch := len(os.Args) > 2 && os.Args[2] == "watch"

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		boot.Fatal().Err(err).Msg("config load failed")
	}
	log := logging.NewWriter(os.Stderr, "cec-compliance", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passed, err := run(ctx, cfg, watch, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("run aborted")
	}
	if !passed {
		stop()
		os.Exit(1)
	}
}

func writeReport(rep harness.Report, log zerolog.Logger) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Error().Err(err).Msg("report write failed")
	}
}

// run executes the core checks and writes the report. With watch set it then
// keeps scanning for presence changes until ctx ends.
func run(ctx context.Context, cfg *config.Config, watch bool, log zerolog.Logger) (bool, error) {
	var bus *loopback.Bus
	if cfg.Adapter.Driver == "loopback" {
		bus = loopback.NewBus()
		stopDUT, err := startEmulatedTV(ctx, cfg, bus, log)
		if err != nil {
			return false, err
		}
		defer stopDUT()
	}

	s, err := session.Build(ctx, cfg, bus, log)
	if err != nil {
		return false, err
	}
	defer s.Close()

	p, err := poller.Build(cfg.Timing, s.Transport, s.LA, s.Adapter.LogAddrs(), log)
	if err != nil {
		return false, err
	}
	replyTimeout := config.Ms(cfg.Timing.ReplyTimeoutMs)

	env := harness.Env{
		Bus:          s.Transport,
		Self:         s.LA,
		Table:        s.Table,
		Poller:       p,
		Prober:       topology.NewProber(s.Transport, s.Table, s.LA, replyTimeout, s.Warn, logging.Component(log, "probe")),
		ReplyTimeout: replyTimeout,
		Warn:         s.Warn,
		Log:          logging.Component(log, "harness"),
	}

	rep, err := harness.NewRunner(env, harness.CoreChecks(), config.Ms(cfg.Timing.TestTimeoutMs)).Run(ctx)
	writeReport(rep, log)
	if err != nil || !watch {
		return rep.Passed(), err
	}

	log.Info().Msg("watching for presence changes")
	return rep.Passed(), watchPresence(ctx, p, s.Table, logging.Component(log, "watch"))
}

// watchPresence mirrors presence scans into table and logs every device
// that appears or disappears. The poller is the only user of the transport
// while it runs.
func watchPresence(ctx context.Context, p *poller.Poller, table *topology.Table, log zerolog.Logger) error {
	out := make(chan poller.PollResult)
	go p.Run(ctx, out)

	var prev cec.LogAddrMask
	for _, r := range table.Snapshot() {
		if !r.Self {
			prev = prev.With(r.LA)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-out:
			if res.Err != nil {
				return res.Err
			}
			cur := res.Remote()
			for la := cec.LogicalAddress(0); la < cec.NumLogAddrs; la++ {
				switch {
				case cur.Has(la) && !prev.Has(la):
					table.Add(la, false)
					log.Info().Str("la", la.String()).Msg("device appeared")
				case !cur.Has(la) && prev.Has(la):
					table.Remove(la)
					log.Warn().Str("la", la.String()).Msg("device gone")
				case cur.Has(la):
					table.Seen(la)
				}
			}
			prev = cur
		}
	}
}

// startEmulatedTV puts a follower TV on the loopback bus so a run has a
// device under test without hardware.
func startEmulatedTV(ctx context.Context, cfg *config.Config, bus *loopback.Bus, log zerolog.Logger) (func(), error) {
	tvCfg := *cfg
	tvCfg.Adapter.PhysAddr = ""
	tvCfg.Adapter.Mode = ""
	tvCfg.Device = config.DeviceConfig{Type: "tv", OSDName: "TV"}
	config.Normalize(&tvCfg)

	dutLog := log.With().Str("dut", "tv").Logger()
	s, err := session.Build(ctx, &tvCfg, bus, dutLog)
	if err != nil {
		return nil, err
	}

	eng := follower.New(s.EngineOptions(tvCfg.Device), s.Table, s.Warn, logging.Component(dutLog, "follower"))
	loop := follower.NewLoop(eng, s.Transport, nil, logging.Component(dutLog, "loop"))

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			dutLog.Error().Err(err).Msg("emulated tv stopped")
		}
	}()

	return func() {
		cancel()
		<-done
		_ = s.Close()
	}, nil
}
