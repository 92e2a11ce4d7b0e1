// cmd/cec-follower/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/config"
	"github.com/tamzrod/cec-compliance/internal/follower"
	"github.com/tamzrod/cec-compliance/internal/logging"
	"github.com/tamzrod/cec-compliance/internal/monitor"
	"github.com/tamzrod/cec-compliance/internal/poller"
	"github.com/tamzrod/cec-compliance/internal/session"
	"github.com/tamzrod/cec-compliance/internal/writer"
)

func main() {
	boot := logging.New("cec-follower", logging.Config{})
	if len(os.Args) < 2 {
		boot.Fatal().Msg("usage: cec-follower <config.yaml|config.toml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		boot.Fatal().Err(err).Msg("config load failed")
	}
	log := logging.New("cec-follower", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("follower stopped")
	}
	log.Info().Msg("follower shut down")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --------------------
	// Adapter + logical address
	// --------------------

	s, err := session.Build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer s.Close()

	// ---- engine ----
	eng := follower.New(s.EngineOptions(cfg.Device), s.Table, s.Warn, logging.Component(log, "follower"))

	// ---- liveness re-poll ----
	p, err := poller.Build(cfg.Timing, s.Transport, s.LA, s.Adapter.LogAddrs(), log)
	if err != nil {
		return err
	}
	eng.SetLiveness(p)

	hub := monitor.NewHub(logging.Component(log, "monitor"))
	loop := follower.NewLoop(eng, s.Transport, hub, logging.Component(log, "loop"))

	// --------------------
	// Optional outer surfaces
	// --------------------

	if cfg.Monitor.Enabled {
		srv := monitor.NewServer(s.Table, hub, logging.Component(log, "monitor"))
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Monitor.Listen); err != nil {
				log.Error().Err(err).Msg("monitor stopped")
			}
		}()
	}

	if cfg.StatusExport.Enabled {
		w, closeWriter, err := writer.Build(cfg.StatusExport)
		if err != nil {
			return err
		}
		defer closeWriter()
		go writer.Run(ctx, w, s.Table, config.Ms(cfg.StatusExport.IntervalMs), logging.Component(log, "status"))
	}

	return loop.Run(ctx)
}
