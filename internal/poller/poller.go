// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// Client abstracts the transport operation needed by the poller.
type Client interface {
	Transmit(ctx context.Context, msg *cec.Msg) (transport.Result, error)
}

const (
	DefaultLivenessInterval  = 15 * time.Second
	DefaultLivenessThreshold = 3
)

// Config is the minimal runtime config the poller needs.
type Config struct {
	// From is the address polls are sent from.
	From cec.LogicalAddress
	// Own lists every address this adapter has claimed.
	Own cec.LogAddrMask

	// Interval is the presence scan period used by Run.
	Interval time.Duration

	// LivenessInterval is how long a record may stay silent before re-polling.
	LivenessInterval time.Duration
	// LivenessThreshold is the number of consecutive failed polls that
	// removes a record.
	LivenessThreshold int
}

// Poller is a dumb, clock-driven prober of address presence.
type Poller struct {
	cfg    Config
	client Client
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, client Client, log zerolog.Logger) (*Poller, error) {
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if cfg.From > cec.LogAddrUnregistered {
		return nil, errors.New("poller: from address out of range")
	}
	if cfg.Interval < 0 || cfg.LivenessInterval < 0 || cfg.LivenessThreshold < 0 {
		return nil, errors.New("poller: intervals and threshold must be >= 0")
	}
	if cfg.LivenessInterval == 0 {
		cfg.LivenessInterval = DefaultLivenessInterval
	}
	if cfg.LivenessThreshold == 0 {
		cfg.LivenessThreshold = DefaultLivenessThreshold
	}
	if cfg.From.Valid() {
		cfg.Own = cfg.Own.With(cfg.From)
	}
	return &Poller{cfg: cfg, client: client, log: log, now: time.Now}, nil
}

// SetClock replaces the time source stamped on results.
func (p *Poller) SetClock(now func() time.Time) { p.now = now }

// Presence polls all 15 addresses once.
//
// A poll that was acknowledged means present. A poll to one of our own
// addresses is expected to come back NACK|MAX_RETRIES and still means
// present (self). Only fatal transport errors abort the scan.
func (p *Poller) Presence(ctx context.Context) PollResult {
	res := PollResult{At: p.now()}

	for la := cec.LogicalAddress(0); la < cec.NumLogAddrs; la++ {
		r, err := p.client.Transmit(ctx, cec.NewPoll(p.cfg.From, la))
		if err != nil {
			res.Err = err
			return res
		}

		switch {
		case p.cfg.Own.Has(la):
			if !r.TxStatus.OK() && r.TxStatus&cec.TxNACK == 0 {
				p.log.Warn().Str("la", la.String()).Str("tx", r.TxStatus.String()).Msg("self poll: unexpected tx status")
			}
			res.Mask = res.Mask.With(la)
			res.Self = res.Self.With(la)
		case r.TxStatus.OK():
			res.Mask = res.Mask.With(la)
		}
	}

	p.log.Debug().Uint16("mask", uint16(res.Mask)).Msg("presence scan")
	return res
}

// Liveness re-polls every remote record silent for longer than the
// liveness interval. A record whose polls fail LivenessThreshold times in a
// row is removed, which also drops its physical address.
func (p *Poller) Liveness(ctx context.Context, table *topology.Table, now time.Time) (LivenessResult, error) {
	var out LivenessResult

	for _, rec := range table.Snapshot() {
		if rec.Self || now.Sub(rec.LastSeen) <= p.cfg.LivenessInterval {
			continue
		}

		out.Polled = append(out.Polled, rec.LA)
		r, err := p.client.Transmit(ctx, cec.NewPoll(p.cfg.From, rec.LA))
		if err != nil {
			return out, err
		}
		if r.TxStatus.OK() {
			table.Seen(rec.LA)
			continue
		}

		misses := 0
		table.Update(rec.LA, func(r *topology.Record) {
			r.Misses++
			misses = r.Misses
		})
		if misses < p.cfg.LivenessThreshold {
			continue
		}

		table.Remove(rec.LA)
		out.Removed = append(out.Removed, rec.LA)
		p.log.Info().Str("la", rec.LA.String()).Int("misses", misses).Msg("device lost")
	}
	return out, nil
}
