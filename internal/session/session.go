// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/adapter/loopback"
	"github.com/tamzrod/cec-compliance/internal/adapter/serial"
	"github.com/tamzrod/cec-compliance/internal/cec"
	cfg "github.com/tamzrod/cec-compliance/internal/config"
	"github.com/tamzrod/cec-compliance/internal/diag"
	"github.com/tamzrod/cec-compliance/internal/follower"
	"github.com/tamzrod/cec-compliance/internal/topology"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// ErrNoFreeAddress means every logical address for the device type is taken.
var ErrNoFreeAddress = errors.New("session: no free logical address")

// Session is one configured adapter with its transport and claimed address.
type Session struct {
	Adapter   adapter.Adapter
	Transport *transport.Transport
	Table     *topology.Table
	Warn      *diag.Warnings

	Type     cec.DeviceType
	LA       cec.LogicalAddress
	PhysAddr cec.PhysAddr
}

// Build opens the adapter named by c.Adapter, applies mode and physical
// address, then claims a logical address. bus is used by the loopback
// driver; nil gives the session a bus of its own.
// Assumes config has already passed validation.
func Build(ctx context.Context, c *cfg.Config, bus *loopback.Bus, log zerolog.Logger) (*Session, error) {
	dt, _ := cec.ParseDeviceType(c.Device.Type)
	pa := defaultPhysAddr(dt)
	if c.Adapter.PhysAddr != "" {
		p, err := cec.ParsePhysAddr(c.Adapter.PhysAddr)
		if err != nil {
			return nil, err
		}
		pa = p
	}

	// ---- adapter ----
	var ad adapter.Adapter
	switch c.Adapter.Driver {
	case "loopback":
		if bus == nil {
			bus = loopback.NewBus()
		}
		name := c.Device.OSDName
		if name == "" {
			name = dt.String()
		}
		ad = bus.Attach(name, pa)
	default:
		s, err := serial.Open(serial.Config{
			Device:      c.Adapter.Device,
			BaudRate:    c.Adapter.BaudRate,
			ReadTimeout: cfg.Ms(c.Adapter.ReadTimeoutMs),
			TxTimeout:   cfg.Ms(c.Adapter.TxTimeoutMs),
			PhysAddr:    pa,
		}, log.With().Str("component", "serial").Logger())
		if err != nil {
			return nil, fmt.Errorf("session: open %s: %w", c.Adapter.Device, err)
		}
		ad = s
	}

	s, err := setup(ctx, c, ad, dt, pa, log)
	if err != nil {
		_ = ad.Close()
		return nil, err
	}
	return s, nil
}

func setup(ctx context.Context, c *cfg.Config, ad adapter.Adapter, dt cec.DeviceType, pa cec.PhysAddr, log zerolog.Logger) (*Session, error) {
	mode, _ := adapter.ParseMode(c.Adapter.Mode)
	if err := ad.SetMode(mode); err != nil {
		return nil, err
	}
	if err := ad.SetPhysAddr(pa); err != nil && !errors.Is(err, adapter.ErrUnsupported) {
		return nil, err
	}

	table := topology.NewTable()
	warn := diag.NewWarnings(log)
	tr := transport.New(ad, transport.Config{
		ResponseThreshold: cfg.Ms(c.Timing.ResponseThresholdMs),
		CarrierWait:       cfg.Ms(c.Timing.CarrierWaitMs),
		CarrierDeadline:   cfg.Ms(c.Timing.CarrierDeadlineMs),
	}, table, warn, log.With().Str("component", "transport").Logger())

	// ---- logical address ----
	var la cec.LogicalAddress
	if c.Device.LogicalAddress != nil {
		la = cec.LogicalAddress(*c.Device.LogicalAddress)
	} else {
		claimed, err := follower.Claim(ctx, tr, dt)
		if err != nil {
			return nil, err
		}
		if claimed == cec.LogAddrUnregistered {
			return nil, fmt.Errorf("%w for %s", ErrNoFreeAddress, dt)
		}
		la = claimed
	}
	if err := ad.SetLogAddrs(cec.LogAddrMask(0).With(la)); err != nil {
		return nil, err
	}

	log.Info().
		Str("driver", ad.Caps().Driver).
		Str("type", dt.String()).
		Str("la", la.String()).
		Str("phys_addr", pa.String()).
		Str("mode", mode.String()).
		Msg("adapter ready")

	return &Session{
		Adapter:   ad,
		Transport: tr,
		Table:     table,
		Warn:      warn,
		Type:      dt,
		LA:        la,
		PhysAddr:  pa,
	}, nil
}

// EngineOptions maps the device section onto follower options for s.
func (s *Session) EngineOptions(d cfg.DeviceConfig) follower.Options {
	v, _ := cec.ParseVersion(d.Version)
	return follower.Options{
		Type:               s.Type,
		LA:                 s.LA,
		PhysAddr:           s.PhysAddr,
		Version:            v,
		VendorID:           d.VendorID,
		OSDName:            d.OSDName,
		MenuLanguage:       d.MenuLanguage,
		ARC:                d.ARC,
		SAC:                d.SAC,
		TunerReportChanges: d.TunerReportChanges,
	}
}

func (s *Session) Close() error { return s.Adapter.Close() }

// defaultPhysAddr puts a TV at the root and everything else on its first input.
func defaultPhysAddr(dt cec.DeviceType) cec.PhysAddr {
	if dt == cec.DevTypeTV {
		return cec.PhysAddrRoot
	}
	return 0x1000
}
