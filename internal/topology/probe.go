// internal/topology/probe.go
package topology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// ErrNoAck is wrapped in ProbeError when a probe request was not acknowledged.
var ErrNoAck = errors.New("topology: request not acknowledged")

// Requester is the slice of the transport the prober needs.
type Requester interface {
	Request(ctx context.Context, msg *cec.Msg, reply cec.Opcode, timeout time.Duration) (transport.Result, error)
}

// ProbeError reports a probe step that failed hard.
type ProbeError struct {
	LA  cec.LogicalAddress
	Op  cec.Opcode
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("topology: probe %s at %s: %v", e.Op, e.LA, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober fills a Record by querying one device.
type Prober struct {
	tr      Requester
	table   *Table
	from    cec.LogicalAddress
	timeout time.Duration
	warn    *diag.Warnings
	log     zerolog.Logger
}

func NewProber(tr Requester, table *Table, from cec.LogicalAddress, timeout time.Duration, warn *diag.Warnings, log zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	if warn == nil {
		warn = diag.NewWarnings(log)
	}
	return &Prober{tr: tr, table: table, from: from, timeout: timeout, warn: warn, log: log}
}

// probeStep is one query of the fixed probe sequence.
type probeStep struct {
	build func(from, to cec.LogicalAddress) *cec.Msg
	reply cec.Opcode
	apply func(p *Prober, r *Record, reply *cec.Msg)
	// when gates the step on what is already known.
	when func(r *Record) bool
}

var probeSteps = []probeStep{
	{build: cec.GetCECVersion, reply: cec.OpCECVersion, apply: applyVersion},
	{build: cec.GivePhysicalAddr, reply: cec.OpReportPhysicalAddr, apply: applyPhysAddr},
	{build: cec.GiveDeviceVendorID, reply: cec.OpDeviceVendorID, apply: applyVendor},
	{build: cec.GiveOSDName, reply: cec.OpSetOSDName, apply: applyOSDName},
	{build: cec.GetMenuLanguage, reply: cec.OpSetMenuLanguage, apply: applyMenuLang},
	{build: cec.GiveDevicePowerStatus, reply: cec.OpReportPowerStatus, apply: applyPower},
	{
		build: cec.GiveFeatures, reply: cec.OpReportFeatures, apply: applyFeatures,
		when: func(r *Record) bool { return r.Version >= cec.Version2_0 },
	},
}

// Probe runs the probe sequence against la and returns the resulting record.
// Timed-out and Feature-Aborted steps leave the capability absent; any
// other failure aborts the probe with a *ProbeError.
func (p *Prober) Probe(ctx context.Context, la cec.LogicalAddress) (Record, error) {
	p.table.Add(la, false)
	log := p.log.With().Str("la", la.String()).Logger()

	for _, step := range probeSteps {
		cur, _ := p.table.Get(la)
		if step.when != nil && !step.when(&cur) {
			continue
		}

		msg := step.build(p.from, la)
		op, _ := msg.Opcode()
		res, err := p.tr.Request(ctx, msg, step.reply, p.timeout)
		if err != nil {
			return cur, &ProbeError{LA: la, Op: op, Err: err}
		}

		switch res.Outcome {
		case transport.OutcomeReplied:
			p.table.Update(la, func(r *Record) {
				step.apply(p, r, res.Reply)
				r.LastSeen = p.table.now()
			})
		case transport.OutcomeTimedOut, transport.OutcomeFeatureAborted:
			log.Debug().Str("op", op.String()).Str("outcome", res.Outcome.String()).Msg("capability absent")
		default:
			return cur, &ProbeError{LA: la, Op: op, Err: fmt.Errorf("%w: tx %s", ErrNoAck, res.TxStatus)}
		}
	}

	r, _ := p.table.Get(la)
	log.Info().
		Str("phys_addr", r.PhysAddr.String()).
		Str("version", r.Version.String()).
		Str("osd", r.OSDName).
		Str("power", r.Power.String()).
		Msg("device probed")
	return r, nil
}

// ClampVersion limits v to [1.3a, 2.0]; ok is false when clamping happened.
func ClampVersion(v cec.Version) (cec.Version, bool) {
	switch {
	case v < cec.Version1_3A:
		return cec.Version1_3A, false
	case v > cec.Version2_0:
		return cec.Version2_0, false
	default:
		return v, true
	}
}

func applyVersion(p *Prober, r *Record, m *cec.Msg) {
	v, err := cec.ParseCECVersion(m)
	if err != nil {
		return
	}
	clamped, ok := ClampVersion(v)
	if !ok {
		p.warn.Warnf("%s reports CEC version %s, treating as %s", r.LA, v, clamped)
	}
	r.RawVersion = v
	r.Version = clamped
}

func applyPhysAddr(_ *Prober, r *Record, m *cec.Msg) {
	pa, dt, err := cec.ParseReportPhysicalAddr(m)
	if err != nil {
		return
	}
	r.PhysAddr = pa
	r.PrimaryType = dt
	if dt == cec.DevTypeAudioSystem {
		r.HasSAC = true
	}
}

func applyVendor(_ *Prober, r *Record, m *cec.Msg) {
	if id, err := cec.ParseDeviceVendorID(m); err == nil {
		r.VendorID = id
	}
}

func applyOSDName(_ *Prober, r *Record, m *cec.Msg) {
	if name, err := cec.ParseOSDName(m); err == nil {
		r.OSDName = name
	}
}

func applyMenuLang(_ *Prober, r *Record, m *cec.Msg) {
	if lang, err := cec.ParseMenuLanguage(m); err == nil {
		r.MenuLang = lang
	}
}

func applyPower(_ *Prober, r *Record, m *cec.Msg) {
	if ps, err := cec.ParseReportPowerStatus(m); err == nil {
		r.Power = ps
		r.HasPowerStatus = true
	}
}

func applyFeatures(_ *Prober, r *Record, m *cec.Msg) {
	f, err := cec.ParseReportFeatures(m)
	if err != nil {
		return
	}
	r.AllDevTypes = f.AllDevTypes
	if f.AllDevTypes&cec.AllDevTypeAudioSys != 0 {
		r.HasSAC = true
	}
	if len(f.DevFeatures) == 0 {
		return
	}
	df := f.DevFeatures[0]
	r.HasARC = df&(cec.DevFeatSinkARCTx|cec.DevFeatSourceARCRx) != 0
	r.HasDeckControl = df&cec.DevFeatDeckControl != 0
	r.HasRecordTVScreen = df&cec.DevFeatRecordTVScreen != 0
	r.HasAudioRate = df&cec.DevFeatSetAudioRate != 0
}
