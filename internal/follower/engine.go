// internal/follower/engine.go
package follower

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
	"github.com/tamzrod/cec-compliance/internal/poller"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// Options describes the emulated device.
type Options struct {
	Type         cec.DeviceType
	LA           cec.LogicalAddress
	PhysAddr     cec.PhysAddr
	Version      cec.Version
	VendorID     uint32
	OSDName      string
	MenuLanguage string

	ARC bool
	SAC bool

	TunerReportChanges bool
}

// AbortNoter applies opcode-recognition bookkeeping to an inbound Feature Abort.
type AbortNoter interface {
	NoteFeatureAbort(in *cec.Msg)
}

// LivenessChecker re-polls silent devices.
type LivenessChecker interface {
	Liveness(ctx context.Context, table *topology.Table, now time.Time) (poller.LivenessResult, error)
}

// addressing is the set of destination kinds a handler accepts.
type addressing uint8

const (
	directed addressing = 1 << iota
	broadcast
	either = directed | broadcast
)

type handlerFunc func(e *Engine, m *cec.Msg, now time.Time) *cec.Msg

type handler struct {
	fn     handlerFunc
	addr   addressing
	minOps int
}

// Engine is the responder side of one emulated device.
// It is not safe for concurrent use; one dispatch path owns it.
type Engine struct {
	opts Options
	la   cec.LogicalAddress
	pa   cec.PhysAddr
	st   State

	table *topology.Table
	warn  *diag.Warnings
	log   zerolog.Logger
	now   func() time.Time

	handlers map[cec.Opcode]handler

	aborts       AbortNoter
	live         LivenessChecker
	lastLiveness time.Time
}

// New builds an engine for opts. table receives what is learned about
// other devices; warn counts protocol warnings.
func New(opts Options, table *topology.Table, warn *diag.Warnings, log zerolog.Logger) *Engine {
	if opts.Version == 0 {
		opts.Version = cec.Version1_4
	}
	if opts.MenuLanguage == "" {
		opts.MenuLanguage = "eng"
	}
	if table == nil {
		table = topology.NewTable()
	}
	if warn == nil {
		warn = diag.NewWarnings(log)
	}

	e := &Engine{
		opts:     opts,
		la:       opts.LA,
		pa:       opts.PhysAddr,
		st:       newState(opts),
		table:    table,
		warn:     warn,
		log:      log,
		now:      time.Now,
		handlers: make(map[cec.Opcode]handler),
	}

	e.registerInfo()
	e.registerPower()
	e.registerRouting()
	e.registerRC()
	e.registerCDC()
	if opts.ARC {
		e.registerARC()
	}
	e.registerSAC()
	if e.hasTuner() {
		e.registerTuner()
	}
	if opts.Type == cec.DevTypeRecord {
		e.registerTimers()
	}

	table.Add(e.la, true)
	table.Update(e.la, func(r *topology.Record) {
		r.PhysAddr = e.pa
		r.PrimaryType = opts.Type
		r.Version = opts.Version
		r.VendorID = opts.VendorID
		r.OSDName = opts.OSDName
	})
	return e
}

// SetClock replaces the time source used by Dispatch.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) SetAbortNoter(n AbortNoter) { e.aborts = n }

func (e *Engine) SetLiveness(l LivenessChecker) { e.live = l }

// SetPhysAddr follows an adapter state change.
func (e *Engine) SetPhysAddr(pa cec.PhysAddr) {
	e.pa = pa
	e.table.Update(e.la, func(r *topology.Record) { r.PhysAddr = pa })
}

func (e *Engine) LogicalAddress() cec.LogicalAddress { return e.la }

func (e *Engine) PhysAddr() cec.PhysAddr { return e.pa }

func (e *Engine) Table() *topology.Table { return e.table }

func (e *Engine) Warnings() *diag.Warnings { return e.warn }

// State returns a copy of the device state.
func (e *Engine) State() State { return e.st }

func (e *Engine) on(op cec.Opcode, addr addressing, minOps int, fn handlerFunc) {
	e.handlers[op] = handler{fn: fn, addr: addr, minOps: minOps}
}

// Handles reports whether op has a handler for this device.
func (e *Engine) Handles(op cec.Opcode) bool {
	_, ok := e.handlers[op]
	return ok
}

// Dispatch handles one inbound message and returns the reply, if any.
//
// Replies carry InReplyTo = m.Sequence. Unhandled directed opcodes are
// answered with Feature Abort [Unrecognized Opcode]; unhandled broadcasts
// and messages with the wrong addressing are dropped.
func (e *Engine) Dispatch(m *cec.Msg) *cec.Msg {
	if m == nil || m.IsPoll() {
		return nil
	}
	reply := e.dispatch(m)
	if reply != nil {
		reply.InReplyTo = m.Sequence
	}
	return reply
}

func (e *Engine) dispatch(m *cec.Msg) *cec.Msg {
	from := m.Initiator()
	if from == e.la {
		return nil
	}
	bcast := m.IsBroadcast()
	if !bcast && m.Destination() != e.la {
		return nil
	}

	now := e.now()
	if from.Valid() {
		e.table.Add(from, false)
	}

	op, _ := m.Opcode()
	h, ok := e.handlers[op]
	if !ok {
		if bcast {
			return nil
		}
		return e.abort(m, cec.AbortUnrecognizedOp)
	}

	if (bcast && h.addr&broadcast == 0) || (!bcast && h.addr&directed == 0) {
		e.log.Debug().Str("op", op.String()).Bool("broadcast", bcast).Msg("wrong addressing, ignored")
		return nil
	}
	if len(m.Operands()) < h.minOps {
		if bcast {
			return nil
		}
		return e.abort(m, cec.AbortInvalidOp)
	}

	return h.fn(e, m, now)
}

// abort answers m with Feature Abort. Nothing is sent to Unregistered.
func (e *Engine) abort(m *cec.Msg, reason cec.AbortReason) *cec.Msg {
	if m.Initiator() == cec.LogAddrUnregistered {
		return nil
	}
	op, _ := m.Opcode()
	r := cec.FeatureAbort(e.la, m.Initiator(), op, reason)
	r.InReplyTo = m.Sequence
	return r
}

// Housekeeping runs the time-based work of one loop iteration: settle the
// power window, force-end a stale RC press and re-poll silent devices.
// Only fatal transport errors are returned.
func (e *Engine) Housekeeping(ctx context.Context, now time.Time) error {
	e.settlePower(now)
	e.expirePress(now)

	if e.live == nil || now.Sub(e.lastLiveness) < time.Second {
		return nil
	}
	e.lastLiveness = now
	res, err := e.live.Liveness(ctx, e.table, now)
	if err != nil {
		return err
	}
	for _, la := range res.Removed {
		if e.st.ActiveSourceLA == la {
			e.st.ActiveSource = cec.PhysAddrInvalid
			e.st.ActiveSourceLA = cec.LogAddrUnregistered
		}
	}
	return nil
}

// Announce returns the broadcasts a device sends after claiming its address.
func (e *Engine) Announce() []*cec.Msg {
	out := []*cec.Msg{cec.ReportPhysicalAddr(e.la, e.pa, e.opts.Type)}
	if e.opts.VendorID <= 0xFFFFFF {
		out = append(out, cec.DeviceVendorID(e.la, e.opts.VendorID))
	}
	if e.opts.Version >= cec.Version2_0 {
		out = append(out, e.reportFeatures())
	}
	return out
}

func (e *Engine) isTV() bool { return e.opts.Type == cec.DevTypeTV }

func (e *Engine) isAudioSystem() bool { return e.opts.Type == cec.DevTypeAudioSystem }

func (e *Engine) hasTuner() bool {
	switch e.opts.Type {
	case cec.DevTypeTV, cec.DevTypeTuner, cec.DevTypeRecord:
		return true
	}
	return false
}
