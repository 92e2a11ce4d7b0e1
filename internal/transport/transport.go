// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/diag"
)

var (
	// ErrCarrierLost is returned when carrier recovery failed or the carrier
	// dropped a second time within one call.
	ErrCarrierLost = errors.New("transport: carrier lost")
	// ErrReceiveTimeout is returned by Receive when nothing arrived in time.
	ErrReceiveTimeout = errors.New("transport: receive timeout")
)

// Outcome classifies one completed exchange.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeReplied
	OutcomeTimedOut
	OutcomeFeatureAborted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeReplied:
		return "replied"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeFeatureAborted:
		return "feature-aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the structured classification of TransmitWithTimeout.
type Result struct {
	Outcome Outcome
	// Reason is set for OutcomeFeatureAborted.
	Reason cec.AbortReason
	// Reply is the response frame for OutcomeReplied / OutcomeFeatureAborted.
	Reply *cec.Msg
	// ResponseTime is the reply latency minus the frame's own bus time.
	ResponseTime time.Duration
	TxStatus     cec.TxStatus
	RxStatus     cec.RxStatus
	// CarrierRestored is set when the carrier dropped and came back during
	// the exchange. PhysAddr is then the address the adapter came back with.
	CarrierRestored bool
	PhysAddr        cec.PhysAddr
}

// Absent reports whether the peer lacks the capability (timeout or abort).
func (r Result) Absent() bool {
	return r.Outcome == OutcomeTimedOut || r.Outcome == OutcomeFeatureAborted
}

// Recorder receives opcode-recognition bookkeeping.
type Recorder interface {
	MarkRecognized(la cec.LogicalAddress, op cec.Opcode)
	MarkUnrecognized(la cec.LogicalAddress, op cec.Opcode)
}

// Config holds the transport's timing knobs.
type Config struct {
	ResponseThreshold time.Duration
	CarrierWait       time.Duration
	CarrierDeadline   time.Duration
	Backoff           BackoffConfig
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		ResponseThreshold: time.Second,
		CarrierWait:       10 * time.Second,
		CarrierDeadline:   40 * time.Second,
		Backoff:           DefaultBackoff(),
	}
}

// Transport wraps an adapter with request/response semantics.
// Not safe for concurrent use: one sequential driver owns it.
type Transport struct {
	ad    adapter.Adapter
	cfg   Config
	rec   Recorder
	warn  *diag.Warnings
	log   zerolog.Logger
	sleep func(context.Context, time.Duration) error

	lost int
}

// New builds a transport. rec may be nil.
func New(ad adapter.Adapter, cfg Config, rec Recorder, warn *diag.Warnings, log zerolog.Logger) *Transport {
	if cfg.ResponseThreshold <= 0 {
		cfg.ResponseThreshold = DefaultConfig().ResponseThreshold
	}
	if cfg.CarrierWait <= 0 {
		cfg.CarrierWait = DefaultConfig().CarrierWait
	}
	if cfg.CarrierDeadline <= 0 {
		cfg.CarrierDeadline = DefaultConfig().CarrierDeadline
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Transport{ad: ad, cfg: cfg, rec: rec, warn: warn, log: log, sleep: sleepCtx}
}

func (t *Transport) Adapter() adapter.Adapter { return t.ad }

// Lost returns the number of inbound frames the adapter reported dropped.
func (t *Transport) Lost() int { return t.lost }

// TransmitWithTimeout sends msg. A non-zero timeout asks for msg.Reply.
//
// Expected outcomes (NACK, timeout, Feature Abort) are classified in Result.
// Errors are fatal: adapter.ErrDisconnected, ErrCarrierLost or ctx.Err().
func (t *Transport) TransmitWithTimeout(ctx context.Context, msg *cec.Msg, timeout time.Duration) (Result, error) {
	if timeout > 0 && !msg.IsBroadcast() && !msg.IsPoll() {
		msg.WantReply = true
		msg.Timeout = timeout
	}

	recovered := false
	restored := cec.PhysAddrInvalid
	attempt := 0
	for {
		err := t.ad.Transmit(ctx, msg)
		switch {
		case err == nil:
			res := t.classify(msg)
			if recovered {
				res.CarrierRestored = true
				res.PhysAddr = restored
			}
			return res, nil

		case errors.Is(err, adapter.ErrBusy):
			attempt++
			if serr := t.sleep(ctx, NextBackoffDelay(t.cfg.Backoff, attempt)); serr != nil {
				return Result{}, serr
			}

		case errors.Is(err, adapter.ErrNoCarrier):
			if recovered {
				return Result{}, fmt.Errorf("%w: lost again after recovery", ErrCarrierLost)
			}
			pa, rerr := t.recoverCarrier(ctx, msg.Initiator())
			if rerr != nil {
				return Result{}, rerr
			}
			recovered = true
			restored = pa

		default:
			return Result{}, err
		}
	}
}

// Transmit is TransmitWithTimeout without a reply.
func (t *Transport) Transmit(ctx context.Context, msg *cec.Msg) (Result, error) {
	return t.TransmitWithTimeout(ctx, msg, 0)
}

// Request sends msg expecting reply within timeout.
func (t *Transport) Request(ctx context.Context, msg *cec.Msg, reply cec.Opcode, timeout time.Duration) (Result, error) {
	msg.Reply = reply
	return t.TransmitWithTimeout(ctx, msg, timeout)
}

func (t *Transport) classify(msg *cec.Msg) Result {
	res := Result{TxStatus: msg.TxStatus, RxStatus: msg.RxStatus, Reply: msg.Response}

	if !msg.TxStatus.OK() {
		res.Outcome = OutcomeFailed
		return res
	}
	if !msg.WantReply {
		res.Outcome = OutcomeOK
		return res
	}

	switch {
	case msg.RxStatus&cec.RxFeatureAbort != 0:
		res.Outcome = OutcomeFeatureAborted
		if msg.Response != nil {
			if _, reason, err := cec.ParseFeatureAbort(msg.Response); err == nil {
				res.Reason = reason
			}
		}
	case msg.RxStatus&cec.RxTimeout != 0:
		res.Outcome = OutcomeTimedOut
	case msg.RxStatus.OK():
		res.Outcome = OutcomeReplied
	default:
		res.Outcome = OutcomeTimedOut
	}

	if msg.RxStatus.OK() {
		res.ResponseTime = ResponseTime(msg)
		if res.ResponseTime > t.cfg.ResponseThreshold {
			t.warnf("%s to %s: reply took %dms (threshold %dms)",
				opName(msg), msg.Destination(), res.ResponseTime.Milliseconds(), t.cfg.ResponseThreshold.Milliseconds())
		}
		t.bookkeep(msg)
	}
	return res
}

// ResponseTime estimates the peer's processing time for msg's reply.
func ResponseTime(msg *cec.Msg) time.Duration {
	if msg.RxTimestamp.IsZero() || msg.TxTimestamp.IsZero() {
		return 0
	}
	elapsed := msg.RxTimestamp.Sub(msg.TxTimestamp) - (time.Duration(msg.Len())*cec.ByteTime + cec.StartBitTime)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// bookkeep records whether the destination recognized msg's opcode.
func (t *Transport) bookkeep(msg *cec.Msg) {
	if t.rec == nil || msg.IsBroadcast() || msg.IsPoll() {
		return
	}
	if msg.Initiator() == cec.LogAddrUnregistered || msg.Destination() == cec.LogAddrUnregistered {
		return
	}
	if !msg.TxStatus.OK() || !msg.RxStatus.OK() {
		return
	}
	op, _ := msg.Opcode()
	if msg.Response != nil {
		if _, reason, err := cec.ParseFeatureAbort(msg.Response); err == nil {
			t.noteAbort(msg.Destination(), op, reason)
			return
		}
	}
	t.rec.MarkRecognized(msg.Destination(), op)
}

// NoteFeatureAbort applies recognition bookkeeping to an inbound Feature Abort
// answering a message this side sent.
func (t *Transport) NoteFeatureAbort(in *cec.Msg) {
	if t.rec == nil || in.IsBroadcast() || in.Initiator() == cec.LogAddrUnregistered {
		return
	}
	op, reason, err := cec.ParseFeatureAbort(in)
	if err != nil {
		return
	}
	t.noteAbort(in.Initiator(), op, reason)
}

func (t *Transport) noteAbort(la cec.LogicalAddress, op cec.Opcode, reason cec.AbortReason) {
	switch reason {
	case cec.AbortUndetermined:
		t.warnf("%s answered %s with Feature Abort [Undetermined]", la, op)
		t.rec.MarkUnrecognized(la, op)
	case cec.AbortUnrecognizedOp:
		t.rec.MarkUnrecognized(la, op)
	default:
		t.rec.MarkRecognized(la, op)
	}
}

// Receive waits up to timeout for the next inbound frame. LostMessages
// events seen meanwhile are counted and warned about.
func (t *Transport) Receive(ctx context.Context, timeout time.Duration) (*cec.Msg, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-t.ad.Messages():
			if !ok {
				return nil, adapter.ErrDisconnected
			}
			return m, nil
		case ev, ok := <-t.ad.Events():
			if !ok {
				return nil, adapter.ErrDisconnected
			}
			t.HandleEvent(ev)
		case <-timer.C:
			return nil, ErrReceiveTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// HandleEvent surfaces adapter events that must never pass silently.
// It reports whether ev carried a valid physical address.
func (t *Transport) HandleEvent(ev adapter.Event) bool {
	switch ev.Kind {
	case adapter.EventLostMessages:
		t.lost += ev.Lost
		t.warnf("adapter dropped %d inbound message(s) (%d total)", ev.Lost, t.lost)
	case adapter.EventStateChange:
		t.log.Info().Str("phys_addr", ev.PhysAddr.String()).Uint16("log_addrs", uint16(ev.LogAddrs)).Msg("adapter state change")
		return ev.PhysAddr.Valid()
	}
	return false
}

func (t *Transport) warnf(format string, args ...any) {
	if t.warn != nil {
		t.warn.Warnf(format, args...)
		return
	}
	t.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func opName(msg *cec.Msg) string {
	if op, ok := msg.Opcode(); ok {
		return op.String()
	}
	return "poll"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
