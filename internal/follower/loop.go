// internal/follower/loop.go
package follower

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/transport"
)

// Direction tags traffic handed to a Publisher.
type Direction string

const (
	DirRx Direction = "rx"
	DirTx Direction = "tx"
)

// Publisher receives bus traffic, adapter events and state snapshots.
// Calls come from the loop goroutine and must not block.
type Publisher interface {
	Traffic(dir Direction, m *cec.Msg)
	Event(ev adapter.Event)
	Snapshot(s Snapshot)
}

// DefaultTick is the housekeeping cadence.
const DefaultTick = time.Second

// Loop drives one Engine from one adapter handle.
type Loop struct {
	eng  *Engine
	tr   *transport.Transport
	pub  Publisher
	log  zerolog.Logger
	tick time.Duration

	snap atomic.Pointer[Snapshot]
}

// NewLoop wires eng to tr. pub may be nil.
func NewLoop(eng *Engine, tr *transport.Transport, pub Publisher, log zerolog.Logger) *Loop {
	eng.SetAbortNoter(tr)
	return &Loop{eng: eng, tr: tr, pub: pub, log: log, tick: DefaultTick}
}

// Snapshot returns the last published state.
func (l *Loop) Snapshot() (Snapshot, bool) {
	s := l.snap.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Run announces the device, then handles inbound messages and adapter
// events in arrival order. Housekeeping runs on every iteration and at
// least once per tick. Returns on ctx cancel or a fatal transport error.
func (l *Loop) Run(ctx context.Context) error {
	ad := l.tr.Adapter()

	for _, m := range l.eng.Announce() {
		if err := l.send(ctx, m); err != nil {
			return err
		}
	}
	l.publish(l.eng.now())

	timer := time.NewTimer(l.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m, ok := <-ad.Messages():
			if !ok {
				return adapter.ErrDisconnected
			}
			if err := l.handle(ctx, m); err != nil {
				return err
			}

		case ev, ok := <-ad.Events():
			if !ok {
				return adapter.ErrDisconnected
			}
			l.handleEvent(ev)

		case <-timer.C:
		}

		now := l.eng.now()
		if err := l.eng.Housekeeping(ctx, now); err != nil {
			return err
		}
		// liveness transmits may have recovered the carrier too
		l.syncPhysAddr(l.tr.Adapter().PhysAddr())
		l.publish(now)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.tick)
	}
}

func (l *Loop) handle(ctx context.Context, m *cec.Msg) error {
	if l.pub != nil {
		l.pub.Traffic(DirRx, m)
	}
	reply := l.eng.Dispatch(m)
	if reply == nil {
		return nil
	}
	return l.send(ctx, reply)
}

func (l *Loop) handleEvent(ev adapter.Event) {
	if l.tr.HandleEvent(ev) {
		l.eng.SetPhysAddr(ev.PhysAddr)
	}
	if l.pub != nil {
		l.pub.Event(ev)
	}
}

// send transmits m. Only fatal transport errors are returned; a NACKed
// reply is logged and dropped.
func (l *Loop) send(ctx context.Context, m *cec.Msg) error {
	res, err := l.tr.Transmit(ctx, m)
	if err != nil {
		return err
	}
	if res.CarrierRestored {
		l.syncPhysAddr(res.PhysAddr)
	}
	if l.pub != nil {
		l.pub.Traffic(DirTx, m)
	}
	if res.Outcome == transport.OutcomeFailed {
		l.log.Warn().Str("msg", m.String()).Str("tx", res.TxStatus.String()).Msg("transmit failed")
	}
	return nil
}

// syncPhysAddr adopts pa after a carrier recovery. The state-change event
// that carried it was consumed by the transport.
func (l *Loop) syncPhysAddr(pa cec.PhysAddr) {
	if !pa.Valid() || pa == l.eng.PhysAddr() {
		return
	}
	l.log.Info().Stringer("old", l.eng.PhysAddr()).Stringer("new", pa).Msg("physical address changed during carrier recovery")
	l.eng.SetPhysAddr(pa)
}

func (l *Loop) publish(now time.Time) {
	s := l.eng.Snapshot(now)
	l.snap.Store(&s)
	if l.pub != nil {
		l.pub.Snapshot(s)
	}
}
