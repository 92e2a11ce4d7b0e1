// internal/adapter/serial/adapter.go
package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	goserial "github.com/goburrow/serial"
	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
)

// Config describes the USB-CEC dongle port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
	// TxTimeout bounds the wait for the dongle's transmit result.
	TxTimeout time.Duration
	PhysAddr  cec.PhysAddr
}

const (
	defaultBaudRate    = 38400
	defaultReadTimeout = 50 * time.Millisecond
	defaultTxTimeout   = time.Second
)

// Adapter drives a Pulse-Eight style USB-CEC dongle.
// It implements adapter.Adapter.
type Adapter struct {
	port io.ReadWriteCloser
	cfg  Config
	log  zerolog.Logger

	// slots bounds outstanding transmits; a full queue is adapter.ErrBusy.
	slots chan struct{}
	// writeMu serializes transmits on the wire.
	writeMu sync.Mutex
	results chan frame

	mu      sync.Mutex
	pa      cec.PhysAddr
	las     cec.LogAddrMask
	mode    adapter.Mode
	seq     uint32
	waiters []*waiter
	closed  bool
	lost    int

	rx       []byte
	messages chan *cec.Msg
	events   chan adapter.Event
}

type waiter struct {
	sent *cec.Msg
	ch   chan *cec.Msg
}

var _ adapter.Adapter = (*Adapter)(nil)

// Open opens the serial device and starts the reader.
func Open(cfg Config, log zerolog.Logger) (*Adapter, error) {
	cfg = withDefaults(cfg)
	port, err := goserial.Open(&goserial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return New(port, cfg, log), nil
}

// New wraps an already open port. Used directly by tests.
func New(port io.ReadWriteCloser, cfg Config, log zerolog.Logger) *Adapter {
	cfg = withDefaults(cfg)
	a := &Adapter{
		port:     port,
		cfg:      cfg,
		log:      log,
		slots:    make(chan struct{}, adapter.OutboundQueueSize),
		results:  make(chan frame, 32),
		pa:       cfg.PhysAddr,
		mode:     adapter.ModeInitiator,
		messages: make(chan *cec.Msg, 64),
		events:   make(chan adapter.Event, 16),
	}
	go a.readLoop()
	return a
}

func withDefaults(cfg Config) Config {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	return cfg
}

// ------------------------------------------------------------
// Transmit
// ------------------------------------------------------------

func (a *Adapter) Transmit(ctx context.Context, msg *cec.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.isClosed() {
		return adapter.ErrDisconnected
	}

	select {
	case a.slots <- struct{}{}:
	default:
		return adapter.ErrBusy
	}
	defer func() { <-a.slots }()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.drainResults()

	a.mu.Lock()
	a.seq++
	msg.Sequence = a.seq
	msg.TxTimestamp = time.Now()
	msg.TxStatus, msg.RxStatus, msg.Response = 0, 0, nil
	var w *waiter
	if msg.WantReply && !msg.IsBroadcast() {
		w = &waiter{sent: msg, ch: make(chan *cec.Msg, 1)}
		a.waiters = append(a.waiters, w)
	}
	a.mu.Unlock()

	status, err := a.send(ctx, msg)
	msg.TxStatus = status
	if err != nil || !status.OK() || w == nil {
		if w != nil {
			a.dropWaiter(w)
		}
		return err
	}

	a.waitReply(ctx, w, msg.Timeout)
	return nil
}

// send writes the frame byte by byte and waits for the dongle's verdict.
func (a *Adapter) send(ctx context.Context, msg *cec.Msg) (cec.TxStatus, error) {
	var polarity byte
	if msg.IsBroadcast() {
		polarity = 1
	}
	out := encode(codeTransmitAckPol, polarity)

	raw := msg.Bytes()
	for i, b := range raw {
		code := codeTransmit
		if i == len(raw)-1 {
			code = codeTransmitEOM
		}
		out = append(out, encode(code, b)...)
	}

	if _, err := a.port.Write(out); err != nil {
		a.fail(err)
		return 0, adapter.ErrDisconnected
	}

	timer := time.NewTimer(a.cfg.TxTimeout)
	defer timer.Stop()
	for {
		select {
		case f := <-a.results:
			switch f.code {
			case codeCommandAccepted:
				continue
			case codeTransmitSucceeded:
				return cec.TxOK, nil
			case codeTransmitFailedAck:
				return cec.TxNACK | cec.TxMaxRetries, nil
			case codeTransmitFailedLine:
				return cec.TxArbLost | cec.TxMaxRetries, nil
			case codeTransmitFailedData, codeTransmitFailedTmo, codeCommandRejected:
				return cec.TxError | cec.TxMaxRetries, nil
			}
		case <-timer.C:
			a.log.Warn().Str("msg", msg.String()).Msg("no transmit result from dongle")
			return cec.TxError | cec.TxMaxRetries, nil
		case <-ctx.Done():
			return cec.TxError, ctx.Err()
		}
	}
}

func (a *Adapter) waitReply(ctx context.Context, w *waiter, timeout time.Duration) {
	if timeout <= 0 {
		timeout = adapter.DefaultReplyTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case in := <-w.ch:
		adapter.Complete(w.sent, in)
		return
	case <-t.C:
	case <-ctx.Done():
	}

	a.dropWaiter(w)
	select {
	case in := <-w.ch:
		adapter.Complete(w.sent, in)
	default:
		w.sent.RxStatus = cec.RxTimeout
		w.sent.RxTimestamp = time.Now()
	}
}

func (a *Adapter) drainResults() {
	for {
		select {
		case <-a.results:
		default:
			return
		}
	}
}

func (a *Adapter) dropWaiter(w *waiter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, x := range a.waiters {
		if x == w {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}
}

// ------------------------------------------------------------
// Receive
// ------------------------------------------------------------

func (a *Adapter) readLoop() {
	var dec decoder
	buf := make([]byte, 64)
	for {
		n, err := a.port.Read(buf)
		if n > 0 {
			frames, derr := dec.feed(buf[:n])
			if derr != nil {
				a.log.Debug().Err(derr).Msg("dongle framing")
			}
			for _, f := range frames {
				a.handle(f)
			}
		}
		if err != nil {
			if errors.Is(err, goserial.ErrTimeout) {
				continue
			}
			a.fail(err)
			return
		}
	}
}

func (a *Adapter) handle(f frame) {
	switch f.code {
	case codeFrameStart:
		a.rx = a.rx[:0]
		if len(f.data) > 0 {
			a.rx = append(a.rx, f.data[0])
		}
		if f.eom {
			a.complete()
		}
	case codeFrameData:
		if len(f.data) > 0 && len(a.rx) > 0 && len(a.rx) < cec.MaxMsgSize {
			a.rx = append(a.rx, f.data[0])
		}
		if f.eom {
			a.complete()
		}
	case codeCommandAccepted, codeCommandRejected, codeTransmitSucceeded,
		codeTransmitFailedLine, codeTransmitFailedAck, codeTransmitFailedData, codeTransmitFailedTmo:
		select {
		case a.results <- f:
		default:
		}
	default:
		a.log.Trace().Str("frame", f.String()).Msg("dongle notice")
	}
}

func (a *Adapter) complete() {
	m, err := cec.Parse(a.rx)
	a.rx = a.rx[:0]
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.seq++
	m.Sequence = a.seq
	m.RxTimestamp = time.Now()
	m.RxStatus = cec.RxOK

	for i, w := range a.waiters {
		if adapter.IsReplyTo(w.sent, m) {
			w.ch <- m
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}

	if !a.mode.Monitors() && (!a.mode.Follows() || (!m.IsBroadcast() && !a.las.Has(m.Destination()))) {
		return
	}
	select {
	case a.messages <- m:
	default:
		a.lost++
		a.emitLocked(adapter.Event{Kind: adapter.EventLostMessages, At: m.RxTimestamp, Lost: 1})
	}
}

// fail marks the adapter disconnected after a port error.
func (a *Adapter) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.log.Error().Err(err).Str("device", a.cfg.Device).Msg("usb-cec port lost")
	a.closeLocked()
}

// ------------------------------------------------------------
// State
// ------------------------------------------------------------

func (a *Adapter) Messages() <-chan *cec.Msg { return a.messages }

func (a *Adapter) Events() <-chan adapter.Event { return a.events }

func (a *Adapter) Mode() adapter.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *Adapter) SetMode(m adapter.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return adapter.ErrDisconnected
	}
	a.mode = m
	return nil
}

func (a *Adapter) Caps() adapter.Caps {
	return adapter.Caps{
		Driver:            "usb-cec",
		Name:              a.cfg.Device,
		Bits:              adapter.CapLogAddrs | adapter.CapTransmit | adapter.CapPassthrough | adapter.CapMonitorAll,
		AvailableLogAddrs: 2,
	}
}

func (a *Adapter) PhysAddr() cec.PhysAddr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pa
}

// SetPhysAddr records pa locally; the dongle learns its address from EDID.
func (a *Adapter) SetPhysAddr(pa cec.PhysAddr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return adapter.ErrDisconnected
	}
	a.pa = pa
	a.emitLocked(adapter.Event{Kind: adapter.EventStateChange, At: time.Now(), PhysAddr: pa, LogAddrs: a.las})
	return nil
}

func (a *Adapter) LogAddrs() cec.LogAddrMask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.las
}

// SetLogAddrs programs the dongle's ACK mask.
func (a *Adapter) SetLogAddrs(m cec.LogAddrMask) error {
	if a.isClosed() {
		return adapter.ErrDisconnected
	}
	a.writeMu.Lock()
	_, err := a.port.Write(encode(codeSetAckMask, byte(m>>8), byte(m)))
	a.writeMu.Unlock()
	if err != nil {
		a.fail(err)
		return adapter.ErrDisconnected
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.las = m
	a.emitLocked(adapter.Event{Kind: adapter.EventStateChange, At: time.Now(), PhysAddr: a.pa, LogAddrs: m})
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closeLocked()
	return nil
}

func (a *Adapter) closeLocked() {
	a.closed = true
	_ = a.port.Close()
	close(a.messages)
	close(a.events)
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) emitLocked(e adapter.Event) {
	if a.closed {
		return
	}
	select {
	case a.events <- e:
	default:
	}
}
