// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// MaxWriteRegisters is the largest Write Multiple Registers request.
const MaxWriteRegisters = 123

// StatusClient holds one TCP connection to the register endpoint.
// Writes are serialized because the unit id lives on the shared handler.
// A failed write drops the connection; the next write redials.
type StatusClient struct {
	cfg Config

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Dial connects to cfg.Endpoint.
func Dial(cfg Config) (*StatusClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}
	c := &StatusClient{cfg: cfg}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *StatusClient) connectLocked() error {
	h := modbus.NewTCPClientHandler(c.cfg.Endpoint)
	h.Timeout = c.cfg.Timeout
	if err := h.Connect(); err != nil {
		return err
	}
	c.handler = h
	c.client = modbus.NewClient(h)
	return nil
}

func (c *StatusClient) dropLocked() {
	if c.handler != nil {
		_ = c.handler.Close()
	}
	c.handler = nil
	c.client = nil
}

func (c *StatusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.client = nil
	return err
}

// WriteRegisters writes regs as holding registers starting at addr,
// split into requests of at most MaxWriteRegisters.
func (c *StatusClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}
	c.handler.SlaveId = unitID

	for _, ch := range chunk(addr, regs) {
		if _, err := c.client.WriteMultipleRegisters(ch.addr, uint16(len(ch.regs)), packRegisters(ch.regs)); err != nil {
			c.dropLocked()
			return err
		}
	}
	return nil
}

type span struct {
	addr uint16
	regs []uint16
}

func chunk(addr uint16, regs []uint16) []span {
	var out []span
	for len(regs) > 0 {
		n := len(regs)
		if n > MaxWriteRegisters {
			n = MaxWriteRegisters
		}
		out = append(out, span{addr: addr, regs: regs[:n]})
		addr += uint16(n)
		regs = regs[n:]
	}
	return out
}

// packRegisters lays regs out big-endian, as Modbus sends them.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
