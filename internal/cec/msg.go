// internal/cec/msg.go
package cec

import (
	"fmt"
	"strings"
	"time"
)

// Msg is one bus frame plus the metadata the adapter and transport attach to it.
// The frame bytes are private; use the accessors.
type Msg struct {
	buf [MaxMsgSize]byte
	n   int

	// Sequence is assigned by the adapter on transmit or receive.
	Sequence uint32
	// InReplyTo carries the Sequence of the message this one answers.
	InReplyTo uint32

	TxTimestamp time.Time
	RxTimestamp time.Time
	TxStatus    TxStatus
	RxStatus    RxStatus

	// Timeout bounds the wait for a reply when WantReply is set.
	Timeout time.Duration
	// Reply is the expected reply opcode; only meaningful with WantReply.
	Reply     Opcode
	WantReply bool

	// Response is the reply frame filled in by the adapter.
	Response *Msg
}

// New builds a message with an opcode and up to MaxOperands operand bytes.
func New(from, to LogicalAddress, op Opcode, operands ...byte) (*Msg, error) {
	if from > 15 || to > 15 {
		return nil, ErrBadAddress
	}
	if len(operands) > MaxOperands {
		return nil, fmt.Errorf("%w: %d operands", ErrTooLong, len(operands))
	}
	m := &Msg{n: 2 + len(operands)}
	m.buf[0] = byte(from)<<4 | byte(to)
	m.buf[1] = byte(op)
	copy(m.buf[2:], operands)
	return m, nil
}

// NewPoll builds a one-byte poll frame.
func NewPoll(from, to LogicalAddress) *Msg {
	m := &Msg{n: 1}
	m.buf[0] = byte(from&0xF)<<4 | byte(to&0xF)
	return m
}

// Parse copies a raw frame into a Msg.
func Parse(b []byte) (*Msg, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	if len(b) > MaxMsgSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(b))
	}
	m := &Msg{n: len(b)}
	copy(m.buf[:], b)
	return m, nil
}

// ReplyTo builds a directed answer to orig: addresses swapped, correlation kept.
func ReplyTo(orig *Msg, op Opcode, operands ...byte) (*Msg, error) {
	m, err := New(orig.Destination(), orig.Initiator(), op, operands...)
	if err != nil {
		return nil, err
	}
	m.InReplyTo = orig.Sequence
	return m, nil
}

// build is New for operand lists the caller has already bounded.
func build(from, to LogicalAddress, op Opcode, operands ...byte) *Msg {
	if len(operands) > MaxOperands {
		operands = operands[:MaxOperands]
	}
	m, err := New(from&0xF, to&0xF, op, operands...)
	if err != nil {
		panic(err)
	}
	return m
}

// ---- ACCESSORS ----

func (m *Msg) Initiator() LogicalAddress { return LogicalAddress(m.buf[0] >> 4) }

func (m *Msg) Destination() LogicalAddress { return LogicalAddress(m.buf[0] & 0x0F) }

func (m *Msg) IsBroadcast() bool { return m.Destination() == LogAddrBroadcast }

func (m *Msg) IsPoll() bool { return m.n == 1 }

func (m *Msg) Len() int { return m.n }

// Opcode returns the opcode; ok is false for a poll.
func (m *Msg) Opcode() (op Opcode, ok bool) {
	if m.n < 2 {
		return 0, false
	}
	return Opcode(m.buf[1]), true
}

// Operands returns a copy of the operand bytes.
func (m *Msg) Operands() []byte {
	if m.n <= 2 {
		return nil
	}
	out := make([]byte, m.n-2)
	copy(out, m.buf[2:m.n])
	return out
}

// Operand returns operand i, or false when the frame is too short.
func (m *Msg) Operand(i int) (byte, bool) {
	if i < 0 || 2+i >= m.n {
		return 0, false
	}
	return m.buf[2+i], true
}

// Bytes returns a copy of the raw frame.
func (m *Msg) Bytes() []byte {
	out := make([]byte, m.n)
	copy(out, m.buf[:m.n])
	return out
}

// Expect asks the adapter to wait for op as the reply.
func (m *Msg) Expect(op Opcode, timeout time.Duration) {
	m.Reply = op
	m.WantReply = true
	m.Timeout = timeout
}

// SetAddresses rewrites the header.
func (m *Msg) SetAddresses(from, to LogicalAddress) {
	m.buf[0] = byte(from&0xF)<<4 | byte(to&0xF)
}

// Clone returns a copy of the frame without status metadata.
func (m *Msg) Clone() *Msg {
	c := &Msg{n: m.n, buf: m.buf, Sequence: m.Sequence, InReplyTo: m.InReplyTo}
	return c
}

func (m *Msg) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d->%d", m.Initiator(), m.Destination())
	op, ok := m.Opcode()
	if !ok {
		sb.WriteString(" poll")
		return sb.String()
	}
	fmt.Fprintf(&sb, " %s", op)
	if ops := m.Operands(); len(ops) > 0 {
		sb.WriteString(" [")
		for i, b := range ops {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(hex2(b))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// ResponseOpcode returns the opcode of the attached reply, if any.
func (m *Msg) ResponseOpcode() (Opcode, bool) {
	if m.Response == nil {
		return 0, false
	}
	return m.Response.Opcode()
}
