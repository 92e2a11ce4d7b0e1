// internal/adapter/serial/codec.go
package serial

import (
	"errors"
	"fmt"
)

// Dongle framing: every command or notification travels as
//
//	MSGSTART code [data...] MSGEND
//
// with any byte >= MSGESC in code/data sent as MSGESC (byte - ESCOFFSET).
const (
	msgStart  byte = 0xFF
	msgEnd    byte = 0xFE
	msgEsc    byte = 0xFD
	escOffset byte = 3

	flagEOM  byte = 0x80
	flagACK  byte = 0x40
	codeMask byte = 0x3F
)

// Message codes.
const (
	codeNothing            byte = 0
	codePing               byte = 1
	codeTimeoutError       byte = 2
	codeHighError          byte = 3
	codeLowError           byte = 4
	codeFrameStart         byte = 5
	codeFrameData          byte = 6
	codeReceiveFailed      byte = 7
	codeCommandAccepted    byte = 8
	codeCommandRejected    byte = 9
	codeSetAckMask         byte = 10
	codeTransmit           byte = 11
	codeTransmitEOM        byte = 12
	codeTransmitIdleTime   byte = 13
	codeTransmitAckPol     byte = 14
	codeTransmitLineTmo    byte = 15
	codeTransmitSucceeded  byte = 16
	codeTransmitFailedLine byte = 17
	codeTransmitFailedAck  byte = 18
	codeTransmitFailedData byte = 19
	codeTransmitFailedTmo  byte = 20
)

var errBadFrame = errors.New("serial: malformed dongle frame")

// frame is one decoded dongle message.
type frame struct {
	code byte
	eom  bool
	ack  bool
	data []byte
}

func (f frame) String() string {
	return fmt.Sprintf("code=%d eom=%v ack=%v data=% x", f.code, f.eom, f.ack, f.data)
}

// encode builds the wire form of a command.
func encode(code byte, data ...byte) []byte {
	out := []byte{msgStart}
	out = appendEscaped(out, code)
	for _, b := range data {
		out = appendEscaped(out, b)
	}
	return append(out, msgEnd)
}

func appendEscaped(out []byte, b byte) []byte {
	if b >= msgEsc {
		return append(out, msgEsc, b-escOffset)
	}
	return append(out, b)
}

// decoder reassembles frames from an arbitrary byte stream.
type decoder struct {
	buf     []byte
	inFrame bool
	escaped bool
}

// feed consumes p and returns every completed frame.
func (d *decoder) feed(p []byte) ([]frame, error) {
	var out []frame
	var firstErr error
	for _, b := range p {
		switch {
		case b == msgStart:
			d.buf = d.buf[:0]
			d.inFrame = true
			d.escaped = false
		case !d.inFrame:
			// noise between frames
		case b == msgEnd:
			d.inFrame = false
			if len(d.buf) == 0 {
				if firstErr == nil {
					firstErr = errBadFrame
				}
				continue
			}
			head := d.buf[0]
			f := frame{
				code: head & codeMask,
				eom:  head&flagEOM != 0,
				ack:  head&flagACK != 0,
				data: append([]byte(nil), d.buf[1:]...),
			}
			out = append(out, f)
		case b == msgEsc:
			d.escaped = true
		default:
			if d.escaped {
				b += escOffset
				d.escaped = false
			}
			d.buf = append(d.buf, b)
		}
	}
	return out, firstErr
}
