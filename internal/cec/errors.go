// internal/cec/errors.go
package cec

import "errors"

var (
	ErrEmpty       = errors.New("cec: empty frame")
	ErrTooLong     = errors.New("cec: frame too long")
	ErrBadAddress  = errors.New("cec: logical address out of range")
	ErrShortFrame  = errors.New("cec: frame too short for opcode")
	ErrWrongOpcode = errors.New("cec: unexpected opcode")
)
