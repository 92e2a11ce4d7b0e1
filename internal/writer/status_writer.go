// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/cec-compliance/internal/status"
)

// endpointClient is the exact contract the writer uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// deviceStatusWriter owns the status block of one logical address.
type deviceStatusWriter struct {
	cli    endpointClient
	unitID uint8
	base   uint16

	needFull bool
	last     []uint16
}

func newDeviceStatusWriter(cli endpointClient, unitID uint8, base uint16) *deviceStatusWriter {
	return &deviceStatusWriter{
		cli:      cli,
		unitID:   unitID,
		base:     base,
		needFull: true, // full re-assert on first successful write
	}
}

// WriteStatus delivers a snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no client")
	}
	regs := status.Encode(s)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.unitID, sw.base, regs); err != nil {
			return fmt.Errorf("status writer: full block write at %d failed: %w", sw.base, err)
		}
		sw.needFull = false
		sw.last = regs
		return nil
	}

	// ------------------------------------------------------------
	// Changed slots only, one write per contiguous run
	// ------------------------------------------------------------
	var errs []string
	for start := 0; start < len(regs); {
		if regs[start] == sw.last[start] {
			start++
			continue
		}
		end := start + 1
		for end < len(regs) && regs[end] != sw.last[end] {
			end++
		}
		if err := sw.cli.WriteRegisters(sw.unitID, sw.base+uint16(start), regs[start:end]); err != nil {
			errs = append(errs, fmt.Sprintf("slots %d-%d write failed: %v", start, end-1, err))
		} else {
			copy(sw.last[start:end], regs[start:end])
		}
		start = end
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt; re-assert on next call.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}
