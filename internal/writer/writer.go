// internal/writer/writer.go
package writer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/status"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// tableWriter exports every logical address of a topology table.
type tableWriter struct {
	blocks [status.BlockCount]*deviceStatusWriter
	// known marks addresses exported as present; they turn into Lost
	// blocks when they leave the table.
	known cec.LogAddrMask
}

func New(plan Plan, cli endpointClient) Writer {
	w := &tableWriter{}
	for la := range w.blocks {
		base := (plan.BaseSlot + uint16(la)) * status.SlotsPerDevice
		w.blocks[la] = newDeviceStatusWriter(cli, plan.UnitID, base)
	}
	return w
}

func (w *tableWriter) Write(recs []topology.Record, now time.Time) error {
	var errs []string
	var present cec.LogAddrMask

	for _, r := range recs {
		if !r.LA.Valid() {
			continue
		}
		present = present.With(r.LA)
		if err := w.blocks[r.LA].WriteStatus(status.FromRecord(r, now)); err != nil {
			errs = append(errs, r.LA.String()+": "+err.Error())
		}
	}

	for _, la := range (w.known &^ present).Addrs() {
		if err := w.blocks[la].WriteStatus(status.Lost()); err != nil {
			errs = append(errs, la.String()+": "+err.Error())
			continue
		}
		w.known &^= 1 << la
	}
	w.known |= present

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// Run exports table every interval until ctx is done. Write errors are
// logged and retried on the next tick.
func Run(ctx context.Context, w Writer, table *topology.Table, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.Write(table.Snapshot(), now); err != nil {
				log.Warn().Err(err).Msg("status export failed")
			}
		}
	}
}
