// internal/transport/carrier.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
)

// recoverCarrier waits for the adapter to report a valid physical address.
// After CarrierWait it sends Image View On to the TV to wake the sink, then
// keeps waiting until CarrierDeadline. It returns the restored address.
func (t *Transport) recoverCarrier(ctx context.Context, from cec.LogicalAddress) (cec.PhysAddr, error) {
	t.log.Warn().Msg("carrier lost, waiting for physical address")

	start := time.Now()
	deadline := time.NewTimer(t.cfg.CarrierDeadline)
	defer deadline.Stop()
	wake := time.NewTimer(t.cfg.CarrierWait)
	defer wake.Stop()

	for {
		if pa := t.ad.PhysAddr(); pa.Valid() {
			return pa, nil
		}
		select {
		case ev, ok := <-t.ad.Events():
			if !ok {
				return cec.PhysAddrInvalid, adapter.ErrDisconnected
			}
			if t.HandleEvent(ev) && t.ad.PhysAddr().Valid() {
				pa := t.ad.PhysAddr()
				t.log.Info().Dur("after", time.Since(start)).Stringer("pa", pa).Msg("carrier restored")
				return pa, nil
			}

		case <-wake.C:
			t.log.Warn().Msg("carrier still absent, sending Image View On")
			err := t.ad.Transmit(ctx, cec.ImageViewOn(from, cec.LogAddrTV))
			if errors.Is(err, adapter.ErrDisconnected) {
				return cec.PhysAddrInvalid, err
			}

		case <-deadline.C:
			return cec.PhysAddrInvalid, fmt.Errorf("%w: no physical address after %s", ErrCarrierLost, t.cfg.CarrierDeadline)

		case <-ctx.Done():
			return cec.PhysAddrInvalid, ctx.Err()
		}
	}
}
