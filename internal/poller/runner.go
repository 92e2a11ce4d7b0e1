// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run starts the ticker loop and emits a PollResult on out every Interval.
// One scan at a time. No retries. Returns after a scan fails fatally.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	interval := p.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := p.Presence(ctx)
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
			if res.Err != nil {
				return
			}
		}
	}
}
