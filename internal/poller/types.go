// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

// PollResult is a snapshot produced by one presence scan.
type PollResult struct {
	At time.Time

	// Mask has a bit per logical address that acknowledged its poll,
	// including our own addresses.
	Mask cec.LogAddrMask

	// Self is the subset of Mask that belongs to this adapter.
	Self cec.LogAddrMask

	Err error // non-nil means the scan was aborted
}

// Remote returns the present addresses that are not our own.
func (r PollResult) Remote() cec.LogAddrMask { return r.Mask &^ r.Self }

// LivenessResult reports one liveness pass.
type LivenessResult struct {
	Polled  []cec.LogicalAddress
	Removed []cec.LogicalAddress
}
