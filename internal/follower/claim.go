// internal/follower/claim.go
package follower

import (
	"context"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/poller"
)

// claimOrder lists the logical addresses a device type may take, in the
// order they are tried.
var claimOrder = map[cec.DeviceType][]cec.LogicalAddress{
	cec.DevTypeTV:          {cec.LogAddrTV, cec.LogAddrSpecific},
	cec.DevTypeRecord:      {cec.LogAddrRecord1, cec.LogAddrRecord2, cec.LogAddrRecord3},
	cec.DevTypeTuner:       {cec.LogAddrTuner1, cec.LogAddrTuner2, cec.LogAddrTuner3, cec.LogAddrTuner4},
	cec.DevTypePlayback:    {cec.LogAddrPlayback1, cec.LogAddrPlayback2, cec.LogAddrPlayback3},
	cec.DevTypeAudioSystem: {cec.LogAddrAudioSystem},
	cec.DevTypeSwitch:      {cec.LogAddrSpecific},
	cec.DevTypeProcessor:   {cec.LogAddrSpecific, cec.LogAddrBackup1, cec.LogAddrBackup2},
}

// Claim picks a free logical address for dt by polling each candidate from
// itself: an acknowledged poll means the address is taken. It returns
// LogAddrUnregistered when every candidate is in use.
func Claim(ctx context.Context, c poller.Client, dt cec.DeviceType) (cec.LogicalAddress, error) {
	for _, la := range claimOrder[dt] {
		res, err := c.Transmit(ctx, cec.NewPoll(la, la))
		if err != nil {
			return cec.LogAddrUnregistered, err
		}
		if !res.TxStatus.OK() {
			return la, nil
		}
	}
	return cec.LogAddrUnregistered, nil
}
