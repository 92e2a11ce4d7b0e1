// internal/poller/builder.go
package poller

import (
	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	cfg "github.com/tamzrod/cec-compliance/internal/config"
)

// Build constructs a Poller from the timing section.
// from is the address polls originate from; own is the adapter's claim.
func Build(t cfg.TimingConfig, client Client, from cec.LogicalAddress, own cec.LogAddrMask, log zerolog.Logger) (*Poller, error) {
	return New(
		Config{
			From:              from,
			Own:               own,
			Interval:          cfg.Ms(t.PresenceIntervalMs),
			LivenessInterval:  cfg.Ms(t.LivenessIntervalMs),
			LivenessThreshold: t.LivenessThreshold,
		},
		client,
		log.With().Str("component", "poller").Logger(),
	)
}
