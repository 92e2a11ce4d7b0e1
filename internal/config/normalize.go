// internal/config/normalize.go
package config

import (
	"time"

	"github.com/tamzrod/cec-compliance/internal/cec"
)

const (
	DefaultBaudRate           = 38400
	DefaultReplyTimeoutMs     = 1000
	DefaultResponseThreshold  = 1000
	DefaultCarrierWaitMs      = 10000
	DefaultCarrierDeadlineMs  = 40000
	DefaultLivenessIntervalMs = 15000
	DefaultLivenessThreshold  = 3
	DefaultPresenceIntervalMs = 5000
	DefaultTestTimeoutMs      = 30000
	DefaultStatusIntervalMs   = 1000
	DefaultStatusTimeoutMs    = 1000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// ADAPTER
	// ------------------------------------------------------------

	if cfg.Adapter.Driver == "" {
		cfg.Adapter.Driver = "serial"
	}
	if cfg.Adapter.BaudRate == 0 {
		cfg.Adapter.BaudRate = DefaultBaudRate
	}
	if cfg.Adapter.Mode == "" {
		cfg.Adapter.Mode = "initiator+follower"
	}

	// ------------------------------------------------------------
	// EMULATED DEVICE
	// ------------------------------------------------------------

	if cfg.Device.Type == "" {
		cfg.Device.Type = "playback"
	}
	if cfg.Device.Version == "" {
		cfg.Device.Version = "1.4"
	}
	if cfg.Device.MenuLanguage == "" {
		cfg.Device.MenuLanguage = "eng"
	}

	// OSD name travels in one frame: truncate to 14 bytes
	if len(cfg.Device.OSDName) > cec.MaxOperands {
		cfg.Device.OSDName = cfg.Device.OSDName[:cec.MaxOperands]
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	tm := &cfg.Timing
	defaultInt(&tm.ReplyTimeoutMs, DefaultReplyTimeoutMs)
	defaultInt(&tm.ResponseThresholdMs, DefaultResponseThreshold)
	defaultInt(&tm.CarrierWaitMs, DefaultCarrierWaitMs)
	defaultInt(&tm.CarrierDeadlineMs, DefaultCarrierDeadlineMs)
	defaultInt(&tm.LivenessIntervalMs, DefaultLivenessIntervalMs)
	defaultInt(&tm.LivenessThreshold, DefaultLivenessThreshold)
	defaultInt(&tm.PresenceIntervalMs, DefaultPresenceIntervalMs)
	defaultInt(&tm.TestTimeoutMs, DefaultTestTimeoutMs)

	// ------------------------------------------------------------
	// STATUS EXPORT
	// ------------------------------------------------------------

	if cfg.StatusExport.Enabled {
		defaultInt(&cfg.StatusExport.IntervalMs, DefaultStatusIntervalMs)
		defaultInt(&cfg.StatusExport.TimeoutMs, DefaultStatusTimeoutMs)
	}
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Ms converts a millisecond config field to a Duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
