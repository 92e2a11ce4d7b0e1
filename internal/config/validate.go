// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/logging"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// ADAPTER
	// ------------------------------------------------------------

	switch cfg.Adapter.Driver {
	case "", "serial":
		if cfg.Adapter.Device == "" {
			return fmt.Errorf("adapter: device is required for the serial driver")
		}
	case "loopback":
	default:
		return fmt.Errorf("adapter: unknown driver %q", cfg.Adapter.Driver)
	}

	if cfg.Adapter.BaudRate < 0 {
		return fmt.Errorf("adapter: baud_rate must be >= 0")
	}

	if cfg.Adapter.Mode != "" {
		if _, ok := adapter.ParseMode(cfg.Adapter.Mode); !ok {
			return fmt.Errorf("adapter: unknown mode %q", cfg.Adapter.Mode)
		}
	}

	if cfg.Adapter.PhysAddr != "" {
		if pa, err := cec.ParsePhysAddr(cfg.Adapter.PhysAddr); err != nil || !pa.Valid() {
			return fmt.Errorf("adapter: invalid phys_addr %q", cfg.Adapter.PhysAddr)
		}
	}

	// ------------------------------------------------------------
	// EMULATED DEVICE
	// ------------------------------------------------------------

	dt := cec.DevTypePlayback
	if cfg.Device.Type != "" {
		var ok bool
		if dt, ok = cec.ParseDeviceType(cfg.Device.Type); !ok {
			return fmt.Errorf("device: unknown type %q", cfg.Device.Type)
		}
	}

	if la := cfg.Device.LogicalAddress; la != nil {
		if cec.LogicalAddress(*la) >= cec.NumLogAddrs {
			return fmt.Errorf("device: logical_address %d out of range 0-14", *la)
		}
		if cec.LogicalAddress(*la) == cec.LogAddrTV && dt != cec.DevTypeTV {
			return fmt.Errorf("device: logical_address 0 is reserved for type tv")
		}
	}

	// OSD name and menu language are sent as raw bytes on the bus
	for i := 0; i < len(cfg.Device.OSDName); i++ {
		if cfg.Device.OSDName[i] < 0x20 || cfg.Device.OSDName[i] > 0x7E {
			return fmt.Errorf("device: osd_name must contain printable ASCII characters only")
		}
	}

	if l := cfg.Device.MenuLanguage; l != "" && len(l) != 3 {
		return fmt.Errorf("device: menu_language must be a three-letter code, got %q", l)
	}

	if cfg.Device.VendorID > 0xFFFFFF {
		return fmt.Errorf("device: vendor_id 0x%X exceeds 24 bits", cfg.Device.VendorID)
	}

	if v := cfg.Device.Version; v != "" {
		if _, ok := cec.ParseVersion(v); !ok {
			return fmt.Errorf("device: unsupported cec_version %q", v)
		}
	}

	if cfg.Device.ARC && dt != cec.DevTypeTV && dt != cec.DevTypeAudioSystem {
		return fmt.Errorf("device: arc requires type tv or audiosystem")
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	tm := cfg.Timing
	for _, f := range []struct {
		name string
		v    int
	}{
		{"reply_timeout_ms", tm.ReplyTimeoutMs},
		{"response_threshold_ms", tm.ResponseThresholdMs},
		{"carrier_wait_ms", tm.CarrierWaitMs},
		{"carrier_deadline_ms", tm.CarrierDeadlineMs},
		{"liveness_interval_ms", tm.LivenessIntervalMs},
		{"liveness_threshold", tm.LivenessThreshold},
		{"presence_interval_ms", tm.PresenceIntervalMs},
		{"test_timeout_ms", tm.TestTimeoutMs},
	} {
		if f.v < 0 {
			return fmt.Errorf("timing: %s must be >= 0", f.name)
		}
	}

	if tm.CarrierWaitMs > 0 && tm.CarrierDeadlineMs > 0 && tm.CarrierWaitMs > tm.CarrierDeadlineMs {
		return fmt.Errorf("timing: carrier_wait_ms (%d) exceeds carrier_deadline_ms (%d)",
			tm.CarrierWaitMs, tm.CarrierDeadlineMs)
	}

	// ------------------------------------------------------------
	// STATUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	if se := cfg.StatusExport; se.Enabled {
		if se.Endpoint == "" {
			return fmt.Errorf("status_export: endpoint is required when enabled")
		}
		// 15 blocks of 20 registers must fit the 16-bit address space
		last := uint32(se.BaseSlot)*20 + uint32(cec.NumLogAddrs)*20
		if last > 0x10000 {
			return fmt.Errorf("status_export: base_slot %d overflows the register space", se.BaseSlot)
		}
	}

	// ------------------------------------------------------------
	// MONITOR (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Monitor.Enabled && cfg.Monitor.Listen == "" {
		return fmt.Errorf("monitor: listen address is required when enabled")
	}

	if cfg.Log.Level != "" && !logging.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	return nil
}
