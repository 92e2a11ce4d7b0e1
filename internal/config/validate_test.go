// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

// helper to build a minimal valid config quickly
func base() *Config {
	return &Config{
		Adapter: AdapterConfig{Driver: "loopback"},
		Device:  DeviceConfig{Type: "playback", OSDName: "Follower"},
	}
}

func u8(v uint8) *uint8 { return &v }

// ---- tests ----

func TestValidate_Minimal(t *testing.T) {
	if err := Validate(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"serial without device", func(c *Config) { c.Adapter.Driver = "serial" }, "device is required"},
		{"unknown driver", func(c *Config) { c.Adapter.Driver = "usb" }, "unknown driver"},
		{"unknown mode", func(c *Config) { c.Adapter.Mode = "sniffer" }, "unknown mode"},
		{"bad phys addr", func(c *Config) { c.Adapter.PhysAddr = "f.f.f.f" }, "invalid phys_addr"},
		{"unknown device type", func(c *Config) { c.Device.Type = "toaster" }, "unknown type"},
		{"logical address range", func(c *Config) { c.Device.LogicalAddress = u8(15) }, "out of range"},
		{"tv address for playback", func(c *Config) { c.Device.LogicalAddress = u8(0) }, "reserved for type tv"},
		{"non-ascii osd name", func(c *Config) { c.Device.OSDName = "Wohnzimmerä" }, "printable ASCII"},
		{"menu language length", func(c *Config) { c.Device.MenuLanguage = "en" }, "three-letter"},
		{"vendor id width", func(c *Config) { c.Device.VendorID = 0x1000000 }, "24 bits"},
		{"cec version", func(c *Config) { c.Device.Version = "1.2" }, "cec_version"},
		{"arc on playback", func(c *Config) { c.Device.ARC = true }, "arc requires"},
		{"negative timing", func(c *Config) { c.Timing.LivenessThreshold = -1 }, "liveness_threshold"},
		{"carrier wait after deadline", func(c *Config) {
			c.Timing.CarrierWaitMs = 50000
			c.Timing.CarrierDeadlineMs = 40000
		}, "exceeds carrier_deadline_ms"},
		{"status export endpoint", func(c *Config) { c.StatusExport.Enabled = true }, "endpoint is required"},
		{"status export overflow", func(c *Config) {
			c.StatusExport = StatusExportConfig{Enabled: true, Endpoint: "127.0.0.1:502", BaseSlot: 3270}
		}, "overflows"},
		{"monitor listen", func(c *Config) { c.Monitor.Enabled = true }, "listen address"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := base()
	cfg.Device.OSDName = "A Very Long Device Name"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.OSDName != "A Very Long Device Name" || cfg.Timing.ReplyTimeoutMs != 0 {
		t.Fatalf("Validate mutated the config: %+v", cfg)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := base()
	cfg.Adapter.Driver = ""
	cfg.Device.OSDName = "A Very Long Device Name"
	cfg.StatusExport.Enabled = true
	Normalize(cfg)

	if cfg.Device.OSDName != "A Very Long De" {
		t.Fatalf("osd name not truncated to 14: %q", cfg.Device.OSDName)
	}
	if cfg.Adapter.Driver != "serial" || cfg.Adapter.BaudRate != DefaultBaudRate {
		t.Fatalf("adapter defaults: %+v", cfg.Adapter)
	}
	if cfg.Timing.LivenessIntervalMs != 15000 || cfg.Timing.LivenessThreshold != 3 {
		t.Fatalf("liveness defaults: %+v", cfg.Timing)
	}
	if cfg.Timing.CarrierWaitMs != 10000 || cfg.Timing.CarrierDeadlineMs != 40000 {
		t.Fatalf("carrier defaults: %+v", cfg.Timing)
	}
	if cfg.StatusExport.IntervalMs != DefaultStatusIntervalMs {
		t.Fatalf("status export interval not defaulted")
	}
	if cfg.Device.Version != "1.4" || cfg.Device.MenuLanguage != "eng" {
		t.Fatalf("device defaults: %+v", cfg.Device)
	}
}

func TestNormalize_KeepsExplicit(t *testing.T) {
	cfg := base()
	cfg.Timing.LivenessThreshold = 5
	Normalize(cfg)
	if cfg.Timing.LivenessThreshold != 5 {
		t.Fatalf("explicit value overwritten: %d", cfg.Timing.LivenessThreshold)
	}
}
