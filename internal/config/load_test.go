// internal/config/load_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

const yamlDoc = `
adapter:
  driver: loopback
  phys_addr: 1.0.0.0
device:
  type: audiosystem
  osd_name: Soundbar
  arc: true
  sac: true
timing:
  liveness_interval_ms: 2000
log:
  level: debug
`

const tomlDoc = `
[adapter]
driver = "loopback"

[device]
type = "tv"
logical_address = 0
osd_name = "Living Room TV"
cec_version = "2.0"

[monitor]
enabled = true
listen = "127.0.0.1:8080"
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "follower.yaml", yamlDoc))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Device.Type != "audiosystem" || !cfg.Device.ARC || !cfg.Device.SAC {
		t.Fatalf("device: %+v", cfg.Device)
	}
	if cfg.Timing.LivenessIntervalMs != 2000 || cfg.Timing.LivenessThreshold != DefaultLivenessThreshold {
		t.Fatalf("timing: %+v", cfg.Timing)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level %q", cfg.Log.Level)
	}
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "tv.toml", tomlDoc))
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Device.LogicalAddress == nil || *cfg.Device.LogicalAddress != 0 {
		t.Fatalf("logical address not decoded")
	}
	if cfg.Device.Version != "2.0" || !cfg.Monitor.Enabled || cfg.Monitor.Listen != "127.0.0.1:8080" {
		t.Fatalf("decoded: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(writeTemp(t, "cfg.json", "{}")); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load(writeTemp(t, "bad.yaml", "adapter: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeTemp(t, "invalid.yaml", "adapter:\n  driver: usb\n")); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
