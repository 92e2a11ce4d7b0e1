// internal/config/config.go
package config

import "github.com/tamzrod/cec-compliance/internal/logging"

type Config struct {
	Adapter      AdapterConfig      `yaml:"adapter" toml:"adapter"`
	Device       DeviceConfig       `yaml:"device" toml:"device"`
	Timing       TimingConfig       `yaml:"timing" toml:"timing"`
	StatusExport StatusExportConfig `yaml:"status_export" toml:"status_export"`
	Monitor      MonitorConfig      `yaml:"monitor" toml:"monitor"`
	Log          logging.Config     `yaml:"log" toml:"log"`
}

// ---- ADAPTER ----

type AdapterConfig struct {
	// Driver is "serial" or "loopback".
	Driver        string `yaml:"driver" toml:"driver"`
	Device        string `yaml:"device" toml:"device"`
	BaudRate      int    `yaml:"baud_rate" toml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	TxTimeoutMs   int    `yaml:"tx_timeout_ms" toml:"tx_timeout_ms"`
	Mode          string `yaml:"mode" toml:"mode"`

	// PhysAddr in dotted form ("1.0.0.0"); empty keeps the adapter's own.
	PhysAddr string `yaml:"phys_addr" toml:"phys_addr"`
}

// ---- EMULATED DEVICE ----

type DeviceConfig struct {
	Type           string `yaml:"type" toml:"type"`
	LogicalAddress *uint8 `yaml:"logical_address" toml:"logical_address"`
	OSDName        string `yaml:"osd_name" toml:"osd_name"`
	VendorID       uint32 `yaml:"vendor_id" toml:"vendor_id"`
	MenuLanguage   string `yaml:"menu_language" toml:"menu_language"`
	Version        string `yaml:"cec_version" toml:"cec_version"`

	ARC bool `yaml:"arc" toml:"arc"`
	SAC bool `yaml:"sac" toml:"sac"`

	// TunerReportChanges enables unsolicited Tuner Device Status.
	TunerReportChanges bool `yaml:"tuner_report_changes" toml:"tuner_report_changes"`
}

// ---- TIMING ----

type TimingConfig struct {
	ReplyTimeoutMs      int `yaml:"reply_timeout_ms" toml:"reply_timeout_ms"`
	ResponseThresholdMs int `yaml:"response_threshold_ms" toml:"response_threshold_ms"`
	CarrierWaitMs       int `yaml:"carrier_wait_ms" toml:"carrier_wait_ms"`
	CarrierDeadlineMs   int `yaml:"carrier_deadline_ms" toml:"carrier_deadline_ms"`

	LivenessIntervalMs int `yaml:"liveness_interval_ms" toml:"liveness_interval_ms"`
	LivenessThreshold  int `yaml:"liveness_threshold" toml:"liveness_threshold"`
	PresenceIntervalMs int `yaml:"presence_interval_ms" toml:"presence_interval_ms"`

	TestTimeoutMs int `yaml:"test_timeout_ms" toml:"test_timeout_ms"`
}

// ---- STATUS EXPORT ----

type StatusExportConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id" toml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot" toml:"base_slot"`
	TimeoutMs  int    `yaml:"timeout_ms" toml:"timeout_ms"`
	IntervalMs int    `yaml:"interval_ms" toml:"interval_ms"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}
