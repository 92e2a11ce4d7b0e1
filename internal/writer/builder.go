// internal/writer/builder.go
package writer

import (
	"errors"

	cfg "github.com/tamzrod/cec-compliance/internal/config"
	wmodbus "github.com/tamzrod/cec-compliance/internal/writer/modbus"
)

// BuildPlan converts the status export config into a Plan.
// Assumes config has already passed validation.
func BuildPlan(c cfg.StatusExportConfig) (Plan, error) {
	if c.Endpoint == "" {
		return Plan{}, errors.New("writer: status_export.endpoint required")
	}
	return Plan{
		Endpoint: c.Endpoint,
		UnitID:   c.UnitID,
		BaseSlot: c.BaseSlot,
	}, nil
}

// Build connects the Modbus endpoint and returns the writer with its closer.
func Build(c cfg.StatusExportConfig) (Writer, func() error, error) {
	plan, err := BuildPlan(c)
	if err != nil {
		return nil, nil, err
	}
	cli, err := wmodbus.Dial(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  cfg.Ms(c.TimeoutMs),
	})
	if err != nil {
		return nil, nil, err
	}
	return New(plan, cli), cli.Close, nil
}
