package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Process: ProcessConfig{
			UnitID:              "mpfa-unit-1",
			ScanTime:            0.1,
			FlowSetpoint:        100.0,
			PressureSetpoint:    25.0,
			TemperatureSetpoint: 60.0,
		},
		Controllers: ControllersConfig{
			Flow:     PIDGains{Kp: 1.5, Ki: 0.3, Kd: 0.1},
			Pressure: PIDGains{Kp: 2.0, Ki: 0.5, Kd: 0.2},
		},
		Safety: SafetyConfig{
			MaxPressure:    35.0,
			MinPressure:    5.0,
			MaxTemperature: 80.0,
			MaxFlowRate:    200.0,
			MaxOilInWater:  1000.0,
		},
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero scan time", func(c *Config) { c.Process.ScanTime = 0 }},
		{"negative scan time", func(c *Config) { c.Process.ScanTime = -0.1 }},
		{"zero flow setpoint", func(c *Config) { c.Process.FlowSetpoint = 0 }},
		{"negative pressure setpoint", func(c *Config) { c.Process.PressureSetpoint = -1 }},
		{"negative flow gain", func(c *Config) { c.Controllers.Flow.Ki = -0.1 }},
		{"negative pressure gain", func(c *Config) { c.Controllers.Pressure.Kd = -1 }},
		{"pressure band inverted", func(c *Config) { c.Safety.MaxPressure = 4.0 }},
		{"zero max temperature", func(c *Config) { c.Safety.MaxTemperature = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProcessConfig_ScanPeriod(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.Process.ScanPeriod())

	cfg.Process.ScanTime = 1.5
	assert.Equal(t, 1500*time.Millisecond, cfg.Process.ScanPeriod())
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Process.ScanTime)
	assert.Equal(t, 1.5, cfg.Controllers.Flow.Kp)
	assert.Equal(t, 35.0, cfg.Safety.MaxPressure)
	assert.Equal(t, 8080, cfg.HMI.Port)
}
