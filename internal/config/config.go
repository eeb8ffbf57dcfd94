package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Process     ProcessConfig     `mapstructure:"process"`
	Controllers ControllersConfig `mapstructure:"controllers"`
	Safety      SafetyConfig      `mapstructure:"safety"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Modbus      ModbusConfig      `mapstructure:"modbus"`
	OPCUA       OPCUAConfig       `mapstructure:"opcua"`
	HMI         HMIConfig         `mapstructure:"hmi"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ProcessConfig struct {
	UnitID              string  `mapstructure:"unit_id"`
	ScanTime            float64 `mapstructure:"scan_time"`
	FlowSetpoint        float64 `mapstructure:"flow_setpoint"`
	PressureSetpoint    float64 `mapstructure:"pressure_setpoint"`
	TemperatureSetpoint float64 `mapstructure:"temperature_setpoint"`
}

type ControllersConfig struct {
	Flow     PIDGains `mapstructure:"flow"`
	Pressure PIDGains `mapstructure:"pressure"`
}

type PIDGains struct {
	Kp float64 `mapstructure:"kp"`
	Ki float64 `mapstructure:"ki"`
	Kd float64 `mapstructure:"kd"`
}

type SafetyConfig struct {
	MaxPressure    float64 `mapstructure:"max_pressure"`
	MinPressure    float64 `mapstructure:"min_pressure"`
	MaxTemperature float64 `mapstructure:"max_temperature"`
	MaxFlowRate    float64 `mapstructure:"max_flow_rate"`
	MaxOilInWater  float64 `mapstructure:"max_oil_in_water"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

type ModbusConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type OPCUAConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type HMIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ScanPeriod returns the scan time as a duration.
func (p ProcessConfig) ScanPeriod() time.Duration {
	return time.Duration(p.ScanTime * float64(time.Second))
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("process.unit_id", "mpfa-unit-1")
	viper.SetDefault("process.scan_time", 0.1)
	viper.SetDefault("process.flow_setpoint", 100.0)
	viper.SetDefault("process.pressure_setpoint", 25.0)
	viper.SetDefault("process.temperature_setpoint", 60.0)

	viper.SetDefault("controllers.flow.kp", 1.5)
	viper.SetDefault("controllers.flow.ki", 0.3)
	viper.SetDefault("controllers.flow.kd", 0.1)
	viper.SetDefault("controllers.pressure.kp", 2.0)
	viper.SetDefault("controllers.pressure.ki", 0.5)
	viper.SetDefault("controllers.pressure.kd", 0.2)

	viper.SetDefault("safety.max_pressure", 35.0)
	viper.SetDefault("safety.min_pressure", 5.0)
	viper.SetDefault("safety.max_temperature", 80.0)
	viper.SetDefault("safety.max_flow_rate", 200.0)
	viper.SetDefault("safety.max_oil_in_water", 1000.0)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("modbus.port", 5020)
	viper.SetDefault("modbus.enabled", true)
	viper.SetDefault("opcua.port", 4840)
	viper.SetDefault("opcua.enabled", true)
	viper.SetDefault("hmi.host", "0.0.0.0")
	viper.SetDefault("hmi.port", 8080)
	viper.SetDefault("database.path", "process_history.db")
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("logging.level", "info")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that cannot produce a safe controller.
func (c *Config) Validate() error {
	if c.Process.ScanTime <= 0 {
		return fmt.Errorf("invalid config: process.scan_time must be positive, got %g", c.Process.ScanTime)
	}
	if c.Process.FlowSetpoint <= 0 || c.Process.PressureSetpoint <= 0 || c.Process.TemperatureSetpoint <= 0 {
		return fmt.Errorf("invalid config: setpoints must be positive")
	}
	for name, g := range map[string]PIDGains{"flow": c.Controllers.Flow, "pressure": c.Controllers.Pressure} {
		if g.Kp < 0 || g.Ki < 0 || g.Kd < 0 {
			return fmt.Errorf("invalid config: controllers.%s gains must be non-negative", name)
		}
	}
	if c.Safety.MaxPressure <= c.Safety.MinPressure {
		return fmt.Errorf("invalid config: safety.max_pressure (%g) must exceed safety.min_pressure (%g)",
			c.Safety.MaxPressure, c.Safety.MinPressure)
	}
	if c.Safety.MaxTemperature <= 0 || c.Safety.MaxFlowRate <= 0 || c.Safety.MaxOilInWater <= 0 {
		return fmt.Errorf("invalid config: safety limits must be positive")
	}
	return nil
}
