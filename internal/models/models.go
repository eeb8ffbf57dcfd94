package models

import (
	"sync"
	"time"
)

// ProcessState is the PLC memory map for one separation unit. It is owned by
// the scan loop and mutated only inside a scan cycle; everything outside the
// loop sees it through immutable Snapshot values.
type ProcessState struct {
	// Measured inputs from field sensors
	FlowRate           float64 // m³/h
	PressureInlet      float64 // bar
	PressureOutlet     float64 // bar
	Temperature        float64 // °C
	DensityMeasurement float64 // kg/m³

	// Calculated per cycle from the density measurement
	GasVolumeFraction float64 // %
	WaterCut          float64 // %
	OilInWaterPPM     float64 // ppm

	// Control outputs to field devices
	InletValvePosition  float64 // % open
	OutletValvePosition float64 // % open
	PumpSpeed           float64 // %
	SampleValveOpen     bool

	// Operator setpoints
	FlowSetpoint        float64 // m³/h
	PressureSetpoint    float64 // bar
	TemperatureSetpoint float64 // °C

	// System status
	SystemRunning   bool
	EmergencyStop   bool
	MaintenanceMode bool
	AlarmActive     bool

	LastUpdate time.Time
}

// NewProcessState returns a state with the startup defaults of the unit.
func NewProcessState() *ProcessState {
	return &ProcessState{
		Temperature:         20.0,
		DensityMeasurement:  850.0,
		FlowSetpoint:        100.0,
		PressureSetpoint:    25.0,
		TemperatureSetpoint: 60.0,
		LastUpdate:          time.Now(),
	}
}

// Snapshot is the flat, read-only copy of ProcessState handed to external
// collaborators at the end of each cycle.
type Snapshot struct {
	FlowRate           float64 `json:"flow_rate"`
	PressureInlet      float64 `json:"pressure_inlet"`
	PressureOutlet     float64 `json:"pressure_outlet"`
	Temperature        float64 `json:"temperature"`
	DensityMeasurement float64 `json:"density_measurement"`

	GasVolumeFraction float64 `json:"gas_volume_fraction"`
	WaterCut          float64 `json:"water_cut"`
	OilInWaterPPM     float64 `json:"oil_in_water_ppm"`

	InletValvePosition  float64 `json:"inlet_valve_position"`
	OutletValvePosition float64 `json:"outlet_valve_position"`
	PumpSpeed           float64 `json:"pump_speed"`
	SampleValveOpen     bool    `json:"sample_valve_state"`

	FlowSetpoint        float64 `json:"flow_setpoint"`
	PressureSetpoint    float64 `json:"pressure_setpoint"`
	TemperatureSetpoint float64 `json:"temperature_setpoint"`

	SystemRunning   bool `json:"system_running"`
	EmergencyStop   bool `json:"emergency_stop"`
	MaintenanceMode bool `json:"maintenance_mode"`
	AlarmActive     bool `json:"alarm_active"`

	LastUpdate time.Time `json:"last_update"`
}

// Snapshot copies the current state into a detached value.
func (ps *ProcessState) Snapshot() Snapshot {
	return Snapshot{
		FlowRate:            ps.FlowRate,
		PressureInlet:       ps.PressureInlet,
		PressureOutlet:      ps.PressureOutlet,
		Temperature:         ps.Temperature,
		DensityMeasurement:  ps.DensityMeasurement,
		GasVolumeFraction:   ps.GasVolumeFraction,
		WaterCut:            ps.WaterCut,
		OilInWaterPPM:       ps.OilInWaterPPM,
		InletValvePosition:  ps.InletValvePosition,
		OutletValvePosition: ps.OutletValvePosition,
		PumpSpeed:           ps.PumpSpeed,
		SampleValveOpen:     ps.SampleValveOpen,
		FlowSetpoint:        ps.FlowSetpoint,
		PressureSetpoint:    ps.PressureSetpoint,
		TemperatureSetpoint: ps.TemperatureSetpoint,
		SystemRunning:       ps.SystemRunning,
		EmergencyStop:       ps.EmergencyStop,
		MaintenanceMode:     ps.MaintenanceMode,
		AlarmActive:         ps.AlarmActive,
		LastUpdate:          ps.LastUpdate,
	}
}

// Map flattens the snapshot to primitive key/value pairs for register maps,
// OPC-UA variables and log records. The timestamp is ISO-8601.
func (s Snapshot) Map() map[string]interface{} {
	return map[string]interface{}{
		"flow_rate":             s.FlowRate,
		"pressure_inlet":        s.PressureInlet,
		"pressure_outlet":       s.PressureOutlet,
		"temperature":           s.Temperature,
		"density_measurement":   s.DensityMeasurement,
		"gas_volume_fraction":   s.GasVolumeFraction,
		"water_cut":             s.WaterCut,
		"oil_in_water_ppm":      s.OilInWaterPPM,
		"inlet_valve_position":  s.InletValvePosition,
		"outlet_valve_position": s.OutletValvePosition,
		"pump_speed":            s.PumpSpeed,
		"sample_valve_state":    s.SampleValveOpen,
		"flow_setpoint":         s.FlowSetpoint,
		"pressure_setpoint":     s.PressureSetpoint,
		"temperature_setpoint":  s.TemperatureSetpoint,
		"system_running":        s.SystemRunning,
		"emergency_stop":        s.EmergencyStop,
		"maintenance_mode":      s.MaintenanceMode,
		"alarm_active":          s.AlarmActive,
		"last_update":           s.LastUpdate.Format(time.RFC3339),
	}
}

// SensorFrame carries one cycle of raw field readings.
type SensorFrame struct {
	FlowRate           float64
	PressureInlet      float64
	PressureOutlet     float64
	Temperature        float64
	DensityMeasurement float64
	Timestamp          time.Time
}

// SensorBus hands the latest sensor frame from the acquisition side to the
// scan loop.
type SensorBus struct {
	frame SensorFrame
	mutex sync.RWMutex
}

func NewSensorBus() *SensorBus {
	return &SensorBus{}
}

func (sb *SensorBus) Publish(frame SensorFrame) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	sb.frame = frame
}

func (sb *SensorBus) Latest() SensorFrame {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return sb.frame
}
