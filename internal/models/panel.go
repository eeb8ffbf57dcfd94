package models

import (
	"fmt"
	"sync"
)

// SetpointUpdate is an operator-requested setpoint change. Nil fields are
// left untouched.
type SetpointUpdate struct {
	Flow        *float64 `json:"flow,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Intents holds the operator requests pending for the next scan cycle.
type Intents struct {
	Start              bool
	Stop               bool
	EmergencyStop      bool
	ResetEmergencyStop bool
	AckSafety          bool

	Maintenance    bool
	MaintenanceSet bool

	Setpoints SetpointUpdate
}

// OperatorPanel collects operator commands arriving asynchronously (MQTT,
// HMI) and releases them to the scan loop exactly once per cycle.
type OperatorPanel struct {
	pending Intents
	mutex   sync.Mutex
}

func NewOperatorPanel() *OperatorPanel {
	return &OperatorPanel{}
}

func (op *OperatorPanel) RequestStart() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.Start = true
	op.pending.Stop = false
}

func (op *OperatorPanel) RequestStop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.Stop = true
	op.pending.Start = false
}

func (op *OperatorPanel) TriggerEmergencyStop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.EmergencyStop = true
}

func (op *OperatorPanel) ResetEmergencyStop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.ResetEmergencyStop = true
}

// AcknowledgeSafety requests an explicit safety-system reset.
func (op *OperatorPanel) AcknowledgeSafety() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.AckSafety = true
}

func (op *OperatorPanel) SetMaintenanceMode(enabled bool) {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.pending.Maintenance = enabled
	op.pending.MaintenanceSet = true
}

// UpdateSetpoints validates and stages operator setpoint changes.
func (op *OperatorPanel) UpdateSetpoints(update SetpointUpdate) error {
	for name, v := range map[string]*float64{
		"flow":        update.Flow,
		"pressure":    update.Pressure,
		"temperature": update.Temperature,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("invalid %s setpoint: %g", name, *v)
		}
	}

	op.mutex.Lock()
	defer op.mutex.Unlock()
	if update.Flow != nil {
		op.pending.Setpoints.Flow = update.Flow
	}
	if update.Pressure != nil {
		op.pending.Setpoints.Pressure = update.Pressure
	}
	if update.Temperature != nil {
		op.pending.Setpoints.Temperature = update.Temperature
	}
	return nil
}

// Drain returns the pending intents and clears them. Called by the scan loop
// at the top of each cycle.
func (op *OperatorPanel) Drain() Intents {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	intents := op.pending
	op.pending = Intents{}
	return intents
}
