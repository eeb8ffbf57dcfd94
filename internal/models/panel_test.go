package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorPanel_DrainClearsPending(t *testing.T) {
	panel := NewOperatorPanel()

	panel.RequestStart()
	panel.AcknowledgeSafety()

	intents := panel.Drain()
	assert.True(t, intents.Start)
	assert.True(t, intents.AckSafety)

	// A second drain sees nothing.
	intents = panel.Drain()
	assert.Equal(t, Intents{}, intents)
}

func TestOperatorPanel_StartAndStopAreExclusive(t *testing.T) {
	panel := NewOperatorPanel()

	panel.RequestStart()
	panel.RequestStop()
	intents := panel.Drain()
	assert.False(t, intents.Start)
	assert.True(t, intents.Stop)

	panel.RequestStop()
	panel.RequestStart()
	intents = panel.Drain()
	assert.True(t, intents.Start)
	assert.False(t, intents.Stop)
}

func TestOperatorPanel_MaintenanceCarriesExplicitFlag(t *testing.T) {
	panel := NewOperatorPanel()

	// Disabling maintenance must be distinguishable from "not requested".
	panel.SetMaintenanceMode(false)
	intents := panel.Drain()
	assert.True(t, intents.MaintenanceSet)
	assert.False(t, intents.Maintenance)
}

func TestOperatorPanel_UpdateSetpointsValidates(t *testing.T) {
	panel := NewOperatorPanel()

	bad := -5.0
	assert.Error(t, panel.UpdateSetpoints(SetpointUpdate{Flow: &bad}))

	zero := 0.0
	assert.Error(t, panel.UpdateSetpoints(SetpointUpdate{Pressure: &zero}))

	// A rejected update stages nothing.
	intents := panel.Drain()
	assert.Nil(t, intents.Setpoints.Flow)
	assert.Nil(t, intents.Setpoints.Pressure)
}

func TestOperatorPanel_UpdateSetpointsMergesPartials(t *testing.T) {
	panel := NewOperatorPanel()

	flow := 120.0
	assert.NoError(t, panel.UpdateSetpoints(SetpointUpdate{Flow: &flow}))
	pressure := 28.0
	assert.NoError(t, panel.UpdateSetpoints(SetpointUpdate{Pressure: &pressure}))

	intents := panel.Drain()
	assert.Equal(t, 120.0, *intents.Setpoints.Flow)
	assert.Equal(t, 28.0, *intents.Setpoints.Pressure)
	assert.Nil(t, intents.Setpoints.Temperature)
}

func TestSnapshot_MapContainsAllFields(t *testing.T) {
	state := NewProcessState()
	state.FlowRate = 101.5
	state.SampleValveOpen = true
	snapshot := state.Snapshot()

	m := snapshot.Map()
	assert.Equal(t, 101.5, m["flow_rate"])
	assert.Equal(t, true, m["sample_valve_state"])
	assert.Contains(t, m, "last_update")
	assert.Len(t, m, 20)
}

func TestSensorBus_LatestReturnsLastPublished(t *testing.T) {
	bus := NewSensorBus()
	assert.Equal(t, SensorFrame{}, bus.Latest())

	bus.Publish(SensorFrame{FlowRate: 98.0})
	bus.Publish(SensorFrame{FlowRate: 102.0})
	assert.Equal(t, 102.0, bus.Latest().FlowRate)
}
