package safety

import (
	"testing"

	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testLimits() Limits {
	return Limits{
		MaxPressure:    35.0,
		MinPressure:    5.0,
		MaxTemperature: 80.0,
		MaxFlowRate:    200.0,
		MaxOilInWater:  1000.0,
	}
}

func nominalState() *models.ProcessState {
	state := models.NewProcessState()
	state.FlowRate = 100.0
	state.PressureInlet = 25.0
	state.Temperature = 60.0
	state.OilInWaterPPM = 0
	return state
}

func TestEvaluator_NominalConditionsPass(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	assert.True(t, evaluator.Check(nominalState()))
	assert.False(t, evaluator.TripActive())
	assert.Empty(t, evaluator.Violations())
}

func TestEvaluator_HighPressureTripsWithSingleViolation(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	state := nominalState()
	state.PressureInlet = 35.1

	assert.False(t, evaluator.Check(state))
	assert.True(t, evaluator.TripActive())
	assert.Len(t, evaluator.Violations(), 1)
	assert.Contains(t, evaluator.Violations()[0], "High inlet pressure")
}

func TestEvaluator_AllRulesEvaluated(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	state := nominalState()
	state.PressureInlet = 50.0 // high pressure
	state.Temperature = 95.0   // high temperature
	state.FlowRate = 250.0     // high flow
	state.OilInWaterPPM = 1500 // high oil in water

	assert.False(t, evaluator.Check(state))
	assert.Len(t, evaluator.Violations(), 4)
}

func TestEvaluator_LowPressureTrips(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	state := nominalState()
	state.PressureInlet = 4.9

	assert.False(t, evaluator.Check(state))
	assert.Contains(t, evaluator.Violations()[0], "Low inlet pressure")
}

func TestEvaluator_TripClearsOnNextCleanCheck(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	state := nominalState()
	state.PressureInlet = 40.0
	assert.False(t, evaluator.Check(state))
	assert.True(t, evaluator.TripActive())

	state.PressureInlet = 25.0
	assert.True(t, evaluator.Check(state))
	assert.False(t, evaluator.TripActive())
	assert.Empty(t, evaluator.Violations())

	// The latched indicator survives the clean check until an operator
	// acknowledges it.
	status := evaluator.Status()
	assert.Equal(t, true, status["trip_latched"])

	evaluator.Reset()
	status = evaluator.Status()
	assert.Equal(t, false, status["trip_latched"])
}

func TestEvaluator_BoundaryValuesDoNotTrip(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	state := nominalState()
	state.PressureInlet = 35.0 // exactly at the limit
	state.Temperature = 80.0
	state.FlowRate = 200.0
	state.OilInWaterPPM = 1000.0

	assert.True(t, evaluator.Check(state))
	assert.False(t, evaluator.TripActive())
}

func TestEvaluator_StatusContainsLimits(t *testing.T) {
	evaluator := NewEvaluator(testLimits(), testLogger())

	status := evaluator.Status()
	limits, ok := status["limits"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, 35.0, limits["max_pressure"])
	assert.Equal(t, 1000.0, limits["max_oil_in_water"])
}
