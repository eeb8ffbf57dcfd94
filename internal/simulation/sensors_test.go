package simulation

import (
	"testing"
	"time"

	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestSensorSimulator_PublishesInitialFrame(t *testing.T) {
	bus := models.NewSensorBus()
	NewSensorSimulator(bus, 1, testLogger())

	frame := bus.Latest()
	assert.Equal(t, 100.0, frame.FlowRate)
	assert.Equal(t, 25.0, frame.PressureInlet)
	assert.Equal(t, 18.75, frame.PressureOutlet)
	assert.Equal(t, 850.0, frame.DensityMeasurement)
}

func TestSensorSimulator_SameSeedSameSequence(t *testing.T) {
	a := NewSensorSimulator(models.NewSensorBus(), 42, testLogger())
	b := NewSensorSimulator(models.NewSensorBus(), 42, testLogger())

	now := time.Unix(1000, 0)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(now), b.Next(now))
	}
}

func TestSensorSimulator_ValuesStayInPlausibleRanges(t *testing.T) {
	sim := NewSensorSimulator(models.NewSensorBus(), 7, testLogger())

	now := time.Unix(1000, 0)
	for i := 0; i < 10000; i++ {
		frame := sim.Next(now)
		assert.GreaterOrEqual(t, frame.FlowRate, 0.0)
		assert.LessOrEqual(t, frame.FlowRate, 300.0)
		assert.GreaterOrEqual(t, frame.PressureInlet, 0.0)
		assert.LessOrEqual(t, frame.PressureInlet, 50.0)
		assert.GreaterOrEqual(t, frame.Temperature, 10.0)
		assert.LessOrEqual(t, frame.Temperature, 100.0)
		assert.GreaterOrEqual(t, frame.DensityMeasurement, 400.0)
		assert.LessOrEqual(t, frame.DensityMeasurement, 1100.0)
	}
}

func TestSensorSimulator_DifferentSeedsDiverge(t *testing.T) {
	a := NewSensorSimulator(models.NewSensorBus(), 1, testLogger())
	b := NewSensorSimulator(models.NewSensorBus(), 2, testLogger())

	now := time.Unix(1000, 0)
	diverged := false
	for i := 0; i < 10; i++ {
		if a.Next(now) != b.Next(now) {
			diverged = true
			break
		}
	}
	assert.True(t, diverged, "distinct seeds should produce distinct walks")
}

func TestSensorSimulator_OutletTracksInlet(t *testing.T) {
	sim := NewSensorSimulator(models.NewSensorBus(), 3, testLogger())

	frame := sim.Next(time.Unix(1000, 0))
	assert.InDelta(t, frame.PressureInlet*0.75, frame.PressureOutlet, 1e-9)
}
