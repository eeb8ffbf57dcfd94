package simulation

import (
	"context"
	"math/rand"
	"time"

	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
)

// SensorSimulator synthesizes field readings for the analyzer with a seeded
// random walk around realistic offshore operating points, standing in for
// the plant I/O. It publishes frames onto a SensorBus that the scan loop
// reads as its sensor source.
type SensorSimulator struct {
	bus    *models.SensorBus
	rng    *rand.Rand
	logger *logrus.Logger

	flowRate      float64
	pressureInlet float64
	temperature   float64
	density       float64
}

func NewSensorSimulator(bus *models.SensorBus, seed int64, logger *logrus.Logger) *SensorSimulator {
	s := &SensorSimulator{
		bus:    bus,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,

		flowRate:      100.0,
		pressureInlet: 25.0,
		temperature:   60.0,
		density:       850.0,
	}
	s.bus.Publish(s.frame(time.Now()))
	return s
}

// Run publishes a fresh frame every period until cancelled.
func (s *SensorSimulator) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.logger.Info("Starting sensor simulator")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping sensor simulator")
			return
		case <-ticker.C:
			s.bus.Publish(s.Next(time.Now()))
		}
	}
}

// Next advances the simulated process by one step and returns the frame.
func (s *SensorSimulator) Next(now time.Time) models.SensorFrame {
	s.flowRate += s.uniform(-2, 2)
	s.pressureInlet += s.uniform(-0.5, 0.5)
	s.temperature += s.uniform(-1, 1)
	s.density += s.uniform(-1.5, 1.5)

	// Keep values within physically plausible ranges.
	s.flowRate = clamp(s.flowRate, 0, 300)
	s.pressureInlet = clamp(s.pressureInlet, 0, 50)
	s.temperature = clamp(s.temperature, 10, 100)
	s.density = clamp(s.density, 400, 1100)

	return s.frame(now)
}

func (s *SensorSimulator) frame(now time.Time) models.SensorFrame {
	return models.SensorFrame{
		FlowRate:           s.flowRate,
		PressureInlet:      s.pressureInlet,
		PressureOutlet:     s.pressureInlet * 0.75,
		Temperature:        s.temperature,
		DensityMeasurement: s.density,
		Timestamp:          now,
	}
}

func (s *SensorSimulator) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
