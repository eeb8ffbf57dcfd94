package safety

import (
	"fmt"
	"sync"

	"plc-server/internal/config"
	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
)

// Limits is the immutable set of trip thresholds.
type Limits struct {
	MaxPressure    float64 // bar
	MinPressure    float64 // bar
	MaxTemperature float64 // °C
	MaxFlowRate    float64 // m³/h
	MaxOilInWater  float64 // ppm
}

// LimitsFromConfig maps the safety section of the configuration.
func LimitsFromConfig(cfg config.SafetyConfig) Limits {
	return Limits{
		MaxPressure:    cfg.MaxPressure,
		MinPressure:    cfg.MinPressure,
		MaxTemperature: cfg.MaxTemperature,
		MaxFlowRate:    cfg.MaxFlowRate,
		MaxOilInWater:  cfg.MaxOilInWater,
	}
}

// Evaluator checks the process state against the configured limits once per
// scan cycle. A failing check trips the system; the trip clears on the next
// clean check, while the latched indicator stays set until an operator
// acknowledges it via Reset.
type Evaluator struct {
	limits Limits
	logger *logrus.Logger
	mutex  sync.RWMutex

	violations  []string
	tripActive  bool
	tripLatched bool
}

func NewEvaluator(limits Limits, logger *logrus.Logger) *Evaluator {
	logger.Info("Safety evaluator initialized")
	return &Evaluator{
		limits: limits,
		logger: logger,
	}
}

// Check evaluates every rule (no short-circuiting) and returns true when the
// unit is safe to operate.
func (e *Evaluator) Check(state *models.ProcessState) bool {
	var violations []string

	if state.PressureInlet > e.limits.MaxPressure {
		violations = append(violations, fmt.Sprintf("High inlet pressure: %.1f bar", state.PressureInlet))
	}
	if state.PressureInlet < e.limits.MinPressure {
		violations = append(violations, fmt.Sprintf("Low inlet pressure: %.1f bar", state.PressureInlet))
	}
	if state.Temperature > e.limits.MaxTemperature {
		violations = append(violations, fmt.Sprintf("High temperature: %.1f°C", state.Temperature))
	}
	if state.FlowRate > e.limits.MaxFlowRate {
		violations = append(violations, fmt.Sprintf("High flow rate: %.1f m³/h", state.FlowRate))
	}
	if state.OilInWaterPPM > e.limits.MaxOilInWater {
		violations = append(violations, fmt.Sprintf("High oil in water: %.1f ppm", state.OilInWaterPPM))
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(violations) > 0 {
		e.violations = violations
		e.tripActive = true
		e.tripLatched = true
		e.logger.Errorf("SAFETY TRIP: %v", violations)
		return false
	}

	e.violations = nil
	e.tripActive = false
	return true
}

// TripActive reports whether the most recent check tripped.
func (e *Evaluator) TripActive() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.tripActive
}

// Violations returns the violation descriptions from the most recent check.
func (e *Evaluator) Violations() []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	out := make([]string, len(e.violations))
	copy(out, e.violations)
	return out
}

// Reset is the explicit operator acknowledgment: it clears the trip, the
// violation list and the latched indicator.
func (e *Evaluator) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.violations = nil
	e.tripActive = false
	e.tripLatched = false
	e.logger.Info("Safety system reset")
}

func (e *Evaluator) Status() map[string]interface{} {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	violations := make([]string, len(e.violations))
	copy(violations, e.violations)

	return map[string]interface{}{
		"trip_active":  e.tripActive,
		"trip_latched": e.tripLatched,
		"violations":   violations,
		"limits": map[string]interface{}{
			"max_pressure":     e.limits.MaxPressure,
			"min_pressure":     e.limits.MinPressure,
			"max_temperature":  e.limits.MaxTemperature,
			"max_flow_rate":    e.limits.MaxFlowRate,
			"max_oil_in_water": e.limits.MaxOilInWater,
		},
	}
}
