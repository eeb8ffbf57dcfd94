package control

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Parameters holds the tunables of one PID loop.
type Parameters struct {
	Kp float64 // Proportional gain
	Ki float64 // Integral gain
	Kd float64 // Derivative gain

	OutputMin float64
	OutputMax float64

	IntegralLimit        float64 // Anti-windup clamp on the accumulator
	DerivativeFilterTime float64 // First-order filter time constant (s)
	Deadband             float64 // Error magnitude treated as zero
	SampleTime           float64 // Nominal cycle time (s)
}

// DefaultParameters returns the industrial defaults for a 0-100% actuator.
func DefaultParameters() Parameters {
	return Parameters{
		Kp:                   1.0,
		OutputMin:            0.0,
		OutputMax:            100.0,
		IntegralLimit:        100.0,
		DerivativeFilterTime: 0.1,
		SampleTime:           0.1,
	}
}

type sample struct {
	err    float64
	output float64
}

const maxHistory = 1000

// PIDController is a single-loop controller with anti-windup, derivative
// filtering, output limiting and bumpless auto/manual transfer.
type PIDController struct {
	name   string
	params Parameters
	logger *logrus.Logger
	mutex  sync.RWMutex

	lastError      float64
	integral       float64
	lastDerivative float64
	initialized    bool

	autoMode     bool
	manualOutput float64

	history []sample

	sleep func(time.Duration) // replaced in tests
}

func NewPIDController(name string, params Parameters, logger *logrus.Logger) *PIDController {
	c := &PIDController{
		name:     name,
		params:   params,
		logger:   logger,
		autoMode: true,
		sleep:    time.Sleep,
	}
	logger.Infof("PID %s initialized: Kp=%g, Ki=%g, Kd=%g", name, params.Kp, params.Ki, params.Kd)
	return c
}

// Update advances the controller by one cycle. error is setpoint minus
// measurement; dt is the elapsed time in seconds, with the configured sample
// time substituted when dt <= 0. The returned output is always within
// [OutputMin, OutputMax].
func (c *PIDController) Update(err, dt float64) float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if dt <= 0 {
		dt = c.params.SampleTime
	}

	// First cycle only establishes the error baseline so the derivative
	// term does not spike on startup.
	if !c.initialized {
		c.lastError = err
		c.initialized = true
		if !c.autoMode {
			return c.manualOutput
		}
		return 0.0
	}

	if !c.autoMode {
		return c.manualOutput
	}

	if abs(err) < c.params.Deadband {
		err = 0.0
	}

	proportional := c.params.Kp * err

	if dt > 0 {
		c.integral += err * dt
		if c.integral > c.params.IntegralLimit {
			c.integral = c.params.IntegralLimit
		} else if c.integral < -c.params.IntegralLimit {
			c.integral = -c.params.IntegralLimit
		}
	}
	integral := c.params.Ki * c.integral

	var filtered float64
	if dt > 0 {
		raw := (err - c.lastError) / dt
		if c.params.DerivativeFilterTime > 0 {
			alpha := dt / (c.params.DerivativeFilterTime + dt)
			filtered = alpha*raw + (1-alpha)*c.lastDerivative
		} else {
			filtered = raw
		}
		c.lastDerivative = filtered
	}
	derivative := c.params.Kd * filtered

	output := proportional + integral + derivative
	limited := clamp(output, c.params.OutputMin, c.params.OutputMax)

	// Back-calculation: bleed the accumulator by however much the clamp
	// cut off, so it cannot keep winding up during saturation. The
	// accumulator invariant still holds afterwards.
	if output != limited && c.params.Ki != 0 {
		c.integral += (limited - output) / c.params.Ki * dt
		c.integral = clamp(c.integral, -c.params.IntegralLimit, c.params.IntegralLimit)
	}

	c.lastError = err
	c.recordSample(err, limited)

	return limited
}

func (c *PIDController) recordSample(err, output float64) {
	c.history = append(c.history, sample{err: err, output: output})
	if len(c.history) > maxHistory {
		c.history = c.history[1:]
	}
}

// Reset clears the running state without touching the tunable parameters.
func (c *PIDController) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lastError = 0
	c.integral = 0
	c.lastDerivative = 0
	c.initialized = false
	c.history = nil
	c.logger.Infof("PID %s reset", c.name)
}

// SetAutoMode switches between automatic and manual control. The manual to
// auto transition preloads the integrator so the next automatic output starts
// near the previous manual output (bumpless transfer).
func (c *PIDController) SetAutoMode(auto bool, manualOutput float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case auto && !c.autoMode:
		if c.params.Ki != 0 {
			c.integral = manualOutput / c.params.Ki
		} else {
			c.integral = 0
		}
		c.logger.Infof("PID %s switched to AUTO mode", c.name)
	case !auto && c.autoMode:
		c.manualOutput = manualOutput
		c.logger.Infof("PID %s switched to MANUAL mode, output=%g", c.name, manualOutput)
	case !auto:
		c.manualOutput = manualOutput
	}

	c.autoMode = auto
}

// SetParameters updates the gains; the change takes effect on the next Update.
func (c *PIDController) SetParameters(kp, ki, kd float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.params.Kp = kp
	c.params.Ki = ki
	c.params.Kd = kd
	c.logger.Infof("PID %s parameters updated: Kp=%g, Ki=%g, Kd=%g", c.name, kp, ki, kd)
}

func (c *PIDController) SetOutputLimits(min, max float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.params.OutputMin = min
	c.params.OutputMax = max
	c.logger.Infof("PID %s output limits set: [%g, %g]", c.name, min, max)
}

// Parameters returns a copy of the current tunables.
func (c *PIDController) Parameters() Parameters {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.params
}

// Components returns the last proportional, integral and derivative
// contributions for diagnostics.
func (c *PIDController) Components() (p, i, d float64) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.params.Kp * c.lastError,
		c.params.Ki * c.integral,
		c.params.Kd * c.lastDerivative
}

func (c *PIDController) Name() string {
	return c.name
}

func (c *PIDController) Status() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	p := c.params.Kp * c.lastError
	i := c.params.Ki * c.integral
	d := c.params.Kd * c.lastDerivative

	return map[string]interface{}{
		"name":          c.name,
		"auto_mode":     c.autoMode,
		"manual_output": c.manualOutput,
		"initialized":   c.initialized,
		"parameters": map[string]interface{}{
			"kp": c.params.Kp,
			"ki": c.params.Ki,
			"kd": c.params.Kd,
		},
		"components": map[string]interface{}{
			"proportional": p,
			"integral":     i,
			"derivative":   d,
		},
		"integral_value": c.integral,
		"last_error":     c.lastError,
		"output_limits": map[string]interface{}{
			"min": c.params.OutputMin,
			"max": c.params.OutputMax,
		},
		"sample_time": c.params.SampleTime,
	}
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

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
