package control

import (
	"math"
	"time"
)

const (
	tuneInitialGain  = 1.0
	tuneGainStep     = 1.2
	tuneMaxGain      = 100.0
	tuneTestDuration = 30.0 // seconds of data per gain level
	tuneCVThreshold  = 0.10
)

// AutoTune searches for PID gains with a relay-style closed-loop experiment:
// pure proportional control, gain ramped geometrically until the process
// variable oscillates, then Ziegler-Nichols rules applied to the ultimate
// gain and estimated period. The original parameters are restored before the
// tuned ones are applied, and kept if tuning fails. AutoTune blocks for the
// duration of the experiment and must not run on the live scan loop.
func (c *PIDController) AutoTune(setpoint float64, processVariable func() float64) (ok bool) {
	c.logger.Infof("PID %s: starting auto-tune", c.name)

	original := c.Parameters()

	defer func() {
		if r := recover(); r != nil {
			c.SetParameters(original.Kp, original.Ki, original.Kd)
			c.logger.Errorf("PID %s: auto-tune aborted: %v", c.name, r)
			ok = false
		}
	}()

	ku, tu := c.findUltimateParameters(setpoint, processVariable)

	// The search leaves experiment gains behind; always put the original
	// tunables back before deciding.
	c.SetParameters(original.Kp, original.Ki, original.Kd)

	if ku <= 0 || tu <= 0 {
		c.logger.Errorf("PID %s: auto-tune failed, no sustained oscillation found", c.name)
		return false
	}

	// Ziegler-Nichols closed-loop rule.
	kp := 0.6 * ku
	ki := 2.0 * kp / tu
	kd := kp * tu / 8.0
	c.SetParameters(kp, ki, kd)

	c.logger.Infof("PID %s: auto-tune complete: Ku=%.3f, Tu=%.3f, Kp=%.3f, Ki=%.3f, Kd=%.3f",
		c.name, ku, tu, kp, ki, kd)
	return true
}

// findUltimateParameters ramps a proportional-only gain until the sampled
// process variable oscillates, returning the ultimate gain and a period
// estimate. Returns zeros when the gain cap is reached without oscillation.
func (c *PIDController) findUltimateParameters(setpoint float64, processVariable func() float64) (ku, tu float64) {
	gain := tuneInitialGain
	c.SetParameters(gain, 0, 0)

	for gain < tuneMaxGain {
		c.SetParameters(gain, 0, 0)

		if c.testForOscillation(setpoint, processVariable) {
			return gain, c.estimateOscillationPeriod()
		}
		gain *= tuneGainStep
	}

	return 0, 0
}

// testForOscillation drives the loop for ~30s of samples at the configured
// sample time and checks the coefficient of variation of the process
// variable. A crude proxy for relay-feedback oscillation detection.
func (c *PIDController) testForOscillation(setpoint float64, processVariable func() float64) bool {
	sampleTime := c.Parameters().SampleTime
	if sampleTime <= 0 {
		sampleTime = 0.1
	}

	steps := int(tuneTestDuration / sampleTime)
	measurements := make([]float64, 0, steps)

	for i := 0; i < steps; i++ {
		pv := processVariable()
		c.Update(setpoint-pv, sampleTime)
		measurements = append(measurements, pv)
		c.sleep(time.Duration(sampleTime * float64(time.Second)))
	}

	if len(measurements) < 10 {
		return false
	}

	var sum float64
	for _, m := range measurements {
		sum += m
	}
	mean := sum / float64(len(measurements))

	var variance float64
	for _, m := range measurements {
		variance += (m - mean) * (m - mean)
	}
	variance /= float64(len(measurements) - 1)

	if mean == 0 {
		return false
	}
	cv := math.Sqrt(variance) / math.Abs(mean)

	return cv > tuneCVThreshold
}

// estimateOscillationPeriod approximates the ultimate period as a fixed
// multiple of the sample time rather than measuring actual peaks.
func (c *PIDController) estimateOscillationPeriod() float64 {
	sampleTime := c.Parameters().SampleTime
	if sampleTime <= 0 {
		sampleTime = 0.1
	}
	return 2.0 * sampleTime * 50
}
