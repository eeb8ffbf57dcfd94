package control

import "math"

// PerformanceMetrics summarizes recent loop behavior for diagnostics.
type PerformanceMetrics struct {
	MeanError    float64
	StdError     float64
	MaxError     float64
	MinError     float64
	RMSError     float64
	SettlingTime float64 // seconds; <0 when the loop has not settled
	Overshoot    float64
}

const (
	metricsWindow     = 100
	settlingTolerance = 0.02
	settlingRun       = 10
)

// GetPerformanceMetrics computes statistics over the most recent history.
// It needs at least 10 recorded samples; ok is false otherwise.
func (c *PIDController) GetPerformanceMetrics() (PerformanceMetrics, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.history) < 10 {
		return PerformanceMetrics{}, false
	}

	recent := c.history
	if len(recent) > metricsWindow {
		recent = recent[len(recent)-metricsWindow:]
	}

	var sum, sumSq float64
	maxErr := recent[0].err
	minErr := recent[0].err
	for _, s := range recent {
		sum += s.err
		sumSq += s.err * s.err
		if s.err > maxErr {
			maxErr = s.err
		}
		if s.err < minErr {
			minErr = s.err
		}
	}
	n := float64(len(recent))
	mean := sum / n

	var variance float64
	for _, s := range recent {
		variance += (s.err - mean) * (s.err - mean)
	}
	variance /= n - 1

	return PerformanceMetrics{
		MeanError:    mean,
		StdError:     math.Sqrt(variance),
		MaxError:     maxErr,
		MinError:     minErr,
		RMSError:     math.Sqrt(sumSq / n),
		SettlingTime: c.estimateSettlingTime(recent),
		Overshoot:    c.calculateOvershoot(),
	}, true
}

// estimateSettlingTime finds the first run of settlingRun consecutive samples
// within the tolerance band and reports its distance from the end of the
// window in seconds. Returns -1 when no such run exists.
func (c *PIDController) estimateSettlingTime(recent []sample) float64 {
	if len(recent) < 2*settlingRun {
		return -1
	}

	for i := 0; i <= len(recent)-settlingRun; i++ {
		settled := true
		for j := i; j < i+settlingRun; j++ {
			if abs(recent[j].err) >= settlingTolerance {
				settled = false
				break
			}
		}
		if settled {
			return float64(len(recent)-i) * c.params.SampleTime
		}
	}
	return -1
}

// calculateOvershoot reports the magnitude of the most negative error ever
// recorded, zero if the loop never overshot the setpoint.
func (c *PIDController) calculateOvershoot() float64 {
	if len(c.history) < 10 {
		return 0
	}

	minErr := c.history[0].err
	for _, s := range c.history {
		if s.err < minErr {
			minErr = s.err
		}
	}
	if minErr < 0 {
		return -minErr
	}
	return 0
}
