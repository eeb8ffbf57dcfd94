package control

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Disable logs for tests
	return logger
}

func testParams() Parameters {
	return Parameters{
		Kp:                   2.0,
		Ki:                   0.5,
		Kd:                   0.1,
		OutputMin:            0.0,
		OutputMax:            100.0,
		IntegralLimit:        100.0,
		DerivativeFilterTime: 0.1,
		SampleTime:           0.1,
	}
}

func TestPIDController_FirstUpdateEstablishesBaseline(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	// First call only stores the error baseline.
	output := pid.Update(50.0, 0.1)
	assert.Equal(t, 0.0, output)

	// Second call applies the gains.
	output = pid.Update(50.0, 0.1)
	assert.True(t, output > 0)
}

func TestPIDController_OutputAlwaysWithinLimits(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		err := rng.Float64()*2000 - 1000
		output := pid.Update(err, 0.1)
		assert.GreaterOrEqual(t, output, 0.0, "iteration %d", i)
		assert.LessOrEqual(t, output, 100.0, "iteration %d", i)
	}
}

func TestPIDController_IntegralClampedToLimit(t *testing.T) {
	params := testParams()
	params.IntegralLimit = 10.0
	pid := NewPIDController("flow", params, testLogger())

	// Sustained large error would wind the accumulator far past the
	// limit without the clamp.
	for i := 0; i < 1000; i++ {
		pid.Update(500.0, 0.1)
	}
	assert.LessOrEqual(t, pid.integral, 10.0)
	assert.GreaterOrEqual(t, pid.integral, -10.0)

	for i := 0; i < 1000; i++ {
		pid.Update(-500.0, 0.1)
	}
	assert.LessOrEqual(t, pid.integral, 10.0)
	assert.GreaterOrEqual(t, pid.integral, -10.0)
}

func TestPIDController_ManualModeBypassesComputation(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())
	pid.SetAutoMode(false, 42.5)

	for _, err := range []float64{0, 100, -100, 1e6} {
		assert.Equal(t, 42.5, pid.Update(err, 0.1))
	}
}

func TestPIDController_BumplessTransfer(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	pid.Update(0, 0.1) // establish baseline
	pid.SetAutoMode(false, 40.0)
	assert.Equal(t, 40.0, pid.Update(5.0, 0.1))

	// Switching back to auto preloads the integrator so the output does
	// not step.
	pid.SetAutoMode(true, 40.0)
	output := pid.Update(0.0, 0.1)
	assert.InDelta(t, 40.0, output, 1.0)
}

func TestPIDController_BumplessTransferZeroKi(t *testing.T) {
	params := testParams()
	params.Ki = 0
	pid := NewPIDController("flow", params, testLogger())

	pid.Update(0, 0.1)
	pid.SetAutoMode(false, 60.0)
	pid.SetAutoMode(true, 60.0)
	assert.Equal(t, 0.0, pid.integral)
}

func TestPIDController_DeadbandZeroesError(t *testing.T) {
	params := testParams()
	params.Deadband = 1.0
	params.Ki = 0
	params.Kd = 0
	pid := NewPIDController("flow", params, testLogger())

	pid.Update(0, 0.1)
	// |error| below the deadband is treated as zero for the whole cycle.
	assert.Equal(t, 0.0, pid.Update(0.5, 0.1))
	assert.Equal(t, 0.0, pid.Update(-0.9, 0.1))
	// At or above the deadband the error passes through.
	assert.InDelta(t, 4.0, pid.Update(2.0, 0.1), 1e-9)
}

func TestPIDController_ResetThenIdenticalFirstUpdate(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	first := pid.Update(12.0, 0.1)
	pid.Reset()
	second := pid.Update(12.0, 0.1)
	assert.Equal(t, first, second)

	// Same for the cycle after the baseline.
	a := pid.Update(12.0, 0.1)
	pid.Reset()
	pid.Update(12.0, 0.1)
	b := pid.Update(12.0, 0.1)
	assert.Equal(t, a, b)
}

func TestPIDController_DefaultDtUsesSampleTime(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())
	ref := NewPIDController("flow", testParams(), testLogger())

	pid.Update(10, 0)
	ref.Update(10, 0.1)
	assert.Equal(t, ref.Update(10, 0.1), pid.Update(10, 0))
}

func TestPIDController_BackCalculationLimitsWindup(t *testing.T) {
	params := testParams()
	params.Kp = 10.0
	params.Ki = 5.0
	pid := NewPIDController("flow", params, testLogger())
	pid.Update(0, 0.1)

	// Saturate hard, then reverse the error: the back-calculated
	// accumulator must let the output leave the rail quickly.
	for i := 0; i < 100; i++ {
		assert.Equal(t, 100.0, pid.Update(1000, 0.1))
	}
	recovered := false
	for i := 0; i < 10; i++ {
		if pid.Update(-10, 0.1) < 100.0 {
			recovered = true
			break
		}
	}
	assert.True(t, recovered, "output should leave saturation promptly")
}

func TestPIDController_SetParametersTakesEffectNextUpdate(t *testing.T) {
	params := testParams()
	params.Ki = 0
	params.Kd = 0
	pid := NewPIDController("flow", params, testLogger())
	pid.Update(0, 0.1)

	assert.InDelta(t, 20.0, pid.Update(10, 0.1), 1e-9)
	pid.SetParameters(4.0, 0, 0)
	assert.InDelta(t, 40.0, pid.Update(10, 0.1), 1e-9)
}

func TestPIDController_Components(t *testing.T) {
	params := testParams()
	params.Kd = 0
	pid := NewPIDController("flow", params, testLogger())

	pid.Update(10, 0.1)
	pid.Update(10, 0.1)

	p, i, d := pid.Components()
	assert.InDelta(t, 20.0, p, 1e-9)
	assert.InDelta(t, 0.5, i, 1e-9) // ki * (10 * 0.1)
	assert.Equal(t, 0.0, d)
}

func TestPIDController_PerformanceMetricsRequireHistory(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	_, ok := pid.GetPerformanceMetrics()
	assert.False(t, ok)

	pid.Update(5, 0.1)
	for i := 0; i < 9; i++ {
		pid.Update(5, 0.1)
	}
	_, ok = pid.GetPerformanceMetrics()
	assert.False(t, ok, "baseline call records no sample")

	pid.Update(5, 0.1)
	metrics, ok := pid.GetPerformanceMetrics()
	assert.True(t, ok)
	assert.InDelta(t, 5.0, metrics.MeanError, 1e-9)
	assert.InDelta(t, 5.0, metrics.RMSError, 1e-9)
	assert.Equal(t, 0.0, metrics.Overshoot)
}

func TestPIDController_OvershootIsMostNegativeError(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	pid.Update(0, 0.1)
	errors := []float64{5, 3, 1, -2, -7.5, -1, 0, 0, 0, 0, 0}
	for _, e := range errors {
		pid.Update(e, 0.1)
	}

	metrics, ok := pid.GetPerformanceMetrics()
	assert.True(t, ok)
	assert.InDelta(t, 7.5, metrics.Overshoot, 1e-9)
}

func TestPIDController_SettlingTimeDetected(t *testing.T) {
	params := testParams()
	params.Deadband = 0
	pid := NewPIDController("flow", params, testLogger())

	pid.Update(1.0, 0.1)
	for i := 0; i < 20; i++ {
		pid.Update(1.0, 0.1)
	}
	for i := 0; i < 15; i++ {
		pid.Update(0.001, 0.1)
	}

	metrics, ok := pid.GetPerformanceMetrics()
	assert.True(t, ok)
	assert.Greater(t, metrics.SettlingTime, 0.0)

	// A loop that never enters the band reports no settling time.
	pid.Reset()
	pid.Update(1.0, 0.1)
	for i := 0; i < 30; i++ {
		pid.Update(1.0, 0.1)
	}
	metrics, ok = pid.GetPerformanceMetrics()
	assert.True(t, ok)
	assert.Equal(t, -1.0, metrics.SettlingTime)
}

func TestPIDController_HistoryBounded(t *testing.T) {
	pid := NewPIDController("flow", testParams(), testLogger())

	pid.Update(1, 0.1)
	for i := 0; i < 2500; i++ {
		pid.Update(1, 0.1)
	}
	assert.Equal(t, maxHistory, len(pid.history))
}

func TestPIDController_Status(t *testing.T) {
	pid := NewPIDController("pressure", testParams(), testLogger())
	pid.Update(3, 0.1)

	status := pid.Status()
	assert.Equal(t, "pressure", status["name"])
	assert.Equal(t, true, status["auto_mode"])
	assert.Contains(t, status, "components")
	assert.Contains(t, status, "output_limits")
}
