package plc

import (
	"context"
	"sync"
	"time"

	"plc-server/internal/config"
	"plc-server/internal/control"
	"plc-server/internal/models"
	"plc-server/internal/safety"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Reference densities for the simplified multiphase proxy model.
const (
	oilDensity   = 850.0  // kg/m³
	waterDensity = 1000.0 // kg/m³
	gasDensity   = 1.2    // kg/m³ at standard conditions
)

const (
	sampleValveDuration = 5 * time.Second
	sampleHoldoff       = 30 * time.Second
	flowStableBand      = 5.0 // m³/h around setpoint
	pressureStableBand  = 2.0 // bar around setpoint
)

// SensorSource provides the most recent raw field readings.
type SensorSource interface {
	Latest() models.SensorFrame
}

// SnapshotSink receives the end-of-cycle state snapshot. Offer must never
// block; it returns false when the snapshot was dropped.
type SnapshotSink interface {
	Name() string
	Offer(models.Snapshot) bool
}

// Controller runs the fixed-period scan cycle of one separation unit:
// input acquisition, derived-property calculation, safety check, PID control,
// output clamping and snapshot dispatch.
type Controller struct {
	cfg    *config.Config
	logger *logrus.Logger
	clock  Clock

	state *models.ProcessState
	panel *models.OperatorPanel

	flowPID     *control.PIDController
	pressurePID *control.PIDController
	safety      *safety.Evaluator

	sensors SensorSource
	sinks   []SnapshotSink

	scanPeriod time.Duration
	overruns   int64
	dropped    int64

	sampleOpenedAt time.Time
	lastSampleTime time.Time

	lastSnapshot models.Snapshot
	snapMutex    sync.RWMutex
}

func NewController(
	cfg *config.Config,
	flowPID, pressurePID *control.PIDController,
	evaluator *safety.Evaluator,
	sensors SensorSource,
	panel *models.OperatorPanel,
	clock Clock,
	logger *logrus.Logger,
) *Controller {
	state := models.NewProcessState()
	state.FlowSetpoint = cfg.Process.FlowSetpoint
	state.PressureSetpoint = cfg.Process.PressureSetpoint
	state.TemperatureSetpoint = cfg.Process.TemperatureSetpoint

	c := &Controller{
		cfg:         cfg,
		logger:      logger,
		clock:       clock,
		state:       state,
		panel:       panel,
		flowPID:     flowPID,
		pressurePID: pressurePID,
		safety:      evaluator,
		sensors:     sensors,
		scanPeriod:  cfg.Process.ScanPeriod(),
	}
	c.lastSnapshot = state.Snapshot()

	logger.Infof("PLC controller initialized, scan time %s", c.scanPeriod)
	return c
}

// AddSink registers a snapshot consumer. Not safe to call once Run started.
func (c *Controller) AddSink(sink SnapshotSink) {
	c.sinks = append(c.sinks, sink)
}

// Run executes scan cycles until the context is cancelled. Cancellation is
// only observed between cycles; a started cycle always completes through
// output clamping.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("Starting PLC scan loop")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping PLC scan loop")
			return
		default:
		}

		cycleStart := c.clock.Now()
		c.runCycle(cycleStart)

		elapsed := c.clock.Now().Sub(cycleStart)
		if elapsed < c.scanPeriod {
			c.clock.Sleep(ctx, c.scanPeriod-elapsed)
		} else {
			c.overruns++
			c.logger.Warnf("Scan overrun: %.3fs (period %.3fs)", elapsed.Seconds(), c.scanPeriod.Seconds())
		}
	}
}

// RunCycle executes exactly one scan cycle. Exposed for deterministic tests;
// Run calls it once per period.
func (c *Controller) RunCycle(now time.Time) {
	c.runCycle(now)
}

func (c *Controller) runCycle(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Cycle fault: %v, forcing safe state", r)
			c.emergencyShutdown()
		}

		// Clamping and dispatch are unconditional, whatever happened
		// upstream in this cycle.
		c.clampOutputs()
		c.state.LastUpdate = now
		c.dispatch(c.state.Snapshot())
	}()

	c.applyOperatorIntents()
	c.inputScan()
	c.calculateMultiphaseProperties()

	safe := c.safety.Check(c.state)
	if !safe || c.state.EmergencyStop {
		c.emergencyShutdown()
		return
	}

	if c.state.SystemRunning && !c.state.MaintenanceMode {
		c.controlScan(now)
	}
}

// applyOperatorIntents consumes pending operator commands exactly once per
// cycle so command ordering inside a cycle is well defined.
func (c *Controller) applyOperatorIntents() {
	intents := c.panel.Drain()

	if intents.EmergencyStop {
		c.state.EmergencyStop = true
		c.logger.Error("EMERGENCY STOP ACTIVATED")
	}
	if intents.ResetEmergencyStop {
		c.state.EmergencyStop = false
		c.logger.Info("Emergency stop reset")
	}
	if intents.AckSafety {
		c.safety.Reset()
	}
	if intents.MaintenanceSet {
		c.state.MaintenanceMode = intents.Maintenance
		c.logger.Infof("Maintenance mode: %v", intents.Maintenance)
	}

	if intents.Stop {
		c.state.SystemRunning = false
		c.logger.Info("Process system stopped")
	}
	if intents.Start {
		if !c.state.EmergencyStop && !c.state.MaintenanceMode {
			c.state.SystemRunning = true
			c.logger.Info("Process system started")
		} else {
			c.logger.Warn("Start rejected: emergency stop or maintenance mode active")
		}
	}

	if sp := intents.Setpoints.Flow; sp != nil {
		c.state.FlowSetpoint = *sp
	}
	if sp := intents.Setpoints.Pressure; sp != nil {
		c.state.PressureSetpoint = *sp
	}
	if sp := intents.Setpoints.Temperature; sp != nil {
		c.state.TemperatureSetpoint = *sp
	}
}

func (c *Controller) inputScan() {
	frame := c.sensors.Latest()

	c.state.FlowRate = frame.FlowRate
	c.state.PressureInlet = frame.PressureInlet
	c.state.PressureOutlet = frame.PressureOutlet
	c.state.Temperature = frame.Temperature
	c.state.DensityMeasurement = frame.DensityMeasurement
}

// calculateMultiphaseProperties derives gas volume fraction, water cut and
// oil-in-water from the density measurement. A simplified proxy model, not a
// multiphase flow solver.
func (c *Controller) calculateMultiphaseProperties() {
	measured := c.state.DensityMeasurement

	gvf := 0.0
	if measured < oilDensity {
		gvf = (oilDensity - measured) / oilDensity * 100
	}
	c.state.GasVolumeFraction = clamp(gvf, 0, 100)

	liquidDensity := measured * (1 - c.state.GasVolumeFraction/100)
	waterCut := 0.0
	if liquidDensity > oilDensity {
		waterCut = (liquidDensity - oilDensity) / (waterDensity - oilDensity) * 100
	}
	c.state.WaterCut = clamp(waterCut, 0, 100)

	if c.state.WaterCut > 50 {
		c.state.OilInWaterPPM = (100 - c.state.WaterCut) * 10000
	} else {
		c.state.OilInWaterPPM = 0
	}
}

func (c *Controller) controlScan(now time.Time) {
	dt := c.scanPeriod.Seconds()

	flowError := c.state.FlowSetpoint - c.state.FlowRate
	c.state.PumpSpeed = c.flowPID.Update(flowError, dt)

	pressureError := c.state.PressureSetpoint - c.state.PressureInlet
	c.state.InletValvePosition = c.pressurePID.Update(pressureError, dt)

	c.samplingSequence(now)
	c.qualityControl()
}

// samplingSequence opens the sample valve for a fixed window once the loops
// are stable and the hold-off since the previous sample has passed. The
// valve closes by deadline on a later cycle; the loop never blocks here.
func (c *Controller) samplingSequence(now time.Time) {
	if c.state.SampleValveOpen {
		if now.Sub(c.sampleOpenedAt) >= sampleValveDuration {
			c.state.SampleValveOpen = false
			c.logger.Info("Sampling sequence complete")
		}
		return
	}

	if !c.lastSampleTime.IsZero() && now.Sub(c.lastSampleTime) < sampleHoldoff {
		return
	}

	flowStable := abs(c.state.FlowRate-c.state.FlowSetpoint) < flowStableBand
	pressureStable := abs(c.state.PressureInlet-c.state.PressureSetpoint) < pressureStableBand

	if flowStable && pressureStable {
		c.state.SampleValveOpen = true
		c.sampleOpenedAt = now
		c.lastSampleTime = now
		c.logger.Infof("Starting automatic sampling sequence %s", xid.New())
	}
}

func (c *Controller) qualityControl() {
	var alarms []string

	if c.state.OilInWaterPPM > 1000 {
		alarms = append(alarms, "HIGH_OIL_IN_WATER")
	}
	if c.state.GasVolumeFraction > 95 {
		alarms = append(alarms, "HIGH_GAS_CONTENT")
	}
	if c.state.WaterCut > 90 {
		alarms = append(alarms, "HIGH_WATER_CUT")
	}

	c.state.AlarmActive = len(alarms) > 0
	if len(alarms) > 0 {
		c.logger.Warnf("Process alarms active: %v", alarms)
	}
}

// emergencyShutdown drives every output to the de-energized safe state:
// pump off, sample valve closed, inlet closed, outlet open for
// depressurization.
func (c *Controller) emergencyShutdown() {
	c.logger.Error("EMERGENCY SHUTDOWN ACTIVATED")

	c.state.SystemRunning = false
	c.state.PumpSpeed = 0
	c.state.SampleValveOpen = false
	c.state.InletValvePosition = 0
	c.state.OutletValvePosition = 100
}

func (c *Controller) clampOutputs() {
	c.state.PumpSpeed = clamp(c.state.PumpSpeed, 0, 100)
	c.state.InletValvePosition = clamp(c.state.InletValvePosition, 0, 100)
	c.state.OutletValvePosition = clamp(c.state.OutletValvePosition, 0, 100)
}

// dispatch hands the snapshot to every sink without ever blocking the loop.
func (c *Controller) dispatch(snapshot models.Snapshot) {
	c.snapMutex.Lock()
	c.lastSnapshot = snapshot
	c.snapMutex.Unlock()

	for _, sink := range c.sinks {
		if !sink.Offer(snapshot) {
			c.dropped++
			c.logger.Debugf("Snapshot dropped by sink %s", sink.Name())
		}
	}
}

// Latest returns the snapshot of the most recently completed cycle.
func (c *Controller) Latest() models.Snapshot {
	c.snapMutex.RLock()
	defer c.snapMutex.RUnlock()
	return c.lastSnapshot
}

// Overruns reports how many cycles exceeded the scan period.
func (c *Controller) Overruns() int64 {
	return c.overruns
}

// State exposes the process state for in-cycle collaborators and tests. Must
// not be touched while Run is active.
func (c *Controller) State() *models.ProcessState {
	return c.state
}

func (c *Controller) SafetyStatus() map[string]interface{} {
	return c.safety.Status()
}

func (c *Controller) ControllerStatus() map[string]interface{} {
	return map[string]interface{}{
		"flow":     c.flowPID.Status(),
		"pressure": c.pressurePID.Status(),
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
