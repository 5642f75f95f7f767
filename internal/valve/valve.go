package valve

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/datadog"
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// snapFraction of the closed-open range is treated as being at an end stop.
const snapFraction = 0.001

var emitGauge = datadog.Gauge

// Actuator positions the valve shaft in steps. SetTarget must not block.
type Actuator interface {
	SetTarget(target int32)
	CurrentPosition() int32
}

// Controller maps flow to actuator steps for one valve. It holds no lock;
// callers serialize access (see Registry).
type Controller struct {
	name     string
	cal      model.ValveCalibration
	curve    *curve.MixingCurve
	actuator Actuator
	target   int32
}

func New(name string, cal model.ValveCalibration, c *curve.MixingCurve, a Actuator) *Controller {
	return &Controller{
		name:     name,
		cal:      cal,
		curve:    c,
		actuator: a,
		target:   a.CurrentPosition(),
	}
}

func (c *Controller) Name() string {
	return c.name
}

func (c *Controller) Calibration() model.ValveCalibration {
	return c.cal
}

func (c *Controller) Curve() *curve.MixingCurve {
	return c.curve
}

// Target is the last step position commanded through this controller.
func (c *Controller) Target() int32 {
	return c.target
}

// ControlValve moves the valve to the position producing flow. Flow is clamped to [0, 1].
func (c *Controller) ControlValve(flow float64) {
	flow = ClampFlow(flow)
	position := c.curve.FlowToPosition(flow)
	target := int32(math.Trunc(float64(c.cal.Closed) + position*float64(c.cal.Range())))

	log.Debug().
		Str("valve", c.name).
		Float64("flow", flow).
		Float64("position", position).
		Int32("target", target).
		Msg("Setting valve flow")

	c.setTarget(target)
}

// State estimates the current flow from the actuator position. Readings within
// 0.1% of the range (at least one step) of an end stop report exactly 0 or 1.
func (c *Controller) State() float64 {
	cur := c.actuator.CurrentPosition()
	rng := c.cal.Range()

	tol := int32(math.Abs(float64(rng)) * snapFraction)
	if tol < 1 {
		tol = 1
	}

	if abs32(cur-c.cal.Closed) < tol {
		return 0.0
	}
	if abs32(cur-c.cal.Open) < tol {
		return 1.0
	}

	position := clamp01(float64(cur-c.cal.Closed) / float64(rng))
	return c.curve.PositionToFlow(position)
}

// Park drives to the blocked stop, bypassing the curve.
func (c *Controller) Park() {
	log.Info().Str("valve", c.name).Int32("target", c.cal.Block).Msg("Parking valve")
	c.setTarget(c.cal.Block)
}

// OpenAll drives to the position with all three ports open.
func (c *Controller) OpenAll() {
	log.Info().Str("valve", c.name).Int32("target", c.cal.AllOpen).Msg("Opening all valve ports")
	c.setTarget(c.cal.AllOpen)
}

// Status snapshots flow, position and target.
func (c *Controller) Status() model.ValveStatus {
	return model.ValveStatus{
		Name:     c.name,
		Flow:     c.State(),
		Position: c.actuator.CurrentPosition(),
		Target:   c.target,
	}
}

func (c *Controller) setTarget(target int32) {
	c.target = target
	c.actuator.SetTarget(target)
	emitGauge("valve.target_steps", float64(target), "valve:"+c.name)
}

// ClampFlow is the flow ControlValve actually applies for a requested flow.
func ClampFlow(flow float64) float64 {
	return clamp01(flow)
}

// clamp01 maps NaN to 0.
func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
