package calibration

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/mixvalve/internal/config"
	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/model"
	"github.com/thatsimonsguy/mixvalve/internal/offset"
	"github.com/thatsimonsguy/mixvalve/internal/ports"
)

// Result is everything a valve controller needs from configuration.
type Result struct {
	Angles           model.AngleSet
	MotorStepsPerRev int
	OffsetSteps      int32
	Calibration      model.ValveCalibration
	Curve            *curve.MixingCurve
}

// Assemble converts setpoint angles into step positions and applies the offset.
func Assemble(angles model.AngleSet, gearRatio float64, motorStepsPerRev int, offsetSteps int32) model.ValveCalibration {
	spd := offset.StepsPerDegree(gearRatio, motorStepsPerRev)
	at := func(angle float64) int32 {
		return int32(math.Trunc(angle*spd)) + offsetSteps
	}
	return model.ValveCalibration{
		Closed:  at(angles.Closed),
		Open:    at(angles.Open),
		Block:   at(angles.Blocked),
		AllOpen: at(angles.AllOpen),
	}
}

// FromConfig resolves ports, offset and curve for one valve. Any error is a
// configuration error and the valve must not be started.
func FromConfig(v config.Valve) (Result, error) {
	assignment, err := ports.ParseAssignment(v.Ports)
	if err != nil {
		return Result{}, fmt.Errorf("valve %s: %w", v.Name, err)
	}
	angles, err := ports.Resolve(assignment)
	if err != nil {
		return Result{}, fmt.Errorf("valve %s: %w", v.Name, err)
	}

	stepsPerRev, err := offset.Resolve(v.PositionOffset.Offset, v.MotorStepsPerRev)
	if err != nil {
		return Result{}, fmt.Errorf("valve %s: %w", v.Name, err)
	}
	if v.MotorStepsPerRev == nil {
		log.Warn().
			Str("valve", v.Name).
			Int("motor_steps_per_rev", stepsPerRev).
			Msg("motor_steps_per_rev not configured, using default")
	}
	offSteps := offset.ToSteps(v.PositionOffset.Offset, v.GearRatio, stepsPerRev)

	c, err := v.Curve.Build()
	if err != nil {
		return Result{}, fmt.Errorf("valve %s: %w", v.Name, err)
	}

	res := Result{
		Angles:           angles,
		MotorStepsPerRev: stepsPerRev,
		OffsetSteps:      offSteps,
		Calibration:      Assemble(angles, v.GearRatio, stepsPerRev, offSteps),
		Curve:            c,
	}

	log.Debug().
		Str("valve", v.Name).
		Str("ports", assignment.String()).
		Int32("closed", res.Calibration.Closed).
		Int32("open", res.Calibration.Open).
		Int32("block", res.Calibration.Block).
		Int32("all_open", res.Calibration.AllOpen).
		Msg("Valve calibrated")

	return res, nil
}
