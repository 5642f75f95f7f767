package offset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// DefaultMotorStepsPerRev is substituted upstream when the motor resolution is
// not configured and the offset unit does not need it to be explicit.
const DefaultMotorStepsPerRev = 200

var (
	ErrOffsetUnresolved = errors.New("offset in steps requires motor_steps_per_rev")
	ErrInvalidOffset    = errors.New("invalid position offset")
)

var unitAliases = map[string]model.OffsetUnit{
	"step":        model.UnitSteps,
	"steps":       model.UnitSteps,
	"rev":         model.UnitRevolutions,
	"revs":        model.UnitRevolutions,
	"revolution":  model.UnitRevolutions,
	"revolutions": model.UnitRevolutions,
	"turn":        model.UnitRevolutions,
	"turns":       model.UnitRevolutions,
	"deg":         model.UnitDegrees,
	"degree":      model.UnitDegrees,
	"degrees":     model.UnitDegrees,
	"°":           model.UnitDegrees,
	"rad":         model.UnitRadians,
	"radian":      model.UnitRadians,
	"radians":     model.UnitRadians,
	"arcmin":      model.UnitArcminutes,
	"arcminute":   model.UnitArcminutes,
	"arcminutes":  model.UnitArcminutes,
	"′":           model.UnitArcminutes,
	"arcsec":      model.UnitArcseconds,
	"arcsecond":   model.UnitArcseconds,
	"arcseconds":  model.UnitArcseconds,
	"″":           model.UnitArcseconds,
}

// StepsPerDegree is negative: increasing angle turns the actuator toward
// decreasing step counts.
func StepsPerDegree(gearRatio float64, motorStepsPerRev int) float64 {
	return -float64(motorStepsPerRev) * gearRatio / 360.0
}

// ToSteps converts an offset into actuator steps. Results are truncated toward
// zero to step resolution.
func ToSteps(o model.Offset, gearRatio float64, motorStepsPerRev int) int32 {
	spd := StepsPerDegree(gearRatio, motorStepsPerRev)
	stepsPerRev := float64(motorStepsPerRev) * gearRatio

	var steps float64
	switch o.Unit {
	case model.UnitSteps:
		steps = o.Value
	case model.UnitRevolutions:
		steps = o.Value * stepsPerRev
	case model.UnitDegrees:
		steps = o.Value * spd
	case model.UnitRadians:
		steps = o.Value / (2 * math.Pi) * stepsPerRev
	case model.UnitArcminutes:
		steps = o.Value / 21600 * 360 * spd
	case model.UnitArcseconds:
		steps = o.Value / 1296000 * 360 * spd
	}
	return int32(math.Trunc(steps))
}

// Resolve picks the motor resolution used for an offset. A nil resolution is
// only acceptable when the offset is not expressed in steps.
func Resolve(o model.Offset, motorStepsPerRev *int) (int, error) {
	if motorStepsPerRev != nil {
		return *motorStepsPerRev, nil
	}
	if o.Unit == model.UnitSteps {
		return 0, ErrOffsetUnresolved
	}
	return DefaultMotorStepsPerRev, nil
}

// Parse reads offsets such as "10steps", "-7.5 deg" or "0.25rev".
func Parse(s string) (model.Offset, error) {
	v := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	lower := strings.ToLower(v)

	// longest alias first
	suffixes := make([]string, 0, len(unitAliases))
	for k := range unitAliases {
		suffixes = append(suffixes, k)
	}
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	for _, suffix := range suffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		num := lower[:len(lower)-len(suffix)]
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return model.Offset{}, fmt.Errorf("%w: invalid number %q", ErrInvalidOffset, s)
		}
		return model.Offset{Value: f, Unit: unitAliases[suffix]}, nil
	}
	return model.Offset{}, fmt.Errorf("%w: %q must end with a unit (steps, rev, deg, rad, arcmin, arcsec), e.g. 10steps or -7.5deg", ErrInvalidOffset, s)
}
