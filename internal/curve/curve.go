package curve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

var (
	ErrCurveRejected = errors.New("invalid mixing curve")

	ErrTooFewPoints      = fmt.Errorf("%w: at least 2 points are required", ErrCurveRejected)
	ErrFlowNotIncreasing = fmt.Errorf("%w: flow values must be strictly increasing", ErrCurveRejected)
	ErrBadStart          = fmt.Errorf("%w: first point must have flow 0.0", ErrCurveRejected)
	ErrBadEnd            = fmt.Errorf("%w: last point must have flow 1.0", ErrCurveRejected)
	ErrOutOfRange        = fmt.Errorf("%w: flow and position must be within [0, 1]", ErrCurveRejected)

	ErrUnknownPreset = errors.New("unknown curve preset")
	ErrPointFormat   = errors.New("curve point must be [flow, position] or {flow: f, position: p}")
)

const (
	PresetEase   = "ease"
	PresetLinear = "linear"

	DefaultPreset = PresetEase
)

var presets = map[string][]model.CurvePoint{
	// Little flow change near the stops, steep through the middle.
	PresetEase: {
		{Flow: 0.0, Position: 0.0},
		{Flow: 0.01, Position: 0.1},
		{Flow: 0.1, Position: 0.2},
		{Flow: 0.2, Position: 0.3},
		{Flow: 0.3, Position: 0.4},
		{Flow: 0.5, Position: 0.5},
		{Flow: 0.7, Position: 0.6},
		{Flow: 0.8, Position: 0.7},
		{Flow: 0.9, Position: 0.8},
		{Flow: 0.99, Position: 0.9},
		{Flow: 1.0, Position: 1.0},
	},
	PresetLinear: {
		{Flow: 0.0, Position: 0.0},
		{Flow: 1.0, Position: 1.0},
	},
}

// MixingCurve maps valve position to flow and back by linear interpolation.
//
// Only the flow coordinate is required to increase. A curve whose positions
// are not monotone is accepted; PositionToFlow then returns the flow from the
// first segment (in point order) that brackets the query.
type MixingCurve struct {
	points []model.CurvePoint
}

// Build validates points and returns an immutable curve.
func Build(points []model.CurvePoint) (*MixingCurve, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	for i := 1; i < len(points); i++ {
		if points[i].Flow <= points[i-1].Flow {
			return nil, fmt.Errorf("%w (point %d: %g after %g)", ErrFlowNotIncreasing, i, points[i].Flow, points[i-1].Flow)
		}
	}
	if points[0].Flow != 0.0 {
		return nil, fmt.Errorf("%w (got %g)", ErrBadStart, points[0].Flow)
	}
	if last := points[len(points)-1]; last.Flow != 1.0 {
		return nil, fmt.Errorf("%w (got %g)", ErrBadEnd, last.Flow)
	}
	for i, p := range points {
		// written so NaN fails
		if !(p.Flow >= 0 && p.Flow <= 1) || !(p.Position >= 0 && p.Position <= 1) {
			return nil, fmt.Errorf("%w (point %d: [%g, %g])", ErrOutOfRange, i, p.Flow, p.Position)
		}
	}

	owned := make([]model.CurvePoint, len(points))
	copy(owned, points)
	return &MixingCurve{points: owned}, nil
}

// Preset builds one of the named curves.
func Preset(name string) (*MixingCurve, error) {
	points, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownPreset, name, PresetNames())
	}
	return Build(points)
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Points returns a copy of the curve's points.
func (c *MixingCurve) Points() []model.CurvePoint {
	out := make([]model.CurvePoint, len(c.points))
	copy(out, c.points)
	return out
}

// FlowToPosition returns the valve position producing flow.
func (c *MixingCurve) FlowToPosition(flow float64) float64 {
	first, last := c.points[0], c.points[len(c.points)-1]
	// NaN lands on the first point
	if !(flow > first.Flow) {
		return first.Position
	}
	if flow >= last.Flow {
		return last.Position
	}

	// first point with Flow >= flow; flow is strictly inside the domain so i is in [1, n-1]
	i := sort.Search(len(c.points), func(i int) bool { return c.points[i].Flow >= flow })
	lo, hi := c.points[i-1], c.points[i]
	t := (flow - lo.Flow) / (hi.Flow - lo.Flow)
	return lo.Position + t*(hi.Position-lo.Position)
}

// PositionToFlow returns the flow produced at position.
func (c *MixingCurve) PositionToFlow(position float64) float64 {
	first, last := c.points[0], c.points[len(c.points)-1]
	if !(position > first.Position) {
		return first.Flow
	}
	if position >= last.Position {
		return last.Flow
	}

	for i := 0; i < len(c.points)-1; i++ {
		lo, hi := c.points[i], c.points[i+1]
		if (position-lo.Position)*(position-hi.Position) > 0 || lo.Position == hi.Position {
			continue
		}
		t := (position - lo.Position) / (hi.Position - lo.Position)
		return lo.Flow + t*(hi.Flow-lo.Flow)
	}
	return last.Flow
}
