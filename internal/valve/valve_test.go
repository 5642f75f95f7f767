package valve

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/model"
)

// instantActuator reaches every target immediately.
type instantActuator struct {
	mu       sync.Mutex
	position int32
	calls    int
}

func (a *instantActuator) SetTarget(target int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = target
	a.calls++
}

func (a *instantActuator) CurrentPosition() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func mustPreset(t *testing.T, name string) *curve.MixingCurve {
	t.Helper()
	c, err := curve.Preset(name)
	require.NoError(t, err)
	return c
}

var testCal = model.ValveCalibration{Closed: -180, Open: -270, Block: 0, AllOpen: -180}

func newLinear(t *testing.T, cal model.ValveCalibration, start int32) (*Controller, *instantActuator) {
	t.Helper()
	a := &instantActuator{position: start}
	return New("mix", cal, mustPreset(t, curve.PresetLinear), a), a
}

func TestControlValve_Targets(t *testing.T) {
	c, a := newLinear(t, testCal, 0)
	assert.Equal(t, int32(0), c.Target())

	tests := []struct {
		flow float64
		want int32
	}{
		{0, -180},
		{1, -270},
		{0.5, -225},
		{-0.3, -180},
		{1.7, -270},
		{0.25, -202},
	}
	for _, tt := range tests {
		c.ControlValve(tt.flow)
		assert.Equal(t, tt.want, a.CurrentPosition(), "flow %v", tt.flow)
		assert.Equal(t, tt.want, c.Target())
	}
}

func TestControlValve_NaNClosesValve(t *testing.T) {
	for _, preset := range curve.PresetNames() {
		a := &instantActuator{position: -225}
		c := New("mix", testCal, mustPreset(t, preset), a)

		require.NotPanics(t, func() { c.ControlValve(math.NaN()) }, preset)
		assert.Equal(t, int32(-180), a.CurrentPosition(), preset)
		assert.Equal(t, int32(-180), c.Target(), preset)
	}
}

func TestClampFlow(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.4, 0.4},
		{-2, 0},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampFlow(tt.in), "flow %v", tt.in)
	}
}

func TestControlValve_EaseCurve(t *testing.T) {
	a := &instantActuator{}
	c := New("mix", testCal, mustPreset(t, curve.PresetEase), a)

	// flow 0.5 sits at position 0.5 on the ease curve
	c.ControlValve(0.5)
	assert.Equal(t, int32(-225), a.CurrentPosition())

	// flow 0.1 sits at position 0.2
	c.ControlValve(0.1)
	assert.Equal(t, int32(-198), a.CurrentPosition())
}

func TestState_SnapsAtExtremes(t *testing.T) {
	c, a := newLinear(t, testCal, -180)
	assert.Equal(t, 0.0, c.State())

	a.SetTarget(-270)
	assert.Equal(t, 1.0, c.State())

	a.SetTarget(-225)
	assert.InDelta(t, 0.5, c.State(), 1e-9)
}

func TestState_ClampsBeyondExtremes(t *testing.T) {
	c, a := newLinear(t, testCal, -300)
	assert.Equal(t, 1.0, c.State())

	a.SetTarget(0)
	assert.Equal(t, 0.0, c.State())
}

func TestState_RoundTrip(t *testing.T) {
	cals := map[string]model.ValveCalibration{
		curve.PresetLinear: testCal,
		curve.PresetEase:   {Closed: -1800, Open: -2700},
	}
	for _, preset := range curve.PresetNames() {
		a := &instantActuator{}
		c := New("mix", cals[preset], mustPreset(t, preset), a)
		for i := 0; i <= 20; i++ {
			flow := float64(i) / 20
			c.ControlValve(flow)
			assert.InDelta(t, flow, c.State(), 0.02, "preset %s flow %v", preset, flow)
		}
	}
}

func TestState_ToleranceLargeRange(t *testing.T) {
	cal := model.ValveCalibration{Closed: 0, Open: 10000}
	c, a := newLinear(t, cal, 1)

	assert.Equal(t, 0.0, c.State(), "1 step from closed")

	a.SetTarget(5)
	assert.Equal(t, 0.0, c.State())

	a.SetTarget(9999)
	assert.Equal(t, 1.0, c.State(), "1 step from open")

	a.SetTarget(15)
	assert.InDelta(t, 0.0015, c.State(), 1e-9)
	assert.NotEqual(t, 0.0, c.State())
}

func TestState_ToleranceSmallRange(t *testing.T) {
	cal := model.ValveCalibration{Closed: 0, Open: 10}
	c, a := newLinear(t, cal, 0)
	assert.Equal(t, 0.0, c.State())

	a.SetTarget(1)
	assert.InDelta(t, 0.1, c.State(), 1e-9)

	a.SetTarget(9)
	assert.InDelta(t, 0.9, c.State(), 1e-9)

	a.SetTarget(10)
	assert.Equal(t, 1.0, c.State())
}

func TestState_ReversedRange(t *testing.T) {
	cal := model.ValveCalibration{Closed: 100, Open: 400}
	c, a := newLinear(t, cal, 0)

	c.ControlValve(0.5)
	assert.Equal(t, int32(250), a.CurrentPosition())
	assert.InDelta(t, 0.5, c.State(), 1e-9)

	c.ControlValve(1)
	assert.Equal(t, int32(400), a.CurrentPosition())
	assert.Equal(t, 1.0, c.State())
}

func TestParkAndOpenAll(t *testing.T) {
	c, a := newLinear(t, model.ValveCalibration{Closed: -170, Open: -260, Block: 10, AllOpen: -170}, -200)

	c.Park()
	assert.Equal(t, int32(10), a.CurrentPosition())
	assert.Equal(t, int32(10), c.Target())

	c.OpenAll()
	assert.Equal(t, int32(-170), a.CurrentPosition())
	assert.Equal(t, 0.0, c.State(), "all-open shares the closed angle on this layout")
}

func TestStatus(t *testing.T) {
	c, _ := newLinear(t, testCal, -180)
	c.ControlValve(0.5)

	s := c.Status()
	assert.Equal(t, "mix", s.Name)
	assert.Equal(t, int32(-225), s.Position)
	assert.Equal(t, int32(-225), s.Target)
	assert.InDelta(t, 0.5, s.Flow, 1e-9)
}

func TestSetTarget_EmitsGauge(t *testing.T) {
	var names []string
	var values []float64
	orig := emitGauge
	emitGauge = func(name string, value float64, tags ...string) {
		names = append(names, name)
		values = append(values, value)
		assert.Equal(t, []string{"valve:mix"}, tags)
	}
	defer func() { emitGauge = orig }()

	c, _ := newLinear(t, testCal, -180)
	c.ControlValve(1)
	c.Park()

	assert.Equal(t, []string{"valve.target_steps", "valve.target_steps"}, names)
	assert.Equal(t, []float64{-270, 0}, values)
}
