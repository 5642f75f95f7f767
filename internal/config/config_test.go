package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/model"
	"github.com/thatsimonsguy/mixvalve/internal/offset"
)

const sampleYAML = `
poll_interval_ms: 100
dd_tags: [site:test]
valves:
  - name: radiant_mix
    gear_ratio: 1.0
    motor_steps_per_rev: 360
    ports: {supply: 1, buffer: 2, return: 3}
    position_offset: -7.5 deg
    curve: linear
  - name: garage_mix
    gear_ratio: 2.5
    ports: {SUPPLY: 2, Buffer: 1, return: 3}
    position_offset: 0.5rev
    curve:
      - [0, 0]
      - {flow: 0.5, position: 0.4}
      - [1, 1]
    actuator:
      type: tic
      i2c_bus: "1"
`

func unmarshalValve(doc string, v *Valve) error {
	return yaml.Unmarshal([]byte(doc), v)
}

func TestParse_YAML(t *testing.T) {
	var cfg Config
	require.NoError(t, Parse([]byte(sampleYAML), &cfg))

	assert.Equal(t, 100, cfg.PollIntervalMS)
	assert.Equal(t, 30, cfg.ReportSeconds)
	assert.Equal(t, 60, cfg.StallSeconds)
	assert.Equal(t, []string{"site:test"}, cfg.DDTags)
	require.Len(t, cfg.Valves, 2)

	radiant := cfg.Valves[0]
	assert.Equal(t, "radiant_mix", radiant.Name)
	require.NotNil(t, radiant.MotorStepsPerRev)
	assert.Equal(t, 360, *radiant.MotorStepsPerRev)
	assert.Equal(t, model.Offset{Value: -7.5, Unit: model.UnitDegrees}, radiant.PositionOffset.Offset)
	assert.Equal(t, "linear", radiant.Curve.Preset)
	assert.Equal(t, ActuatorSimulated, radiant.Actuator.Type)
	assert.Equal(t, int32(10), radiant.Actuator.StepsPerTick)

	garage := cfg.Valves[1]
	assert.Nil(t, garage.MotorStepsPerRev)
	assert.Equal(t, 2, garage.Ports["SUPPLY"])
	assert.Equal(t, model.Offset{Value: 0.5, Unit: model.UnitRevolutions}, garage.PositionOffset.Offset)
	assert.Equal(t, []model.CurvePoint{{Flow: 0, Position: 0}, {Flow: 0.5, Position: 0.4}, {Flow: 1, Position: 1}}, garage.Curve.Points)
	assert.Equal(t, ActuatorTic, garage.Actuator.Type)
	assert.Equal(t, uint16(0x0E), garage.Actuator.Address)
	assert.Equal(t, "Tic T825", garage.Actuator.Variant)

	cfg.validate() // should not panic
}

func TestParse_JSON(t *testing.T) {
	doc := `{"valves": [{"name": "v1", "gear_ratio": 1, "ports": {"supply": 1, "return": 2, "buffer": 3}, "curve": [[0, 0], [1, 1]]}]}`

	var cfg Config
	require.NoError(t, Parse([]byte(doc), &cfg))
	require.Len(t, cfg.Valves, 1)
	assert.Equal(t, model.Offset{Value: 0, Unit: model.UnitSteps}, cfg.Valves[0].PositionOffset.Offset)
	assert.Len(t, cfg.Valves[0].Curve.Points, 2)
}

func TestParse_DefaultCurve(t *testing.T) {
	var cfg Config
	require.NoError(t, Parse([]byte("valves:\n  - name: v1\n    gear_ratio: 1\n"), &cfg))

	c, err := cfg.Valves[0].Curve.Build()
	require.NoError(t, err)
	ease, err := curve.Preset(curve.PresetEase)
	require.NoError(t, err)
	assert.Equal(t, ease.Points(), c.Points())
}

func TestParse_PointFormatRejected(t *testing.T) {
	docs := map[string]string{
		"three element pair": "curve:\n  - [0, 0, 0]\n  - [1, 1]\n",
		"scalar point":       "curve:\n  - 0.5\n  - [1, 1]\n",
		"wrong keys":         "curve:\n  - {flow: 0, pos: 0}\n  - [1, 1]\n",
		"extra key":          "curve:\n  - {flow: 0, position: 0, weight: 2}\n  - [1, 1]\n",
		"non-numeric":        "curve:\n  - [zero, 0]\n  - [1, 1]\n",
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			var v Valve
			err := unmarshalValve(doc, &v)
			assert.ErrorIs(t, err, curve.ErrPointFormat)
		})
	}
}

func TestParse_InvalidOffset(t *testing.T) {
	var v Valve
	err := unmarshalValve("position_offset: 10meters\n", &v)
	assert.ErrorIs(t, err, offset.ErrInvalidOffset)
}

func TestCurveBuild_Rejected(t *testing.T) {
	var v Valve
	require.NoError(t, unmarshalValve("curve:\n  - [0.1, 0]\n  - [1, 1]\n", &v))
	_, err := v.Curve.Build()
	assert.ErrorIs(t, err, curve.ErrBadStart)

	require.NoError(t, unmarshalValve("curve: bogus\n", &v))
	_, err = v.Curve.Build()
	assert.ErrorIs(t, err, curve.ErrUnknownPreset)
}

func TestValidate_Valid(t *testing.T) {
	cfg := Config{Valves: []Valve{
		{Name: "a", GearRatio: 1, Ports: map[string]int{"supply": 1, "buffer": 2, "return": 3}, Actuator: Actuator{Type: ActuatorSimulated}},
		{Name: "b", GearRatio: 3, Ports: map[string]int{"supply": 1, "buffer": 2, "return": 3}, Actuator: Actuator{Type: ActuatorTic}},
	}}
	cfg.applyDefaults()

	cfg.validate() // should not panic
}

func TestValidate_Panics(t *testing.T) {
	ports := map[string]int{"supply": 1, "buffer": 2, "return": 3}
	zero := 0
	valid := []Valve{{Name: "a", GearRatio: 1, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated, StepsPerTick: 10}}}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no valves", Config{PollIntervalMS: 200, ReportSeconds: 30, StallSeconds: 60}},
		{"negative poll interval", Config{PollIntervalMS: -1, ReportSeconds: 30, StallSeconds: 60, Valves: valid}},
		{"negative report interval", Config{PollIntervalMS: 200, ReportSeconds: -30, StallSeconds: 60, Valves: valid}},
		{"negative stall timeout", Config{PollIntervalMS: 200, ReportSeconds: 30, StallSeconds: -5, Valves: valid}},
		{"NaN gear ratio", Config{PollIntervalMS: 200, ReportSeconds: 30, StallSeconds: 60, Valves: []Valve{{Name: "a", GearRatio: math.NaN(), Ports: ports, Actuator: Actuator{Type: ActuatorSimulated, StepsPerTick: 10}}}}},
		{"negative steps per tick", Config{PollIntervalMS: 200, ReportSeconds: 30, StallSeconds: 60, Valves: []Valve{{Name: "a", GearRatio: 1, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated, StepsPerTick: -10}}}}},
		{"missing name", Config{Valves: []Valve{{GearRatio: 1, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated}}}}},
		{"duplicate name", Config{Valves: []Valve{
			{Name: "a", GearRatio: 1, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated}},
			{Name: "a", GearRatio: 1, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated}},
		}}},
		{"zero gear ratio", Config{Valves: []Valve{{Name: "a", Ports: ports, Actuator: Actuator{Type: ActuatorSimulated}}}}},
		{"zero steps per rev", Config{Valves: []Valve{{Name: "a", GearRatio: 1, MotorStepsPerRev: &zero, Ports: ports, Actuator: Actuator{Type: ActuatorSimulated}}}}},
		{"missing ports", Config{Valves: []Valve{{Name: "a", GearRatio: 1, Actuator: Actuator{Type: ActuatorSimulated}}}}},
		{"unknown actuator", Config{Valves: []Valve{{Name: "a", GearRatio: 1, Ports: ports, Actuator: Actuator{Type: "servo"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { tt.cfg.validate() })
		})
	}
}

func TestParse_NegativeIntervalsRejected(t *testing.T) {
	// defaults only fill zero values, so a negative interval survives Parse
	var cfg Config
	require.NoError(t, Parse([]byte(`
poll_interval_ms: -100
valves:
  - name: mix
    gear_ratio: 1.0
    ports: {supply: 1, buffer: 2, return: 3}
`), &cfg))
	assert.Equal(t, -100, cfg.PollIntervalMS)
	assert.PanicsWithValue(t, "Invalid config: poll_interval_ms must be positive", func() { cfg.validate() })
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLogLevel("debug").String())
	assert.Equal(t, "warn", ParseLogLevel("warn").String())
	assert.Equal(t, "error", ParseLogLevel("error").String())
	assert.Equal(t, "info", ParseLogLevel("whatever").String())
}
