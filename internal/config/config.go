package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/model"
	"github.com/thatsimonsguy/mixvalve/internal/offset"
)

const (
	ActuatorSimulated = "simulated"
	ActuatorTic       = "tic"
)

// Offset is a position offset read from strings like "10steps" or "-7.5deg".
type Offset struct {
	model.Offset
}

func (o *Offset) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode position_offset: %w", err)
	}
	parsed, err := offset.Parse(raw)
	if err != nil {
		return err
	}
	o.Offset = parsed
	return nil
}

// Curve is either a preset name or an explicit point list.
type Curve struct {
	Preset string
	Points []model.CurvePoint
}

func (c *Curve) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return fmt.Errorf("decode curve preset: %w", err)
		}
		c.Preset = strings.ToLower(strings.TrimSpace(name))
		c.Points = nil
		return nil
	case yaml.SequenceNode:
		points := make([]model.CurvePoint, 0, len(value.Content))
		for i, item := range value.Content {
			p, err := decodePoint(item)
			if err != nil {
				return fmt.Errorf("curve point %d (line %d): %w", i, item.Line, err)
			}
			points = append(points, p)
		}
		c.Preset = ""
		c.Points = points
		return nil
	default:
		return fmt.Errorf("curve must be a preset name or a list of points (line %d)", value.Line)
	}
}

func decodePoint(n *yaml.Node) (model.CurvePoint, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		var pair []float64
		if len(n.Content) != 2 || n.Decode(&pair) != nil {
			return model.CurvePoint{}, curve.ErrPointFormat
		}
		return model.CurvePoint{Flow: pair[0], Position: pair[1]}, nil
	case yaml.MappingNode:
		var raw struct {
			Flow     *float64 `yaml:"flow"`
			Position *float64 `yaml:"position"`
		}
		if len(n.Content) != 4 || n.Decode(&raw) != nil || raw.Flow == nil || raw.Position == nil {
			return model.CurvePoint{}, curve.ErrPointFormat
		}
		return model.CurvePoint{Flow: *raw.Flow, Position: *raw.Position}, nil
	default:
		return model.CurvePoint{}, curve.ErrPointFormat
	}
}

// Build returns the configured curve, falling back to the default preset.
func (c Curve) Build() (*curve.MixingCurve, error) {
	if c.Points != nil {
		return curve.Build(c.Points)
	}
	if c.Preset == "" {
		return curve.Preset(curve.DefaultPreset)
	}
	return curve.Preset(c.Preset)
}

type Actuator struct {
	Type         string `yaml:"type"`
	I2CBus       string `yaml:"i2c_bus"`
	Address      uint16 `yaml:"address"`
	Variant      string `yaml:"variant"`
	StepsPerTick int32  `yaml:"steps_per_tick"`
}

type Valve struct {
	Name             string         `yaml:"name"`
	GearRatio        float64        `yaml:"gear_ratio"`
	MotorStepsPerRev *int           `yaml:"motor_steps_per_rev"`
	Ports            map[string]int `yaml:"ports"`
	PositionOffset   Offset         `yaml:"position_offset"`
	Curve            Curve          `yaml:"curve"`
	Actuator         Actuator       `yaml:"actuator"`
}

type Config struct {
	ConfigFile string        `yaml:"-"`
	DBPath     string        `yaml:"-"`
	LogFile    string        `yaml:"-"`
	LogLevel   zerolog.Level `yaml:"-"`
	Port       int           `yaml:"-"`
	SafeMode   bool          `yaml:"-"`

	PollIntervalMS int `yaml:"poll_interval_ms"`
	ReportSeconds  int `yaml:"report_seconds"`
	StallSeconds   int `yaml:"stall_seconds"`

	EnableDatadog bool     `yaml:"enable_datadog"`
	DDAgentAddr   string   `yaml:"dd_agent_addr"`
	DDNamespace   string   `yaml:"dd_namespace"`
	DDTags        []string `yaml:"dd_tags"`

	NtfyTopic string `yaml:"ntfy_topic"`

	Valves []Valve `yaml:"valves"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "mixvalve.yaml", "Path to valve config file (YAML or JSON)")
	flag.StringVar(&cfg.DBPath, "db", "data/mixvalve.db", "Path to the SQLite state database")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/mixvalve.log", "Log file path, empty for console")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&cfg.Port, "port", 8080, "HTTP API port")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Force simulated actuators for every valve")
	flag.Parse()

	cfg.LogLevel = ParseLogLevel(logLevel)

	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	if err := Parse(data, &cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.validate()
	return cfg
}

// Parse decodes a config document into cfg and applies defaults.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	cfg.applyDefaults()
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.PollIntervalMS == 0 {
		cfg.PollIntervalMS = 200
	}
	if cfg.ReportSeconds == 0 {
		cfg.ReportSeconds = 30
	}
	if cfg.StallSeconds == 0 {
		cfg.StallSeconds = 60
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "mixvalve."
	}
	for i := range cfg.Valves {
		v := &cfg.Valves[i]
		if v.PositionOffset.Unit == "" {
			v.PositionOffset.Offset = model.Offset{Value: 0, Unit: model.UnitSteps}
		}
		if v.Actuator.Type == "" {
			v.Actuator.Type = ActuatorSimulated
		}
		if v.Actuator.StepsPerTick == 0 {
			v.Actuator.StepsPerTick = 10
		}
		if v.Actuator.Type == ActuatorTic && v.Actuator.Address == 0 {
			v.Actuator.Address = 0x0E
		}
		if v.Actuator.Type == ActuatorTic && v.Actuator.Variant == "" {
			v.Actuator.Variant = "Tic T825"
		}
	}
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// validate checks the shape of the file. Port layout, offset and curve rules
// are checked when the calibration is assembled.
func (cfg *Config) validate() {
	var problems []string
	names := map[string]bool{}

	// these feed time.NewTicker
	if cfg.PollIntervalMS <= 0 {
		problems = append(problems, "poll_interval_ms must be positive")
	}
	if cfg.ReportSeconds <= 0 {
		problems = append(problems, "report_seconds must be positive")
	}
	if cfg.StallSeconds <= 0 {
		problems = append(problems, "stall_seconds must be positive")
	}
	if len(cfg.Valves) == 0 {
		problems = append(problems, "no valves configured")
	}
	for i, v := range cfg.Valves {
		label := fmt.Sprintf("valves[%d]", i)
		if v.Name == "" {
			problems = append(problems, label+".name is required")
		} else if names[v.Name] {
			problems = append(problems, fmt.Sprintf("%s.name %q is used more than once", label, v.Name))
		}
		names[v.Name] = true

		// also rejects NaN
		if !(v.GearRatio > 0) {
			problems = append(problems, label+".gear_ratio must be positive")
		}
		if v.MotorStepsPerRev != nil && *v.MotorStepsPerRev <= 0 {
			problems = append(problems, label+".motor_steps_per_rev must be positive")
		}
		if len(v.Ports) == 0 {
			problems = append(problems, label+".ports is required")
		}
		if v.Actuator.StepsPerTick <= 0 {
			problems = append(problems, label+".actuator.steps_per_tick must be positive")
		}
		switch v.Actuator.Type {
		case ActuatorSimulated, ActuatorTic:
		default:
			problems = append(problems, fmt.Sprintf("%s.actuator.type %q is not one of %s, %s", label, v.Actuator.Type, ActuatorSimulated, ActuatorTic))
		}
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
