package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/thatsimonsguy/mixvalve/db"
	"github.com/thatsimonsguy/mixvalve/internal/calibration"
	"github.com/thatsimonsguy/mixvalve/internal/config"
	"github.com/thatsimonsguy/mixvalve/internal/curve"
	"github.com/thatsimonsguy/mixvalve/internal/offset"
	"github.com/thatsimonsguy/mixvalve/internal/ports"
	"github.com/thatsimonsguy/mixvalve/system/startup"
)

var (
	heading = color.New(color.Bold, color.FgCyan)
	okText  = color.New(color.FgGreen)
	errText = color.New(color.FgRed)
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, configFile, valveName, portLayout, offsetRaw, preset string
	var servicePath, serviceUser, workDir, binary string
	var gearRatio float64
	var stepsPerRev, limit, samples, port int
	flag.StringVar(&dbPath, "db", "data/mixvalve.db", "Path to the SQLite state database")
	flag.StringVar(&command, "cmd", "", "Command to run: resolve-ports, offset-steps, curve, calibrate, history, install-service")
	flag.StringVar(&configFile, "config-file", "mixvalve.yaml", "Path to valve config file")
	flag.StringVar(&valveName, "valve", "", "Valve name for calibrate, curve and history; history lists every valve when omitted")
	flag.StringVar(&portLayout, "ports", "", "Port layout, e.g. supply=1,buffer=2,return=3")
	flag.StringVar(&offsetRaw, "offset", "0steps", "Offset, e.g. 10steps or -7.5deg")
	flag.StringVar(&preset, "preset", "", "Curve preset for the curve command")
	flag.Float64Var(&gearRatio, "gear", 1, "Gear ratio")
	flag.IntVar(&stepsPerRev, "steps", offset.DefaultMotorStepsPerRev, "Motor steps per revolution")
	flag.IntVar(&limit, "limit", 20, "Number of history entries")
	flag.IntVar(&samples, "samples", 11, "Number of flow samples for the curve command")
	flag.StringVar(&servicePath, "service-path", "/etc/systemd/system/mixvalve.service", "Where install-service writes the unit")
	flag.StringVar(&serviceUser, "user", "root", "User the service runs as")
	flag.StringVar(&workDir, "workdir", "/opt/mixvalve", "Service working directory")
	flag.StringVar(&binary, "binary", "mixvalve", "Daemon binary, relative to -workdir")
	flag.IntVar(&port, "port", 8080, "HTTP API port for install-service")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of valvectl:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var err error
	switch command {
	case "resolve-ports":
		err = resolvePorts(portLayout)
	case "offset-steps":
		err = offsetSteps(offsetRaw, gearRatio, stepsPerRev)
	case "curve":
		err = showCurve(preset, configFile, valveName, samples)
	case "calibrate":
		err = calibrate(configFile, valveName)
	case "history":
		if valveName == "" {
			err = allStates(dbPath)
		} else {
			err = history(dbPath, valveName, limit)
		}
	case "install-service":
		err = startup.InstallService(servicePath, startup.ServiceOptions{
			User:       serviceUser,
			WorkDir:    workDir,
			Binary:     binary,
			ConfigFile: configFile,
			DBPath:     dbPath,
			Port:       port,
		})
		if err == nil {
			okText.Printf("Wrote %s\n", servicePath)
		}
	default:
		errText.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		errText.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

// parsePorts reads "supply=1,buffer=2,return=3".
func parsePorts(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("expected function=port, got %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("port for %s: %w", key, err)
		}
		out[strings.TrimSpace(key)] = n
	}
	return out, nil
}

func resolvePorts(layout string) error {
	m, err := parsePorts(layout)
	if err != nil {
		return err
	}
	a, err := ports.ParseAssignment(m)
	if err != nil {
		return err
	}
	angles, err := ports.Resolve(a)
	if err != nil {
		return err
	}

	heading.Println(a.String())
	fmt.Printf("  open     %6.1f°\n", angles.Open)
	fmt.Printf("  closed   %6.1f°\n", angles.Closed)
	fmt.Printf("  blocked  %6.1f°\n", angles.Blocked)
	fmt.Printf("  all open %6.1f°\n", angles.AllOpen)
	return nil
}

func offsetSteps(raw string, gearRatio float64, stepsPerRev int) error {
	o, err := offset.Parse(raw)
	if err != nil {
		return err
	}
	steps := offset.ToSteps(o, gearRatio, stepsPerRev)
	fmt.Printf("%s at gear %.3g and %d steps/rev = ", o, gearRatio, stepsPerRev)
	okText.Printf("%d steps\n", steps)
	return nil
}

func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = config.Parse(data, &cfg)
	return cfg, err
}

func showCurve(preset, configFile, valveName string, samples int) error {
	if samples < 2 {
		return fmt.Errorf("samples must be at least 2")
	}

	var c *curve.MixingCurve
	var err error
	label := preset
	if preset != "" || valveName == "" {
		if preset == "" {
			preset = curve.DefaultPreset
			label = preset
		}
		c, err = curve.Preset(preset)
	} else {
		var cfg config.Config
		cfg, err = loadConfig(configFile)
		if err != nil {
			return err
		}
		v, ok := findValve(cfg, valveName)
		if !ok {
			return fmt.Errorf("valve %s not in %s", valveName, configFile)
		}
		label = valveName
		c, err = v.Curve.Build()
	}
	if err != nil {
		return err
	}

	heading.Printf("curve %s\n", label)
	fmt.Println("   flow  position  flow(position)")
	for i := 0; i < samples; i++ {
		flow := float64(i) / float64(samples-1)
		pos := c.FlowToPosition(flow)
		fmt.Printf("  %5.3f  %8.4f  %8.4f\n", flow, pos, c.PositionToFlow(pos))
	}
	return nil
}

func findValve(cfg config.Config, name string) (config.Valve, bool) {
	for _, v := range cfg.Valves {
		if v.Name == name {
			return v, true
		}
	}
	return config.Valve{}, false
}

func calibrate(configFile, valveName string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	failed := 0
	for _, v := range cfg.Valves {
		if valveName != "" && v.Name != valveName {
			continue
		}
		res, err := calibration.FromConfig(v)
		if err != nil {
			errText.Printf("%s: %v\n", v.Name, err)
			failed++
			continue
		}
		heading.Printf("%s ", v.Name)
		fmt.Printf("(%d steps/rev, offset %d steps)\n", res.MotorStepsPerRev, res.OffsetSteps)
		fmt.Printf("  closed   %6d\n", res.Calibration.Closed)
		fmt.Printf("  open     %6d\n", res.Calibration.Open)
		fmt.Printf("  block    %6d\n", res.Calibration.Block)
		fmt.Printf("  all open %6d\n", res.Calibration.AllOpen)
	}
	if failed > 0 {
		return fmt.Errorf("%d valve(s) failed calibration", failed)
	}
	return nil
}

// allStates prints the last persisted state of every valve.
func allStates(dbPath string) error {
	states, err := db.AllValveStatesCLI(dbPath)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("No valve states recorded")
		return nil
	}
	for _, s := range states {
		heading.Printf("%s ", s.Name)
		fmt.Printf("flow %.3f position %d target %d (updated %s)\n",
			s.Flow, s.Position, s.Target, s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func history(dbPath, valveName string, limit int) error {
	state, cmds, err := db.ValveHistoryCLI(dbPath, valveName, limit)
	if err != nil {
		return err
	}

	heading.Printf("%s ", valveName)
	fmt.Printf("flow %.3f position %d target %d (updated %s)\n",
		state.Flow, state.Position, state.Target, state.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	for _, c := range cmds {
		flow := "-"
		if c.Flow != nil {
			flow = strconv.FormatFloat(*c.Flow, 'f', 3, 64)
		}
		fmt.Printf("  %s  %-8s flow %-6s target %d\n", c.IssuedAt.Local().Format("2006-01-02 15:04:05"), c.Command, flow, c.Target)
	}
	return nil
}
