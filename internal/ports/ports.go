package ports

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/thatsimonsguy/mixvalve/internal/model"
)

var (
	ErrLayoutRejected = errors.New("unsupported port layout")
	ErrInvalidPorts   = errors.New("invalid port mapping")
)

// AllOpenAngle is the same for every layout.
const AllOpenAngle = 180.0

// layouts is keyed by the function index found at ports 1, 2 and 3.
// Only layouts with open and closed 90° apart are listed.
var layouts = map[model.PortAssignment]model.AngleSet{
	{model.Supply, model.Buffer, model.Return}: {Open: 270, Closed: 180, Blocked: 0, AllOpen: AllOpenAngle},
	{model.Supply, model.Return, model.Buffer}: {Open: 180, Closed: 270, Blocked: 0, AllOpen: AllOpenAngle},
	{model.Buffer, model.Supply, model.Return}: {Open: 270, Closed: 0, Blocked: 180, AllOpen: AllOpenAngle},
	{model.Return, model.Supply, model.Buffer}: {Open: 0, Closed: 270, Blocked: 180, AllOpen: AllOpenAngle},
}

var functionNames = map[string]model.PortFunction{
	"supply": model.Supply,
	"buffer": model.Buffer,
	"return": model.Return,
}

// Resolve returns the setpoint angles for a port assignment. The assignment is
// assumed to be a bijection; use ParseAssignment to build one from config.
func Resolve(a model.PortAssignment) (model.AngleSet, error) {
	angles, ok := layouts[a]
	if !ok {
		return model.AngleSet{}, rejection(a)
	}
	return angles, nil
}

// SupportedLayouts returns the accepted assignments in a stable order.
func SupportedLayouts() []model.PortAssignment {
	out := make([]model.PortAssignment, 0, len(layouts))
	for a := range layouts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := range out[i] {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

func rejection(a model.PortAssignment) error {
	var b strings.Builder
	fmt.Fprintf(&b, "current: %s; open and closed must be 90° apart, this layout puts them 180° apart so the valve cannot mix. Allowed layouts:", a)
	for _, l := range SupportedLayouts() {
		fmt.Fprintf(&b, "\n  - %s", layoutByPort(l))
	}
	return fmt.Errorf("%w: %s", ErrLayoutRejected, b.String())
}

// layoutByPort renders an assignment in port order, e.g. "buffer: 1, supply: 2, return: 3".
func layoutByPort(a model.PortAssignment) string {
	parts := make([]string, len(a))
	for i, f := range a {
		parts[i] = fmt.Sprintf("%s: %d", f, i+1)
	}
	return strings.Join(parts, ", ")
}

// ParseAssignment builds an assignment from a function -> port mapping.
// Function names are case-insensitive and each port 1..3 must be used once.
func ParseAssignment(m map[string]int) (model.PortAssignment, error) {
	var a model.PortAssignment
	if len(m) != len(functionNames) {
		return a, fmt.Errorf("%w: mapping must include exactly supply, buffer and return", ErrInvalidPorts)
	}

	seenFn := map[model.PortFunction]bool{}
	seenPort := map[int]bool{}
	for key, port := range m {
		fn, ok := functionNames[strings.ToLower(strings.TrimSpace(key))]
		if !ok || seenFn[fn] {
			return a, fmt.Errorf("%w: mapping must include exactly supply, buffer and return", ErrInvalidPorts)
		}
		if port < 1 || port > 3 || seenPort[port] {
			return a, fmt.Errorf("%w: each port number (1, 2, 3) must be used exactly once", ErrInvalidPorts)
		}
		seenFn[fn] = true
		seenPort[port] = true
		a[port-1] = fn
	}
	return a, nil
}
