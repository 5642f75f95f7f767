package model

import (
	"fmt"
	"time"
)

// PortFunction is the hydraulic role of one of the valve's three ports.
type PortFunction int

const (
	Supply PortFunction = 0
	Buffer PortFunction = 1
	Return PortFunction = 2
)

func (f PortFunction) String() string {
	switch f {
	case Supply:
		return "supply"
	case Buffer:
		return "buffer"
	case Return:
		return "return"
	default:
		return fmt.Sprintf("PortFunction(%d)", int(f))
	}
}

// PortAssignment lists the function found at ports 1, 2 and 3, in that order.
type PortAssignment [3]PortFunction

// PortOf returns the 1-based port number carrying f, or 0 if f is not assigned.
func (a PortAssignment) PortOf(f PortFunction) int {
	for i, fn := range a {
		if fn == f {
			return i + 1
		}
	}
	return 0
}

func (a PortAssignment) String() string {
	return fmt.Sprintf("supply: %d, buffer: %d, return: %d", a.PortOf(Supply), a.PortOf(Buffer), a.PortOf(Return))
}

// AngleSet holds the setpoint angles in degrees.
type AngleSet struct {
	Open    float64 `json:"open"`
	Closed  float64 `json:"closed"`
	Blocked float64 `json:"blocked"`
	AllOpen float64 `json:"all_open"`
}

type OffsetUnit string

const (
	UnitSteps       OffsetUnit = "steps"
	UnitRevolutions OffsetUnit = "revolutions"
	UnitDegrees     OffsetUnit = "degrees"
	UnitRadians     OffsetUnit = "radians"
	UnitArcminutes  OffsetUnit = "arcminutes"
	UnitArcseconds  OffsetUnit = "arcseconds"
)

// Offset is a mechanical zero offset in one of the supported units.
type Offset struct {
	Value float64    `json:"value"`
	Unit  OffsetUnit `json:"unit"`
}

func (o Offset) String() string {
	return fmt.Sprintf("%g%s", o.Value, o.Unit)
}

// CurvePoint pairs a flow ratio with the normalized valve position producing it.
type CurvePoint struct {
	Flow     float64 `json:"flow"`
	Position float64 `json:"position"`
}

// ValveCalibration holds the four setpoints in actuator steps. Open may be
// numerically smaller than Closed depending on rotation direction.
type ValveCalibration struct {
	Closed  int32 `json:"closed"`
	Open    int32 `json:"open"`
	Block   int32 `json:"block"`
	AllOpen int32 `json:"all_open"`
}

// Range is the signed step distance from closed to open.
func (c ValveCalibration) Range() int32 {
	return c.Open - c.Closed
}

// ValveStatus is a point-in-time view of a valve, used by the API and the state DB.
type ValveStatus struct {
	Name     string  `json:"name"`
	Flow     float64 `json:"flow"`
	Position int32   `json:"position"`
	Target   int32   `json:"target"`
}

// ValveState is the last persisted status of a valve.
type ValveState struct {
	ValveStatus
	UpdatedAt time.Time `json:"updated_at"`
}

// CommandKind names what was asked of a valve.
type CommandKind string

const (
	CommandFlow    CommandKind = "flow"
	CommandToggle  CommandKind = "toggle"
	CommandPark    CommandKind = "park"
	CommandOpenAll CommandKind = "open_all"
)

// ValveCommand is one entry of a valve's command history. Flow is nil for
// commands that bypass the curve.
type ValveCommand struct {
	ID       int64       `json:"id"`
	Valve    string      `json:"valve"`
	Command  CommandKind `json:"command"`
	Flow     *float64    `json:"flow,omitempty"`
	Target   int32       `json:"target"`
	IssuedAt time.Time   `json:"issued_at"`
}
