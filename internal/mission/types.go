// Package mission implements the top-level orchestrator: a single
// state machine selecting among Idle, Mowing, PointGoto, Returning,
// Charging, and Error, and the single writer of MissionState, grounded
// on _examples/original_source's top-level görev/mission loop and built
// on github.com/looplab/fsm as internal/dock already is.
package mission

import (
	"time"

	"github.com/mower-robot/control/internal/dock"
	"github.com/mower-robot/control/internal/gridplan"
)

// Phase names, the FSM's state set.
const (
	Idle      = "IDLE"
	Mowing    = "MOWING"
	PointGoto = "POINT_GOTO"
	Returning = "RETURNING"
	Charging  = "CHARGING"
	Error     = "ERROR"
)

// ErrorKind names why the orchestrator landed in Error.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindTimeout
	ErrorKindPlanFailed
	ErrorKindDockFailed
	ErrorKindSafety
)

// State is the published snapshot of the orchestrator, matching spec's
// MissionState variant: Idle, Mowing{coverage_path,cursor},
// PointGoto{target}, Returning{phase}, Charging, Error{kind}.
type State struct {
	Phase string

	CoveragePath *gridplan.Path
	Cursor       int

	PointTarget gridplan.Point

	DockPhase string        // mirrors the active dock.Machine.State() while Returning
	DockGoal  dock.MicroGoal // the active dock.Machine's last micro-goal while Returning

	ErrorKind ErrorKind

	UpdatedAt time.Time
}

// Command is an operator-issued request, the boundary layer's only
// write path into the orchestrator.
type Command int

const (
	CmdStartMowing Command = iota
	CmdStartPointGoto
	CmdReturnToDock
	CmdEmergencyStop
	CmdResetEmergency
)

// Event is what mission.Orchestrator publishes on its internal/bus.Topic
// for StreamEvents.
type Event struct {
	At    time.Time
	From  string
	To    string
	Kind  ErrorKind
}

// Deadlines bounds every external operation the orchestrator starts, per
// the cancellation-and-timeouts rule: a path plan, a fiducial search, a
// dock phase all carry a deadline whose expiration raises Error{timeout}.
type Deadlines struct {
	PlanDeadline time.Duration
	DockDeadline time.Duration
}

// DefaultDeadlines returns conservative defaults.
func DefaultDeadlines() Deadlines {
	return Deadlines{PlanDeadline: 10 * time.Second, DockDeadline: 5 * time.Minute}
}

// dockMachine is the subset of *dock.Machine the orchestrator depends
// on, so tests can substitute a fake.
type dockMachine interface {
	Tick(dock.Input) dock.Output
	Reset()
	State() string
}
