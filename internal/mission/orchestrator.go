package mission

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/mower-robot/control/internal/dock"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/timeutil"
)

// fsm event names.
const (
	evCmdStartMowing    = "cmd_start_mowing"
	evCmdStartPointGoto = "cmd_start_point_goto"
	evCmdReturnToDock   = "cmd_return_to_dock"
	evCmdEmergencyStop  = "cmd_emergency_stop"
	evCmdResetEmergency = "cmd_reset_emergency"
	evGoalReached       = "goal_reached"
	evDockDone          = "dock_done"
	evDockFailed        = "dock_failed"
	evTimeout           = "timeout"
	evSafetyTrip        = "safety_trip"
)

// Publisher is the minimal internal/bus.Topic[Event] surface the
// orchestrator needs, kept as an interface so tests don't need a real
// bus.
type Publisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Orchestrator is the single writer of State.
type Orchestrator struct {
	m *fsm.FSM

	deadlines Deadlines
	pub       Publisher
	clock     timeutil.Clock

	state State
	dockM  dockMachine

	phaseStarted time.Time
	pendingNow   time.Time // the now passed into the Command/Tick call currently firing a transition
	retState     string    // not read or written; ResetEmergency always clears Error to Idle
}

// New creates an Orchestrator in Idle. dockM is the docking machine
// driven while the orchestrator is in Returning; a nil dockM is replaced
// with a real dock.Machine using dock.DefaultConfig(). clock backs
// phaseStarted bookkeeping for deadlineExpired; a nil clock uses
// timeutil.RealClock.
func New(deadlines Deadlines, pub Publisher, dockM dockMachine, clock timeutil.Clock) *Orchestrator {
	if pub == nil {
		pub = noopPublisher{}
	}
	if dockM == nil {
		dockM = dock.New(dock.DefaultConfig())
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	o := &Orchestrator{deadlines: deadlines, pub: pub, dockM: dockM, clock: clock}
	o.state = State{Phase: Idle}

	o.m = fsm.NewFSM(
		Idle,
		fsm.Events{
			{Name: evCmdStartMowing, Src: []string{Idle, Charging}, Dst: Mowing},
			{Name: evCmdStartPointGoto, Src: []string{Idle, Charging}, Dst: PointGoto},
			{Name: evCmdReturnToDock, Src: []string{Idle, Mowing, PointGoto}, Dst: Returning},
			{Name: evGoalReached, Src: []string{Mowing}, Dst: Idle},
			{Name: evGoalReached, Src: []string{PointGoto}, Dst: Idle},
			{Name: evDockDone, Src: []string{Returning}, Dst: Charging},
			{Name: evDockFailed, Src: []string{Returning}, Dst: Error},
			{Name: evTimeout, Src: []string{Mowing, PointGoto, Returning}, Dst: Error},
			{Name: evSafetyTrip, Src: []string{Idle, Mowing, PointGoto, Returning, Charging}, Dst: Error},
			{Name: evCmdEmergencyStop, Src: []string{Idle, Mowing, PointGoto, Returning, Charging}, Dst: Error},
			{Name: evCmdResetEmergency, Src: []string{Error}, Dst: Idle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				o.phaseStarted = o.pendingNow
				if o.phaseStarted.IsZero() {
					o.phaseStarted = o.clock.Now()
				}
				o.pub.Publish(Event{At: o.phaseStarted, From: e.Src, To: e.Dst})
			},
		},
	)

	return o
}

// State returns the current published snapshot.
func (o *Orchestrator) State() State { return o.state }

// SetPublisher swaps the transition sink after construction, breaking the
// construction-order cycle between an Orchestrator (which needs a
// Publisher) and a boundary.Service (which needs an already-built
// Orchestrator to adapt into one).
func (o *Orchestrator) SetPublisher(pub Publisher) {
	if pub == nil {
		pub = noopPublisher{}
	}
	o.pub = pub
}

func (o *Orchestrator) fire(event string) bool {
	return o.m.Event(context.Background(), event) == nil
}

// Command applies an operator command. It is the boundary layer's only
// write path into the orchestrator, per the "C8 is the single writer of
// MissionState" rule.
func (o *Orchestrator) Command(cmd Command, payload any, now time.Time) {
	o.pendingNow = now
	switch cmd {
	case CmdStartMowing:
		if path, ok := payload.(*gridplan.Path); ok {
			o.state.CoveragePath = path
			o.state.Cursor = 0
		}
		if o.fire(evCmdStartMowing) {
			o.state.Phase = Mowing
		}
	case CmdStartPointGoto:
		if pt, ok := payload.(gridplan.Point); ok {
			o.state.PointTarget = pt
		}
		if o.fire(evCmdStartPointGoto) {
			o.state.Phase = PointGoto
		}
	case CmdReturnToDock:
		if o.fire(evCmdReturnToDock) {
			o.state.Phase = Returning
			o.dockM.Reset()
		}
	case CmdEmergencyStop:
		o.fire(evCmdEmergencyStop)
		o.state.Phase = Error
		o.state.ErrorKind = ErrorKindSafety
	case CmdResetEmergency:
		if o.fire(evCmdResetEmergency) {
			o.state.Phase = Idle
			o.state.ErrorKind = ErrorKindNone
		}
	}
	o.state.UpdatedAt = now
}

// Tick advances the orchestrator by one control cycle. goalReached and
// safetyTripped are signals from C4/C7 respectively; dockIn is only
// consulted while Returning.
func (o *Orchestrator) Tick(now time.Time, goalReached bool, safetyTripped bool, dockIn dock.Input) State {
	o.pendingNow = now
	if safetyTripped {
		o.fire(evSafetyTrip)
		o.state.Phase = Error
		o.state.ErrorKind = ErrorKindSafety
		o.state.UpdatedAt = now
		return o.state
	}

	switch o.m.Current() {
	case Mowing:
		if o.state.CoveragePath != nil {
			o.state.Cursor = o.state.CoveragePath.CursorIndex()
		}
		if goalReached {
			if o.fire(evGoalReached) {
				o.state.Phase = Idle
			}
		} else if o.deadlineExpired(now) {
			o.timeoutToError(now)
		}

	case PointGoto:
		if goalReached {
			if o.fire(evGoalReached) {
				o.state.Phase = Idle
			}
		} else if o.deadlineExpired(now) {
			o.timeoutToError(now)
		}

	case Returning:
		dockIn.Now = now
		out := o.dockM.Tick(dockIn)
		o.state.DockPhase = out.State
		o.state.DockGoal = out.Goal
		if out.Docked {
			if o.fire(evDockDone) {
				o.state.Phase = Charging
			}
		} else if out.Terminal {
			if o.fire(evDockFailed) {
				o.state.Phase = Error
				o.state.ErrorKind = ErrorKindDockFailed
			}
		} else if o.deadlineExpired(now) {
			o.timeoutToError(now)
		}

	case Charging, Idle, Error:
		// no autonomous exit condition besides operator commands.
	}

	o.state.UpdatedAt = now
	return o.state
}

func (o *Orchestrator) deadlineExpired(now time.Time) bool {
	var budget time.Duration
	switch o.m.Current() {
	case Returning:
		budget = o.deadlines.DockDeadline
	default:
		budget = o.deadlines.PlanDeadline
	}
	return budget > 0 && now.Sub(o.phaseStarted) > budget
}

func (o *Orchestrator) timeoutToError(now time.Time) {
	if o.fire(evTimeout) {
		o.state.Phase = Error
		o.state.ErrorKind = ErrorKindTimeout
	}
}
