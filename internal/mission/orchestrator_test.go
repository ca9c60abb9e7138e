package mission

import (
	"testing"
	"time"

	"github.com/mower-robot/control/internal/dock"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/timeutil"
)

type fakeDock struct {
	outputs []dock.Output
	i       int
	resets  int
}

func (f *fakeDock) Tick(dock.Input) dock.Output {
	if f.i >= len(f.outputs) {
		return f.outputs[len(f.outputs)-1]
	}
	out := f.outputs[f.i]
	f.i++
	return out
}
func (f *fakeDock) Reset()        { f.resets++; f.i = 0 }
func (f *fakeDock) State() string { return "" }

func TestOrchestratorStartMowingAndGoalReached(t *testing.T) {
	o := New(DefaultDeadlines(), nil, &fakeDock{}, nil)
	now := time.Unix(0, 0)

	path := &gridplan.Path{Waypoints: []gridplan.Waypoint{{X: 1, Y: 1}}}
	o.Command(CmdStartMowing, path, now)
	if o.State().Phase != Mowing {
		t.Fatalf("expected MOWING, got %s", o.State().Phase)
	}

	st := o.Tick(now.Add(time.Second), true, false, dock.Input{})
	if st.Phase != Idle {
		t.Fatalf("expected IDLE after goal reached, got %s", st.Phase)
	}
}

func TestOrchestratorTimeoutToError(t *testing.T) {
	deadlines := Deadlines{PlanDeadline: time.Second, DockDeadline: time.Minute}
	o := New(deadlines, nil, &fakeDock{}, nil)
	now := time.Unix(0, 0)
	o.Command(CmdStartPointGoto, gridplan.Point{X: 5}, now)

	st := o.Tick(now.Add(5*time.Second), false, false, dock.Input{})
	if st.Phase != Error || st.ErrorKind != ErrorKindTimeout {
		t.Fatalf("expected ERROR{timeout}, got %s kind=%v", st.Phase, st.ErrorKind)
	}
}

func TestOrchestratorReturningDocksThenCharges(t *testing.T) {
	fd := &fakeDock{outputs: []dock.Output{
		{State: dock.Search},
		{State: dock.Contact},
		{State: dock.Docked, Docked: true, Terminal: true},
	}}
	o := New(DefaultDeadlines(), nil, fd, nil)
	now := time.Unix(0, 0)
	o.Command(CmdReturnToDock, nil, now)
	if fd.resets != 1 {
		t.Fatalf("expected dock machine reset on entering RETURNING, got %d resets", fd.resets)
	}

	o.Tick(now, false, false, dock.Input{})
	o.Tick(now, false, false, dock.Input{})
	st := o.Tick(now, false, false, dock.Input{})
	if st.Phase != Charging {
		t.Fatalf("expected CHARGING once docked, got %s", st.Phase)
	}
}

func TestOrchestratorReturningDockFailureGoesToError(t *testing.T) {
	fd := &fakeDock{outputs: []dock.Output{
		{State: dock.Failed, Terminal: true},
	}}
	o := New(DefaultDeadlines(), nil, fd, nil)
	now := time.Unix(0, 0)
	o.Command(CmdReturnToDock, nil, now)

	st := o.Tick(now, false, false, dock.Input{})
	if st.Phase != Error || st.ErrorKind != ErrorKindDockFailed {
		t.Fatalf("expected ERROR{dock_failed}, got %s kind=%v", st.Phase, st.ErrorKind)
	}
}

func TestOrchestratorSafetyTripAlwaysGoesToError(t *testing.T) {
	o := New(DefaultDeadlines(), nil, &fakeDock{}, nil)
	now := time.Unix(0, 0)
	o.Command(CmdStartMowing, &gridplan.Path{}, now)

	st := o.Tick(now, false, true, dock.Input{})
	if st.Phase != Error || st.ErrorKind != ErrorKindSafety {
		t.Fatalf("expected ERROR{safety}, got %s kind=%v", st.Phase, st.ErrorKind)
	}
}

func TestOrchestratorEmergencyStopAndReset(t *testing.T) {
	o := New(DefaultDeadlines(), nil, &fakeDock{}, nil)
	now := time.Unix(0, 0)
	o.Command(CmdEmergencyStop, nil, now)
	if o.State().Phase != Error {
		t.Fatalf("expected ERROR after emergency stop, got %s", o.State().Phase)
	}

	o.Command(CmdResetEmergency, nil, now)
	if o.State().Phase != Idle {
		t.Fatalf("expected IDLE after reset, got %s", o.State().Phase)
	}
}

func TestOrchestratorPublishesTransitionEvents(t *testing.T) {
	var got []Event
	pub := publishFunc(func(e Event) { got = append(got, e) })
	o := New(DefaultDeadlines(), pub, &fakeDock{}, nil)
	now := time.Unix(0, 0)
	o.Command(CmdStartMowing, &gridplan.Path{}, now)

	if len(got) == 0 {
		t.Fatal("expected at least one published transition event")
	}
	last := got[len(got)-1]
	if last.To != Mowing {
		t.Errorf("expected last event To=%s, got %s", Mowing, last.To)
	}
}

type publishFunc func(Event)

func (f publishFunc) Publish(e Event) { f(e) }

func TestOrchestratorReturningSurfacesDockGoal(t *testing.T) {
	goal := dock.MicroGoal{RangeM: 1.5, BearingRad: 0.2, SpeedMps: 0.1}
	fd := &fakeDock{outputs: []dock.Output{{State: dock.Search, Goal: goal}}}
	o := New(DefaultDeadlines(), nil, fd, nil)
	now := time.Unix(0, 0)
	o.Command(CmdReturnToDock, nil, now)

	st := o.Tick(now, false, false, dock.Input{})
	if st.DockPhase != dock.Search {
		t.Errorf("got DockPhase %q, want %q", st.DockPhase, dock.Search)
	}
	if st.DockGoal != goal {
		t.Errorf("got DockGoal %+v, want %+v", st.DockGoal, goal)
	}
}

func TestOrchestratorPhaseDeadlineUsesInjectedClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	deadlines := Deadlines{PlanDeadline: time.Second, DockDeadline: time.Minute}
	o := New(deadlines, nil, &fakeDock{}, clock)

	o.Command(CmdStartPointGoto, gridplan.Point{X: 5}, clock.Now())
	clock.Advance(5 * time.Second)

	st := o.Tick(clock.Now(), false, false, dock.Input{})
	if st.Phase != Error || st.ErrorKind != ErrorKindTimeout {
		t.Fatalf("expected ERROR{timeout} once the mock clock passes the deadline, got %s kind=%v", st.Phase, st.ErrorKind)
	}
}

func TestOrchestratorSetPublisherReplacesSink(t *testing.T) {
	var got []Event
	o := New(DefaultDeadlines(), nil, &fakeDock{}, nil)
	o.SetPublisher(publishFunc(func(e Event) { got = append(got, e) }))

	o.Command(CmdStartMowing, &gridplan.Path{}, time.Unix(0, 0))
	if len(got) == 0 {
		t.Fatal("expected the swapped-in publisher to receive the transition event")
	}
}
