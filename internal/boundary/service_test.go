package boundary

import (
	"errors"
	"testing"
	"time"

	"github.com/mower-robot/control/internal/bus"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/mission"
)

type fakeOrch struct {
	calls []mission.Command
	state mission.State
}

func (f *fakeOrch) Command(cmd mission.Command, payload any, now time.Time) {
	f.calls = append(f.calls, cmd)
	switch cmd {
	case mission.CmdStartMowing:
		f.state.Phase = mission.Mowing
	case mission.CmdEmergencyStop:
		f.state.Phase = mission.Error
	case mission.CmdResetEmergency:
		f.state.Phase = mission.Idle
	}
}
func (f *fakeOrch) State() mission.State { return f.state }

func TestServiceStartMowingUsesCoverageSource(t *testing.T) {
	orch := &fakeOrch{}
	path := &gridplan.Path{Waypoints: []gridplan.Waypoint{{X: 1}}}
	svc := NewService(orch, func() (*gridplan.Path, error) { return path, nil }, nil)

	if err := svc.StartMowing(); err != nil {
		t.Fatalf("StartMowing: %v", err)
	}
	if len(orch.calls) != 1 || orch.calls[0] != mission.CmdStartMowing {
		t.Fatalf("expected a single CmdStartMowing call, got %v", orch.calls)
	}
	if svc.GetStatus().Mission.Phase != mission.Mowing {
		t.Errorf("expected MOWING, got %s", svc.GetStatus().Mission.Phase)
	}
}

func TestServiceStartMowingPropagatesCoverageError(t *testing.T) {
	orch := &fakeOrch{}
	wantErr := errors.New("no boundary loaded")
	svc := NewService(orch, func() (*gridplan.Path, error) { return nil, wantErr }, nil)

	if err := svc.StartMowing(); err != wantErr {
		t.Fatalf("expected coverage error to propagate, got %v", err)
	}
	if len(orch.calls) != 0 {
		t.Errorf("expected no orchestrator call on coverage failure, got %v", orch.calls)
	}
}

func TestServiceEmergencyStopAndReset(t *testing.T) {
	orch := &fakeOrch{}
	svc := NewService(orch, nil, nil)

	svc.EmergencyStop()
	if svc.GetStatus().Mission.Phase != mission.Error {
		t.Fatalf("expected ERROR after EmergencyStop, got %s", svc.GetStatus().Mission.Phase)
	}
	svc.ResetEmergency()
	if svc.GetStatus().Mission.Phase != mission.Idle {
		t.Fatalf("expected IDLE after ResetEmergency, got %s", svc.GetStatus().Mission.Phase)
	}
}

func TestServiceStreamEventsDeliversPublishedEvents(t *testing.T) {
	topic := bus.NewTopic[Event](4)
	svc := NewService(&fakeOrch{}, nil, topic)

	ch := svc.StreamEvents()
	svc.PublishMissionEvent(mission.Event{From: mission.Idle, To: mission.Mowing})

	select {
	case ev := <-ch:
		if ev.Mission.To != mission.Mowing {
			t.Errorf("expected forwarded event To=%s, got %s", mission.Mowing, ev.Mission.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a streamed event")
	}
}

func TestMissionPublisherAdapter(t *testing.T) {
	topic := bus.NewTopic[Event](4)
	svc := NewService(&fakeOrch{}, nil, topic)
	var pub mission.Publisher = MissionPublisher{Service: svc}

	ch := svc.StreamEvents()
	pub.Publish(mission.Event{From: mission.Idle, To: mission.Error})

	select {
	case ev := <-ch:
		if ev.Mission.To != mission.Error {
			t.Errorf("expected To=%s, got %s", mission.Error, ev.Mission.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the adapted event")
	}
}
