package boundary

import (
	"errors"
	"time"

	"github.com/mower-robot/control/internal/bus"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/mission"
)

// orchestrator is the subset of *mission.Orchestrator the service needs,
// kept as an interface so tests can substitute a fake.
type orchestrator interface {
	Command(cmd mission.Command, payload any, now time.Time)
	State() mission.State
}

// CoverageSource supplies the coverage path for StartMowing; in
// production this is the grid planner's boustrophedon path for the
// active boundary, planned once at startup.
type CoverageSource func() (*gridplan.Path, error)

// Service is the concrete Operator wired directly to a mission
// orchestrator and an internal/bus.Topic for StreamEvents, per
// spec.md §6's abstract operator contract.
type Service struct {
	orch     orchestrator
	coverage CoverageSource
	events   *bus.Topic[Event]
	now      func() time.Time
}

// NewService creates a Service.
func NewService(orch orchestrator, coverage CoverageSource, events *bus.Topic[Event]) *Service {
	return &Service{orch: orch, coverage: coverage, events: events, now: time.Now}
}

// GetStatus returns the current mission snapshot.
func (s *Service) GetStatus() Status {
	return Status{Mission: s.orch.State(), AsOf: s.now()}
}

// StartMowing looks up the active coverage path and commands the
// orchestrator into Mowing.
func (s *Service) StartMowing() error {
	if s.coverage == nil {
		return errors.New("boundary: no coverage source configured")
	}
	path, err := s.coverage()
	if err != nil {
		return err
	}
	s.orch.Command(mission.CmdStartMowing, path, s.now())
	return nil
}

// StartPointGoto commands the orchestrator to drive to a single point.
func (s *Service) StartPointGoto(target gridplan.Point) error {
	s.orch.Command(mission.CmdStartPointGoto, target, s.now())
	return nil
}

// ReturnToDock commands the orchestrator into Returning.
func (s *Service) ReturnToDock() error {
	s.orch.Command(mission.CmdReturnToDock, nil, s.now())
	return nil
}

// EmergencyStop commands the orchestrator into Error{safety} immediately.
func (s *Service) EmergencyStop() error {
	s.orch.Command(mission.CmdEmergencyStop, nil, s.now())
	return nil
}

// ResetEmergency clears Error back to Idle.
func (s *Service) ResetEmergency() error {
	s.orch.Command(mission.CmdResetEmergency, nil, s.now())
	return nil
}

// StreamEvents returns a channel of every Event published on the
// service's topic. The subscription stays registered on the topic until
// the topic is closed; since Topic.Publish never blocks on a full
// subscriber, a channel that is never drained only drops events.
func (s *Service) StreamEvents() <-chan Event {
	if s.events == nil {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	_, ch := s.events.Subscribe()
	return ch
}

// PublishMissionEvent republishes a mission.Event onto the boundary
// topic, wrapped with its boundary EventKind.
func (s *Service) PublishMissionEvent(e mission.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{Kind: EventMissionTransition, At: e.At, Mission: e})
}

// MissionPublisher adapts a Service to mission.Publisher, so cmd/mowerd
// can pass it directly as the mission.Orchestrator's transition sink.
type MissionPublisher struct{ Service *Service }

// Publish implements mission.Publisher.
func (p MissionPublisher) Publish(e mission.Event) { p.Service.PublishMissionEvent(e) }
