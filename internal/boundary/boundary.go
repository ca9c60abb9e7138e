// Package boundary defines the operator interface contract: the set of
// operations spec.md §6 names abstractly, typed as Go interfaces and
// plain structs only. No transport lives here — an HTTP/WebSocket/gRPC
// adapter is an external collaborator that depends on this package, not
// the other way around.
package boundary

import (
	"time"

	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/mission"
)

// Status is the read-only snapshot GetStatus returns.
type Status struct {
	Mission mission.State
	AsOf    time.Time
}

// EventKind names what changed in a published Event.
type EventKind int

const (
	EventMissionTransition EventKind = iota
	EventSafetyTrip
	EventDockPhaseChanged
)

// Event is a single item on the StreamEvents feed.
type Event struct {
	Kind EventKind
	At   time.Time
	Mission mission.Event
}

// Operator is the contract a transport adapter wires to. Every
// operation returns quickly; long-running effects (driving to a point,
// docking) happen asynchronously and are observed via GetStatus or
// StreamEvents.
type Operator interface {
	GetStatus() Status
	StartMowing() error
	StartPointGoto(target gridplan.Point) error
	ReturnToDock() error
	EmergencyStop() error
	ResetEmergency() error
	StreamEvents() <-chan Event
}
