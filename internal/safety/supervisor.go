package safety

import (
	"time"

	"github.com/google/uuid"
)

// Supervisor runs the ordered interlock chain once per control tick and
// mints a fresh authority token for whichever directive it produces.
// Downstream consumers (the local planner, the motor driver) must check
// the token against the latest one they've accepted before acting on a
// directive, so a stale directive computed before a newer trip can never
// be acted on after the fact. Bumper and tilt hysteresis is carried
// across ticks, so Arbitrate is not a pure function of Inputs alone.
type Supervisor struct {
	cfg       Config
	lastToken uuid.UUID

	bumperHoldUntil time.Time
	tiltHeld        bool
	tiltClearSince  time.Time
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Arbitrate runs the fixed-order interlock chain:
// EStop/watchdog -> Bumper -> Tilt -> BatteryCritical -> CollisionImminent
// -> pass-through, and returns the proposed command gated by whichever
// interlock fired alongside the diagnostic Directive. The first interlock
// that trips wins; later interlocks are not evaluated once one has
// tripped, since the directive cannot get more permissive by continuing
// down the chain.
func (s *Supervisor) Arbitrate(in Inputs, proposed Command) (Command, Directive) {
	token := uuid.New()
	s.lastToken = token

	trip := func(cause Cause, sev Severity) Directive {
		return Directive{Cause: cause, Severity: sev, Token: token}
	}

	if in.EStopAsserted {
		return Command{}, trip(CauseEStop, SeverityEmergency)
	}
	if s.cfg.WatchdogTimeout > 0 && !in.WatchdogLastBeat.IsZero() && in.Now.Sub(in.WatchdogLastBeat) > s.cfg.WatchdogTimeout {
		return Command{}, trip(CauseWatchdog, SeverityEmergency)
	}

	// Bumper: brake to zero and hold for BumperHoldTime past the last
	// trigger, releasing only once the hold has elapsed.
	if in.BumperTriggered {
		s.bumperHoldUntil = in.Now.Add(s.cfg.BumperHoldTime)
	}
	if !s.bumperHoldUntil.IsZero() && in.Now.Before(s.bumperHoldUntil) {
		return Command{}, trip(CauseBumper, SeverityDanger)
	}

	// Tilt: brake and hold until tilt has sustained below
	// TiltLimitRad*WarningThreshold for TiltDebounce.
	tiltTripped := in.TiltExceeded || (s.cfg.TiltLimitRad > 0 && in.TiltAngleRad > s.cfg.TiltLimitRad)
	if tiltTripped {
		s.tiltHeld = true
		s.tiltClearSince = time.Time{}
	}
	if s.tiltHeld {
		warnLimit := s.cfg.TiltLimitRad * s.cfg.WarningThreshold
		if in.TiltAngleRad < warnLimit {
			if s.tiltClearSince.IsZero() {
				s.tiltClearSince = in.Now
			}
			if in.Now.Sub(s.tiltClearSince) >= s.cfg.TiltDebounce {
				s.tiltHeld = false
			}
		} else {
			s.tiltClearSince = time.Time{}
		}
	}
	if s.tiltHeld {
		return Command{}, trip(CauseTilt, SeverityDanger)
	}

	if (s.cfg.BatteryCriticalVoltage > 0 && in.BatteryVoltage > 0 && in.BatteryVoltage <= s.cfg.BatteryCriticalVoltage) ||
		(s.cfg.BatteryCriticalSoC > 0 && in.BatteryStateOfCharge > 0 && in.BatteryStateOfCharge <= s.cfg.BatteryCriticalSoC) {
		// Request dock, but continue to allow controlled motion toward it.
		return proposed, trip(CauseBatteryCritical, SeverityDanger)
	}
	if in.CollisionValid && in.CollisionTTC > 0 && in.CollisionTTC <= s.cfg.CollisionTTCFloor {
		gated := Command{Linear: 0, Angular: clampAbs(proposed.Angular, s.cfg.CollisionAngularLimitRadps)}
		return gated, trip(CauseCollisionImminent, SeverityWarning)
	}

	return proposed, Directive{Cause: CauseNone, Severity: SeveritySafe, Token: token}
}

func clampAbs(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// LastToken returns the token minted by the most recent Arbitrate call,
// for callers that need to validate a directive they've cached against
// staleness without re-running arbitration.
func (s *Supervisor) LastToken() uuid.UUID { return s.lastToken }

// HeartbeatTracker records the most recent watchdog beat time so the
// caller feeding Inputs.WatchdogLastBeat doesn't need its own state.
type HeartbeatTracker struct {
	last time.Time
}

// Beat records a heartbeat at t.
func (h *HeartbeatTracker) Beat(t time.Time) { h.last = t }

// Last returns the most recently recorded beat time.
func (h *HeartbeatTracker) Last() time.Time { return h.last }
