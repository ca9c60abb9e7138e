// Package safety arbitrates every interlock input into a single motion
// directive each control tick, grounded on
// _examples/original_source's GuvenlikSistemi severity taxonomy
// (GUVENLI/UYARI/TEHLIKE/ACIL_DURUM). Arbitration is an ordered
// interlock chain: the chain order decides precedence, and the first
// interlock that trips wins. The Severity enum labels each directive for
// diagnostics and does not affect that order.
package safety

import (
	"time"

	"github.com/google/uuid"
)

// Severity mirrors the four-level taxonomy the arbitration chain is
// grounded on, reported alongside Directive for operator-facing status
// rather than used to drive control logic directly.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityWarning
	SeverityDanger
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeveritySafe:
		return "SAFE"
	case SeverityWarning:
		return "WARNING"
	case SeverityDanger:
		return "DANGER"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Inputs is every interlock signal sampled once per tick.
type Inputs struct {
	Now time.Time

	EStopAsserted      bool
	WatchdogLastBeat    time.Time
	BumperTriggered     bool
	TiltExceeded        bool
	TiltAngleRad        float64
	BatteryVoltage      float64
	BatteryStateOfCharge float64
	CollisionTTC        time.Duration // time-to-collision estimate; 0 means none detected
	CollisionValid      bool
}

// Config carries every safety tunable.
type Config struct {
	WatchdogTimeout time.Duration
	TiltLimitRad    float64
	BatteryCriticalVoltage float64
	BatteryCriticalSoC     float64
	CollisionTTCFloor      time.Duration

	// BumperHoldTime is how long BUMPER_HOLD is sustained past the last
	// bumper trigger before release is considered.
	BumperHoldTime time.Duration
	// WarningThreshold is the fraction of TiltLimitRad tilt must sustain
	// below before the tilt interlock releases.
	WarningThreshold float64
	// TiltDebounce is how long tilt must stay below
	// TiltLimitRad*WarningThreshold before the interlock releases.
	TiltDebounce time.Duration
	// CollisionAngularLimitRadps bounds angular speed while
	// CollisionImminent is tripped (the "emergency" profile: zero linear,
	// bounded angular).
	CollisionAngularLimitRadps float64
}

// DefaultConfig mirrors typical small-mower limits.
func DefaultConfig() Config {
	return Config{
		WatchdogTimeout:        500 * time.Millisecond,
		TiltLimitRad:           0.5,
		BatteryCriticalVoltage: 10.5,
		BatteryCriticalSoC:     0.05,
		CollisionTTCFloor:      800 * time.Millisecond,

		BumperHoldTime:             2 * time.Second,
		WarningThreshold:           0.8,
		TiltDebounce:               time.Second,
		CollisionAngularLimitRadps: 1.0,
	}
}

// Cause names which interlock, if any, produced a stop directive.
type Cause int

const (
	CauseNone Cause = iota
	CauseEStop
	CauseWatchdog
	CauseBumper
	CauseTilt
	CauseBatteryCritical
	CauseCollisionImminent
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseEStop:
		return "estop"
	case CauseWatchdog:
		return "watchdog"
	case CauseBumper:
		return "bumper"
	case CauseTilt:
		return "tilt"
	case CauseBatteryCritical:
		return "battery_critical"
	case CauseCollisionImminent:
		return "collision_imminent"
	default:
		return "unknown"
	}
}

// Command is the linear/angular motion command the supervisor gates,
// kept free of any ports dependency so this package has no transport or
// hardware imports.
type Command struct {
	Linear  float64
	Angular float64
}

// Directive is the supervisor's verdict for one control tick: which
// interlock, if any, fired, and the transform it applied to the proposed
// command is already reflected in the Command Arbitrate returned
// alongside it.
type Directive struct {
	Cause    Cause
	Severity Severity
	Token    uuid.UUID // rotating authority token, see Supervisor.Arbitrate
}

// Latched reports whether this directive requires an explicit operator
// reset before the mission may resume — true only for EStop and watchdog
// starvation (spec bullet 1: "latch EMERGENCY, require explicit manual
// reset"). Bumper, tilt, battery-critical, and collision-imminent are all
// self-clearing interlocks handled entirely within the supervisor.
func (d Directive) Latched() bool {
	return d.Cause == CauseEStop || d.Cause == CauseWatchdog
}

// AbortsDock reports whether an in-progress dock attempt must be failed
// by this directive. BatteryCritical is explicitly excluded: it requests
// a return to dock and continues to allow controlled motion toward it.
func (d Directive) AbortsDock() bool {
	return d.Cause != CauseNone && d.Cause != CauseBatteryCritical
}
