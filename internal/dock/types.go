// Package dock implements the two-phase docking state machine: a
// GNSS-guided coarse traverse to the dock's geodetic location, then a
// fiducial-guided search → approach → precision → contact sequence
// verified by current-sense charge confirmation, grounded on
// _examples/original_source's SarjIstasyonuYaklasici state table and
// built on github.com/looplab/fsm for the state container itself.
package dock

import (
	"errors"
	"time"
)

// State names. BEGIN is the single entry point; DOCKED and FAILED are
// terminal.
const (
	Begin           = "BEGIN"
	GNSSTraverse    = "GNSS_TRAVERSE"
	Search          = "SEARCH"
	CoarseApproach  = "COARSE_APPROACH"
	Precision       = "PRECISION"
	Contact         = "CONTACT"
	Docked          = "DOCKED"
	Failed          = "FAILED"
)

// Config carries every docking tunable named in the external interface
// contract (charging.gps_dock.*, charging.apriltag.*).
type Config struct {
	DockLocationLat, DockLocationLon float64
	AccuracyRadiusM                  float64
	PreciseApproachDistanceM         float64
	MediumDistanceThresholdM         float64
	AprilTagDetectionRangeM          float64

	ApproachSpeeds struct {
		Normal, Slow, VerySlow, UltraSlow, Precise float64
	}

	DockMarkerID int
	MinConfidence float64

	PreciseThresholdM float64 // CoarseApproach -> Precision
	TargetRangeM      float64 // hedef_mesafe
	ContactRangeM      float64 // hassas_mesafe: Precision -> Contact
	AngleToleranceRad  float64 // aci_toleransi
	YawToleranceRad    float64
	PositionToleranceM float64

	ChargeCurrentThresholdA  float64 // sarj_akimi_esigi
	ContactVoltageThresholdV float64 // baglanti_voltaj_esigi
	ConfirmSamples           int     // N consecutive samples

	RotationSpeedRadPerSec float64
	SearchTimeout          time.Duration
	LostTimeout            time.Duration
	ContactTimeout         time.Duration

	RangeRegressionEpsilonM float64 // ε in range(t+1) <= range(t) + ε

	RetryBudget int
}

// DefaultConfig returns zero-valued tunables except the ones with an
// obvious safe default; the geodetic/tolerance/threshold values are
// deployment-specific and must come from the robot's own configuration.
func DefaultConfig() Config {
	cfg := Config{
		ConfirmSamples:          3,
		RotationSpeedRadPerSec:  0.3,
		SearchTimeout:           30 * time.Second,
		LostTimeout:             5 * time.Second,
		ContactTimeout:          15 * time.Second,
		RangeRegressionEpsilonM: 0.02,
		RetryBudget:             3,
	}
	return cfg
}

// ErrPhaseTimeout is returned when a phase's deadline expires.
var ErrPhaseTimeout = errors.New("dock: phase timed out")

// ErrRangeRegression is returned (for diagnostics) when range increases
// beyond tolerance within a single approach segment.
var ErrRangeRegression = errors.New("dock: range regression detected")

// ErrRetryBudgetExhausted is returned when FAILED is reached with no
// retries remaining.
var ErrRetryBudgetExhausted = errors.New("dock: retry budget exhausted")

// Detection is the subset of a FiducialDetection the docking machine
// needs.
type Detection struct {
	Present      bool
	RangeM       float64
	BearingRad   float64
	YawOffsetRad float64
	Confidence   float64
}

// PowerReading is the dock-bus current-sense sample used for contact
// confirmation.
type PowerReading struct {
	Current float64
	Voltage float64
}

// Input is everything a single Tick needs to evaluate the active state's
// exit conditions.
type Input struct {
	Now               time.Time
	RemainingDistanceM float64 // to dock GeodeticPoint, via GNSS/path progress
	Marker            Detection
	Power             PowerReading
	SafetyAbort       bool // a safety event that must abort to FAILED
}

// MicroGoal is the target C6 feeds directly to C4 while docking, bypassing
// C3.
type MicroGoal struct {
	RangeM     float64
	BearingRad float64
	SpeedMps   float64
	Rotate     bool // true during SEARCH's in-place rotation; SpeedMps then holds the turn rate in rad/s
}

// Output is what a Tick produces for the caller to act on.
type Output struct {
	State      string
	Goal       MicroGoal
	Terminal   bool
	Docked     bool
	Err        error
}
