// Package localplan implements the Dynamic Window Approach local motion
// planner: each control tick it samples admissible (v, ω) pairs, scores
// their forward-simulated trajectories, and emits a single MotionCommand,
// grounded on the weighted candidate-scoring pattern used for
// point-velocity correspondence search elsewhere in this stack's
// ancestry, adapted from scoring point correspondences to scoring whole
// trajectories.
package localplan

import "time"

// MotionCommand is the output of a planning tick: a (v, ω) pair plus the
// monotonic deadline by which it must be superseded or re-issued.
type MotionCommand struct {
	Linear          float64 // m/s
	Angular         float64 // rad/s
	DeadlineMonotonic time.Time
}

// Pose is the minimal pose view the local planner needs.
type Pose struct {
	X, Y, Theta float64
	V, Omega    float64
}

// Target is the current waypoint the planner steers toward.
type Target struct {
	X, Y    float64
	Heading *float64
}

// Obstacle is a locally-observed circular obstacle in the planner frame.
type Obstacle struct {
	X, Y, Radius float64
}

// Mode selects one of the four kinodynamic profiles; Emergency is only
// selectable by the safety supervisor.
type Mode int

const (
	Normal Mode = iota
	Conservative
	Aggressive
	Emergency
)

// ModeProfile scales the physics limits and obstacle weighting for a Mode.
type ModeProfile struct {
	SpeedFactor  float64
	SafetyFactor float64
}

// Physics carries the vehicle's kinodynamic limits.
type Physics struct {
	RadiusM         float64
	MaxLinearSpeed  float64
	MaxAngularSpeed float64
	MaxLinearAccel  float64
	MaxAngularAccel float64
}

// Weights are the scoring function's configuration inputs.
type Weights struct {
	Heading     float64
	Obstacle    float64
	Velocity    float64
	Smoothness  float64
}

// Config carries every DWA tunable.
type Config struct {
	VelocityResolution float64
	AngularResolution  float64
	TimeHorizon        time.Duration
	DT                 time.Duration
	Weights            Weights
	Physics            Physics
	Modes              map[Mode]ModeProfile

	ObstacleClearanceCap float64 // clamp on the O score's clearance term
	BrakingDistance      float64 // minimum forward clearance required of any admissible sample
	WaypointTolerance    float64
	StuckLimit           int
}

// DefaultConfig returns the spec's default mode profiles; physics and
// grid-scale tunables still come from the robot's own configuration.
func DefaultConfig() Config {
	return Config{
		VelocityResolution: 0.05,
		AngularResolution:  0.1,
		TimeHorizon:        2 * time.Second,
		DT:                 100 * time.Millisecond,
		Weights:            Weights{Heading: 1.0, Obstacle: 2.0, Velocity: 1.0, Smoothness: 0.5},
		Modes: map[Mode]ModeProfile{
			Normal:       {SpeedFactor: 1.0, SafetyFactor: 1.0},
			Conservative: {SpeedFactor: 0.5, SafetyFactor: 1.5},
			Aggressive:   {SpeedFactor: 1.3, SafetyFactor: 0.7},
			Emergency:    {SpeedFactor: 0.0, SafetyFactor: 2.0},
		},
		ObstacleClearanceCap: 2.0,
		BrakingDistance:      0.3,
		WaypointTolerance:    0.15,
		StuckLimit:           20,
	}
}

// Result carries the chosen command plus the diagnostics the orchestrator
// and safety supervisor care about.
type Result struct {
	Command     MotionCommand
	GoalReached bool
	Stuck       bool
}
