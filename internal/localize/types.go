// Package localize fuses wheel odometry, IMU yaw rate, and GNSS fixes into
// a continuous pose estimate via an extended Kalman filter, grounded on
// the covariance-carrying multi-object tracker shape used elsewhere in the
// ancestry of this stack, adapted from a per-object constant-velocity
// filter to a single nonlinear differential-drive process model.
package localize

import (
	"math"
	"time"
)

// Pose is the planar pose (x, y, θ) in the local anchor frame, plus the
// current linear/angular velocity estimate and the covariance over
// (x, y, θ). θ is kept in (−π, π].
type Pose struct {
	Timestamp time.Time
	X, Y      float64
	Theta     float64
	V, Omega  float64
	Cov       [3][3]float64 // over (x, y, θ)
}

// GeodeticPoint is a (latitude, longitude) pair in decimal degrees.
type GeodeticPoint struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point's coordinates are within range.
func (p GeodeticPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude > -180 && p.Longitude <= 180
}

// earthRadiusMeters is the mean Earth radius used by the Haversine and
// equirectangular approximations below.
const earthRadiusMeters = 6371000.0

// wrapAngle normalizes an angle to (−π, π].
func wrapAngle(theta float64) float64 {
	wrapped := math.Mod(theta+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	wrapped -= math.Pi
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	}
	return wrapped
}
