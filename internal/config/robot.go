// Package config loads and validates the robot's YAML configuration,
// grounded on the teacher's internal/config/tuning.go pointer-field +
// Get*() defaulting pattern (so partial YAML files are safe) and on
// _examples/original_source's smart_config.py base + environment
// overlay merge order (base, then environment overlay, then validation).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mower-robot/control/internal/security"
)

// ErrConflict is returned when two configuration sections disagree in a
// way spec.md names explicitly as a conflict to surface rather than
// silently resolve.
type ErrConflict struct {
	Reason string
}

func (e *ErrConflict) Error() string { return "config: conflict: " + e.Reason }

// ErrOutOfRange is returned when a configured value fails a hard bound.
type ErrOutOfRange struct {
	Field string
	Value float64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("config: %s out of range: %v", e.Field, e.Value)
}

// LatLon is a geodetic coordinate pair.
type LatLon struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Navigation holds §6 navigation.* keys.
type Navigation struct {
	WheelDiameter *float64 `yaml:"wheel_diameter,omitempty"`
	WheelBase     *float64 `yaml:"wheel_base,omitempty"`

	Kalman struct {
		ProcessNoise     *float64 `yaml:"process_noise,omitempty"`
		MeasurementNoise *float64 `yaml:"measurement_noise,omitempty"`
	} `yaml:"kalman"`

	PathPlanning struct {
		GridResolution  *float64 `yaml:"grid_resolution,omitempty"`
		ObstaclePadding *float64 `yaml:"obstacle_padding,omitempty"`
	} `yaml:"path_planning"`

	Missions struct {
		Mowing struct {
			Overlap    *float64 `yaml:"overlap,omitempty"`
			Speed      *float64 `yaml:"speed,omitempty"`
			BrushWidth *float64 `yaml:"brush_width,omitempty"`
		} `yaml:"mowing"`
	} `yaml:"missions"`

	BoundaryCoordinates []LatLon `yaml:"boundary_coordinates"`

	BoundarySafety struct {
		BufferDistance  *float64 `yaml:"buffer_distance,omitempty"`
		WarningDistance *float64 `yaml:"warning_distance,omitempty"`
		MaxDeviation    *float64 `yaml:"max_deviation,omitempty"`
		CheckFrequency  *float64 `yaml:"check_frequency,omitempty"`
	} `yaml:"boundary_safety"`
}

// GetWheelDiameter returns the configured wheel diameter in meters.
func (n *Navigation) GetWheelDiameter() float64 {
	if n.WheelDiameter == nil {
		return 0.2
	}
	return *n.WheelDiameter
}

// GetWheelBase returns the configured wheel base in meters.
func (n *Navigation) GetWheelBase() float64 {
	if n.WheelBase == nil {
		return 0.35
	}
	return *n.WheelBase
}

// GetProcessNoise returns the EKF process noise multiplier.
func (n *Navigation) GetProcessNoise() float64 {
	if n.Kalman.ProcessNoise == nil {
		return 0.05
	}
	return *n.Kalman.ProcessNoise
}

// GetMeasurementNoise returns the EKF measurement noise multiplier.
func (n *Navigation) GetMeasurementNoise() float64 {
	if n.Kalman.MeasurementNoise == nil {
		return 0.3
	}
	return *n.Kalman.MeasurementNoise
}

// GetGridResolution returns the occupancy grid resolution in meters.
func (n *Navigation) GetGridResolution() float64 {
	if n.PathPlanning.GridResolution == nil {
		return 0.1
	}
	return *n.PathPlanning.GridResolution
}

// GetObstaclePadding returns the obstacle inflation radius in meters.
func (n *Navigation) GetObstaclePadding() float64 {
	if n.PathPlanning.ObstaclePadding == nil {
		return 0.3
	}
	return *n.PathPlanning.ObstaclePadding
}

// Motors holds motors.wheels.*, the authoritative encoder pin owner per
// spec.md §9.
type Motors struct {
	Wheels struct {
		Type         string `yaml:"type"` // "hardware" or "simulation"
		LeftPin      *int   `yaml:"left_pin,omitempty"`
		RightPin     *int   `yaml:"right_pin,omitempty"`
		EncoderLeftPin  *int `yaml:"encoder_left_pin,omitempty"`
		EncoderRightPin *int `yaml:"encoder_right_pin,omitempty"`
	} `yaml:"wheels"`
}

// Sensors holds sensors.enkoder.*, which historically duplicates
// motors.wheels' encoder pin assignment; motors.wheels wins per
// spec.md §9 and a mismatch is an ErrConflict.
type Sensors struct {
	Enkoder struct {
		LeftPin  *int `yaml:"left_pin,omitempty"`
		RightPin *int `yaml:"right_pin,omitempty"`
	} `yaml:"enkoder"`
	GPIOBased *bool `yaml:"gpio_based,omitempty"`
	I2C       []string `yaml:"i2c,omitempty"`
}

// GPSDock holds charging.gps_dock.*.
type GPSDock struct {
	Latitude                  float64 `yaml:"latitude"`
	Longitude                 float64 `yaml:"longitude"`
	AccuracyRadius            float64 `yaml:"accuracy_radius"`
	PreciseApproachDistance   float64 `yaml:"precise_approach_distance"`
	MediumDistanceThreshold   float64 `yaml:"medium_distance_threshold"`
	AprilTagDetectionRange    float64 `yaml:"apriltag_detection_range"`
	ApproachSpeeds struct {
		Normal, Slow, VerySlow, UltraSlow, Precise float64
	} `yaml:"approach_speeds"`
}

// AprilTag holds charging.apriltag.*.
type AprilTag struct {
	SarjIstasyonuTagID int         `yaml:"sarj_istasyonu_tag_id"`
	TagBoyutu          float64     `yaml:"tag_boyutu"`
	KameraMatrix       [3][3]float64 `yaml:"kamera_matrix"`
	DistortionCoeffs   [5]float64    `yaml:"distortion_coeffs"`

	Detection struct {
		MinConfidence          float64 `yaml:"min_confidence"`
		MaxDetectionDistance   float64 `yaml:"max_detection_distance"`
		MinMarkerPerimeterRate float64 `yaml:"min_marker_perimeter_rate"`
		MaxMarkerPerimeterRate float64 `yaml:"max_marker_perimeter_rate"`
	} `yaml:"detection"`

	Tolerances struct {
		HedefMesafe      float64 `yaml:"hedef_mesafe"`
		HassasMesafe     float64 `yaml:"hassas_mesafe"`
		AciToleransi     float64 `yaml:"aci_toleransi"` // degrees
		PozisyonToleransi float64 `yaml:"pozisyon_toleransi"`
	} `yaml:"tolerances"`
}

// PowerSensor holds charging.power_sensor.*.
type PowerSensor struct {
	SarjAkimiEsigi       float64 `yaml:"sarj_akimi_esigi"`
	BaglantiVoltajEsigi  float64 `yaml:"baglanti_voltaj_esigi"`
}

// Charging holds charging.*.
type Charging struct {
	GPSDock     GPSDock     `yaml:"gps_dock"`
	AprilTag    AprilTag    `yaml:"apriltag"`
	PowerSensor PowerSensor `yaml:"power_sensor"`
}

// Safety holds safety.*.
type Safety struct {
	TiltControl struct {
		MaxTiltAngle     *float64 `yaml:"max_tilt_angle,omitempty"`
		WarningThreshold *float64 `yaml:"warning_threshold,omitempty"` // fraction of max_tilt_angle
		TiltDebounce     *float64 `yaml:"tilt_debounce,omitempty"`     // seconds
	} `yaml:"tilt_control"`
	Watchdog struct {
		Timeout *float64 `yaml:"timeout,omitempty"` // seconds
	} `yaml:"watchdog"`
	Bumper struct {
		HoldTime *float64 `yaml:"hold_time,omitempty"` // seconds
	} `yaml:"bumper"`
	CollisionDetection struct {
		DistanceThreshold *float64 `yaml:"distance_threshold,omitempty"`
		AngularLimit      *float64 `yaml:"angular_limit,omitempty"` // rad/s bound while CollisionImminent
	} `yaml:"collision_detection"`
	BatterySafety struct {
		MinBatteryVoltage   *float64 `yaml:"min_battery_voltage,omitempty"`
		RapidDrainThreshold *float64 `yaml:"rapid_drain_threshold,omitempty"`
		MaxCurrentDraw      *float64 `yaml:"max_current_draw,omitempty"`
	} `yaml:"battery_safety"`
}

// GetMaxTiltAngle returns the tilt interlock limit in radians.
func (s *Safety) GetMaxTiltAngle() float64 {
	if s.TiltControl.MaxTiltAngle == nil {
		return 0.5
	}
	return *s.TiltControl.MaxTiltAngle
}

// GetWatchdogTimeout returns the watchdog heartbeat timeout in seconds.
func (s *Safety) GetWatchdogTimeout() float64 {
	if s.Watchdog.Timeout == nil {
		return 0.5
	}
	return *s.Watchdog.Timeout
}

// GetCollisionDistanceThreshold returns the supervisor's hard collision
// distance threshold in meters.
func (s *Safety) GetCollisionDistanceThreshold() float64 {
	if s.CollisionDetection.DistanceThreshold == nil {
		return 0.3
	}
	return *s.CollisionDetection.DistanceThreshold
}

// GetCollisionAngularLimit returns the bounded angular speed, in rad/s,
// permitted while CollisionImminent is tripped.
func (s *Safety) GetCollisionAngularLimit() float64 {
	if s.CollisionDetection.AngularLimit == nil {
		return 1.0
	}
	return *s.CollisionDetection.AngularLimit
}

// GetTiltWarningThreshold returns the fraction of max_tilt_angle the tilt
// interlock must sustain below before it releases.
func (s *Safety) GetTiltWarningThreshold() float64 {
	if s.TiltControl.WarningThreshold == nil {
		return 0.8
	}
	return *s.TiltControl.WarningThreshold
}

// GetTiltDebounce returns how long tilt must stay below the warning
// threshold before the interlock releases, in seconds.
func (s *Safety) GetTiltDebounce() float64 {
	if s.TiltControl.TiltDebounce == nil {
		return 1.0
	}
	return *s.TiltControl.TiltDebounce
}

// GetBumperHoldTime returns how long BUMPER_HOLD is sustained past the
// last bumper trigger, in seconds.
func (s *Safety) GetBumperHoldTime() float64 {
	if s.Bumper.HoldTime == nil {
		return 2.0
	}
	return *s.Bumper.HoldTime
}

// DWAWeights holds dynamic_obstacle_avoidance.dwa.weights.*.
type DWAWeights struct {
	Heading, Obstacle, Velocity, Smoothness float64
}

// DWA holds dynamic_obstacle_avoidance.dwa.*.
type DWA struct {
	VelocityResolution *float64   `yaml:"velocity_resolution,omitempty"`
	AngularResolution  *float64   `yaml:"angular_resolution,omitempty"`
	TimeHorizon        *float64   `yaml:"time_horizon,omitempty"`
	DT                 *float64   `yaml:"dt,omitempty"`
	Weights            DWAWeights `yaml:"weights"`
	EmergencyBrakeDistance *float64 `yaml:"emergency_brake_distance,omitempty"`
}

// GetVelocityResolution returns the DWA linear-velocity sampling step.
func (d *DWA) GetVelocityResolution() float64 {
	if d.VelocityResolution == nil {
		return 0.02
	}
	return *d.VelocityResolution
}

// GetAngularResolution returns the DWA angular-velocity sampling step.
func (d *DWA) GetAngularResolution() float64 {
	if d.AngularResolution == nil {
		return 0.05
	}
	return *d.AngularResolution
}

// GetTimeHorizon returns the DWA trajectory rollout horizon in seconds.
func (d *DWA) GetTimeHorizon() float64 {
	if d.TimeHorizon == nil {
		return 2.0
	}
	return *d.TimeHorizon
}

// GetDT returns the DWA rollout time step in seconds.
func (d *DWA) GetDT() float64 {
	if d.DT == nil {
		return 0.1
	}
	return *d.DT
}

// GetEmergencyBrakeDistance returns the DWA soft braking setpoint.
func (d *DWA) GetEmergencyBrakeDistance() float64 {
	if d.EmergencyBrakeDistance == nil {
		return 0.4
	}
	return *d.EmergencyBrakeDistance
}

// RobotPhysics holds dynamic_obstacle_avoidance.robot_physics.*.
type RobotPhysics struct {
	Radius          float64 `yaml:"radius"`
	MaxLinearSpeed  float64 `yaml:"max_linear_speed"`
	MaxAngularSpeed float64 `yaml:"max_angular_speed"`
	MaxLinearAccel  float64 `yaml:"max_linear_accel"`
	MaxAngularAccel float64 `yaml:"max_angular_accel"`
}

// ModeProfile holds one entry of
// dynamic_obstacle_avoidance.navigation_modes.*.
type ModeProfile struct {
	SpeedFactor  float64 `yaml:"speed_factor"`
	SafetyFactor float64 `yaml:"safety_factor"`
}

// NavigationModes holds dynamic_obstacle_avoidance.navigation_modes.*.
type NavigationModes struct {
	Normal       ModeProfile `yaml:"normal"`
	Conservative ModeProfile `yaml:"conservative"`
	Aggressive   ModeProfile `yaml:"aggressive"`
	Emergency    ModeProfile `yaml:"emergency"`
}

// DWAPerformance holds dynamic_obstacle_avoidance.performance.*.
type DWAPerformance struct {
	MaxReplanningFrequency float64 `yaml:"max_replanning_frequency"`
	StuckDetectionLimit    int     `yaml:"stuck_detection_limit"`
	WaypointTolerance      float64 `yaml:"waypoint_tolerance"`
}

// DynamicObstacleAvoidance holds dynamic_obstacle_avoidance.*.
type DynamicObstacleAvoidance struct {
	DWA             DWA             `yaml:"dwa"`
	RobotPhysics    RobotPhysics    `yaml:"robot_physics"`
	NavigationModes NavigationModes `yaml:"navigation_modes"`
	Performance     DWAPerformance  `yaml:"performance"`
}

// Identity carries the robot's name and version, used for logging only —
// it has no behavioral effect on navigation, safety, or docking.
type Identity struct {
	Name    *string `yaml:"name"`
	Version *string `yaml:"version"`
}

// GetName returns the configured robot name, defaulting to "mower" when
// unset.
func (i *Identity) GetName() string {
	if i.Name == nil {
		return "mower"
	}
	return *i.Name
}

// GetVersion returns the configured robot version, defaulting to
// "unknown" when unset.
func (i *Identity) GetVersion() string {
	if i.Version == nil {
		return "unknown"
	}
	return *i.Version
}

// Robot is the root of the configuration tree, the unmarshal target for
// both the base file and any environment overlay.
type Robot struct {
	Identity                 Identity                 `yaml:"robot"`
	Navigation               Navigation               `yaml:"navigation"`
	Motors                   Motors                   `yaml:"motors"`
	Sensors                  Sensors                  `yaml:"sensors"`
	Charging                 Charging                 `yaml:"charging"`
	Safety                   Safety                   `yaml:"safety"`
	DynamicObstacleAvoidance DynamicObstacleAvoidance `yaml:"dynamic_obstacle_avoidance"`

	Simulation struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"simulation"`
}

// Load reads the base config file, merges an optional environment
// overlay on top, and validates the result. environment may be empty to
// skip the overlay step.
func Load(baseDir, basePath, environment string) (*Robot, error) {
	r := &Robot{}

	if err := loadYAMLInto(baseDir, basePath, r); err != nil {
		return nil, err
	}

	if environment != "" {
		overlayPath := filepath.Join("environments", environment+".yaml")
		if err := loadYAMLInto(baseDir, overlayPath, r); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func loadYAMLInto(baseDir, relPath string, r *Robot) error {
	full := filepath.Join(baseDir, relPath)
	if err := security.ValidatePathWithinDirectory(full, baseDir); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, r)
}

// Validate checks the two conflicts spec.md §9 names explicitly and the
// numeric bounds navigation and DWA both depend on.
func (r *Robot) Validate() error {
	m := r.Motors.Wheels
	e := r.Sensors.Enkoder
	if m.EncoderLeftPin != nil && e.LeftPin != nil && *m.EncoderLeftPin != *e.LeftPin {
		return &ErrConflict{Reason: "motors.wheels.encoder_left_pin and sensors.enkoder.left_pin disagree; motors.wheels is authoritative"}
	}
	if m.EncoderRightPin != nil && e.RightPin != nil && *m.EncoderRightPin != *e.RightPin {
		return &ErrConflict{Reason: "motors.wheels.encoder_right_pin and sensors.enkoder.right_pin disagree; motors.wheels is authoritative"}
	}

	hard := r.Safety.GetCollisionDistanceThreshold()
	soft := r.DynamicObstacleAvoidance.DWA.GetEmergencyBrakeDistance()
	if hard > soft {
		return &ErrConflict{Reason: fmt.Sprintf("safety.collision_detection.distance_threshold (%v) must be <= dynamic_obstacle_avoidance.dwa.emergency_brake_distance (%v)", hard, soft)}
	}

	if r.Navigation.GetWheelBase() <= 0 {
		return &ErrOutOfRange{Field: "navigation.wheel_base", Value: r.Navigation.GetWheelBase()}
	}
	if r.Navigation.GetWheelDiameter() <= 0 {
		return &ErrOutOfRange{Field: "navigation.wheel_diameter", Value: r.Navigation.GetWheelDiameter()}
	}

	return nil
}
