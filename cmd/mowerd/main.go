// Command mowerd is the onboard control daemon: it fuses sensor input
// into a pose estimate, plans coverage and point-to-point paths over a
// boundary polygon, arbitrates every tick against the safety interlock
// chain, drives the docking approach, and exposes the whole thing to an
// operator over HTTP — wired the way the teacher's cmd/radar wires its
// serial monitor, event handler, and HTTP server as independent
// goroutines under one signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mower-robot/control/internal/boundary"
	"github.com/mower-robot/control/internal/bus"
	"github.com/mower-robot/control/internal/config"
	"github.com/mower-robot/control/internal/dock"
	"github.com/mower-robot/control/internal/fsutil"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/httpapi"
	"github.com/mower-robot/control/internal/localize"
	"github.com/mower-robot/control/internal/localplan"
	"github.com/mower-robot/control/internal/mission"
	"github.com/mower-robot/control/internal/monitoring"
	"github.com/mower-robot/control/internal/ports"
	"github.com/mower-robot/control/internal/safety"
	"github.com/mower-robot/control/internal/store"
	"github.com/mower-robot/control/internal/timeutil"
	"github.com/mower-robot/control/internal/version"
	"github.com/mower-robot/control/internal/vision"
)

// exit codes, distinguished so a supervisor (systemd, a fleet manager)
// can tell configuration problems apart from hardware-init failures
// without scraping logs.
const (
	exitOK = iota
	exitConfigError
	exitHardwareError
	exitPlanningError
)

var (
	backendFlag  = flag.String("backend", "simulation", "port backend: simulation or hardware")
	configDir    = flag.String("config-dir", ".", "directory config files are loaded relative to")
	configFile   = flag.String("config-file", "robot.yaml", "base configuration file, relative to -config-dir")
	environment  = flag.String("environment", "", "environment overlay name (environments/<name>.yaml); empty skips the overlay")
	listenAddr   = flag.String("listen", ":8080", "operator HTTP listen address")
	drivePort    = flag.String("drive-port", "/dev/ttyACM0", "serial port for the drive/encoder line protocol (hardware backend only)")
	gnssPort     = flag.String("gnss-port", "/dev/ttyACM1", "serial port for the GNSS line protocol (hardware backend only)")
	baudRate     = flag.Int("baud", 115200, "serial baud rate (hardware backend only)")
	stateDir     = flag.String("state-dir", "", "directory for the persisted coverage/grid sqlite database; empty disables persistence")
	pulsesPerRev = flag.Float64("pulses-per-rev", 1000, "wheel encoder pulses per revolution")
)

// stubDecoder is the vision.Decoder used when no fiducial-detection
// library is wired in; a real decoder (OpenCV-via-cgo, a pure-Go
// ArUco/AprilTag library) is an external collaborator per
// internal/vision's own doc comment.
type stubDecoder struct{}

func (stubDecoder) Detect(undistorted []byte, width, height int) ([]vision.RawDetection, error) {
	return nil, nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Printf("mowerd: %v", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitErr carries the process exit code alongside the error that caused
// it, so run() can return plain errors everywhere and main() still picks
// the right code.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitErr
	if ok := asExitErr(err, &ee); ok {
		return ee.code
	}
	return exitConfigError
}

func asExitErr(err error, target **exitErr) bool {
	for err != nil {
		if ee, ok := err.(*exitErr); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func run() error {
	robotCfg, err := config.Load(*configDir, *configFile, *environment)
	if err != nil {
		return &exitErr{exitConfigError, fmt.Errorf("loading configuration: %w", err)}
	}

	log.Printf("mowerd: starting %s (config version %s) build=%s sha=%s built=%s",
		robotCfg.Identity.GetName(), robotCfg.Identity.GetVersion(),
		version.Version, version.GitSHA, version.BuildTime)

	backend := ports.BackendSimulation
	if *backendFlag == "hardware" {
		backend = ports.BackendHardware
	}

	hw, err := buildHardware(backend, robotCfg)
	if err != nil {
		return &exitErr{exitHardwareError, err}
	}
	defer hw.Close()

	ekf := localize.New(localizeConfig(robotCfg), timeutil.RealClock{})

	anchorPoint, err := waitForAnchor(hw, ekf)
	if err != nil {
		return &exitErr{exitHardwareError, fmt.Errorf("acquiring initial GNSS anchor: %w", err)}
	}

	polygon := toLocalPolygon(anchorPoint, robotCfg.Navigation.BoundaryCoordinates)
	grid, coveragePath, err := planBoundary(polygon, robotCfg)
	if err != nil {
		return &exitErr{exitPlanningError, fmt.Errorf("planning coverage over the configured boundary: %w", err)}
	}

	db, err := openStore(robotCfg)
	if err != nil {
		monitoring.Logf("mowerd: persistence disabled: %v", err)
	}
	if db != nil {
		defer db.Close()
		if err := db.SaveGridSnapshot(grid); err != nil {
			monitoring.Logf("mowerd: saving initial grid snapshot: %v", err)
		}
		if saved, ok, err := db.LoadCoverageProgress(); err == nil && ok {
			coveragePath.Restore(saved.Cursor)
		}
	}

	planner := localplan.New(localplanConfig(robotCfg))
	visionEngine := vision.NewEngine(stubDecoder{}, vision.Intrinsics{}, vision.Extrinsics{}, vision.DefaultConfig())
	supervisor := safety.New(safetyConfig(robotCfg))
	heartbeat := &safety.HeartbeatTracker{}
	dockMachine := dock.New(dockConfig(robotCfg))

	orch := mission.New(mission.DefaultDeadlines(), nil, dockMachine, timeutil.RealClock{})
	eventTopic := bus.NewTopic[boundary.Event](16)

	coverageSource := func() (*gridplan.Path, error) {
		return coveragePath, nil
	}

	svc := boundary.NewService(orch, coverageSource, eventTopic)
	orch.SetPublisher(boundary.MissionPublisher{Service: svc})

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: httpapi.LoggingMiddleware(httpapi.NewServer(svc).ServeMux()),
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var poseSnap bus.Snapshot[localize.Pose]
	var lastCommand bus.Snapshot[ports.WheelCommand]
	var commandedMotion bus.Snapshot[bool]

	wg.Add(1)
	go func() {
		defer wg.Done()
		runLocalization(ctx, hw, ekf, heartbeat, &poseSnap, &commandedMotion)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runControlLoop(ctx, robotCfg, hw, planner, visionEngine, supervisor, heartbeat, orch, anchorPoint, coveragePath, &poseSnap, &lastCommand, &commandedMotion, db)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				monitoring.Logf("mowerd: operator HTTP server error: %v", err)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("mowerd: operator HTTP shutdown error: %v", err)
		}
	}()

	wg.Wait()
	eventTopic.Close()
	log.Print("mowerd: shutdown complete")
	return nil
}

// hardware bundles every port capability one deployment's backend
// resolves to.
type hardware struct {
	drive    ports.DifferentialDrive
	encoders ports.Encoders
	imu      ports.Imu
	gnss     ports.Gnss
	camera   ports.CameraSource
	battery  ports.PowerSensor
	dockBus  ports.PowerSensor
	digital  ports.DigitalInputs
	outputs  ports.Outputs

	closers []func() error
}

func (h *hardware) Close() {
	for _, c := range h.closers {
		if err := c(); err != nil {
			monitoring.Logf("mowerd: closing hardware resource: %v", err)
		}
	}
}

func buildHardware(backend ports.Backend, cfg *config.Robot) (*hardware, error) {
	now := time.Now
	h := &hardware{}

	if backend == ports.BackendSimulation {
		drive := ports.NewSimDrive(now)
		h.drive = drive
		h.encoders = ports.NewSimEncoders(drive, now, cfg.Navigation.GetWheelDiameter(), cfg.Navigation.GetWheelBase(), int(*pulsesPerRev))
		h.imu = ports.NewSimImu(drive, now)
		h.gnss = ports.NewSimGnss(now, cfg.Charging.GPSDock.Latitude, cfg.Charging.GPSDock.Longitude)
		h.camera = ports.NewSimCamera(now, 320, 240)
		h.battery = ports.NewSimPowerSensor(now, 12.6)
		h.dockBus = ports.NewSimPowerSensor(now, 0)
		h.digital = ports.NewSimDigitalInputs(now)
		h.outputs = ports.NewSimOutputs(now)
		return h, nil
	}

	driveLink, err := ports.OpenSerialLink(*drivePort, *baudRate)
	if err != nil {
		return nil, fmt.Errorf("opening drive/encoder serial port: %w", err)
	}
	h.closers = append(h.closers, driveLink.Close)
	h.drive = ports.NewHardwareDrive(driveLink)
	h.encoders = ports.NewHardwareEncoders(driveLink)

	gnssLink, err := ports.OpenSerialLink(*gnssPort, *baudRate)
	if err != nil {
		return nil, fmt.Errorf("opening GNSS serial port: %w", err)
	}
	h.closers = append(h.closers, gnssLink.Close)
	h.gnss = ports.NewHardwareGnss(gnssLink)

	// IMU, camera, discrete I/O, and power-bus drivers are GPIO/I2C/cgo
	// bindings this repository does not implement (internal/ports
	// documents them as external collaborators); the simulation
	// generators stand in so the rest of the control loop still runs end
	// to end on hardware that only speaks the drive/encoder/GNSS line
	// protocol. A deployment with real sensors there swaps these fields
	// for its own ports.Imu/CameraSource/PowerSensor/DigitalInputs/Outputs.
	simDrive := ports.NewSimDrive(now)
	h.imu = ports.NewSimImu(simDrive, now)
	h.camera = ports.NewSimCamera(now, 320, 240)
	h.battery = ports.NewSimPowerSensor(now, 12.6)
	h.dockBus = ports.NewSimPowerSensor(now, 0)
	h.digital = ports.NewSimDigitalInputs(now)
	h.outputs = ports.NewSimOutputs(now)
	return h, nil
}

func localizeConfig(cfg *config.Robot) localize.Config {
	c := localize.DefaultConfig()
	c.WheelDiameterM = cfg.Navigation.GetWheelDiameter()
	c.WheelBaseM = cfg.Navigation.GetWheelBase()
	c.PulsesPerRev = *pulsesPerRev
	c.ProcessNoisePos = cfg.Navigation.GetProcessNoise()
	c.MeasurementNoise = cfg.Navigation.GetMeasurementNoise()
	return c
}

func localplanConfig(cfg *config.Robot) localplan.Config {
	c := localplan.DefaultConfig()
	doa := cfg.DynamicObstacleAvoidance
	c.VelocityResolution = doa.DWA.GetVelocityResolution()
	c.AngularResolution = doa.DWA.GetAngularResolution()
	c.TimeHorizon = time.Duration(doa.DWA.GetTimeHorizon() * float64(time.Second))
	c.DT = time.Duration(doa.DWA.GetDT() * float64(time.Second))
	c.Weights = localplan.Weights{
		Heading:    doa.DWA.Weights.Heading,
		Obstacle:   doa.DWA.Weights.Obstacle,
		Velocity:   doa.DWA.Weights.Velocity,
		Smoothness: doa.DWA.Weights.Smoothness,
	}
	c.Physics = localplan.Physics{
		RadiusM:         doa.RobotPhysics.Radius,
		MaxLinearSpeed:  doa.RobotPhysics.MaxLinearSpeed,
		MaxAngularSpeed: doa.RobotPhysics.MaxAngularSpeed,
		MaxLinearAccel:  doa.RobotPhysics.MaxLinearAccel,
		MaxAngularAccel: doa.RobotPhysics.MaxAngularAccel,
	}
	c.Modes = map[localplan.Mode]localplan.ModeProfile{
		localplan.Normal:       {SpeedFactor: doa.NavigationModes.Normal.SpeedFactor, SafetyFactor: doa.NavigationModes.Normal.SafetyFactor},
		localplan.Conservative: {SpeedFactor: doa.NavigationModes.Conservative.SpeedFactor, SafetyFactor: doa.NavigationModes.Conservative.SafetyFactor},
		localplan.Aggressive:   {SpeedFactor: doa.NavigationModes.Aggressive.SpeedFactor, SafetyFactor: doa.NavigationModes.Aggressive.SafetyFactor},
		localplan.Emergency:    {SpeedFactor: doa.NavigationModes.Emergency.SpeedFactor, SafetyFactor: doa.NavigationModes.Emergency.SafetyFactor},
	}
	c.BrakingDistance = doa.DWA.GetEmergencyBrakeDistance()
	c.WaypointTolerance = doa.Performance.WaypointTolerance
	if doa.Performance.StuckDetectionLimit > 0 {
		c.StuckLimit = doa.Performance.StuckDetectionLimit
	}
	return c
}

func safetyConfig(cfg *config.Robot) safety.Config {
	c := safety.DefaultConfig()
	c.TiltLimitRad = cfg.Safety.GetMaxTiltAngle()
	c.WatchdogTimeout = time.Duration(cfg.Safety.GetWatchdogTimeout() * float64(time.Second))
	c.WarningThreshold = cfg.Safety.GetTiltWarningThreshold()
	c.TiltDebounce = time.Duration(cfg.Safety.GetTiltDebounce() * float64(time.Second))
	c.BumperHoldTime = time.Duration(cfg.Safety.GetBumperHoldTime() * float64(time.Second))
	c.CollisionAngularLimitRadps = cfg.Safety.GetCollisionAngularLimit()
	return c
}

func dockConfig(cfg *config.Robot) dock.Config {
	c := dock.DefaultConfig()
	gps := cfg.Charging.GPSDock
	tag := cfg.Charging.AprilTag
	pw := cfg.Charging.PowerSensor

	c.DockLocationLat = gps.Latitude
	c.DockLocationLon = gps.Longitude
	c.AccuracyRadiusM = gps.AccuracyRadius
	c.PreciseApproachDistanceM = gps.PreciseApproachDistance
	c.MediumDistanceThresholdM = gps.MediumDistanceThreshold
	c.AprilTagDetectionRangeM = gps.AprilTagDetectionRange
	c.ApproachSpeeds.Normal = gps.ApproachSpeeds.Normal
	c.ApproachSpeeds.Slow = gps.ApproachSpeeds.Slow
	c.ApproachSpeeds.VerySlow = gps.ApproachSpeeds.VerySlow
	c.ApproachSpeeds.UltraSlow = gps.ApproachSpeeds.UltraSlow
	c.ApproachSpeeds.Precise = gps.ApproachSpeeds.Precise

	c.DockMarkerID = tag.SarjIstasyonuTagID
	c.MinConfidence = tag.Detection.MinConfidence
	c.TargetRangeM = tag.Tolerances.HedefMesafe
	c.ContactRangeM = tag.Tolerances.HassasMesafe
	c.AngleToleranceRad = tag.Tolerances.AciToleransi * math.Pi / 180
	c.PositionToleranceM = tag.Tolerances.PozisyonToleransi

	c.ChargeCurrentThresholdA = pw.SarjAkimiEsigi
	c.ContactVoltageThresholdV = pw.BaglantiVoltajEsigi
	return c
}

func openStore(cfg *config.Robot) (*store.DB, error) {
	if *stateDir == "" {
		return nil, fmt.Errorf("no -state-dir configured")
	}
	db, err := store.Open(fsutil.OSFileSystem{}, *stateDir, "mowerd.db")
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp("internal/store/migrations"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitForAnchor blocks until the GNSS port reports a usable fix, seeding
// both the EKF's local-frame anchor and the return value used to convert
// the boundary polygon from geodetic to local coordinates.
func waitForAnchor(hw *hardware, ekf *localize.EKF) (localize.GeodeticPoint, error) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		fix, err := hw.gnss.Read()
		if err == nil && fix.FixQuality >= 2 {
			pt := localize.GeodeticPoint{Latitude: fix.Latitude, Longitude: fix.Longitude}
			if err := ekf.UpdateGNSS(pt, fix.HDOP, time.Now()); err == nil {
				return pt, nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return localize.GeodeticPoint{}, fmt.Errorf("no usable GNSS fix within 30s")
}

func toLocalPolygon(anchor localize.GeodeticPoint, coords []config.LatLon) []gridplan.Point {
	frame := localize.NewAnchorFrame(anchor)
	pts := make([]gridplan.Point, len(coords))
	for i, c := range coords {
		x, y := frame.ToLocal(localize.GeodeticPoint{Latitude: c.Latitude, Longitude: c.Longitude})
		pts[i] = gridplan.Point{X: x, Y: y}
	}
	return pts
}

func planBoundary(polygon []gridplan.Point, cfg *config.Robot) (*gridplan.OccupancyGrid, *gridplan.Path, error) {
	grid, err := gridplan.BuildGrid(polygon, gridplan.BuildGridConfig{
		Resolution:      cfg.Navigation.GetGridResolution(),
		MarginMeters:    1.0,
		PaddingMeters:   cfg.Navigation.GetObstaclePadding(),
		InflationMetric: gridplan.Chebyshev,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building occupancy grid: %w", err)
	}

	mowing := cfg.Navigation.Missions.Mowing
	brushWidth := valueOr(mowing.BrushWidth, 0.3)
	overlap := valueOr(mowing.Overlap, 0.05)

	path, err := gridplan.GenerateCoverage(polygon, grid, gridplan.CoverageConfig{
		BrushWidthM:     brushWidth,
		OverlapM:        overlap,
		MaxWaypointStep: 1.0,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generating coverage path: %w", err)
	}
	return grid, path, nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// runLocalization integrates encoder and IMU samples every tick and folds
// in GNSS fixes as they arrive, publishing the fused pose for the control
// loop to read.
func runLocalization(ctx context.Context, hw *hardware, ekf *localize.EKF, heartbeat *safety.HeartbeatTracker, poseSnap *bus.Snapshot[localize.Pose], commandedMotion *bus.Snapshot[bool]) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now

			if moving, ok := commandedMotion.Load(); ok {
				ekf.SetCommandedMotion(moving)
			}

			enc, err := hw.encoders.Read()
			if err != nil {
				monitoring.Logf("mowerd: reading encoders: %v", err)
				continue
			}
			imuSample, imuErr := hw.imu.Read()
			omega, imuOK := 0.0, false
			if imuErr == nil {
				omega, imuOK = imuSample.AngularRate[2], true
			}
			ekf.PredictEncoder(enc.LeftDelta, enc.RightDelta, omega, imuOK, dt)

			if fix, err := hw.gnss.Read(); err == nil && fix.FixQuality >= 2 && fix.HDOP <= 5.0 {
				pt := localize.GeodeticPoint{Latitude: fix.Latitude, Longitude: fix.Longitude}
				if err := ekf.UpdateGNSS(pt, fix.HDOP, now); err != nil && err != localize.ErrGNSSOutlier {
					monitoring.Logf("mowerd: GNSS update: %v", err)
				}
			}

			poseSnap.Store(ekf.Pose())
			heartbeat.Beat(now)
		}
	}
}

// runControlLoop is the per-tick planning/safety/actuation cycle: read
// the fused pose, choose a target from the active mission phase, plan a
// motion command, gate it through the safety supervisor, and drive.
func runControlLoop(
	ctx context.Context,
	cfg *config.Robot,
	hw *hardware,
	planner *localplan.Planner,
	visionEngine *vision.Engine,
	supervisor *safety.Supervisor,
	heartbeat *safety.HeartbeatTracker,
	orch *mission.Orchestrator,
	anchor localize.GeodeticPoint,
	coveragePath *gridplan.Path,
	poseSnap *bus.Snapshot[localize.Pose],
	lastCommand *bus.Snapshot[ports.WheelCommand],
	commandedMotion *bus.Snapshot[bool],
	db *store.DB,
) {
	dt := 100 * time.Millisecond
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	frame := localize.NewAnchorFrame(anchor)
	dockLocalX, dockLocalY := frame.ToLocal(localize.GeodeticPoint{
		Latitude:  cfg.Charging.GPSDock.Latitude,
		Longitude: cfg.Charging.GPSDock.Longitude,
	})
	dockMarkerID := cfg.Charging.AprilTag.SarjIstasyonuTagID

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pose, havePose := poseSnap.Load()
			if !havePose {
				continue
			}

			if frameData, err := hw.camera.Read(); err == nil {
				if _, err := visionEngine.ProcessFrame(frameData.Gray, frameData.Width, frameData.Height, frameData.Timestamp); err != nil {
					monitoring.Logf("mowerd: vision frame: %v", err)
				}
			}

			estop, _ := hw.digital.EStop()
			battery, _ := hw.battery.Read()

			state := orch.State()
			var cmd ports.WheelCommand
			goalReached := false
			dockIn := dock.Input{Now: now}

			switch state.Phase {
			case mission.Mowing:
				wp, ok := coveragePath.Current()
				if ok {
					target := localplan.Target{X: wp.X, Y: wp.Y}
					result := planner.Plan(toLocalplanPose(pose), target, nil, localplan.Normal, float64(now.UnixNano())/1e9, dt.Seconds())
					cmd = ports.WheelCommand{Linear: result.Command.Linear, Angular: result.Command.Angular}
					if result.GoalReached {
						coveragePath.Advance()
						if db != nil {
							db.SaveCoverageProgress(store.CoverageProgress{Cursor: coveragePath.CursorIndex(), UpdatedAt: now})
						}
					}
				}
				goalReached = coveragePath.Done()

			case mission.PointGoto:
				target := localplan.Target{X: state.PointTarget.X, Y: state.PointTarget.Y}
				result := planner.Plan(toLocalplanPose(pose), target, nil, localplan.Normal, float64(now.UnixNano())/1e9, dt.Seconds())
				cmd = ports.WheelCommand{Linear: result.Command.Linear, Angular: result.Command.Angular}
				goalReached = result.GoalReached

			case mission.Returning:
				dockIn.RemainingDistanceM = math.Hypot(pose.X-dockLocalX, pose.Y-dockLocalY)
				if det, ok := visionEngine.Smoothed(dockMarkerID); ok {
					dockIn.Marker = dock.Detection{
						Present:      true,
						RangeM:       det.RangeM,
						BearingRad:   det.BearingRad,
						YawOffsetRad: det.YawOffsetRad,
						Confidence:   det.Confidence,
					}
				}
				dockBusReading, _ := hw.dockBus.Read()
				dockIn.Power = dock.PowerReading{Current: dockBusReading.Current, Voltage: dockBusReading.Voltage}

				goal := state.DockGoal
				targetX := pose.X + goal.RangeM*math.Cos(pose.Theta+goal.BearingRad)
				targetY := pose.Y + goal.RangeM*math.Sin(pose.Theta+goal.BearingRad)
				result := planner.Plan(toLocalplanPose(pose), localplan.Target{X: targetX, Y: targetY}, nil, localplan.Conservative, float64(now.UnixNano())/1e9, dt.Seconds())
				if goal.Rotate {
					cmd = ports.WheelCommand{Angular: goal.SpeedMps}
				} else {
					cmd = ports.WheelCommand{Linear: result.Command.Linear, Angular: result.Command.Angular}
				}

			case mission.Charging, mission.Idle, mission.Error:
				cmd = ports.WheelCommand{}
			}

			gated, directive := supervisor.Arbitrate(safety.Inputs{
				Now:                  now,
				EStopAsserted:        estop,
				WatchdogLastBeat:     heartbeat.Last(),
				BatteryVoltage:       battery.Voltage,
				BatteryStateOfCharge: 1.0,
			}, safety.Command{Linear: cmd.Linear, Angular: cmd.Angular})
			cmd = ports.WheelCommand{Linear: gated.Linear, Angular: gated.Angular}
			if state.Phase == mission.Returning {
				dockIn.SafetyAbort = directive.AbortsDock()
			}

			if err := hw.drive.SetVelocity(cmd); err != nil {
				monitoring.Logf("mowerd: setting velocity: %v", err)
			}
			lastCommand.Store(cmd)
			commandedMotion.Store(cmd.Linear != 0 || cmd.Angular != 0)

			orch.Tick(now, goalReached, directive.Latched(), dockIn)
		}
	}
}

func toLocalplanPose(p localize.Pose) localplan.Pose {
	return localplan.Pose{X: p.X, Y: p.Y, Theta: p.Theta, V: p.V, Omega: p.Omega}
}
