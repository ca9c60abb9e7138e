package localize

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mower-robot/control/internal/timeutil"
)

// ErrGNSSOutlier is returned (for diagnostics/logging only — never
// propagated as a hard failure) when a GNSS fix's innovation exceeds the
// configured gate and is rejected.
var ErrGNSSOutlier = fmt.Errorf("localize: GNSS fix rejected as outlier")

// Config carries the tunables for the EKF, mirroring
// navigation.wheel_diameter/wheel_base/kalman.* from the robot
// configuration.
type Config struct {
	WheelDiameterM float64
	WheelBaseM     float64
	// PulsesPerRev is hardware-specific and must come from configuration
	// rather than being hardcoded (two different values, 360 and 1000,
	// are known to exist across deployed hardware).
	PulsesPerRev float64

	ProcessNoisePos float64
	ProcessNoiseVel float64
	MeasurementNoise float64

	// YawBlendWeight is the complementary-filter weight given to IMU ωz
	// versus wheel-derived yaw rate, in [0, 1]; 1 means IMU-only.
	YawBlendWeight float64

	// GNSSOutlierK gates GNSS updates: an innovation whose Mahalanobis
	// distance exceeds K is rejected. Typical value 5.
	GNSSOutlierK float64

	// HDOPMax is the HDOP bound for accepting GNSS fixes. The EKF itself
	// does not read it; UpdateGNSS leaves the HDOP gate to its caller.
	HDOPMax float64

	// DegradedQuality is the odometry_quality threshold below which,
	// sustained for DegradedFor, a degraded signal is raised.
	DegradedQuality float64
	DegradedFor     time.Duration

	// QualityDecayPerSecond is the exponential decay rate applied to
	// odometry_quality while GNSS is unavailable.
	QualityDecayPerSecond float64
}

// DefaultConfig returns reasonable defaults; PulsesPerRev and the
// kinematic dimensions must still be supplied from the robot's own
// configuration since they are hardware-specific.
func DefaultConfig() Config {
	return Config{
		ProcessNoisePos:       0.01,
		ProcessNoiseVel:       0.05,
		MeasurementNoise:      1.0,
		YawBlendWeight:        0.8,
		GNSSOutlierK:          5,
		HDOPMax:                5.0,
		DegradedQuality:       0.3,
		DegradedFor:           10 * time.Second,
		QualityDecayPerSecond: 0.02,
	}
}

// EKF is the 5-state (X, Y, θ, v, ω) extended Kalman filter described by
// the sensor-fusion localizer. It is owned by exactly one task; callers
// elsewhere read a published Pose snapshot rather than touching the
// filter directly.
type EKF struct {
	cfg   Config
	clock timeutil.Clock

	x mat.VecDense // state: X, Y, θ, v, ω
	p mat.Dense     // 5x5 covariance

	anchor      AnchorFrame
	anchored    bool
	initialized bool

	quality            float64
	lastGoodGNSS       time.Time
	degradedSince      time.Time
	inDegraded         bool

	imuAvailable bool

	lastEncoderSample time.Time
	ticksSinceStall   time.Time
	commandedMotion   bool
	stuck             bool
}

// New creates an EKF with large initial covariance centered at the
// origin, per the spec's initialization rule: the first accepted GNSS fix
// both anchors the local frame and collapses the position covariance.
// A nil clock uses timeutil.RealClock; tests inject a timeutil.MockClock
// to control the degraded-quality and stall timers deterministically.
func New(cfg Config, clock timeutil.Clock) *EKF {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	f := &EKF{cfg: cfg, clock: clock, quality: 1.0, imuAvailable: true}
	f.x = *mat.NewVecDense(5, nil)
	f.p = *mat.NewDense(5, 5, nil)
	for i := 0; i < 5; i++ {
		f.p.Set(i, i, 1e6)
	}
	return f
}

// PredictEncoder advances the filter using a differential-drive kinematic
// model driven by wheel encoder deltas (ticks since the last call) over
// dt seconds, blended with the IMU yaw rate when available.
func (f *EKF) PredictEncoder(leftTicks, rightTicks int64, imuOmegaZ float64, imuOK bool, dt float64) {
	if dt <= 0 {
		return
	}
	metersPerTick := math.Pi * f.cfg.WheelDiameterM / f.cfg.PulsesPerRev
	dLeft := float64(leftTicks) * metersPerTick
	dRight := float64(rightTicks) * metersPerTick

	dCenter := (dLeft + dRight) / 2
	omegaWheel := (dRight - dLeft) / f.cfg.WheelBaseM / dt

	var omega float64
	if imuOK {
		f.imuAvailable = true
		omega = f.cfg.YawBlendWeight*imuOmegaZ + (1-f.cfg.YawBlendWeight)*omegaWheel
	} else {
		f.imuAvailable = false
		omega = omegaWheel
	}

	theta := f.x.AtVec(2)
	thetaMid := theta + omega*dt/2
	x := f.x.AtVec(0) + dCenter*math.Cos(thetaMid)
	y := f.x.AtVec(1) + dCenter*math.Sin(thetaMid)
	thetaNew := wrapAngle(theta + omega*dt)
	v := dCenter / dt

	f.x.SetVec(0, x)
	f.x.SetVec(1, y)
	f.x.SetVec(2, thetaNew)
	f.x.SetVec(3, v)
	f.x.SetVec(4, omega)

	// Jacobian of the motion model w.r.t. state, evaluated at the prior.
	var jac mat.Dense
	jac.CloneFrom(eye(5))
	jac.Set(0, 2, -dCenter*math.Sin(thetaMid))
	jac.Set(1, 2, dCenter*math.Cos(thetaMid))

	var tmp, pNew mat.Dense
	tmp.Mul(&jac, &f.p)
	pNew.Mul(&tmp, jac.T())

	q := mat.NewDense(5, 5, nil)
	q.Set(0, 0, f.cfg.ProcessNoisePos*dt)
	q.Set(1, 1, f.cfg.ProcessNoisePos*dt)
	q.Set(2, 2, f.cfg.ProcessNoisePos*dt)
	q.Set(3, 3, f.cfg.ProcessNoiseVel*dt)
	q.Set(4, 4, f.cfg.ProcessNoiseVel*dt)
	if !imuOK {
		// widen the yaw/omega covariance when falling back to wheel-only yaw
		q.Set(2, 2, q.At(2, 2)*4)
		q.Set(4, 4, q.At(4, 4)*4)
	}
	pNew.Add(&pNew, q)
	f.p = pNew

	f.lastEncoderSample = f.clock.Now()
	f.decayQuality(dt)
	f.checkStall(leftTicks, rightTicks)
	f.initialized = true
}

// UpdateGNSS applies a measurement update from an accepted fix. Fixes
// with fix quality below 2D-fix or HDOP above the configured bound must
// be filtered out by the caller before this is invoked (consuming code,
// not this method, owns that acceptance gate since it requires reading
// the raw port value).
func (f *EKF) UpdateGNSS(fix GeodeticPoint, hdop float64, now time.Time) error {
	if !f.anchored {
		f.anchor = NewAnchorFrame(fix)
		f.anchored = true
		zx, zy := f.anchor.ToLocal(fix)
		f.x.SetVec(0, zx)
		f.x.SetVec(1, zy)
		// collapse position covariance on first fix
		f.p.Set(0, 0, 0.1)
		f.p.Set(1, 1, 0.1)
		f.lastGoodGNSS = now
		f.quality = 1.0
		f.inDegraded = false
		return nil
	}

	zx, zy := f.anchor.ToLocal(fix)
	z := mat.NewVecDense(2, []float64{zx, zy})

	h := mat.NewDense(2, 5, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)

	var hx mat.VecDense
	hx.MulVec(h, &f.x)

	var innov mat.VecDense
	innov.SubVec(z, &hx)

	r := mat.NewDense(2, 2, nil)
	rVal := f.cfg.MeasurementNoise * hdop * hdop
	r.Set(0, 0, rVal)
	r.Set(1, 1, rVal)

	var hp, s mat.Dense
	hp.Mul(h, &f.p)
	s.Mul(&hp, h.T())
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("localize: innovation covariance not invertible: %w", err)
	}

	var tmp mat.VecDense
	tmp.MulVec(&sInv, &innov)
	mahalanobisSq := mat.Dot(&innov, &tmp)
	if mahalanobisSq > f.cfg.GNSSOutlierK*f.cfg.GNSSOutlierK {
		return ErrGNSSOutlier
	}

	var pht, k mat.Dense
	pht.Mul(&f.p, h.T())
	k.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&k, &innov)
	f.x.AddVec(&f.x, &dx)
	f.x.SetVec(2, wrapAngle(f.x.AtVec(2)))

	var kh, ikh, pNew mat.Dense
	kh.Mul(&k, h)
	ikh.Sub(eye(5), &kh)
	pNew.Mul(&ikh, &f.p)
	f.p = pNew

	f.lastGoodGNSS = now
	f.quality = 1.0
	f.inDegraded = false
	return nil
}

// decayQuality exponentially decays odometry_quality while GNSS is
// unavailable and tracks whether the degraded threshold has been
// sustained for DegradedFor.
func (f *EKF) decayQuality(dt float64) {
	if !f.lastGoodGNSS.IsZero() {
		f.quality *= math.Exp(-f.cfg.QualityDecayPerSecond * dt)
	}
	if f.quality < f.cfg.DegradedQuality {
		if f.degradedSince.IsZero() {
			f.degradedSince = f.clock.Now()
		}
		if f.clock.Since(f.degradedSince) > f.cfg.DegradedFor {
			f.inDegraded = true
		}
	} else {
		f.degradedSince = time.Time{}
	}
}

// checkStall raises Stuck() when no encoder ticks arrive under commanded
// motion.
func (f *EKF) checkStall(leftTicks, rightTicks int64) {
	if leftTicks != 0 || rightTicks != 0 {
		f.ticksSinceStall = f.clock.Now()
		f.stuck = false
		return
	}
	if f.ticksSinceStall.IsZero() {
		f.ticksSinceStall = f.clock.Now()
	}
	if f.commandedMotion && f.clock.Since(f.ticksSinceStall) > time.Second {
		f.stuck = true
	}
}

// SetCommandedMotion informs the filter whether a non-zero motion command
// is currently being issued, used by the encoder-stall check.
func (f *EKF) SetCommandedMotion(moving bool) {
	f.commandedMotion = moving
}

// Stuck reports whether the encoder-stall signal is currently active.
func (f *EKF) Stuck() bool { return f.stuck }

// Degraded reports whether odometry_quality has been below threshold for
// longer than DegradedFor.
func (f *EKF) Degraded() bool { return f.inDegraded }

// ImuAvailable reports whether the most recent prediction used the IMU.
func (f *EKF) ImuAvailable() bool { return f.imuAvailable }

// Quality returns the current odometry_quality scalar in [0, 1].
func (f *EKF) Quality() float64 { return f.quality }

// Pose returns the current pose estimate as a snapshot value.
func (f *EKF) Pose() Pose {
	p := Pose{
		Timestamp: f.clock.Now(),
		X:         f.x.AtVec(0),
		Y:         f.x.AtVec(1),
		Theta:     f.x.AtVec(2),
		V:         f.x.AtVec(3),
		Omega:     f.x.AtVec(4),
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.Cov[i][j] = f.p.At(i, j)
		}
	}
	return p
}

// Anchor returns the local frame's geodetic anchor and whether it has
// been established yet.
func (f *EKF) Anchor() (AnchorFrame, bool) { return f.anchor, f.anchored }

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
