package ports

import (
	"sync"
	"time"
)

// SimClock abstracts "now" so simulation ports are deterministic in
// tests; production wiring passes time.Now.
type SimClock func() time.Time

// SimDrive is the simulation DifferentialDrive: it has no physical
// effect, only records the last commanded velocity for SimEncoders to
// integrate.
type SimDrive struct {
	mu      sync.Mutex
	now     SimClock
	current WheelCommand
	lastSet time.Time
}

// NewSimDrive creates a SimDrive.
func NewSimDrive(now SimClock) *SimDrive { return &SimDrive{now: now} }

func (d *SimDrive) SetVelocity(cmd WheelCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = cmd
	d.lastSet = d.now()
	return nil
}

// Current returns the most recently commanded velocity.
func (d *SimDrive) Current() WheelCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *SimDrive) Health() Health { return Health{LastUpdate: d.lastSet, OK: true} }

// SimEncoders integrates SimDrive's commanded velocity into a synthetic
// tick count using an ideal (noiseless) differential-drive model — good
// enough for exercising the rest of the stack without real hardware.
type SimEncoders struct {
	mu              sync.Mutex
	drive           *SimDrive
	now             SimClock
	wheelDiameterM  float64
	wheelBaseM      float64
	pulsesPerRev    int
	leftTicks, rightTicks int64
	lastTick        time.Time
}

// NewSimEncoders creates a SimEncoders bound to drive's commanded
// velocity.
func NewSimEncoders(drive *SimDrive, now SimClock, wheelDiameterM, wheelBaseM float64, pulsesPerRev int) *SimEncoders {
	return &SimEncoders{drive: drive, now: now, wheelDiameterM: wheelDiameterM, wheelBaseM: wheelBaseM, pulsesPerRev: pulsesPerRev}
}

func (e *SimEncoders) Read() (EncoderSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var dt float64
	if !e.lastTick.IsZero() {
		dt = now.Sub(e.lastTick).Seconds()
	}
	e.lastTick = now

	cmd := e.drive.Current()
	wheelCircumference := e.wheelDiameterM * 3.14159265358979
	leftSpeed := cmd.Linear - cmd.Angular*e.wheelBaseM/2
	rightSpeed := cmd.Linear + cmd.Angular*e.wheelBaseM/2

	leftDelta := int64(leftSpeed * dt / wheelCircumference * float64(e.pulsesPerRev))
	rightDelta := int64(rightSpeed * dt / wheelCircumference * float64(e.pulsesPerRev))

	e.leftTicks += leftDelta
	e.rightTicks += rightDelta

	return EncoderSample{
		Timestamp:  now,
		LeftTicks:  e.leftTicks,
		RightTicks: e.rightTicks,
		LeftDelta:  leftDelta,
		RightDelta: rightDelta,
	}, nil
}

func (e *SimEncoders) Health() Health {
	return Health{LastUpdate: e.lastTick, OK: true}
}

// SimImu reports the angular rate implied by SimDrive's last commanded
// ω, with no noise.
type SimImu struct {
	drive *SimDrive
	now   SimClock
}

// NewSimImu creates a SimImu.
func NewSimImu(drive *SimDrive, now SimClock) *SimImu { return &SimImu{drive: drive, now: now} }

func (i *SimImu) Read() (ImuSample, error) {
	cmd := i.drive.Current()
	return ImuSample{Timestamp: i.now(), AngularRate: [3]float64{0, 0, cmd.Angular}}, nil
}

func (i *SimImu) Health() Health { return Health{LastUpdate: i.now(), OK: true} }

// SimGnss always reports a fixed, high-quality fix at a configured
// anchor point; deployments that want GNSS dropout or drift scenarios
// drive SimGnss.Fix directly in a test.
type SimGnss struct {
	mu  sync.Mutex
	now SimClock
	Fix GnssFix
}

// NewSimGnss creates a SimGnss anchored at (lat, lon).
func NewSimGnss(now SimClock, lat, lon float64) *SimGnss {
	return &SimGnss{now: now, Fix: GnssFix{Latitude: lat, Longitude: lon, FixQuality: 3, HDOP: 1.0}}
}

func (g *SimGnss) Read() (GnssFix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Fix.Timestamp = g.now()
	return g.Fix, nil
}

func (g *SimGnss) Health() Health { return Health{LastUpdate: g.now(), OK: g.Fix.FixQuality > 0} }

// SimDigitalInputs reports all-clear unless a test flips a flag.
type SimDigitalInputs struct {
	mu       sync.Mutex
	now      SimClock
	EStopOn  bool
	Bumpers  map[string]bool
}

// NewSimDigitalInputs creates a SimDigitalInputs with no inputs tripped.
func NewSimDigitalInputs(now SimClock) *SimDigitalInputs {
	return &SimDigitalInputs{now: now, Bumpers: make(map[string]bool)}
}

func (d *SimDigitalInputs) EStop() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.EStopOn, nil
}

func (d *SimDigitalInputs) Bumper(which string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Bumpers[which], nil
}

func (d *SimDigitalInputs) Health() Health { return Health{LastUpdate: d.now(), OK: true} }

// SimOutputs records the last-set state of each named output.
type SimOutputs struct {
	mu    sync.Mutex
	now   SimClock
	state map[string]bool
}

// NewSimOutputs creates a SimOutputs.
func NewSimOutputs(now SimClock) *SimOutputs { return &SimOutputs{now: now, state: make(map[string]bool)} }

func (o *SimOutputs) Set(name string, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state[name] = on
	return nil
}

// Get returns the last-set state of name.
func (o *SimOutputs) Get(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state[name]
}

func (o *SimOutputs) Health() Health { return Health{LastUpdate: o.now(), OK: true} }

// SimCamera reports blank frames at a fixed resolution; it exists so the
// simulation backend exercises the vision pipeline's frame cadence
// without a real camera driver, not to synthesize fiducial markers (a
// Decoder seeing nothing is the expected simulation behavior).
type SimCamera struct {
	now           SimClock
	width, height int
}

// NewSimCamera creates a SimCamera.
func NewSimCamera(now SimClock, width, height int) *SimCamera {
	return &SimCamera{now: now, width: width, height: height}
}

func (c *SimCamera) Read() (Frame, error) {
	return Frame{Timestamp: c.now(), Width: c.width, Height: c.height, Gray: make([]byte, c.width*c.height)}, nil
}

func (c *SimCamera) Health() Health { return Health{LastUpdate: c.now(), OK: true} }

// SimPowerSensor always reports a full, healthy battery unless a test
// sets Voltage/Current directly.
type SimPowerSensor struct {
	mu              sync.Mutex
	now             SimClock
	Voltage, Current float64
}

// NewSimPowerSensor creates a SimPowerSensor at a nominal voltage.
func NewSimPowerSensor(now SimClock, voltage float64) *SimPowerSensor {
	return &SimPowerSensor{now: now, Voltage: voltage}
}

func (p *SimPowerSensor) Read() (PowerReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PowerReading{Timestamp: p.now(), Voltage: p.Voltage, Current: p.Current}, nil
}

func (p *SimPowerSensor) Health() Health { return Health{LastUpdate: p.now(), OK: true} }
