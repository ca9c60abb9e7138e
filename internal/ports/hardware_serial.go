package ports

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialLink is a single line-oriented serial connection shared by the
// hardware-backed DifferentialDrive/Encoders/Gnss bindings below,
// grounded on the teacher's NewRealSerialMux's serial.Open(path, mode)
// call, collapsed here into one mutex-guarded connection instead of a
// pub/sub hub since each capability owns a dedicated line rather than
// fanning one line out to many subscribers.
type SerialLink struct {
	mu   sync.Mutex
	port serial.Port
	r    *bufio.Scanner
}

// OpenSerialLink opens path at baud, 8 data bits, no parity, one stop
// bit — the same defaults the teacher's PortOptions.Normalize() applies.
func OpenSerialLink(path string, baud int) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("ports: opening %s: %w", path, err)
	}
	return &SerialLink{port: port, r: bufio.NewScanner(port)}, nil
}

// WriteLine writes a single newline-terminated command.
func (l *SerialLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.port.Write([]byte(line + "\n"))
	return err
}

// ReadLine blocks for the next newline-terminated line.
func (l *SerialLink) ReadLine() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.r.Scan() {
		if err := l.r.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("ports: serial line closed")
	}
	return l.r.Text(), nil
}

// Close closes the underlying port.
func (l *SerialLink) Close() error { return l.port.Close() }

// HardwareDrive drives the wheel motors over a line protocol
// "V <linear> <angular>\n" and tracks the last-write time as its health
// signal (no acknowledgement is expected from the firmware).
type HardwareDrive struct {
	link       *SerialLink
	lastWrite  time.Time
	lastErr    error
}

// NewHardwareDrive wraps an open SerialLink as a DifferentialDrive.
func NewHardwareDrive(link *SerialLink) *HardwareDrive { return &HardwareDrive{link: link} }

func (d *HardwareDrive) SetVelocity(cmd WheelCommand) error {
	err := d.link.WriteLine(fmt.Sprintf("V %.4f %.4f", cmd.Linear, cmd.Angular))
	d.lastWrite, d.lastErr = time.Now(), err
	return err
}

func (d *HardwareDrive) Health() Health {
	return Health{LastUpdate: d.lastWrite, OK: d.lastErr == nil && !d.lastWrite.IsZero()}
}

// HardwareEncoders parses "E <leftTicks> <rightTicks>\n" lines.
type HardwareEncoders struct {
	link *SerialLink
	last EncoderSample
}

// NewHardwareEncoders wraps an open SerialLink as an Encoders source.
func NewHardwareEncoders(link *SerialLink) *HardwareEncoders { return &HardwareEncoders{link: link} }

// parseEncoderLine parses "E <leftTicks> <rightTicks>".
func parseEncoderLine(line string) (left, right int64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "E" {
		return 0, 0, fmt.Errorf("ports: malformed encoder line %q", line)
	}
	left, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ports: parsing left ticks: %w", err)
	}
	right, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ports: parsing right ticks: %w", err)
	}
	return left, right, nil
}

func (e *HardwareEncoders) Read() (EncoderSample, error) {
	line, err := e.link.ReadLine()
	if err != nil {
		return EncoderSample{}, err
	}
	left, right, err := parseEncoderLine(line)
	if err != nil {
		return EncoderSample{}, err
	}

	sample := EncoderSample{
		Timestamp:  time.Now(),
		LeftTicks:  left,
		RightTicks: right,
		LeftDelta:  left - e.last.LeftTicks,
		RightDelta: right - e.last.RightTicks,
	}
	e.last = sample
	return sample, nil
}

func (e *HardwareEncoders) Health() Health {
	return Health{LastUpdate: e.last.Timestamp, OK: !e.last.Timestamp.IsZero()}
}

// HardwareGnss parses "G <lat> <lon> <fixQuality> <hdop>\n" lines.
type HardwareGnss struct {
	link *SerialLink
	last GnssFix
}

// NewHardwareGnss wraps an open SerialLink as a Gnss source.
func NewHardwareGnss(link *SerialLink) *HardwareGnss { return &HardwareGnss{link: link} }

// parseGnssLine parses "G <lat> <lon> <fixQuality> <hdop>".
func parseGnssLine(line string) (lat, lon float64, quality int, hdop float64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 5 || fields[0] != "G" {
		return 0, 0, 0, 0, fmt.Errorf("ports: malformed gnss line %q", line)
	}
	lat, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ports: parsing latitude: %w", err)
	}
	lon, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ports: parsing longitude: %w", err)
	}
	quality, err = strconv.Atoi(fields[3])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ports: parsing fix quality: %w", err)
	}
	hdop, err = strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("ports: parsing hdop: %w", err)
	}
	return lat, lon, quality, hdop, nil
}

func (g *HardwareGnss) Read() (GnssFix, error) {
	line, err := g.link.ReadLine()
	if err != nil {
		return GnssFix{}, err
	}
	lat, lon, quality, hdop, err := parseGnssLine(line)
	if err != nil {
		return GnssFix{}, err
	}

	g.last = GnssFix{Timestamp: time.Now(), Latitude: lat, Longitude: lon, FixQuality: quality, HDOP: hdop}
	return g.last, nil
}

func (g *HardwareGnss) Health() Health {
	return Health{LastUpdate: g.last.Timestamp, OK: g.last.FixQuality > 0}
}
