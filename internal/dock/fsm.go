package dock

import (
	"context"
	"math"
	"time"

	"github.com/looplab/fsm"
)

// event names fired against the underlying fsm.FSM.
const (
	evStart            = "start"
	evRangeClose       = "range_close"
	evMarkerAcquired   = "marker_acquired"
	evMarkerLost       = "marker_lost"
	evSearchTimeout    = "search_timeout"
	evPrecise          = "precise"
	evContactConfirmed = "contact_confirmed"
	evContactTimeout   = "contact_timeout"
	evRangeRegression  = "range_regression"
	evAbort            = "abort"
	evReset            = "reset"
)

// Machine drives the docking approach. It owns a looplab/fsm.FSM for the
// phase transitions and a small amount of per-phase bookkeeping (timers,
// sample counters, last-seen range) that the FSM callbacks alone can't
// express cleanly.
type Machine struct {
	cfg Config
	m   *fsm.FSM

	now              time.Time
	phaseEntered     time.Time
	lastRangeM       float64
	lastRangeValid   bool
	lastBearingRad   float64
	contactSamples   int
	retriesLeft      int
	lastErr          error
}

// New creates a Machine in BEGIN, ready for Tick to drive it to
// GNSS_TRAVERSE on the first call.
func New(cfg Config) *Machine {
	d := &Machine{cfg: cfg, retriesLeft: cfg.RetryBudget}

	d.m = fsm.NewFSM(
		Begin,
		fsm.Events{
			{Name: evStart, Src: []string{Begin}, Dst: GNSSTraverse},
			{Name: evRangeClose, Src: []string{GNSSTraverse}, Dst: Search},
			{Name: evMarkerAcquired, Src: []string{Search}, Dst: CoarseApproach},
			{Name: evMarkerLost, Src: []string{CoarseApproach, Precision}, Dst: Search},
			{Name: evSearchTimeout, Src: []string{Search}, Dst: Failed},
			{Name: evPrecise, Src: []string{CoarseApproach}, Dst: Precision},
			{Name: evContactConfirmed, Src: []string{Precision, Contact}, Dst: Contact},
			{Name: evContactTimeout, Src: []string{Contact}, Dst: Failed},
			{Name: evRangeRegression, Src: []string{CoarseApproach, Precision}, Dst: Search},
			{Name: evAbort, Src: []string{GNSSTraverse, Search, CoarseApproach, Precision, Contact}, Dst: Failed},
			{Name: evReset, Src: []string{GNSSTraverse, Search, CoarseApproach, Precision, Contact, Failed, Docked}, Dst: Begin},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.phaseEntered = d.now
				d.lastRangeValid = false
				d.contactSamples = 0
				_ = e
			},
		},
	)

	return d
}

func (d *Machine) fire(event string) {
	// Transition errors (e.g. a guard firing an event not valid from the
	// current state) are not actionable here; the Tick switch already
	// restricts which events are attempted per state.
	_ = d.m.Event(context.Background(), event)
}

// State returns the machine's current phase.
func (d *Machine) State() string { return d.m.Current() }

// Reset drives the machine back to BEGIN from any state, clearing
// per-phase bookkeeping; this is the supplemented "graceful reset"
// operation so a mission can retry a docking attempt without restarting
// the process.
func (d *Machine) Reset() {
	d.fire(evReset)
	d.retriesLeft = d.cfg.RetryBudget
	d.lastErr = nil
}

// Tick advances the machine by one control cycle given the latest sensor
// input, evaluating the active phase's exit conditions and firing the
// corresponding FSM event. It always returns a MicroGoal appropriate for
// the (possibly just-transitioned) new state.
func (d *Machine) Tick(in Input) Output {
	d.now = in.Now
	if d.phaseEntered.IsZero() {
		d.phaseEntered = in.Now
	}

	if in.SafetyAbort {
		d.fire(evAbort)
		return d.output()
	}

	switch d.m.Current() {
	case Begin:
		d.fire(evStart)

	case GNSSTraverse:
		if in.RemainingDistanceM <= d.cfg.MediumDistanceThresholdM || in.Marker.Present {
			d.fire(evRangeClose)
		}

	case Search:
		if in.Marker.Present && in.Marker.Confidence >= d.cfg.MinConfidence {
			d.fire(evMarkerAcquired)
			d.lastRangeM, d.lastRangeValid = in.Marker.RangeM, true
		} else if in.Now.Sub(d.phaseEntered) > d.cfg.SearchTimeout {
			if d.retriesLeft > 0 {
				d.retriesLeft--
				d.phaseEntered = in.Now
			} else {
				d.lastErr = ErrRetryBudgetExhausted
				d.fire(evSearchTimeout)
			}
		}

	case CoarseApproach:
		if !in.Marker.Present {
			if in.Now.Sub(d.phaseEntered) > d.cfg.LostTimeout {
				d.fire(evMarkerLost)
			}
			break
		}
		if d.lastRangeValid && in.Marker.RangeM > d.lastRangeM+d.cfg.RangeRegressionEpsilonM {
			d.lastErr = ErrRangeRegression
			d.fire(evRangeRegression)
			break
		}
		d.lastRangeM, d.lastRangeValid = in.Marker.RangeM, true
		d.lastBearingRad = in.Marker.BearingRad
		if in.Marker.RangeM <= d.cfg.PreciseThresholdM {
			d.fire(evPrecise)
		}

	case Precision:
		if !in.Marker.Present {
			if in.Now.Sub(d.phaseEntered) > d.cfg.LostTimeout {
				d.fire(evMarkerLost)
			}
			break
		}
		if d.lastRangeValid && in.Marker.RangeM > d.lastRangeM+d.cfg.RangeRegressionEpsilonM {
			d.lastErr = ErrRangeRegression
			d.fire(evRangeRegression)
			break
		}
		d.lastRangeM, d.lastRangeValid = in.Marker.RangeM, true
		d.lastBearingRad = in.Marker.BearingRad
		if in.Marker.RangeM <= d.cfg.ContactRangeM && math.Abs(in.Marker.YawOffsetRad) <= d.cfg.YawToleranceRad {
			d.fire(evContactConfirmed)
		}

	case Contact:
		if in.Power.Current >= d.cfg.ChargeCurrentThresholdA && in.Power.Voltage >= d.cfg.ContactVoltageThresholdV {
			d.contactSamples++
		} else {
			d.contactSamples = 0
		}
		if d.contactSamples >= d.cfg.ConfirmSamples {
			d.m.SetState(Docked)
		} else if in.Now.Sub(d.phaseEntered) > d.cfg.ContactTimeout {
			d.lastErr = ErrPhaseTimeout
			d.fire(evContactTimeout)
		}

	case Docked, Failed:
		// terminal; caller decides whether to Reset.
	}

	return d.output()
}

func (d *Machine) output() Output {
	state := d.m.Current()
	out := Output{
		State:    state,
		Terminal: state == Docked || state == Failed,
		Docked:   state == Docked,
		Err:      d.lastErr,
	}

	switch state {
	case Search:
		out.Goal = MicroGoal{Rotate: true, SpeedMps: d.cfg.RotationSpeedRadPerSec}
	case CoarseApproach:
		out.Goal = MicroGoal{RangeM: d.lastRangeM, SpeedMps: d.cfg.ApproachSpeeds.Normal}
	case Precision:
		speed := d.cfg.ApproachSpeeds.Precise
		if math.Abs(d.lastBearingRad) > d.cfg.AngleToleranceRad {
			// maintain |bearing| <= angle_tolerance before resuming range closure
			speed = 0
		}
		out.Goal = MicroGoal{RangeM: d.lastRangeM, BearingRad: d.lastBearingRad, SpeedMps: speed}
	case Contact:
		out.Goal = MicroGoal{RangeM: d.cfg.ContactRangeM, SpeedMps: d.cfg.ApproachSpeeds.UltraSlow}
	}

	return out
}
