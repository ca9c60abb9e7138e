package dock

import (
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MediumDistanceThresholdM = 5.0
	cfg.MinConfidence = 0.5
	cfg.PreciseThresholdM = 1.0
	cfg.ContactRangeM = 0.1
	cfg.ChargeCurrentThresholdA = 0.5
	cfg.ContactVoltageThresholdV = 12.0
	cfg.ConfirmSamples = 2
	cfg.YawToleranceRad = 0.1
	cfg.AngleToleranceRad = 0.1
	cfg.ApproachSpeeds.Precise = 0.05
	return cfg
}

func TestDockHappyPath(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)

	out := d.Tick(Input{Now: now, RemainingDistanceM: 20})
	if out.State != GNSSTraverse {
		t.Fatalf("expected GNSS_TRAVERSE after first tick, got %s", out.State)
	}

	out = d.Tick(Input{Now: now, RemainingDistanceM: 2})
	if out.State != Search {
		t.Fatalf("expected SEARCH once within medium threshold, got %s", out.State)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 3.0}})
	if out.State != CoarseApproach {
		t.Fatalf("expected COARSE_APPROACH after marker acquired, got %s", out.State)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.8}})
	if out.State != Precision {
		t.Fatalf("expected PRECISION once under precise threshold, got %s", out.State)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.05}})
	if out.State != Contact {
		t.Fatalf("expected CONTACT once within contact range, got %s", out.State)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.05}, Power: PowerReading{Current: 1.0, Voltage: 13.0}})
	if out.State != Contact || out.Docked {
		t.Fatalf("expected still CONTACT after one confirming sample, got %s docked=%v", out.State, out.Docked)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.05}, Power: PowerReading{Current: 1.0, Voltage: 13.0}})
	if !out.Docked {
		t.Fatalf("expected DOCKED after ConfirmSamples consecutive good readings, got %s", out.State)
	}
}

func TestDockPrecisionRequiresYawWithinToleranceForContact(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)

	d.Tick(Input{Now: now, RemainingDistanceM: 20})
	d.Tick(Input{Now: now, RemainingDistanceM: 2})
	d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 3.0}})
	out := d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.8}})
	if out.State != Precision {
		t.Fatalf("expected PRECISION once under precise threshold, got %s", out.State)
	}

	// within contact range but yaw offset exceeds tolerance: must not contact yet.
	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.05, YawOffsetRad: 0.3}})
	if out.State != Precision {
		t.Fatalf("expected to stay in PRECISION while yaw offset exceeds tolerance, got %s", out.State)
	}

	// yaw corrected, range still in contact range: now transitions.
	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.05, YawOffsetRad: 0.02}})
	if out.State != Contact {
		t.Fatalf("expected CONTACT once range and yaw are both within tolerance, got %s", out.State)
	}
}

func TestDockPrecisionHaltsAndResumesOnBearing(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)

	d.Tick(Input{Now: now, RemainingDistanceM: 20})
	d.Tick(Input{Now: now, RemainingDistanceM: 2})
	d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 3.0}})
	out := d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.8, BearingRad: 0.4}})
	if out.State != Precision {
		t.Fatalf("expected PRECISION once under precise threshold, got %s", out.State)
	}
	if out.Goal.SpeedMps != 0 {
		t.Fatalf("expected forward motion halted while |bearing| exceeds angle_tolerance, got speed=%v", out.Goal.SpeedMps)
	}
	if out.Goal.BearingRad != 0.4 {
		t.Errorf("expected MicroGoal to carry the current bearing, got %v", out.Goal.BearingRad)
	}

	out = d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 0.8, BearingRad: 0.05}})
	if out.State != Precision {
		t.Fatalf("expected to remain in PRECISION, got %s", out.State)
	}
	if out.Goal.SpeedMps != d.cfg.ApproachSpeeds.Precise {
		t.Errorf("expected forward motion to resume once bearing is corrected, got speed=%v", out.Goal.SpeedMps)
	}
}

func TestDockRangeRegressionDropsToSearch(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)

	d.Tick(Input{Now: now, RemainingDistanceM: 20})
	d.Tick(Input{Now: now, RemainingDistanceM: 2})
	d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 3.0}})

	out := d.Tick(Input{Now: now, Marker: Detection{Present: true, Confidence: 0.9, RangeM: 3.5}})
	if out.State != Search {
		t.Fatalf("expected range regression to drop back to SEARCH, got %s", out.State)
	}
	if out.Err != ErrRangeRegression {
		t.Errorf("expected ErrRangeRegression, got %v", out.Err)
	}
}

func TestDockSearchTimeoutExhaustsRetriesThenFails(t *testing.T) {
	cfg := testConfig()
	cfg.SearchTimeout = time.Second
	cfg.RetryBudget = 1
	d := New(cfg)

	start := time.Unix(0, 0)
	d.Tick(Input{Now: start, RemainingDistanceM: 20})
	d.Tick(Input{Now: start, RemainingDistanceM: 2})

	// first timeout consumes the retry and restarts the SEARCH timer
	out := d.Tick(Input{Now: start.Add(2 * time.Second)})
	if out.State != Search {
		t.Fatalf("expected SEARCH to retry once, got %s", out.State)
	}

	// second timeout, no retries left
	out = d.Tick(Input{Now: start.Add(5 * time.Second)})
	if out.State != Failed {
		t.Fatalf("expected FAILED once retry budget is exhausted, got %s", out.State)
	}
}

func TestDockSafetyAbortAlwaysWins(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)
	d.Tick(Input{Now: now, RemainingDistanceM: 20})

	out := d.Tick(Input{Now: now, RemainingDistanceM: 20, SafetyAbort: true})
	if out.State != Failed {
		t.Fatalf("expected SafetyAbort to force FAILED, got %s", out.State)
	}
}

func TestDockResetReturnsToBegin(t *testing.T) {
	d := New(testConfig())
	now := time.Unix(0, 0)
	d.Tick(Input{Now: now, RemainingDistanceM: 20, SafetyAbort: true})
	if d.State() != Failed {
		t.Fatalf("setup: expected FAILED, got %s", d.State())
	}

	d.Reset()
	if d.State() != Begin {
		t.Fatalf("expected Reset to return to BEGIN, got %s", d.State())
	}

	out := d.Tick(Input{Now: now, RemainingDistanceM: 20})
	if out.State != GNSSTraverse {
		t.Fatalf("expected a fresh attempt to proceed normally, got %s", out.State)
	}
}
