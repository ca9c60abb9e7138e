package vision

import (
	"testing"
	"time"
)

type stubDecoder struct {
	detections []RawDetection
	err        error
}

func (s *stubDecoder) Detect(undistorted []byte, width, height int) ([]RawDetection, error) {
	return s.detections, s.err
}

func TestProcessFrameGatesOnConfidence(t *testing.T) {
	dec := &stubDecoder{detections: []RawDetection{
		{MarkerID: 1, RangeM: 1.0, Confidence: 0.1, PerimeterFraction: 0.1},
	}}
	eng := NewEngine(dec, Intrinsics{}, Extrinsics{}, DefaultConfig())

	dets, err := eng.ProcessFrame(nil, 640, 480, time.Now())
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("low-confidence detection should be rejected, got %d detections", len(dets))
	}
}

func TestSmoothedReportsMedianWhenAgreeing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0
	eng := NewEngine(&stubDecoder{}, Intrinsics{}, Extrinsics{}, cfg)

	now := time.Now()
	for _, r := range []float64{1.0, 1.01, 0.99} {
		eng.push(FiducialDetection{MarkerID: 7, RangeM: r, FrameTimestamp: now})
	}

	det, ok := eng.Smoothed(7)
	if !ok {
		t.Fatal("expected a smoothed detection")
	}
	if det.Unsmoothed {
		t.Error("expected agreeing history to produce a smoothed (non-flagged) detection")
	}
	if det.RangeM < 0.98 || det.RangeM > 1.02 {
		t.Errorf("median range = %v, want ~1.0", det.RangeM)
	}
}

func TestSmoothedFlagsDisagreement(t *testing.T) {
	eng := NewEngine(&stubDecoder{}, Intrinsics{}, Extrinsics{}, DefaultConfig())
	now := time.Now()
	eng.push(FiducialDetection{MarkerID: 3, RangeM: 1.0, FrameTimestamp: now})
	eng.push(FiducialDetection{MarkerID: 3, RangeM: 5.0, FrameTimestamp: now})

	det, ok := eng.Smoothed(3)
	if !ok {
		t.Fatal("expected a detection")
	}
	if !det.Unsmoothed {
		t.Error("expected disagreeing history to flag Unsmoothed")
	}
}

func TestEvictDropsStaleMarkers(t *testing.T) {
	eng := NewEngine(&stubDecoder{}, Intrinsics{}, Extrinsics{}, DefaultConfig())
	old := time.Now().Add(-time.Hour)
	eng.push(FiducialDetection{MarkerID: 9, RangeM: 1.0, FrameTimestamp: old})
	eng.lastSeen[9] = old

	live := eng.evict(time.Now())
	for _, d := range live {
		if d.MarkerID == 9 {
			t.Error("stale marker should have been evicted")
		}
	}
}
