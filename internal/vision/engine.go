package vision

import (
	"sort"
	"time"
)

// Engine runs the per-frame detection pipeline and maintains the
// per-marker temporal-smoothing history.
type Engine struct {
	cfg        Config
	intrinsics Intrinsics
	extrinsics Extrinsics
	decoder    Decoder

	history map[int][]FiducialDetection
	lastSeen map[int]time.Time
}

// NewEngine creates a vision Engine.
func NewEngine(decoder Decoder, intrinsics Intrinsics, extrinsics Extrinsics, cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		intrinsics: intrinsics,
		extrinsics: extrinsics,
		decoder:    decoder,
		history:    make(map[int][]FiducialDetection),
		lastSeen:   make(map[int]time.Time),
	}
}

// ProcessFrame runs the detect → gate → robot-frame-transform →
// smooth pipeline for a single undistorted frame and returns the current
// set of live detections (stale ones evicted).
func (e *Engine) ProcessFrame(undistorted []byte, width, height int, frameTime time.Time) ([]FiducialDetection, error) {
	raws, err := e.decoder.Detect(undistorted, width, height)
	if err != nil {
		// decoder failure is logged by the caller and simply produces no
		// detections this frame, per the "logged, next frame" policy.
		return e.evict(frameTime), nil
	}

	for _, raw := range raws {
		if raw.Confidence < e.cfg.MinConfidence {
			continue
		}
		if raw.PerimeterFraction < e.cfg.MinPerimeterRate || raw.PerimeterFraction > e.cfg.MaxPerimeterRate {
			continue
		}

		det := e.toRobotFrame(raw, frameTime)
		e.push(det)
		e.lastSeen[det.MarkerID] = frameTime
	}

	return e.evict(frameTime), nil
}

// toRobotFrame adds the camera extrinsics' yaw offset to a raw
// detection's yaw offset; range and bearing pass through unchanged.
func (e *Engine) toRobotFrame(raw RawDetection, frameTime time.Time) FiducialDetection {
	return FiducialDetection{
		MarkerID:       raw.MarkerID,
		RangeM:         raw.RangeM,
		BearingRad:     raw.BearingRad,
		YawOffsetRad:   raw.YawOffsetRad + e.extrinsics.YawOffsetRad,
		Confidence:     raw.Confidence,
		FrameTimestamp: frameTime,
	}
}

func (e *Engine) push(det FiducialDetection) {
	h := e.history[det.MarkerID]
	h = append(h, det)
	if len(h) > e.cfg.TrackingHistory {
		h = h[len(h)-e.cfg.TrackingHistory:]
	}
	e.history[det.MarkerID] = h
}

// Smoothed returns the median-of-history detection for markerID if the
// history holds at least two detections and the spread of all their
// ranges is within tolerance; otherwise the most recent raw detection
// flagged Unsmoothed. ok is false if no detection
// has ever been seen for this marker.
func (e *Engine) Smoothed(markerID int) (FiducialDetection, bool) {
	h := e.history[markerID]
	if len(h) == 0 {
		return FiducialDetection{}, false
	}
	latest := h[len(h)-1]

	if len(h) < 2 || !agree(h, e.cfg.AgreementTolerance) {
		latest.Unsmoothed = true
		return latest, true
	}

	return FiducialDetection{
		MarkerID:       markerID,
		RangeM:         median(extract(h, func(d FiducialDetection) float64 { return d.RangeM })),
		BearingRad:     median(extract(h, func(d FiducialDetection) float64 { return d.BearingRad })),
		YawOffsetRad:   median(extract(h, func(d FiducialDetection) float64 { return d.YawOffsetRad })),
		Confidence:     latest.Confidence,
		FrameTimestamp: latest.FrameTimestamp,
	}, true
}

// evict drops markers whose most recent detection is older than
// ObstacleTimeout and returns the current smoothed set for all markers
// still live.
func (e *Engine) evict(now time.Time) []FiducialDetection {
	var out []FiducialDetection
	for id, last := range e.lastSeen {
		if now.Sub(last) > e.cfg.ObstacleTimeout {
			delete(e.lastSeen, id)
			delete(e.history, id)
			continue
		}
		if det, ok := e.Smoothed(id); ok {
			out = append(out, det)
		}
	}
	return out
}

func extract(h []FiducialDetection, f func(FiducialDetection) float64) []float64 {
	out := make([]float64, len(h))
	for i, d := range h {
		out[i] = f(d)
	}
	return out
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// agree reports whether the range values in h have a spread no larger
// than tolerance.
func agree(h []FiducialDetection, tolerance float64) bool {
	min, max := h[0].RangeM, h[0].RangeM
	for _, d := range h {
		if d.RangeM < min {
			min = d.RangeM
		}
		if d.RangeM > max {
			max = d.RangeM
		}
	}
	return max-min <= tolerance
}
