package localplan

import (
	"math"
)

// Planner holds the DWA configuration and the small amount of state it
// carries between ticks: the last issued command (for the smoothness
// term and dynamic-window center) and the consecutive-stuck-tick count.
type Planner struct {
	cfg      Config
	lastCmd  MotionCommand
	stuckCnt int
}

// New creates a Planner.
func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

type candidate struct {
	v, omega float64
	score    float64
}

// Plan samples the admissible velocity window, scores each candidate
// trajectory, and returns the winner as a MotionCommand. now is not
// consulted, and the returned command's DeadlineMonotonic is left zero.
func (p *Planner) Plan(pose Pose, target Target, obstacles []Obstacle, mode Mode, now float64, dtSeconds float64) Result {
	profile := p.cfg.Modes[mode]
	physics := p.cfg.Physics

	vMax := physics.MaxLinearSpeed * profile.SpeedFactor
	omegaMax := physics.MaxAngularSpeed

	if mode == Emergency {
		return Result{Command: MotionCommand{Linear: 0, Angular: 0}}
	}

	// dynamic window: reachable (v, ω) from the current state within dt
	vLo := math.Max(0, pose.V-physics.MaxLinearAccel*dtSeconds)
	vHi := math.Min(vMax, pose.V+physics.MaxLinearAccel*dtSeconds)
	wLo := math.Max(-omegaMax, pose.Omega-physics.MaxAngularAccel*dtSeconds)
	wHi := math.Min(omegaMax, pose.Omega+physics.MaxAngularAccel*dtSeconds)

	var best candidate
	haveBest := false

	for v := vLo; v <= vHi+1e-9; v += p.cfg.VelocityResolution {
		for omega := wLo; omega <= wHi+1e-9; omega += p.cfg.AngularResolution {
			traj := simulate(pose, v, omega, p.cfg.TimeHorizon.Seconds(), p.cfg.DT.Seconds())
			clearance := minClearance(traj, obstacles)
			if clearance < p.cfg.BrakingDistance*profile.SafetyFactor {
				continue // outside the safety window
			}

			score := p.score(traj, target, v, clearance, profile)
			cand := candidate{v: v, omega: omega, score: score}
			if !haveBest || better(cand, best, p.lastCmd) {
				best = cand
				haveBest = true
			}
		}
	}

	if !haveBest {
		p.stuckCnt++
		return Result{
			Command: MotionCommand{Linear: 0, Angular: 0},
			Stuck:   p.stuckCnt >= p.cfg.StuckLimit,
		}
	}
	p.stuckCnt = 0

	cmd := MotionCommand{Linear: best.v, Angular: best.omega}
	p.lastCmd = cmd

	dist := math.Hypot(target.X-pose.X, target.Y-pose.Y)
	return Result{Command: cmd, GoalReached: dist <= p.cfg.WaypointTolerance}
}

// better reports whether a scores strictly higher than b, or ties and is
// closer to last (continuity tie-break).
func better(a, b candidate, last MotionCommand) bool {
	const eps = 1e-9
	if a.score > b.score+eps {
		return true
	}
	if a.score < b.score-eps {
		return false
	}
	da := math.Hypot(a.v-last.Linear, a.omega-last.Angular)
	db := math.Hypot(b.v-last.Linear, b.omega-last.Angular)
	return da < db
}

type trajPoint struct{ x, y, theta float64 }

func simulate(start Pose, v, omega, horizon, dt float64) []trajPoint {
	steps := int(horizon / dt)
	if steps < 1 {
		steps = 1
	}
	out := make([]trajPoint, 0, steps+1)
	x, y, theta := start.X, start.Y, start.Theta
	out = append(out, trajPoint{x, y, theta})
	for i := 0; i < steps; i++ {
		x += v * math.Cos(theta) * dt
		y += v * math.Sin(theta) * dt
		theta += omega * dt
		out = append(out, trajPoint{x, y, theta})
	}
	return out
}

func minClearance(traj []trajPoint, obstacles []Obstacle) float64 {
	if len(obstacles) == 0 {
		return math.Inf(1)
	}
	min := math.Inf(1)
	for _, tp := range traj {
		for _, o := range obstacles {
			d := math.Hypot(tp.x-o.X, tp.y-o.Y) - o.Radius
			if d < min {
				min = d
			}
		}
	}
	return min
}

// score combines the H/O/V/S terms per the configured weights.
func (p *Planner) score(traj []trajPoint, target Target, v, clearance float64, profile ModeProfile) float64 {
	end := traj[len(traj)-1]
	bearingToGoal := math.Atan2(target.Y-end.y, target.X-end.x)
	headingErr := math.Abs(wrapAngle(bearingToGoal - end.theta))
	h := 1.0 - headingErr/math.Pi

	o := math.Min(clearance, p.cfg.ObstacleClearanceCap) / p.cfg.ObstacleClearanceCap

	vNorm := v / math.Max(p.cfg.Physics.MaxLinearSpeed, 1e-9)

	s := -math.Hypot(v-p.lastCmd.Linear, 0) / math.Max(p.cfg.Physics.MaxLinearAccel, 1e-9)

	w := p.cfg.Weights
	return w.Heading*h + w.Obstacle*o*profile.SafetyFactor + w.Velocity*vNorm + w.Smoothness*s
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
