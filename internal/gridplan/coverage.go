package gridplan

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CoverageConfig parameterizes boustrophedon generation.
type CoverageConfig struct {
	BrushWidthM     float64
	OverlapM        float64
	MaxWaypointStep float64
}

// stripWidth is the effective spacing between adjacent scanlines.
func (c CoverageConfig) stripWidth() float64 {
	return c.BrushWidthM - c.OverlapM
}

// GenerateCoverage produces a boustrophedon Path over the interior of
// polygon, oriented along the polygon's major axis (computed by PCA on
// the boundary points). Scanlines are clipped against the polygon
// itself; grid's cells are not consulted.
func GenerateCoverage(polygon []Point, grid *OccupancyGrid, cfg CoverageConfig) (*Path, error) {
	if len(polygon) < 3 {
		return nil, ErrEmptyPolygon
	}
	strip := cfg.stripWidth()
	if strip <= 0 {
		strip = cfg.BrushWidthM
	}

	angle, centerX, centerY := majorAxis(polygon)
	cosA, sinA := math.Cos(-angle), math.Sin(-angle)
	rotate := func(x, y float64) (float64, float64) {
		dx, dy := x-centerX, y-centerY
		return dx*cosA - dy*sinA, dx*sinA + dy*cosA
	}
	unrotate := func(rx, ry float64) (float64, float64) {
		cosB, sinB := math.Cos(angle), math.Sin(angle)
		x := rx*cosB - ry*sinB
		y := rx*sinB + ry*cosB
		return x + centerX, y + centerY
	}

	minRY, maxRY := math.Inf(1), math.Inf(-1)
	for _, p := range polygon {
		_, ry := rotate(p.X, p.Y)
		minRY, maxRY = math.Min(minRY, ry), math.Max(maxRY, ry)
	}

	var waypoints []Waypoint
	strips := int(math.Ceil((maxRY - minRY) / strip))
	leftToRight := true
	for s := 0; s <= strips; s++ {
		ry := minRY + float64(s)*strip
		if ry > maxRY {
			ry = maxRY
		}
		segs := clipScanline(polygon, rotate, unrotate, ry)
		if len(segs) == 0 {
			continue
		}
		if !leftToRight {
			for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
				segs[i], segs[j] = segs[j], segs[i]
			}
			for i := range segs {
				segs[i].start, segs[i].end = segs[i].end, segs[i].start
			}
		}
		for _, seg := range segs {
			waypoints = append(waypoints, subdivide(seg.start, seg.end, cfg.MaxWaypointStep)...)
		}
		leftToRight = !leftToRight
	}

	return &Path{Waypoints: waypoints}, nil
}

// majorAxis returns the polygon's principal axis angle (radians) and its
// centroid, via PCA on the boundary vertices' covariance.
func majorAxis(polygon []Point) (angle, cx, cy float64) {
	n := len(polygon)
	data := mat.NewDense(n, 2, nil)
	for _, p := range polygon {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(n)
	cy /= float64(n)
	for i, p := range polygon {
		data.Set(i, 0, p.X-cx)
		data.Set(i, 1, p.Y-cy)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	ok := eig.Factorize(&cov, true)
	if !ok {
		return 0, cx, cy
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// pick the eigenvector with the largest eigenvalue (major axis)
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	vx := vectors.At(0, best)
	vy := vectors.At(1, best)
	return math.Atan2(vy, vx), cx, cy
}

// segment is one entry/exit pair of a scanline clipped against the
// polygon boundary, in world space.
type segment struct{ start, end Point }

// clipScanline intersects the horizontal line ry (in rotated space) with
// the polygon boundary and pairs the crossings via the even-odd rule, so
// a concave polygon yields one segment per interior run rather than a
// single span bridging the gaps between them. Mirrors pointInPolygon's
// crossing rule in grid.go.
func clipScanline(polygon []Point, rotate func(x, y float64) (float64, float64), unrotate func(rx, ry float64) (float64, float64), ry float64) []segment {
	type rp struct{ x, y float64 }
	rotated := make([]rp, len(polygon))
	for i, p := range polygon {
		x, y := rotate(p.X, p.Y)
		rotated[i] = rp{x, y}
	}

	var xs []float64
	n := len(rotated)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := rotated[j], rotated[i]
		if (a.y > ry) != (b.y > ry) {
			t := (ry - a.y) / (b.y - a.y)
			xs = append(xs, a.x+t*(b.x-a.x))
		}
	}
	if len(xs) < 2 {
		return nil
	}
	sort.Float64s(xs)

	segs := make([]segment, 0, len(xs)/2)
	for i := 0; i+1 < len(xs); i += 2 {
		wx1, wy1 := unrotate(xs[i], ry)
		wx2, wy2 := unrotate(xs[i+1], ry)
		segs = append(segs, segment{start: Point{wx1, wy1}, end: Point{wx2, wy2}})
	}
	return segs
}

// subdivide splits the segment a→b into waypoints no more than
// maxStep apart.
func subdivide(a, b Point, maxStep float64) []Waypoint {
	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	if maxStep <= 0 {
		maxStep = dist
		if maxStep == 0 {
			maxStep = 1
		}
	}
	steps := int(math.Ceil(dist / maxStep))
	if steps < 1 {
		steps = 1
	}
	out := make([]Waypoint, 0, steps+1)
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		out = append(out, Waypoint{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y), Tolerance: maxStep})
	}
	return out
}
