package gridplan

import "math"

// BuildGridConfig carries the construction-time tunables.
type BuildGridConfig struct {
	Resolution      float64 // meters per cell
	MarginMeters    float64 // AABB margin around the polygon
	PaddingMeters   float64 // obstacle inflation padding
	InflationMetric InflationMetric
}

// BuildGrid rasterizes a closed polygon (given in the local planar frame)
// into an occupancy grid: cells outside the polygon are marked Obstacle,
// cells inside are Free, then Obstacle cells are grown by PaddingMeters
// and the grown ring is marked Inflated (not Obstacle, so the A* cost
// model can apply a finite penalty rather than an infinite one).
func BuildGrid(polygon []Point, cfg BuildGridConfig) (*OccupancyGrid, error) {
	if len(polygon) < 3 {
		return nil, ErrEmptyPolygon
	}

	minX, minY := polygon[0].X, polygon[0].Y
	maxX, maxY := polygon[0].X, polygon[0].Y
	for _, p := range polygon {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	minX -= cfg.MarginMeters
	minY -= cfg.MarginMeters
	maxX += cfg.MarginMeters
	maxY += cfg.MarginMeters

	width := int(math.Ceil((maxX-minX)/cfg.Resolution)) + 1
	height := int(math.Ceil((maxY-minY)/cfg.Resolution)) + 1
	grid := NewOccupancyGrid(minX, minY, cfg.Resolution, width, height)

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := grid.CellToWorld(col, row)
			if pointInPolygon(x, y, polygon) {
				grid.Set(col, row, Free)
			} else {
				grid.Set(col, row, Obstacle)
			}
		}
	}

	inflate(grid, cfg.PaddingMeters, cfg.InflationMetric)
	return grid, nil
}

// pointInPolygon implements the even-odd (ray casting) fill rule.
func pointInPolygon(x, y float64, polygon []Point) bool {
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > y) != (pj.Y > y) {
			xIntersect := pj.X + (y-pj.Y)/(pi.Y-pj.Y)*(pi.X-pj.X)
			if x < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// inflate grows the set of Obstacle cells by paddingMeters
// measured under the given metric and marks the newly-covered Free cells
// Inflated.
func inflate(grid *OccupancyGrid, paddingMeters float64, metric InflationMetric) {
	radiusCells := int(math.Ceil(paddingMeters / grid.Resolution))
	if radiusCells <= 0 {
		return
	}

	// snapshot of original obstacle cells, since inflation must not
	// compound against cells it itself marks Inflated
	obstacles := make([][2]int, 0)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.At(col, row) == Obstacle {
				obstacles = append(obstacles, [2]int{col, row})
			}
		}
	}

	for _, oc := range obstacles {
		ocol, orow := oc[0], oc[1]
		for dRow := -radiusCells; dRow <= radiusCells; dRow++ {
			for dCol := -radiusCells; dCol <= radiusCells; dCol++ {
				var dist float64
				switch metric {
				case Euclidean:
					dist = math.Hypot(float64(dCol), float64(dRow))
				default:
					dist = math.Max(math.Abs(float64(dCol)), math.Abs(float64(dRow)))
				}
				if dist > float64(radiusCells) {
					continue
				}
				col, row := ocol+dCol, orow+dRow
				if !grid.InBounds(col, row) {
					continue
				}
				if grid.At(col, row) == Free {
					grid.Set(col, row, Inflated)
				}
			}
		}
	}
}

// InflationRadiusCells returns the minimum inflation radius, in cells,
// that satisfies the invariant inflation_radius >= robot_radius +
// safety_padding.
func InflationRadiusCells(robotRadiusM, safetyPaddingM, resolution float64) int {
	return int(math.Ceil((robotRadiusM + safetyPaddingM) / resolution))
}

// NearestFreeCell does a breadth-first search outward from (col, row)
// for the closest non-Obstacle cell, used to build ObstructedError's
// suggestion.
func NearestFreeCell(grid *OccupancyGrid, col, row int) (int, int, bool) {
	type cell struct{ col, row int }
	visited := map[cell]bool{{col, row}: true}
	queue := []cell{{col, row}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if grid.InBounds(cur.col, cur.row) && grid.At(cur.col, cur.row) != Obstacle {
			return cur.col, cur.row, true
		}
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			next := cell{cur.col + d[0], cur.row + d[1]}
			if visited[next] || !grid.InBounds(next.col, next.row) {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return 0, 0, false
}
