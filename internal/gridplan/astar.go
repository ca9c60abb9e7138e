package gridplan

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// InflatedPenalty is the cost multiplier applied to edges that enter an
// Inflated cell, discouraging (without forbidding) hugging obstacles.
const InflatedPenalty = 4.0

// FindPath runs A* over the 8-connected grid from (startCol, startRow) to
// (goalCol, goalRow) with the Euclidean heuristic, then smooths the
// result by iterative line-of-sight pruning.
func FindPath(grid *OccupancyGrid, startCol, startRow, goalCol, goalRow int) (*Path, error) {
	if !grid.InBounds(startCol, startRow) || !grid.InBounds(goalCol, goalRow) {
		return nil, ErrPathNotFound
	}
	if grid.At(goalCol, goalRow) == Obstacle {
		nc, nr, ok := NearestFreeCell(grid, goalCol, goalRow)
		if !ok {
			return nil, ErrTargetObstructed
		}
		return nil, &ObstructedError{NearestFreeCol: nc, NearestFreeRow: nr}
	}

	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	nodeID := func(col, row int) int64 { return int64(row*grid.Width + col) }

	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.At(col, row) == Obstacle {
				continue
			}
			g.AddNode(simple.Node(nodeID(col, row)))
		}
	}

	neighbors := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.At(col, row) == Obstacle {
				continue
			}
			for _, d := range neighbors {
				ncol, nrow := col+d[0], row+d[1]
				if !grid.InBounds(ncol, nrow) || grid.At(ncol, nrow) == Obstacle {
					continue
				}
				step := math.Hypot(float64(d[0]), float64(d[1]))
				cost := step
				if grid.At(ncol, nrow) == Inflated {
					cost *= InflatedPenalty
				}
				g.SetWeightedEdge(simple.WeightedEdge{
					F: simple.Node(nodeID(col, row)),
					T: simple.Node(nodeID(ncol, nrow)),
					W: cost,
				})
			}
		}
	}

	start := simple.Node(nodeID(startCol, startRow))
	goal := simple.Node(nodeID(goalCol, goalRow))

	heuristic := func(x, y graph.Node) float64 {
		xc, xr := int(x.ID())%grid.Width, int(x.ID())/grid.Width
		yc, yr := int(y.ID())%grid.Width, int(y.ID())/grid.Width
		return math.Hypot(float64(xc-yc), float64(xr-yr)) * grid.Resolution
	}

	shortest, _ := path.AStar(start, goal, g, heuristic)
	nodes, _ := shortest.To(goal.ID())
	if len(nodes) == 0 {
		return nil, ErrPathNotFound
	}

	waypoints := make([]Waypoint, 0, len(nodes))
	for _, n := range nodes {
		col := int(n.ID()) % grid.Width
		row := int(n.ID()) / grid.Width
		x, y := grid.CellToWorld(col, row)
		waypoints = append(waypoints, Waypoint{X: x, Y: y, Tolerance: grid.Resolution})
	}

	p := &Path{Waypoints: waypoints}
	Smooth(p, grid)
	return p, nil
}

// Smooth prunes intermediate waypoints whose connecting segment to a
// further waypoint is collision-free, in place. Smooth is idempotent:
// re-smoothing an already-smoothed path is a no-op.
func Smooth(p *Path, grid *OccupancyGrid) {
	if len(p.Waypoints) < 3 {
		return
	}
	result := []Waypoint{p.Waypoints[0]}
	i := 0
	for i < len(p.Waypoints)-1 {
		j := len(p.Waypoints) - 1
		for j > i+1 {
			if lineOfSightClear(grid, p.Waypoints[i], p.Waypoints[j]) {
				break
			}
			j--
		}
		result = append(result, p.Waypoints[j])
		i = j
	}
	p.Waypoints = result
}

// lineOfSightClear samples the segment between a and b at a fraction of
// the grid resolution and reports whether every sample lands on a
// non-Obstacle cell.
func lineOfSightClear(grid *OccupancyGrid, a, b Waypoint) bool {
	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	steps := int(dist/(grid.Resolution*0.5)) + 1
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		x := a.X + t*(b.X-a.X)
		y := a.Y + t*(b.Y-a.Y)
		col, row := grid.WorldToCell(x, y)
		if grid.At(col, row) == Obstacle {
			return false
		}
	}
	return true
}
