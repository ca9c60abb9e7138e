// Package gridplan builds an occupancy grid from a boundary polygon and
// produces boustrophedon coverage paths and A* point-to-point paths over
// it.
package gridplan

import (
	"errors"
	"fmt"
)

// Cell classifies a single grid cell.
type Cell int

const (
	Free Cell = iota
	Obstacle
	Unknown
	Inflated
)

// InflationMetric selects how obstacle padding is grown.
type InflationMetric int

const (
	Chebyshev InflationMetric = iota
	Euclidean
)

// OccupancyGrid is a finite 2D raster anchored at an origin in the local
// planar frame.
type OccupancyGrid struct {
	OriginX, OriginY float64
	Resolution       float64 // meters per cell
	Width, Height    int
	cells            []Cell
}

// NewOccupancyGrid allocates a grid of the given size, all cells Unknown.
func NewOccupancyGrid(originX, originY, resolution float64, width, height int) *OccupancyGrid {
	g := &OccupancyGrid{
		OriginX:    originX,
		OriginY:    originY,
		Resolution: resolution,
		Width:      width,
		Height:     height,
		cells:      make([]Cell, width*height),
	}
	for i := range g.cells {
		g.cells[i] = Unknown
	}
	return g
}

func (g *OccupancyGrid) idx(col, row int) int { return row*g.Width + col }

// InBounds reports whether (col, row) is within the grid.
func (g *OccupancyGrid) InBounds(col, row int) bool {
	return col >= 0 && col < g.Width && row >= 0 && row < g.Height
}

// At returns the cell classification at (col, row).
func (g *OccupancyGrid) At(col, row int) Cell {
	if !g.InBounds(col, row) {
		return Obstacle
	}
	return g.cells[g.idx(col, row)]
}

// Set classifies the cell at (col, row).
func (g *OccupancyGrid) Set(col, row int, c Cell) {
	if !g.InBounds(col, row) {
		return
	}
	g.cells[g.idx(col, row)] = c
}

// WorldToCell converts a local-frame (x, y) point to a grid cell index.
func (g *OccupancyGrid) WorldToCell(x, y float64) (col, row int) {
	col = int((x - g.OriginX) / g.Resolution)
	row = int((y - g.OriginY) / g.Resolution)
	return col, row
}

// CellToWorld returns the world-frame coordinate of a cell's center.
func (g *OccupancyGrid) CellToWorld(col, row int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.Resolution
	y = g.OriginY + (float64(row)+0.5)*g.Resolution
	return x, y
}

// Waypoint is a single point on a Path.
type Waypoint struct {
	X, Y      float64
	Heading   *float64 // nil if unspecified
	Tolerance float64
}

// Path is an ordered sequence of waypoints with a monotonically
// increasing cursor. Advance moves past the front waypoint; the caller
// decides when the pose is within its tolerance.
type Path struct {
	Waypoints []Waypoint
	cursor    int
}

// Current returns the waypoint the cursor currently points at, and
// whether the path still has one (false once exhausted).
func (p *Path) Current() (Waypoint, bool) {
	if p.cursor >= len(p.Waypoints) {
		return Waypoint{}, false
	}
	return p.Waypoints[p.cursor], true
}

// Advance moves the cursor to the next waypoint.
func (p *Path) Advance() {
	if p.cursor < len(p.Waypoints) {
		p.cursor++
	}
}

// Done reports whether every waypoint has been consumed.
func (p *Path) Done() bool { return p.cursor >= len(p.Waypoints) }

// CursorIndex returns the current cursor position, for callers that
// persist or report coverage progress without mutating it.
func (p *Path) CursorIndex() int { return p.cursor }

// Restore sets the cursor to a previously persisted position, clamped to
// the path's bounds.
func (p *Path) Restore(cursor int) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(p.Waypoints) {
		cursor = len(p.Waypoints)
	}
	p.cursor = cursor
}

// Point is a 2D point in the local planar frame.
type Point struct{ X, Y float64 }

var (
	// ErrEmptyPolygon is returned when grid construction is given fewer
	// than three boundary points.
	ErrEmptyPolygon = errors.New("gridplan: boundary polygon is empty")
	// ErrTargetObstructed is returned when a requested goal cell is an
	// Obstacle cell.
	ErrTargetObstructed = errors.New("gridplan: target cell is obstructed")
	// ErrPathNotFound is returned when A* exhausts the open set without
	// reaching the goal.
	ErrPathNotFound = errors.New("gridplan: no path found")
)

// ObstructedError wraps ErrTargetObstructed with the nearest free cell.
type ObstructedError struct {
	NearestFreeCol, NearestFreeRow int
}

func (e *ObstructedError) Error() string {
	return fmt.Sprintf("%v (nearest free cell: %d,%d)", ErrTargetObstructed, e.NearestFreeCol, e.NearestFreeRow)
}

func (e *ObstructedError) Unwrap() error { return ErrTargetObstructed }
