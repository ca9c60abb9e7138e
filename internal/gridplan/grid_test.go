package gridplan

import "testing"

func TestBuildGridEmptyPolygon(t *testing.T) {
	_, err := BuildGrid(nil, BuildGridConfig{Resolution: 0.5})
	if err != ErrEmptyPolygon {
		t.Fatalf("got %v, want ErrEmptyPolygon", err)
	}
}

func TestBuildGridRasterizesSquare(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	grid, err := BuildGrid(square, BuildGridConfig{Resolution: 1, MarginMeters: 1, PaddingMeters: 0})
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}

	col, row := grid.WorldToCell(5, 5)
	if grid.At(col, row) != Free {
		t.Errorf("center of square should be Free, got %v", grid.At(col, row))
	}
	col, row = grid.WorldToCell(-0.5, -0.5)
	if grid.At(col, row) != Obstacle {
		t.Errorf("outside square should be Obstacle, got %v", grid.At(col, row))
	}
}

func TestInflationGrowsAroundObstacle(t *testing.T) {
	grid := NewOccupancyGrid(0, 0, 1, 10, 10)
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			grid.Set(col, row, Free)
		}
	}
	grid.Set(5, 5, Obstacle)
	inflate(grid, 1, Chebyshev)

	if grid.At(5, 4) != Inflated {
		t.Errorf("adjacent free cell should become Inflated, got %v", grid.At(5, 4))
	}
	if grid.At(5, 5) != Obstacle {
		t.Errorf("original obstacle cell should remain Obstacle, got %v", grid.At(5, 5))
	}
}

func TestPathRestoreResumesCursor(t *testing.T) {
	p := &Path{Waypoints: []Waypoint{{X: 0}, {X: 1}, {X: 2}, {X: 3}}}
	p.Advance()
	p.Advance()
	if p.CursorIndex() != 2 {
		t.Fatalf("got cursor %d, want 2", p.CursorIndex())
	}

	var resumed Path
	resumed.Waypoints = p.Waypoints
	resumed.Restore(p.CursorIndex())
	if resumed.CursorIndex() != 2 {
		t.Errorf("got restored cursor %d, want 2", resumed.CursorIndex())
	}
	wp, ok := resumed.Current()
	if !ok || wp.X != 2 {
		t.Errorf("got %v, want waypoint at X=2", wp)
	}
}

func TestPathRestoreClampsToBounds(t *testing.T) {
	p := &Path{Waypoints: []Waypoint{{X: 0}, {X: 1}}}

	p.Restore(-5)
	if p.CursorIndex() != 0 {
		t.Errorf("got %d, want 0 for negative cursor", p.CursorIndex())
	}

	p.Restore(100)
	if p.CursorIndex() != len(p.Waypoints) {
		t.Errorf("got %d, want %d for out-of-range cursor", p.CursorIndex(), len(p.Waypoints))
	}
	if !p.Done() {
		t.Error("expected Done after restoring past the end")
	}
}
