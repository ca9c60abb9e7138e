package store

import (
	"testing"
	"time"

	"github.com/mower-robot/control/internal/fsutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(fsutil.NewMemoryFileSystem(), "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.MigrateUp("migrations"); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCoverageProgressRoundTrip(t *testing.T) {
	db := openTestDB(t)

	want := CoverageProgress{PathJSON: `{"waypoints":[]}`, Cursor: 3, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := db.SaveCoverageProgress(want); err != nil {
		t.Fatalf("SaveCoverageProgress: %v", err)
	}

	got, ok, err := db.LoadCoverageProgress()
	if err != nil {
		t.Fatalf("LoadCoverageProgress: %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted coverage progress row")
	}
	if got.Cursor != want.Cursor || got.PathJSON != want.PathJSON {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCoverageProgressMissingReturnsNotOK(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.LoadCoverageProgress()
	if err != nil {
		t.Fatalf("LoadCoverageProgress: %v", err)
	}
	if ok {
		t.Error("expected ok=false with nothing persisted yet")
	}
}

func TestGridSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	type cell struct{ Col, Row int }
	want := []cell{{1, 2}, {3, 4}}
	if err := db.SaveGridSnapshot(want); err != nil {
		t.Fatalf("SaveGridSnapshot: %v", err)
	}

	var got []cell
	ok, err := db.LoadGridSnapshot(&got)
	if err != nil {
		t.Fatalf("LoadGridSnapshot: %v", err)
	}
	if !ok || len(got) != 2 || got[1].Row != 4 {
		t.Errorf("got %+v ok=%v, want %+v", got, ok, want)
	}
}
