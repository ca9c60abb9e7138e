package bus

import "testing"

func TestSnapshotLoadEmpty(t *testing.T) {
	var s Snapshot[int]
	if _, ok := s.Load(); ok {
		t.Fatal("expected ok=false on empty snapshot")
	}
}

func TestSnapshotStoreLoad(t *testing.T) {
	var s Snapshot[string]
	s.Store("first")
	s.Store("second")
	v, ok := s.Load()
	if !ok || v != "second" {
		t.Fatalf("got (%q, %v), want (\"second\", true)", v, ok)
	}
}
