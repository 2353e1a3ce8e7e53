package shm

import (
	"path/filepath"
	"testing"
)

func TestSharedStateVisibleAcrossSeparateOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music-chronus-test.shm")

	r1, err := Open(path, StateSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r1.Close()
	s1 := NewSharedState(r1)

	// A second Open of the same path mmaps the same pages, modeling a
	// worker process opening the region its supervisor created.
	r2, err := Open(path, StateSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	s2 := NewSharedState(r2)

	s1.SetActiveIndex(1)
	if got := s2.ActiveIndex(); got != 1 {
		t.Fatalf("ActiveIndex via second mapping = %d, want 1", got)
	}

	s2.IncrementHeartbeat(0)
	s2.IncrementHeartbeat(0)
	if got := s1.Heartbeat(0); got != 2 {
		t.Fatalf("Heartbeat via first mapping = %d, want 2", got)
	}

	s1.SetPrimeReady(1, true)
	if !s2.PrimeReady(1) {
		t.Fatal("expected prime-ready visible across mappings")
	}
}

func TestSharedStateDefaultsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music-chronus-test2.shm")
	r, err := Open(path, StateSize)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	s := NewSharedState(r)
	if s.ActiveIndex() != 0 || s.PendingSwitch() || s.Heartbeat(0) != 0 || s.PrimeReady(0) {
		t.Fatal("expected zero-initialized shared state on fresh region")
	}
}
