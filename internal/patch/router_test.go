package patch

import (
	"testing"

	"github.com/Norsninja/music-chronus/internal/module"
)

func TestRouterProcessingOrderFollowsEdges(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "biquad_lowpass", module.NewLowPass())
	r.AddModule("c", "limiter", module.NewLimiter())
	if err := r.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Connect("b", "c"); err != nil {
		t.Fatal(err)
	}
	order, err := r.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRouterRejectsCycle(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "passthrough", module.NewPassthrough())
	if err := r.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Connect("b", "a"); err != ErrCycleDetected {
		t.Fatalf("got %v, want ErrCycleDetected", err)
	}
	// Graph must be left exactly as before the rejected connect: a
	// rejected edit leaves no trace.
	if src, ok := r.IncomingSource("a"); ok {
		t.Fatalf("expected no incoming edge on a, got src=%v", src)
	}
	order, err := r.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order corrupted after rejected cycle: %v", order)
	}
}

func TestRouterConnectDisconnectIsNoOp(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "passthrough", module.NewPassthrough())
	if err := r.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Disconnect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.IncomingSource("b"); ok {
		t.Fatal("expected edge removed")
	}
	if len(r.outgoing["a"]) != 0 {
		t.Fatal("expected outgoing edge removed")
	}
}

func TestRouterRejectsSecondIncomingEdge(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "sine", module.NewSine())
	r.AddModule("c", "mixer", module.NewMixer())
	if err := r.Connect("a", "c"); err != nil {
		t.Fatal(err)
	}
	if err := r.Connect("b", "c"); err != ErrInputTaken {
		t.Fatalf("got %v, want ErrInputTaken", err)
	}
}

func TestRouterRemoveModuleRequiresDisconnectFirst(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "passthrough", module.NewPassthrough())
	r.Connect("a", "b")
	if err := r.RemoveModule("a"); err != ErrNodeHasEdges {
		t.Fatalf("got %v, want ErrNodeHasEdges", err)
	}
	r.Disconnect("a", "b")
	if err := r.RemoveModule("a"); err != nil {
		t.Fatalf("remove after disconnect: %v", err)
	}
}

func TestRouterCapacityExceeded(t *testing.T) {
	r := NewRouter()
	for i := 0; i < MaxModules; i++ {
		id := string(rune('a' + i))
		if err := r.AddModule(id, "passthrough", module.NewPassthrough()); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := r.AddModule("z", "passthrough", module.NewPassthrough()); err != ErrCapacityExceeded {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}
}

func TestRouterFanOutSharesSourceAcrossMultipleDestinations(t *testing.T) {
	r := NewRouter()
	r.AddModule("a", "sine", module.NewSine())
	r.AddModule("b", "passthrough", module.NewPassthrough())
	r.AddModule("c", "passthrough", module.NewPassthrough())
	if err := r.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.Connect("a", "c"); err != nil {
		t.Fatal(err)
	}
	order, err := r.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "a" {
		t.Fatalf("unexpected order: %v", order)
	}
}
