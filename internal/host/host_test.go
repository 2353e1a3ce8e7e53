package host

import (
	"testing"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
	"github.com/Norsninja/music-chronus/internal/module"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	reg := module.NewRegistry()
	if err := module.RegisterBuiltins(reg); err != nil {
		t.Fatal(err)
	}
	h := New(reg)
	h.Prepare(48000, 64)
	return h
}

func TestHostSingleOscillatorProducesTone(t *testing.T) {
	h := newTestHost(t)
	if err := h.CreateModule("osc1", "sine"); err != nil {
		t.Fatal(err)
	}
	rec, _ := cmdrec.PackFloat64("osc1", "gain", 1.0)
	h.EnqueueRecord(rec)
	out, err := h.ProcessChain()
	if err != nil {
		t.Fatal(err)
	}
	var nonzero bool
	for _, v := range out {
		if v != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Fatal("expected non-silent output from a prepared oscillator")
	}
}

func TestHostCommandAppliesAtNextBlockNotMidBlock(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	gainRec, _ := cmdrec.PackFloat64("osc1", "gain", 0)
	h.EnqueueRecord(gainRec)
	h.ProcessChain() // applies gain=0 (immediate=false target, still converges toward 0)

	setRec, _ := cmdrec.PackFloat64("osc1", "gain", 1)
	h.EnqueueRecord(setRec)
	// Pending FIFO entries are only visible to the module after the
	// next ProcessChain call, never mid-call.
	if len(h.fifo) != 1 {
		t.Fatalf("expected command queued, not yet applied: fifo=%d", len(h.fifo))
	}
	h.ProcessChain()
	if len(h.fifo) != 0 {
		t.Fatal("expected FIFO drained after ProcessChain")
	}
}

func TestHostLastOverridesEarlierSameParamWithinBlock(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	a, _ := cmdrec.PackFloat64("osc1", "freq", 100)
	b, _ := cmdrec.PackFloat64("osc1", "freq", 200)
	h.EnqueueRecord(a)
	h.EnqueueRecord(b)
	h.ProcessChain()
	mod, _ := h.router.Module("osc1")
	if mod.StateSnapshot()["freq"] == 100 {
		t.Fatal("earlier write in the same block should have been overridden")
	}
}

func TestHostChainRespectsConnectedOrder(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	h.CreateModule("lim1", "limiter")
	if err := h.Connect("osc1", "lim1"); err != nil {
		t.Fatal(err)
	}
	gainRec, _ := cmdrec.PackFloat64("osc1", "gain", 1)
	h.EnqueueRecord(gainRec)
	out, err := h.ProcessChain()
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range out {
		if v > 1 || v < -1 {
			t.Fatalf("limiter should clamp output, got %v", v)
		}
	}
}

func TestHostLastGoodCarriesRenderedBlock(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	gainRec, _ := cmdrec.PackFloat64("osc1", "gain", 1)
	h.EnqueueRecord(gainRec)
	h.ProcessChain()
	prev := append([]float32(nil), h.LastGood()...)
	var anyNonZero bool
	for _, v := range prev {
		if v != 0 {
			anyNonZero = true
		}
	}
	if !anyNonZero {
		t.Fatal("expected last_good to carry the rendered block")
	}
}

func TestHostDeleteRequiresDisconnectFirst(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	h.CreateModule("lim1", "limiter")
	h.Connect("osc1", "lim1")
	if err := h.DeleteModule("osc1"); err == nil {
		t.Fatal("expected delete to fail while connected")
	}
	h.Disconnect("osc1", "lim1")
	if err := h.DeleteModule("osc1"); err != nil {
		t.Fatalf("delete after disconnect: %v", err)
	}
}

func TestHostRenderWarmupDefaultOscillatorIsNonSilent(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine") // default gain 0.8, freq 440: should be audible
	var emitted int
	nonSilent, err := h.RenderWarmup(4, func([]float32) { emitted++ })
	if err != nil {
		t.Fatal(err)
	}
	if !nonSilent {
		t.Fatal("expected default oscillator patch to render non-silent warmup")
	}
	if emitted != 4 {
		t.Fatalf("emit called %d times, want 4", emitted)
	}
}

func TestHostRenderWarmupEmptyGraphIsSilent(t *testing.T) {
	h := newTestHost(t)
	nonSilent, err := h.RenderWarmup(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if nonSilent {
		t.Fatal("expected empty graph warmup to be silent")
	}
}

func TestHostRenderWarmupUsesMaxBlockRMSNotLast(t *testing.T) {
	h := newTestHost(t)
	h.CreateModule("osc1", "sine")
	h.CreateModule("env1", "adsr")
	if err := h.Connect("osc1", "env1"); err != nil {
		t.Fatal(err)
	}
	// Open the gate with a fast attack and a release shorter than one
	// block, render until the envelope is audibly open, then close it:
	// the first warmup block carries the release tail, the rest are
	// silent. The warmup must still count as non-silent.
	h.ApplyImmediate("osc1", "gain", 1.0, false)
	h.ApplyImmediate("env1", "attack", 1, false)
	h.ApplyImmediate("env1", "release", 0.5, false)
	h.ApplyImmediate("env1", "", 1, true)
	h.ProcessChain()
	h.ProcessChain()
	h.ApplyImmediate("env1", "", 0, true)

	nonSilent, err := h.RenderWarmup(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !nonSilent {
		t.Fatal("a warmup with an audible first block must not be judged by its silent last block")
	}
}
