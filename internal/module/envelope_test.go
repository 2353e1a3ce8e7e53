package module

import "testing"

func TestEnvelopeAttackRisesToFullLevel(t *testing.T) {
	e := NewEnvelope()
	e.Prepare(1000, 64)
	e.SetParam("attack", 10, true)
	e.SetParam("decay", 1, true)
	e.SetParam("sustain", 1.0, true)
	e.SetGate(true)

	in := make([]float32, 10)
	out := make([]float32, 10)
	for i := range in {
		in[i] = 1.0
	}
	e.Process(in, out)
	if out[9] < 0.9 {
		t.Fatalf("expected envelope near full scale after attack window, got %v", out[9])
	}
}

func TestEnvelopeReleaseDecaysToZero(t *testing.T) {
	e := NewEnvelope()
	e.Prepare(1000, 64)
	e.SetParam("attack", 1, true)
	e.SetParam("decay", 1, true)
	e.SetParam("sustain", 1.0, true)
	e.SetParam("release", 20, true)

	in := make([]float32, 200)
	out := make([]float32, 200)
	for i := range in {
		in[i] = 1.0
	}
	e.SetGate(true)
	e.Process(in[:5], out[:5])
	e.SetGate(false)
	e.Process(in[5:], out[5:])
	if out[199] != 0 {
		t.Fatalf("expected envelope fully released, got %v", out[199])
	}
}

func TestEnvelopeIdleProducesSilence(t *testing.T) {
	e := NewEnvelope()
	e.Prepare(1000, 64)
	in := make([]float32, 10)
	out := make([]float32, 10)
	for i := range in {
		in[i] = 1.0
	}
	e.Process(in, out)
	for _, v := range out {
		if v != 0 {
			t.Fatalf("expected silence before any gate, got %v", v)
		}
	}
}

func TestEnvelopeRetriggerOnRisingEdge(t *testing.T) {
	e := NewEnvelope().(*Envelope)
	e.Prepare(1000, 64)
	e.SetParam("attack", 5, true)
	e.SetParam("decay", 1, true)
	e.SetParam("sustain", 1.0, true)
	e.SetGate(true)
	in := make([]float32, 7)
	out := make([]float32, 7)
	for i := range in {
		in[i] = 1
	}
	e.Process(in[:6], out[:6]) // 5 attack samples, 1 decay sample: now sustaining
	e.SetGate(true)            // duplicate true: must not restart the ramp
	e.Process(in[6:], out[6:])
	if e.phase != envSustain {
		t.Fatalf("unexpected phase after duplicate gate-on: %v", e.phase)
	}
	e.SetGate(false)
	e.SetGate(true) // rising edge: restarts from attack
	if e.phase != envAttack {
		t.Fatalf("unexpected phase after rising edge: %v", e.phase)
	}
}
