package module

import "testing"

func TestReverbDryMixPassesInputUnchanged(t *testing.T) {
	r := NewReverb()
	r.Prepare(48000, 64)
	r.SetParam("mix", 0.0, true)
	in := []float32{0.5, -0.25, 0.1}
	out := make([]float32, 3)
	r.Process(in, out)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mix=0 should be pure dry signal, got %v != %v", out[i], in[i])
		}
	}
}

func TestReverbWetMixDiffersFromDry(t *testing.T) {
	r := NewReverb()
	r.Prepare(48000, 64)
	r.SetParam("mix", 1.0, true)
	r.SetParam("decay", 0.5, true)
	in := make([]float32, 8192)
	in[0] = 1.0
	out := make([]float32, len(in))
	r.Process(in, out)
	var nonzero bool
	for _, v := range out[2000:] {
		if v != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("expected reverb tail energy well after the impulse")
	}
}

func TestDriveZeroAmountIsPassthrough(t *testing.T) {
	d := NewDrive()
	d.Prepare(48000, 64)
	in := []float32{0.1, 0.9, -0.5}
	out := make([]float32, 3)
	d.Process(in, out)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("amount=0 should be passthrough, got %v != %v", out[i], in[i])
		}
	}
}

func TestDriveSaturatesLoudInput(t *testing.T) {
	d := NewDrive()
	d.Prepare(48000, 64)
	d.SetParam("amount", 1.0, true)
	in := make([]float32, 256)
	for i := range in {
		in[i] = 0.9
	}
	out := make([]float32, len(in))
	d.Process(in, out)
	if out[len(out)-1] <= 0.9 {
		t.Fatalf("expected tanh saturation to push close to 1.0, got %v", out[len(out)-1])
	}
	if out[len(out)-1] > 1.0 {
		t.Fatalf("tanh output must stay within [-1,1], got %v", out[len(out)-1])
	}
}

func TestLimiterClipsOutOfRangeInput(t *testing.T) {
	l := NewLimiter()
	l.Prepare(48000, 64)
	in := []float32{2.0, -2.0, 0.5}
	out := make([]float32, 3)
	l.Process(in, out)
	if out[0] != 1.0 || out[1] != -1.0 || out[2] != 0.5 {
		t.Fatalf("unexpected limiter output: %v", out)
	}
}

func TestMixerAppliesGain(t *testing.T) {
	m := NewMixer()
	m.Prepare(48000, 64)
	m.SetParam("gain", 0.5, true)
	in := []float32{1.0, -1.0}
	out := make([]float32, 2)
	m.Process(in, out)
	if out[0] != 0.5 || out[1] != -0.5 {
		t.Fatalf("unexpected mixer output: %v", out)
	}
}

func TestPassthroughCopiesInput(t *testing.T) {
	p := NewPassthrough()
	p.Prepare(48000, 64)
	in := []float32{1, 2, 3}
	out := make([]float32, 3)
	p.Process(in, out)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("passthrough mismatch")
		}
	}
}
