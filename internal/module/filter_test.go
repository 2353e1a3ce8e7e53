package module

import "testing"

func TestLowPassWideOpenPassesAudioBand(t *testing.T) {
	f := NewLowPass()
	f.Prepare(48000, 64)
	f.SetParam("cutoff", 8000, true)
	f.SetParam("resonance", 0.0, true)

	// 100Hz-ish slow alternation is far below the cutoff and should
	// come through with most of its energy intact.
	in := make([]float32, 4096)
	for i := range in {
		if (i/240)%2 == 0 {
			in[i] = 0.5
		} else {
			in[i] = -0.5
		}
	}
	out := make([]float32, len(in))
	f.Process(in, out)

	var maxOut float32
	for _, v := range out[len(out)-512:] {
		if v > maxOut {
			maxOut = v
		}
		if -v > maxOut {
			maxOut = -v
		}
	}
	if maxOut < 0.3 {
		t.Fatalf("wide-open low-pass attenuated a low-frequency signal: peak %v", maxOut)
	}
}

func TestLowPassAttenuatesNyquistRateSignal(t *testing.T) {
	f := NewLowPass()
	f.Prepare(48000, 64)
	f.SetParam("cutoff", 1000, true)
	f.SetParam("resonance", 0.1, true)

	in := make([]float32, 2048)
	for i := range in {
		if i%2 == 0 {
			in[i] = 1
		} else {
			in[i] = -1
		}
	}
	out := make([]float32, len(in))
	f.Process(in, out)

	var maxOut float32
	for _, v := range out[len(out)-256:] {
		if v > maxOut {
			maxOut = v
		}
		if -v > maxOut {
			maxOut = -v
		}
	}
	if maxOut > 0.5 {
		t.Fatalf("expected low-pass to attenuate a Nyquist-rate signal, got peak %v", maxOut)
	}
}

func TestHighPassAttenuatesDC(t *testing.T) {
	f := NewHighPass()
	f.Prepare(48000, 64)
	f.SetParam("cutoff", 2000, true)
	f.SetParam("resonance", 0.0, true)

	in := make([]float32, 4096)
	for i := range in {
		in[i] = 0.8
	}
	out := make([]float32, len(in))
	f.Process(in, out)

	var maxTail float32
	for _, v := range out[len(out)-256:] {
		if v > maxTail {
			maxTail = v
		}
		if -v > maxTail {
			maxTail = -v
		}
	}
	if maxTail > 0.1 {
		t.Fatalf("expected high-pass to reject DC, tail peak %v", maxTail)
	}
}

func TestFilterOutputStaysBounded(t *testing.T) {
	f := NewBandPass()
	f.Prepare(48000, 64)
	f.SetParam("resonance", 1.0, true)
	in := make([]float32, 4096)
	for i := range in {
		in[i] = 1
	}
	out := make([]float32, len(in))
	f.Process(in, out)
	for _, v := range out {
		if v < -1 || v > 1 {
			t.Fatalf("filter output escaped [-1,1]: %v", v)
		}
	}
}
