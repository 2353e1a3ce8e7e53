package dsp

import (
	"math"
	"testing"
)

func TestSinPhaseMatchesMathSin(t *testing.T) {
	for p := float32(-2.5); p < 2.5; p += 0.0137 {
		want := math.Sin(TwoPi * float64(p))
		got := float64(SinPhase(p))
		if math.Abs(got-want) > 2e-3 {
			t.Fatalf("SinPhase(%v) = %v, want %v", p, got, want)
		}
	}
}

func TestFastTanhMatchesMathTanh(t *testing.T) {
	for x := float32(-6); x <= 6; x += 0.0193 {
		want := math.Tanh(float64(x))
		got := float64(FastTanh(x))
		if math.Abs(got-want) > 2e-3 {
			t.Fatalf("FastTanh(%v) = %v, want %v", x, got, want)
		}
	}
}

func TestPolyBLEPZeroAwayFromEdges(t *testing.T) {
	if v := PolyBLEP(0.5, 0.01); v != 0 {
		t.Fatalf("expected no correction mid-cycle, got %v", v)
	}
	if v := PolyBLEP(0.5, 0); v != 0 {
		t.Fatalf("expected no correction for a stopped oscillator, got %v", v)
	}
}

func TestPolyBLEPBoundedAtEdges(t *testing.T) {
	dt := float32(0.01)
	for _, tt := range []float32{0, 0.001, 0.005, 0.009, 0.991, 0.995, 0.999} {
		v := PolyBLEP(tt, dt)
		if v < -1 || v > 1 {
			t.Fatalf("PolyBLEP(%v, %v) = %v escaped [-1,1]", tt, dt, v)
		}
	}
}
