// Package dsp holds the small building blocks every module leans on:
// allocation-free waveform/shaping lookup tables and the parameter
// smoother. None of it allocates outside init()/NewSmoother, so modules
// built on it keep the zero-allocation guarantee process() requires.
package dsp

import "math"

const TwoPi = 2 * math.Pi

// Sine table: one full cycle indexed by normalized phase in [0,1), the
// same representation oscillators carry internally, so lookups need no
// radian conversion. The extra guard entry duplicates sample 0 so the
// interpolation never wraps.
const (
	sinTableSize = 4096
	sinTableMask = sinTableSize - 1
)

// Tanh table: tanh is odd, so only [0, tanhSaturation] is stored and
// negative inputs mirror through the sign. Past the stored range tanh
// is within 1e-3 of ±1 and the lookup clamps.
const (
	tanhTableSize  = 1024
	tanhSaturation = 4.0
	tanhScale      = tanhTableSize / tanhSaturation
)

var (
	sinTable  [sinTableSize + 1]float32
	tanhTable [tanhTableSize + 1]float32
)

func init() {
	for i := range sinTable {
		sinTable[i] = float32(math.Sin(TwoPi * float64(i) / sinTableSize))
	}
	for i := range tanhTable {
		tanhTable[i] = float32(math.Tanh(tanhSaturation * float64(i) / tanhTableSize))
	}
}

// SinPhase returns sin(2π·p) for a normalized phase p, via table lookup
// with linear interpolation. Any p is accepted; only its fractional
// part matters, so an ever-accumulating oscillator phase can be passed
// directly.
//
//go:nosplit
func SinPhase(p float32) float32 {
	p -= float32(math.Floor(float64(p)))
	pos := p * sinTableSize
	i := int(pos)
	frac := pos - float32(i)
	i &= sinTableMask
	return sinTable[i] + frac*(sinTable[i+1]-sinTable[i])
}

// FastTanh returns tanh(x) via the half-range table, mirrored for
// negative x and clamped where tanh has already saturated.
//
//go:nosplit
func FastTanh(x float32) float32 {
	neg := x < 0
	if neg {
		x = -x
	}
	if x >= tanhSaturation {
		if neg {
			return -1
		}
		return 1
	}
	pos := x * tanhScale
	i := int(pos)
	frac := pos - float32(i)
	v := tanhTable[i] + frac*(tanhTable[i+1]-tanhTable[i])
	if neg {
		return -v
	}
	return v
}

// PolyBLEP applies polynomial band-limited step correction for square
// edges. t is the normalized phase position in [0,1), dt the phase
// increment per sample (frequency/sampleRate). The correction is the
// quadratic residual -(t/dt - 1)² just after an edge and its mirror
// just before the next one, zero elsewhere.
//
//go:nosplit
func PolyBLEP(t, dt float32) float32 {
	if dt <= 0 {
		return 0
	}
	if t < dt {
		x := t/dt - 1
		return -x * x
	}
	if t+dt > 1 {
		x := (t-1)/dt + 1
		return x * x
	}
	return 0
}
