package module

import (
	"fmt"
	"math"

	"github.com/Norsninja/music-chronus/internal/dsp"
)

// Filter response selectors. Each response is registered as its own
// module type (biquad_lowpass, biquad_highpass, biquad_bandpass) so the
// patch names what it filters for; the three share this implementation.
const (
	FilterLowPass = iota
	FilterHighPass
	FilterBandPass
)

// Cutoff bounds in Hz, as published in the schema. Process clamps the
// running cutoff to [minCutoffHz, 0.45*sampleRate] so the state-variable
// recurrence stays stable.
const (
	minCutoffHz = 10.0
	maxCutoffHz = 20000.0
)

// Filter is a 2-pole state-variable filter (Chamberlin topology)
// offering low-pass, high-pass and band-pass outputs from a single
// coefficient pair.
type Filter struct {
	typeName string
	kind     int

	sampleRate float64

	cutoff    *dsp.Smoother // Hz
	resonance *dsp.Smoother // 0..1, 0 = critically damped

	lp, bp, hp float32
}

func NewLowPass() Module  { return &Filter{typeName: "biquad_lowpass", kind: FilterLowPass} }
func NewHighPass() Module { return &Filter{typeName: "biquad_highpass", kind: FilterHighPass} }
func NewBandPass() Module { return &Filter{typeName: "biquad_bandpass", kind: FilterBandPass} }

func (f *Filter) Schema() Schema {
	return Schema{
		Type: f.typeName,
		Params: []ParamSchema{
			{Name: "cutoff", Min: minCutoffHz, Max: maxCutoffHz, Default: 8000, Unit: "hz", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultFilterMS},
			{Name: "resonance", Min: 0, Max: 1, Default: 0.2, Unit: "linear", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultFilterMS},
		},
	}
}

func (f *Filter) Prepare(sampleRate, blockSize int) error {
	f.sampleRate = float64(sampleRate)
	f.cutoff = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultFilterMS, sampleRate), 8000)
	f.resonance = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultFilterMS, sampleRate), 0.2)
	return nil
}

func (f *Filter) SetParam(name string, value float64, immediate bool) error {
	switch name {
	case "cutoff":
		if immediate {
			f.cutoff.SetImmediate(value)
		} else {
			f.cutoff.SetTarget(value)
		}
	case "resonance":
		if immediate {
			f.resonance.SetImmediate(value)
		} else {
			f.resonance.SetTarget(value)
		}
	default:
		return fmt.Errorf("%s: unknown param %q", f.typeName, name)
	}
	return nil
}

func (f *Filter) SetGate(on bool) {}

func (f *Filter) Process(input, output []float32) {
	nyquistish := 0.45 * f.sampleRate
	for i, in := range input {
		fcHz := f.cutoff.Tick()
		resNorm := f.resonance.Tick()

		if fcHz < minCutoffHz {
			fcHz = minCutoffHz
		}
		if fcHz > nyquistish {
			fcHz = nyquistish
		}
		coef := float32(2 * math.Sin(math.Pi*fcHz/f.sampleRate))
		// damping: resonance 0 is critically damped, 1 rings hard.
		q := float32(2.0 - 1.9*resNorm)

		lp := f.lp + coef*f.bp
		hp := (in - lp) - q*f.bp
		bp := f.bp + coef*hp

		lp = clamp32(lp, -1, 1)
		bp = clamp32(bp, -1, 1)
		hp = clamp32(hp, -1, 1)

		f.lp, f.bp, f.hp = lp, bp, hp

		switch f.kind {
		case FilterLowPass:
			output[i] = lp
		case FilterHighPass:
			output[i] = hp
		case FilterBandPass:
			output[i] = bp
		}
	}
}

func clamp32(v, min, max float32) float32 {
	return float32(math.Max(float64(min), math.Min(float64(max), float64(v))))
}

func (f *Filter) StateSnapshot() map[string]float64 {
	return map[string]float64{
		"cutoff":    f.cutoff.Value(),
		"resonance": f.resonance.Value(),
	}
}
