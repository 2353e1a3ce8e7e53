package module

import (
	"fmt"
	"math"

	"github.com/Norsninja/music-chronus/internal/dsp"
)

// Waveform selects an Oscillator's generator function. Each waveform is
// registered as its own module type (sine, square, triangle, noise) so
// a patch names the sound it wants directly instead of steering a
// generic oscillator through an enum parameter.
const (
	ShapeSine = iota
	ShapeSquare
	ShapeTriangle
	ShapeNoise
)

// Oscillator generates one of four waveforms, band-limiting the square
// edges with PolyBLEP. The square/triangle/noise variants share this
// implementation; only the fixed shape and schema differ.
type Oscillator struct {
	typeName string
	shape    int

	sampleRate float64

	freq *dsp.Smoother
	gain *dsp.Smoother
	duty *dsp.Smoother

	phase float32 // normalized [0,1)

	// noise LFSR state; taps give a maximal-length sequence.
	noiseSR uint32
}

const (
	noiseLFSRSeed = 0x7FFFFF
	noiseLFSRMask = 0x7FFFFF
	noiseTap1     = 22
	noiseTap2     = 17
)

// NewSine/NewSquare/NewTriangle/NewNoise return unprepared oscillators;
// Prepare must be called before Process.
func NewSine() Module     { return &Oscillator{typeName: "sine", shape: ShapeSine} }
func NewSquare() Module   { return &Oscillator{typeName: "square", shape: ShapeSquare} }
func NewTriangle() Module { return &Oscillator{typeName: "triangle", shape: ShapeTriangle} }
func NewNoise() Module    { return &Oscillator{typeName: "noise", shape: ShapeNoise} }

func (o *Oscillator) Schema() Schema {
	params := []ParamSchema{
		{Name: "freq", Min: 0.1, Max: 20000, Default: 440, Unit: "hz", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultFreqMS},
		{Name: "gain", Min: 0, Max: 1, Default: 0.8, Unit: "linear", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultAmplitudeMS},
	}
	if o.shape == ShapeSquare {
		params = append(params, ParamSchema{Name: "duty", Min: 0, Max: 1, Default: 0.5, Unit: "linear", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultAmplitudeMS})
	}
	return Schema{
		Type:    o.typeName,
		Params:  params,
		HasGate: false,
	}
}

func (o *Oscillator) Prepare(sampleRate, blockSize int) error {
	o.sampleRate = float64(sampleRate)
	o.freq = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultFreqMS, sampleRate), 440)
	o.gain = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultAmplitudeMS, sampleRate), 0.8)
	o.duty = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultAmplitudeMS, sampleRate), 0.5)
	o.noiseSR = noiseLFSRSeed
	return nil
}

func (o *Oscillator) SetParam(name string, value float64, immediate bool) error {
	switch name {
	case "freq":
		if immediate {
			o.freq.SetImmediate(value)
		} else {
			o.freq.SetTarget(value)
		}
	case "gain":
		if immediate {
			o.gain.SetImmediate(value)
		} else {
			o.gain.SetTarget(value)
		}
	case "duty":
		if o.shape != ShapeSquare {
			return fmt.Errorf("%s: unknown param %q", o.typeName, name)
		}
		if immediate {
			o.duty.SetImmediate(value)
		} else {
			o.duty.SetTarget(value)
		}
	default:
		return fmt.Errorf("%s: unknown param %q", o.typeName, name)
	}
	return nil
}

func (o *Oscillator) SetGate(on bool) {}

func (o *Oscillator) Process(input, output []float32) {
	for i := range output {
		freq := o.freq.Tick()
		gain := o.gain.Tick()
		duty := o.duty.Tick()

		phaseInc := float32(freq / o.sampleRate)

		var raw float32
		switch o.shape {
		case ShapeSine:
			raw = dsp.SinPhase(o.phase)
		case ShapeSquare:
			d := float32(duty)
			if o.phase < d {
				raw = 1
			} else {
				raw = -1
			}
			raw -= dsp.PolyBLEP(o.phase, phaseInc)
			shifted := o.phase - d
			if shifted < 0 {
				shifted += 1
			}
			raw += dsp.PolyBLEP(shifted, phaseInc)
		case ShapeTriangle:
			raw = 2*float32(math.Abs(float64(2*o.phase-1))) - 1
		case ShapeNoise:
			raw = o.nextNoiseSample()
		}

		output[i] = raw * float32(gain)

		if o.shape != ShapeNoise {
			o.phase += phaseInc
			if o.phase >= 1 {
				o.phase -= 1
			}
		}
	}
}

// nextNoiseSample advances the maximal-length LFSR by one step per call.
func (o *Oscillator) nextNoiseSample() float32 {
	newBit := ((o.noiseSR >> noiseTap1) ^ (o.noiseSR >> noiseTap2)) & 1
	o.noiseSR = ((o.noiseSR << 1) | newBit) & noiseLFSRMask
	return float32(o.noiseSR&1)*2 - 1
}

func (o *Oscillator) StateSnapshot() map[string]float64 {
	snap := map[string]float64{
		"freq": o.freq.Value(),
		"gain": o.gain.Value(),
	}
	if o.shape == ShapeSquare {
		snap["duty"] = o.duty.Value()
	}
	return snap
}
