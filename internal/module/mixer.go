package module

import (
	"fmt"

	"github.com/Norsninja/music-chronus/internal/dsp"
)

// Mixer applies an adjustable gain to its single input. The router
// gives each node at most one incoming edge, so a mixer does not sum
// several sources; no module in this package combines signals.
type Mixer struct {
	gain *dsp.Smoother
}

func NewMixer() Module { return &Mixer{} }

func (m *Mixer) Schema() Schema {
	return Schema{
		Type: "mixer",
		Params: []ParamSchema{
			{Name: "gain", Min: 0, Max: 2, Default: 1, Unit: "linear", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultAmplitudeMS},
		},
	}
}

func (m *Mixer) Prepare(sampleRate, blockSize int) error {
	m.gain = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultAmplitudeMS, sampleRate), 1)
	return nil
}

func (m *Mixer) SetParam(name string, value float64, immediate bool) error {
	if name != "gain" {
		return fmt.Errorf("mixer: unknown param %q", name)
	}
	if immediate {
		m.gain.SetImmediate(value)
	} else {
		m.gain.SetTarget(value)
	}
	return nil
}

func (m *Mixer) SetGate(on bool) {}

func (m *Mixer) Process(input, output []float32) {
	for i, in := range input {
		output[i] = in * float32(m.gain.Tick())
	}
}

func (m *Mixer) StateSnapshot() map[string]float64 {
	return map[string]float64{"gain": m.gain.Value()}
}

// Passthrough copies input to output unchanged. Used as a minimal node
// in tests that only exercise the patch router's graph semantics (cycle
// rejection, ordering) without caring about the DSP it carries.
type Passthrough struct{}

func NewPassthrough() Module { return &Passthrough{} }

func (p *Passthrough) Schema() Schema { return Schema{Type: "passthrough"} }

func (p *Passthrough) Prepare(sampleRate, blockSize int) error { return nil }

func (p *Passthrough) SetParam(name string, value float64, immediate bool) error {
	return fmt.Errorf("passthrough: unknown param %q", name)
}

func (p *Passthrough) SetGate(on bool) {}

func (p *Passthrough) Process(input, output []float32) { copy(output, input) }

func (p *Passthrough) StateSnapshot() map[string]float64 { return map[string]float64{} }
