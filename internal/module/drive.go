package module

import (
	"fmt"

	"github.com/Norsninja/music-chronus/internal/dsp"
)

const maxOverdrive = 4.0

// Drive applies tanh waveshaping for overdrive/distortion, via the
// allocation-free LUT in dsp.FastTanh rather than math.Tanh per sample.
type Drive struct {
	amount *dsp.Smoother
}

func NewDrive() Module { return &Drive{} }

func (d *Drive) Schema() Schema {
	return Schema{
		Type: "drive",
		Params: []ParamSchema{
			{Name: "amount", Min: 0, Max: 1, Default: 0, Unit: "linear", Smoothing: dsp.SmoothLinear, WindowMS: dsp.DefaultAmplitudeMS},
		},
	}
}

func (d *Drive) Prepare(sampleRate, blockSize int) error {
	d.amount = dsp.NewSmoother(dsp.SmoothLinear, dsp.WindowSamples(dsp.DefaultAmplitudeMS, sampleRate), 0)
	return nil
}

func (d *Drive) SetParam(name string, value float64, immediate bool) error {
	if name != "amount" {
		return fmt.Errorf("drive: unknown param %q", name)
	}
	if immediate {
		d.amount.SetImmediate(value)
	} else {
		d.amount.SetTarget(value)
	}
	return nil
}

func (d *Drive) SetGate(on bool) {}

func (d *Drive) Process(input, output []float32) {
	for i, in := range input {
		gain := 1 + float32(d.amount.Tick())*maxOverdrive
		if gain <= 1 {
			output[i] = in
			continue
		}
		output[i] = dsp.FastTanh(in * gain)
	}
}

func (d *Drive) StateSnapshot() map[string]float64 {
	return map[string]float64{"amount": d.amount.Value()}
}

// Limiter is a hard clip to [-1, 1], intended as the final safety
// stage at a patch's sink.
type Limiter struct{}

func NewLimiter() Module { return &Limiter{} }

func (l *Limiter) Schema() Schema { return Schema{Type: "limiter"} }

func (l *Limiter) Prepare(sampleRate, blockSize int) error { return nil }

func (l *Limiter) SetParam(name string, value float64, immediate bool) error {
	return fmt.Errorf("limiter: unknown param %q", name)
}

func (l *Limiter) SetGate(on bool) {}

func (l *Limiter) Process(input, output []float32) {
	for i, in := range input {
		output[i] = clamp32(in, -1, 1)
	}
}

func (l *Limiter) StateSnapshot() map[string]float64 { return map[string]float64{} }
