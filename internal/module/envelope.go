package module

import "fmt"

// envPhase sequences the attack/decay/sustain/release stages.
type envPhase int

const (
	envAttack envPhase = iota
	envDecay
	envSustain
	envRelease
	envIdle
)

// Envelope is a linear ADSR gate-driven amplitude envelope. It
// multiplies its input signal by the current envelope level, so it is
// normally patched between an oscillator and the rest of the chain.
type Envelope struct {
	sampleRate float64

	attackMS  float64
	decayMS   float64
	sustain   float64
	releaseMS float64

	attackSamples  int
	decaySamples   int
	releaseSamples int

	phase        envPhase
	sample       int
	level        float32
	releaseStart float32
	gateOn       bool
}

func NewEnvelope() Module { return &Envelope{} }

func (e *Envelope) Schema() Schema {
	return Schema{
		Type: "adsr",
		Params: []ParamSchema{
			{Name: "attack", Min: 0, Max: 20000, Default: 5, Unit: "ms"},
			{Name: "decay", Min: 0, Max: 20000, Default: 100, Unit: "ms"},
			{Name: "sustain", Min: 0, Max: 1, Default: 0.7, Unit: "linear"},
			{Name: "release", Min: 0, Max: 20000, Default: 200, Unit: "ms"},
		},
		HasGate: true,
	}
}

func (e *Envelope) Prepare(sampleRate, blockSize int) error {
	e.sampleRate = float64(sampleRate)
	e.attackMS = 5
	e.decayMS = 100
	e.sustain = 0.7
	e.releaseMS = 200
	e.recompute()
	e.phase = envIdle
	e.level = 0
	return nil
}

func (e *Envelope) recompute() {
	e.attackSamples = msToSamples(e.attackMS, e.sampleRate)
	e.decaySamples = msToSamples(e.decayMS, e.sampleRate)
	e.releaseSamples = msToSamples(e.releaseMS, e.sampleRate)
}

func msToSamples(ms, sampleRate float64) int {
	n := int(ms * sampleRate / 1000.0)
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Envelope) SetParam(name string, value float64, immediate bool) error {
	switch name {
	case "attack":
		e.attackMS = value
	case "decay":
		e.decayMS = value
	case "sustain":
		e.sustain = value
	case "release":
		e.releaseMS = value
	default:
		return fmt.Errorf("adsr: unknown param %q", name)
	}
	e.recompute()
	return nil
}

// SetGate opens the envelope on a false->true edge (restarting from
// attack) and releases it on a true->false edge. A repeated gate-on
// while already open does not retrigger.
func (e *Envelope) SetGate(on bool) {
	if on && !e.gateOn {
		e.phase = envAttack
		e.sample = 0
	}
	if !on && e.gateOn && e.phase != envIdle && e.phase != envRelease {
		e.phase = envRelease
		e.sample = 0
		e.releaseStart = e.level
	}
	e.gateOn = on
}

func (e *Envelope) Process(input, output []float32) {
	for i := range output {
		e.tick()
		output[i] = input[i] * e.level
	}
}

func (e *Envelope) tick() {
	switch e.phase {
	case envAttack:
		e.level += 1.0 / float32(e.attackSamples)
		if e.level >= 1.0 {
			e.level = 1.0
			e.phase = envDecay
			e.sample = 0
		}
	case envDecay:
		sustain := float32(e.sustain)
		e.level = 1.0 - (1.0-sustain)*float32(e.sample)/float32(e.decaySamples)
		e.sample++
		if e.sample >= e.decaySamples {
			e.level = sustain
			e.phase = envSustain
		}
	case envSustain:
		e.level = float32(e.sustain)
		if !e.gateOn {
			e.phase = envRelease
			e.sample = 0
			e.releaseStart = e.level
		}
	case envRelease:
		e.sample++
		if e.sample >= e.releaseSamples {
			e.level = 0
			e.phase = envIdle
		} else {
			e.level = e.releaseStart * (1.0 - float32(e.sample)/float32(e.releaseSamples))
		}
	case envIdle:
		e.level = 0
	}
}

func (e *Envelope) StateSnapshot() map[string]float64 {
	return map[string]float64{
		"attack":  e.attackMS,
		"decay":   e.decayMS,
		"sustain": e.sustain,
		"release": e.releaseMS,
		"level":   float64(e.level),
	}
}
