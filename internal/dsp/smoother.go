package dsp

import "math"

// SmoothMode selects how a Smoother moves its current value toward a
// newly written target.
type SmoothMode int

const (
	// SmoothNone applies the target immediately at the next block
	// boundary; there is no per-sample ramp.
	SmoothNone SmoothMode = iota
	// SmoothLinear moves current toward target in a straight line over
	// Window samples. A target change mid-ramp restarts the ramp from
	// the current sample value.
	SmoothLinear
	// SmoothOnePole moves current toward target with an exponential
	// step response that reaches 1-e⁻¹ of the distance in Window
	// samples.
	SmoothOnePole
)

// Default smoothing windows, in milliseconds, converted per sample rate
// via WindowSamples. Amplitude moves fastest, filter coefficients
// slowest; gates and triggers are never smoothed.
const (
	DefaultAmplitudeMS = 8.0
	DefaultFilterMS    = 22.0
	DefaultFreqMS      = 15.0
)

// WindowSamples converts a millisecond window to a sample count at the
// given sample rate, with a minimum of 1 to keep the one-pole coefficient
// well-defined.
func WindowSamples(ms float64, sampleRate int) int {
	n := int(ms * float64(sampleRate) / 1000.0)
	if n < 1 {
		n = 1
	}
	return n
}

// Smoother tracks one parameter's current value against a target, ramping
// per Mode. It performs no allocation after construction; SetTarget and
// Tick/TickBlock are lock-free and wait-free (plain float64 fields, called
// only from the single thread owning the module).
type Smoother struct {
	mode    SmoothMode
	window  int // samples
	current float64
	target  float64

	// Linear ramp state.
	step      float64
	remaining int

	// One-pole coefficient, chosen so the step response reaches 1-e⁻¹
	// of the distance in `window` samples.
	alpha float64
}

// NewSmoother constructs a smoother initialized to value, with window
// expressed in samples (0 or negative is treated as SmoothNone regardless
// of mode, since a sub-one-sample ramp is meaningless).
func NewSmoother(mode SmoothMode, window int, value float64) *Smoother {
	s := &Smoother{mode: mode, window: window, current: value, target: value}
	if window <= 0 {
		s.mode = SmoothNone
	} else if mode == SmoothOnePole {
		s.alpha = 1 - math.Exp(-1/float64(window))
	}
	return s
}

// Value returns the current (already-smoothed) value without advancing it.
func (s *Smoother) Value() float64 { return s.current }

// Target returns the pending target value.
func (s *Smoother) Target() float64 { return s.target }

// SetImmediate writes current and target together, bypassing any ramp.
// Used for set_param(..., immediate=true) and for prime-time parameter
// application.
func (s *Smoother) SetImmediate(v float64) {
	s.current = v
	s.target = v
	s.remaining = 0
}

// SetTarget stages v as the new target for set_param(..., immediate=false).
// Writing the current target again is idempotent: it does not restart a
// linear ramp or perturb current. If mode is SmoothNone, the value is
// applied immediately (there is no ramp to stage).
func (s *Smoother) SetTarget(v float64) {
	if v == s.target {
		return
	}
	s.target = v
	switch s.mode {
	case SmoothNone:
		s.current = v
	case SmoothLinear:
		s.step = (v - s.current) / float64(s.window)
		s.remaining = s.window
	case SmoothOnePole:
		// alpha-driven; nothing to precompute besides the new target.
	}
}

// Tick advances the smoother by one sample and returns the new current
// value. Safe to call even when current already equals target (becomes a
// no-op read).
//
//go:nosplit
func (s *Smoother) Tick() float64 {
	switch s.mode {
	case SmoothLinear:
		if s.remaining > 0 {
			s.current += s.step
			s.remaining--
			if s.remaining == 0 {
				s.current = s.target
			}
		}
	case SmoothOnePole:
		s.current += (s.target - s.current) * s.alpha
	}
	return s.current
}

// TickBlock advances the smoother by n samples in closed form (no
// per-sample loop), which is the cheaper choice for parameters whose
// audio-rate sensitivity is low enough to update once per block.
func (s *Smoother) TickBlock(n int) float64 {
	if n <= 0 {
		return s.current
	}
	switch s.mode {
	case SmoothLinear:
		if s.remaining > 0 {
			steps := n
			if steps > s.remaining {
				steps = s.remaining
			}
			s.current += s.step * float64(steps)
			s.remaining -= steps
			if s.remaining == 0 {
				s.current = s.target
			}
		}
	case SmoothOnePole:
		// current_after_n = target + (current-target)*(1-alpha)^n
		factor := math.Pow(1-s.alpha, float64(n))
		s.current = s.target + (s.current-s.target)*factor
	}
	return s.current
}

// Settled reports whether current has converged to within eps of target.
func (s *Smoother) Settled(eps float64) bool {
	d := s.current - s.target
	if d < 0 {
		d = -d
	}
	return d < eps
}
