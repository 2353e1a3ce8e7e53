package module

// RegisterBuiltins registers every module type this runtime ships with
// into r. Called once at startup by the worker before it builds any
// patch.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Factory{
		"sine":            NewSine,
		"square":          NewSquare,
		"triangle":        NewTriangle,
		"noise":           NewNoise,
		"adsr":            NewEnvelope,
		"biquad_lowpass":  NewLowPass,
		"biquad_highpass": NewHighPass,
		"biquad_bandpass": NewBandPass,
		"reverb":          NewReverb,
		"drive":           NewDrive,
		"limiter":         NewLimiter,
		"mixer":           NewMixer,
		"passthrough":     NewPassthrough,
	}
	for name, factory := range builtins {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
