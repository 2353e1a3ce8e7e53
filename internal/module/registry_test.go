package module

import "testing"

func TestRegisterBuiltinsAllValidateSuccessfully(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, typ := range []string{
		"sine", "square", "triangle", "noise",
		"adsr", "biquad_lowpass", "biquad_highpass", "biquad_bandpass",
		"reverb", "drive", "limiter", "mixer", "passthrough",
	} {
		if _, ok := r.Schema(typ); !ok {
			t.Fatalf("missing schema for %q", typ)
		}
	}
}

func TestRegistryRejectsDuplicateType(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("sine", NewSine); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("sine", NewSine); err == nil {
		t.Fatal("expected error registering duplicate type")
	}
}

func TestRegistryNewReturnsFreshUnpreparedInstances(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatal(err)
	}
	a, err := r.New("sine")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.New("sine")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct instances")
	}
}

func TestRegistryUnknownTypeErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("nope"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
