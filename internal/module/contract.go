// Package module defines the DSP module contract every node in a patch
// graph implements, plus the type registry used to instantiate them by
// name. Modules never allocate outside Prepare, never block, and never log
// from Process: the same discipline the engine's other real-time paths
// (the audio ring, the command ring) already hold themselves to.
package module

import (
	"fmt"
	"regexp"

	"github.com/Norsninja/music-chronus/internal/dsp"
)

// ParamSchema describes one parameter: its bounds, default, unit, and how
// it should be smoothed when written with immediate=false.
type ParamSchema struct {
	Name      string
	Min       float64
	Max       float64
	Default   float64
	Unit      string
	Smoothing dsp.SmoothMode
	WindowMS  float64 // smoothing window, in milliseconds; 0 for SmoothNone
}

// Schema describes a module type: its parameters and whether it accepts
// gate events.
type Schema struct {
	Type    string
	Params  []ParamSchema
	HasGate bool
}

// Param looks up a parameter's schema by name.
func (s Schema) Param(name string) (ParamSchema, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSchema{}, false
}

// Module is the DSP node contract. Implementations must satisfy:
//   - Process writes exactly B samples to output, where B is the blockSize
//     passed to Prepare.
//   - SetParam and SetGate are lock-free and wait-free; they stage state
//     that Process reads, they never block.
//   - Prepare is the only method permitted to allocate.
type Module interface {
	// Schema returns this module's parameter schema. Safe to call anytime.
	Schema() Schema

	// Prepare performs one-shot initialization (allocating scratch state,
	// precomputing tables) for the given engine sample rate and block
	// size. Called once, before any Process call.
	Prepare(sampleRate, blockSize int) error

	// SetParam stages value for param. If immediate is true it takes
	// effect the moment the next Process call reads it; otherwise it is
	// smoothed in per the schema's Smoothing mode/window.
	SetParam(name string, value float64, immediate bool) error

	// SetGate sets the boolean gate input. A no-op for modules whose
	// schema reports HasGate=false.
	SetGate(on bool)

	// Process reads exactly len(output) samples from input (which may be
	// a shared silent block) and writes exactly len(output) samples to
	// output. Must not allocate, block, or log.
	Process(input, output []float32)

	// StateSnapshot returns the module's current parameter values, keyed
	// by name. Used for status/debugging only; never called from Process.
	StateSnapshot() map[string]float64
}

// identifierPattern mirrors cmdrec's [a-z0-9_]{1,16} rule; module type
// names and ids and parameter names are all validated against it.
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]{1,16}$`)

// ValidIdentifier reports whether s satisfies the shared identifier rule
// used for module ids, type names, and parameter names.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateSchema checks internal consistency: the type name and every
// parameter name satisfy the identifier charset, and each parameter's
// default lies within [Min, Max].
func ValidateSchema(s Schema) error {
	if !ValidIdentifier(s.Type) {
		return fmt.Errorf("module: invalid type name %q", s.Type)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if !ValidIdentifier(p.Name) {
			return fmt.Errorf("module %s: invalid param name %q", s.Type, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("module %s: duplicate param %q", s.Type, p.Name)
		}
		seen[p.Name] = true
		if p.Default < p.Min || p.Default > p.Max {
			return fmt.Errorf("module %s: param %s default %v outside [%v,%v]", s.Type, p.Name, p.Default, p.Min, p.Max)
		}
		if p.Min > p.Max {
			return fmt.Errorf("module %s: param %s has Min > Max", s.Type, p.Name)
		}
	}
	return nil
}
