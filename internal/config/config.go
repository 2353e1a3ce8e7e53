// Package config reads the engine's environment-variable runtime
// surface with plain os.Getenv/strconv parsing; a dozen integer knobs
// with fixed defaults don't warrant a configuration library.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable named in the runtime/config surface, each
// with its documented default.
type Config struct {
	BufferSize     int // BUFFER_SIZE: block size B in samples.
	SampleRate     int // SAMPLE_RATE.
	NumBuffers     int // NUM_BUFFERS: N_a per audio ring.
	LeadTarget     int // LEAD_TARGET: worker lead target in blocks.
	MaxCatchup     int // MAX_CATCHUP: max blocks produced per loop iteration.
	EarlyMarginMS  int // EARLY_MARGIN_MS.
	KeepAfterRead  int // KEEP_AFTER_READ: consumer cushion.
	PrefillBuffers int // PREFILL_BUFFERS: warmup block count on prime.
	PrimeTimeoutMS int // PRIME_TIMEOUT_MS.
	OSCHost        string
	OSCPort        int
}

// Default returns the documented defaults, unaffected by environment.
func Default() Config {
	return Config{
		BufferSize:     512,
		SampleRate:     48000,
		NumBuffers:     16,
		LeadTarget:     2,
		MaxCatchup:     2,
		EarlyMarginMS:  2,
		KeepAfterRead:  2,
		PrefillBuffers: 4,
		PrimeTimeoutMS: 500,
		OSCHost:        "127.0.0.1",
		OSCPort:        5005,
	}
}

// Load starts from Default and overrides each field whose environment
// variable is set and parses cleanly; a present-but-unparsable value is
// reported as an error rather than silently ignored.
func Load() (Config, error) {
	c := Default()
	var errs []error

	c.BufferSize = envInt("BUFFER_SIZE", c.BufferSize, &errs)
	c.SampleRate = envInt("SAMPLE_RATE", c.SampleRate, &errs)
	c.NumBuffers = envInt("NUM_BUFFERS", c.NumBuffers, &errs)
	c.LeadTarget = envInt("LEAD_TARGET", c.LeadTarget, &errs)
	c.MaxCatchup = envInt("MAX_CATCHUP", c.MaxCatchup, &errs)
	c.EarlyMarginMS = envInt("EARLY_MARGIN_MS", c.EarlyMarginMS, &errs)
	c.KeepAfterRead = envInt("KEEP_AFTER_READ", c.KeepAfterRead, &errs)
	c.PrefillBuffers = envInt("PREFILL_BUFFERS", c.PrefillBuffers, &errs)
	c.PrimeTimeoutMS = envInt("PRIME_TIMEOUT_MS", c.PrimeTimeoutMS, &errs)
	c.OSCPort = envInt("OSC_PORT", c.OSCPort, &errs)
	if v := os.Getenv("OSC_HOST"); v != "" {
		c.OSCHost = v
	}

	if len(errs) > 0 {
		return c, fmt.Errorf("config: %d invalid environment variable(s), first: %w", len(errs), errs[0])
	}
	return c, nil
}

func envInt(name string, def int, errs *[]error) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q: %w", name, v, err))
		return def
	}
	return n
}
