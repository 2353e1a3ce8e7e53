// Package audiodev bridges the supervisor's active-slot audio callback
// to an OS audio backend: a build-tagged real backend (ebitengine/oto)
// plus a headless fallback selected with the "headless" build tag, so
// CI and non-desktop environments never need to link a native audio
// library.
package audiodev

// BlockSource is called by a Device once per fixed-size block of
// samples it needs. Implementations must not allocate or block for
// longer than the device backend's own buffering tolerates; the
// supervisor's callback (internal/supervisor) is the only implementor
// and satisfies the same never-allocate, never-lock discipline the
// rings hold themselves to.
type BlockSource func(dst []float32)

// Device is the OS audio backend adapter. Start begins pulling blocks
// from the configured BlockSource; Stop/Close release backend
// resources. Implementations: OtoDevice (default) and HeadlessDevice
// (headless build tag).
type Device interface {
	Start() error
	Stop()
	Close()
}
