// Package worker implements the renderer process: it owns a module
// host, drains command/patch frames from the supervisor over a framed
// stdin pipe, paces block production against a monotonic frame index,
// and publishes finished blocks FIFO onto a local audio ring that a
// pump goroutine frames onto stdout.
//
// Crash isolation comes from the OS process boundary, while the rings
// themselves stay allocation-free, lock-free SPSC structures, now
// straddling a pipe instead of a single shared address space. See
// DESIGN.md for the full rationale.
package worker

import (
	"fmt"
	"io"
	"time"

	"github.com/Norsninja/music-chronus/internal/config"
	"github.com/Norsninja/music-chronus/internal/host"
	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/ring"
	"github.com/Norsninja/music-chronus/internal/shm"
)

// Options configures one worker process instance.
type Options struct {
	Slot    int
	ShmPath string
	Cfg     config.Config
}

// Run blocks for the lifetime of the worker process: it opens the
// shared-memory region the supervisor also has mapped, renders audio
// until shutdown is requested, and returns when the scheduler loop
// exits. stdin carries frames from the supervisor; stdout carries
// rendered audio blocks back.
func Run(opts Options, stdin io.Reader, stdout io.Writer) error {
	region, err := shm.Open(opts.ShmPath, shm.StateSize)
	if err != nil {
		return fmt.Errorf("worker: open shm: %w", err)
	}
	defer region.Close()
	state := shm.NewSharedState(region)

	registry := module.NewRegistry()
	if err := module.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("worker: register builtins: %w", err)
	}

	h := host.New(registry)
	h.Prepare(opts.Cfg.SampleRate, opts.Cfg.BufferSize)

	localRing := ring.NewAudioRing(opts.Cfg.NumBuffers, opts.Cfg.BufferSize)

	w := ipc.NewWriter(stdout)
	r := ipc.NewReader(stdin)

	frames := make(chan ipc.Frame, 256)
	go func() {
		defer close(frames)
		for {
			f, err := r.ReadFrame()
			if err != nil {
				return
			}
			frames <- f
		}
	}()

	stopPump := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		runAudioPump(localRing, w, stopPump)
	}()

	sched := &scheduler{
		cfg:       opts.Cfg,
		slot:      opts.Slot,
		state:     state,
		host:      h,
		localRing: localRing,
		frames:    frames,
	}
	runErr := sched.run()

	close(stopPump)
	<-pumpDone
	return runErr
}

// runAudioPump drains localRing in strict FIFO order onto the pipe,
// forwarding every block the scheduler produces. Unlike the
// supervisor's final consumer (latest-wins-with-cushion), every block
// that crosses this boundary must survive, so it uses ReadNext rather
// than ReadLatestKeep. It exits when stop is closed or the pipe write
// fails (supervisor gone).
func runAudioPump(r *ring.AudioRing, w *ipc.Writer, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		block, _, ok := r.ReadNext()
		if !ok {
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Microsecond):
			}
			continue
		}
		if err := w.WriteAudioBlock(block); err != nil {
			return
		}
	}
}
