// Package supervisor implements the long-lived process that owns both
// worker slots: it spawns and monitors the two worker subprocesses,
// fans every inbound command out to both, carries patch edits to the
// standby slot's prime/commit flow, and exposes the real-time audio
// callback that performs the active-slot read and failover flip.
//
// Cross-process coordination splits across two mechanisms: mmap'd
// shm.SharedState carries active_index, pending_switch, heartbeats,
// prime_ready and shutdown flags -- the scalars that must be visible
// without a message round-trip -- while audio blocks and command/patch
// frames cross each worker's stdin/stdout pipe framed by internal/ipc.
// See DESIGN.md for the full rationale.
package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/charmbracelet/log"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
	"github.com/Norsninja/music-chronus/internal/config"
	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/shm"
)

// heartbeatStallMargin is added to one block period to form the stall
// window: how long a slot's heartbeat may go unchanged before the
// monitor treats the worker as failed even if the OS process is
// technically still alive (e.g. deadlocked). A bare constant would
// false-positive at large block sizes, so the window is derived from
// the configured block period at New time.
const heartbeatStallMargin = 5 * time.Millisecond

const monitorTick = 2 * time.Millisecond

// respawnGrace is how long a retired worker gets to exit cooperatively
// (it polls its shutdown flag once per scheduler iteration) before the
// supervisor kills it.
const respawnGrace = 500 * time.Millisecond

// startupGrace exempts a freshly spawned worker from heartbeat stall
// detection while the OS exec and runtime bring-up complete; without
// it every spawn slower than one stall window would be recycled on
// sight. Process-exit detection is not deferred.
const startupGrace = 300 * time.Millisecond

// Supervisor owns both worker slots and the active-slot audio callback.
type Supervisor struct {
	cfg      config.Config
	registry *module.Registry
	exePath  string
	shmPath  string
	region   *shm.Region
	state    *shm.SharedState

	slots [2]*slotState

	activeIdx     atomic.Int32
	pendingSwitch atomic.Bool
	respawnCh     chan int

	lastHeartbeat [2]uint64
	staleSince    [2]time.Time
	spawnedAt     [2]time.Time
	stallWindow   time.Duration

	droppedCommands atomic.Uint64

	// Patch history: the committed edit log plus the latest broadcast
	// parameter/gate values, replayed into every freshly spawned worker
	// so a new standby starts from the graph the listener is hearing
	// rather than from nothing. pendingOps accumulates edits since the
	// last successful commit.
	patchMu      sync.Mutex
	committedOps []ipc.PatchOp
	pendingOps   []ipc.PatchOp
	lastParams   map[paramKey]float64
	lastGates    map[string]bool

	stopMonitor chan struct{}
	monitorDone chan struct{}

	mu sync.Mutex
}

type paramKey struct {
	module string
	param  string
}

// New constructs a Supervisor, opens the shared-memory region at
// shmPath (creating it if absent), and spawns both worker processes.
func New(cfg config.Config, registry *module.Registry, shmPath string) (*Supervisor, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolve executable path: %w", err)
	}

	region, err := shm.Open(shmPath, shm.StateSize)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open shm: %w", err)
	}

	s := &Supervisor{
		cfg:         cfg,
		registry:    registry,
		exePath:     exePath,
		shmPath:     shmPath,
		region:      region,
		state:       shm.NewSharedState(region),
		respawnCh:   make(chan int, 2),
		lastParams:  make(map[paramKey]float64),
		lastGates:   make(map[string]bool),
		stallWindow: time.Duration(float64(cfg.BufferSize)/float64(cfg.SampleRate)*float64(time.Second)) + heartbeatStallMargin,
		stopMonitor: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
	for i := 0; i < 2; i++ {
		s.slots[i] = newSlotState(i, cfg.NumBuffers, cfg.BufferSize)
	}

	s.state.SetActiveIndex(0)
	s.state.SetPendingSwitch(false)
	s.activeIdx.Store(0)

	for i := 0; i < 2; i++ {
		if err := s.spawnWorker(i); err != nil {
			return nil, fmt.Errorf("supervisor: spawn slot %d: %w", i, err)
		}
	}

	go s.monitorLoop()
	return s, nil
}

// spawnWorker starts (or restarts) the worker subprocess for idx,
// tearing down any previous generation's pump goroutines first. Caller
// must hold s.mu when idx is the active slot's replacement path, but
// spawnWorker itself is safe to call concurrently for different slots.
func (s *Supervisor) spawnWorker(idx int) error {
	sl := s.slots[idx]
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.stopPumps != nil {
		close(sl.stopPumps)
	}
	sl.cmdRing.Reset()

	cmd := exec.Command(s.exePath, "-worker", "-slot", strconv.Itoa(idx), "-shm", s.shmPath)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	s.state.ClearShutdown(idx)
	s.state.SetPrimeReady(idx, false)

	sl.cmd = cmd
	sl.stdinW = ipc.NewWriter(stdin)
	procDone := make(chan struct{})
	sl.procDone = procDone
	stop := make(chan struct{})
	sl.stopPumps = stop

	go func() {
		cmd.Wait()
		close(procDone)
	}()
	go s.runCommandPump(sl, stop)
	go s.runPatchPump(sl, stop)
	go s.runAudioIntake(sl, stdout, stop)

	// A replacement worker starts from nothing; hand it the committed
	// graph and latest parameter state so it is audibly interchangeable
	// with the worker it replaced.
	s.patchMu.Lock()
	s.replayCommittedLocked(sl)
	s.patchMu.Unlock()

	s.spawnedAt[idx] = time.Now()

	log.Infof("supervisor: spawned worker pid=%d slot=%d", cmd.Process.Pid, idx)
	return nil
}

func (s *Supervisor) runCommandPump(sl *slotState, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		rec, ok := sl.cmdRing.Read()
		if !ok {
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Microsecond):
			}
			continue
		}
		sl.mu.Lock()
		w := sl.stdinW
		sl.mu.Unlock()
		if w == nil {
			continue
		}
		if err := w.WriteCommand(rec); err != nil {
			return
		}
	}
}

func (s *Supervisor) runPatchPump(sl *slotState, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case op := <-sl.patchCh:
			payload, err := ipc.EncodePatchOp(op)
			if err != nil {
				log.Errorf("supervisor: slot %d encode patch op: %v", sl.idx, err)
				continue
			}
			sl.mu.Lock()
			w := sl.stdinW
			sl.mu.Unlock()
			if w == nil {
				continue
			}
			if err := w.WritePatchOp(payload); err != nil {
				return
			}
		}
	}
}

func (s *Supervisor) runAudioIntake(sl *slotState, stdout io.Reader, stop <-chan struct{}) {
	_ = stop // the reader self-terminates on EOF when the pipe closes
	r := ipc.NewReader(stdout)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			return
		}
		if f.Type != ipc.TypeAudioBlock {
			continue
		}
		block, err := ipc.DecodeAudioBlock(f)
		if err != nil {
			continue
		}
		if err := sl.audioRing.Write(block); err != nil {
			s.state.AddWritesDropped(sl.idx, 1)
		}
		s.state.SetOccupancy(sl.idx, sl.audioRing.Occupancy())
	}
}

// BroadcastCommand fans rec out to both slots' command rings. This is
// the Sink-side half of the transport contract (internal/transport):
// every Set/Gate record a client sends reaches both the active and
// standby worker, so the standby's graph never drifts from the
// active's. The latest value per parameter and gate is also retained
// for replay into freshly spawned workers.
func (s *Supervisor) BroadcastCommand(rec [cmdrec.Size]byte) {
	for i := range s.slots {
		if err := s.slots[i].cmdRing.Write(rec); err != nil {
			s.droppedCommands.Add(1)
		}
	}
	decoded, err := cmdrec.Unpack(rec)
	if err != nil {
		return
	}
	s.patchMu.Lock()
	switch decoded.Op {
	case cmdrec.OpSet:
		s.lastParams[paramKey{decoded.Module(), decoded.ParamName()}] = decoded.Float64()
	case cmdrec.OpGate:
		s.lastGates[decoded.Module()] = decoded.Bool()
	}
	s.patchMu.Unlock()
}

func (s *Supervisor) standbyIndex() int { return 1 - int(s.activeIdx.Load()) }

// DispatchPatch routes a patch-edit op to the standby slot's queue. A
// PatchCommit is expanded into a prime step (rendering WarmupCount
// blocks and checking for silence) followed by the literal commit
// marker, then kicks off orchestrateCommit to poll prime_ready with a
// bounded timeout before flipping pending_switch.
func (s *Supervisor) DispatchPatch(op ipc.PatchOp) {
	idx := s.standbyIndex()
	sl := s.slots[idx]

	switch op.Kind {
	case ipc.PatchCommit:
		// Make room for the warmup blocks: the standby ring has had no
		// consumer since the last switch, so it is usually full of old
		// audio that would otherwise force the warmup to be dropped on
		// arrival.
		s.drainStandbyRing(idx, s.cfg.KeepAfterRead)
		s.patchMu.Lock()
		s.enqueuePatch(sl, ipc.PatchOp{Kind: ipc.PatchPrime, WarmupCount: s.cfg.PrefillBuffers})
		s.enqueuePatch(sl, op)
		s.patchMu.Unlock()
		go s.orchestrateCommit(idx)
	case ipc.PatchAbort:
		s.abortStandby(idx)
	default:
		s.patchMu.Lock()
		s.pendingOps = append(s.pendingOps, op)
		s.enqueuePatch(sl, op)
		s.patchMu.Unlock()
	}
}

// abortStandby discards the edits accumulated since the last commit and
// restores the standby worker to the committed graph: the worker resets
// itself to empty on the abort op, then the committed history is
// replayed on top.
func (s *Supervisor) abortStandby(idx int) {
	sl := s.slots[idx]
	s.patchMu.Lock()
	defer s.patchMu.Unlock()
	s.pendingOps = nil
	s.enqueuePatch(sl, ipc.PatchOp{Kind: ipc.PatchAbort})
	s.replayCommittedLocked(sl)
}

// replayCommittedLocked rebuilds the committed graph on sl's worker:
// the committed edit log, then a warmup prime carrying the latest
// broadcast parameter values and gate states. The prime allows silence
// because a faithfully rebuilt graph may legitimately be quiet (every
// gate off); it still marks the slot hot for failover. A worker that
// predates any commit gets nothing -- there is no graph to rebuild.
// Caller holds patchMu.
func (s *Supervisor) replayCommittedLocked(sl *slotState) {
	if len(s.committedOps) == 0 {
		return
	}
	for _, op := range s.committedOps {
		s.enqueuePatch(sl, op)
	}
	prime := ipc.PatchOp{Kind: ipc.PatchPrime, WarmupCount: s.cfg.PrefillBuffers, AllowSilent: true}
	for key, v := range s.lastParams {
		prime.Ops = append(prime.Ops, ipc.PatchOp{Kind: ipc.PatchSet, ModuleID: key.module, Param: key.param, Value: v})
	}
	for id, on := range s.lastGates {
		var v float64
		if on {
			v = 1
		}
		prime.Ops = append(prime.Ops, ipc.PatchOp{Kind: ipc.PatchGate, ModuleID: id, Value: v})
	}
	s.enqueuePatch(sl, prime)
}

// drainStandbyRing discards queued audio on idx's ring down to keep
// blocks. Only legal while the slot is standby with no switch pending:
// then the audio callback is not this ring's consumer, so a control
// goroutine may stand in as one. The slot mutex serializes the two
// control-plane callers against each other.
func (s *Supervisor) drainStandbyRing(idx, keep int) {
	if s.pendingSwitch.Load() {
		return
	}
	sl := s.slots[idx]
	sl.mu.Lock()
	defer sl.mu.Unlock()
	for sl.audioRing.Occupancy() > keep {
		if _, _, ok := sl.audioRing.ReadNext(); !ok {
			return
		}
	}
}

func (s *Supervisor) enqueuePatch(sl *slotState, op ipc.PatchOp) {
	select {
	case sl.patchCh <- op:
	default:
		sl.patchDrops.Add(1)
		log.Warnf("supervisor: patch queue full on slot %d, dropping %s", sl.idx, op.Kind)
	}
}

// orchestrateCommit polls prime_ready on idx until it is set or
// PrimeTimeoutMS elapses. On success it discards the stale audio that
// accumulated in the standby's consumer-less ring, keeping only the
// freshly primed tail, then raises pending_switch so the next audio
// callback tick performs the flip. On timeout it logs and aborts the
// standby's half-built patch rather than leaving it to linger into the
// next commit attempt.
func (s *Supervisor) orchestrateCommit(idx int) {
	deadline := time.Now().Add(time.Duration(s.cfg.PrimeTimeoutMS) * time.Millisecond)
	for time.Now().Before(deadline) {
		if s.state.PrimeReady(idx) {
			// The edits just proved out on the standby; they are now
			// part of the graph every future worker must be rebuilt to.
			s.patchMu.Lock()
			s.committedOps = append(s.committedOps, s.pendingOps...)
			s.pendingOps = nil
			s.patchMu.Unlock()
			// The callback must not start from audio that predates the
			// prime; keep only the freshest blocks (the warmup tail and
			// anything rendered since).
			s.drainStandbyRing(idx, s.cfg.PrefillBuffers)
			s.pendingSwitch.Store(true)
			s.state.SetPendingSwitch(true)
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	log.Errorf("supervisor: prime timed out on slot %d after %dms, keeping current active", idx, s.cfg.PrimeTimeoutMS)
	s.abortStandby(idx)
}

// Shutdown requests cooperative shutdown on both slots via the shared
// shutdown flag, waits up to grace for each worker to exit, and kills
// any that don't. Workers poll the flag every scheduler iteration;
// ring-based shutdown signaling is deliberately avoided (a dropped or
// coalesced shutdown record in the command ring would be unrecoverable).
func (s *Supervisor) Shutdown(grace time.Duration) {
	close(s.stopMonitor)
	<-s.monitorDone

	for i := range s.slots {
		s.state.RequestShutdown(i)
	}
	for i := range s.slots {
		sl := s.slots[i]
		select {
		case <-sl.procDone:
		case <-time.After(grace):
			sl.mu.Lock()
			cmd := sl.cmd
			sl.mu.Unlock()
			if cmd != nil && cmd.Process != nil {
				log.Errorf("supervisor: slot %d did not exit within grace period, killing", i)
				cmd.Process.Kill()
			}
			<-sl.procDone
		}
	}
	s.region.Close()
}

// Registry exposes the module registry for schema reporting.
func (s *Supervisor) Registry() *module.Registry { return s.registry }
