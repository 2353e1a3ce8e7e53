package worker

import (
	"time"

	log "github.com/charmbracelet/log"

	"github.com/Norsninja/music-chronus/internal/config"
	"github.com/Norsninja/music-chronus/internal/host"
	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/ring"
	"github.com/Norsninja/music-chronus/internal/shm"
)

// spinWindow is how close to a deadline the scheduler busy-waits
// instead of sleeping, trading a little CPU for landing close to the
// frame boundary (time.Sleep's OS-scheduler granularity is too coarse
// to trust for the last stretch).
const spinWindow = time.Millisecond

// anchorResetGrace is added to MaxCatchup block-periods before the
// scheduler gives up on catching up and resets its anchor instead of
// continuing to burn through a backlog that can no longer matter to a
// listener.
const anchorResetGrace = 1.0

// scheduler implements the anchored/frame-indexed pacing loop: blocks
// are produced against a fixed anchor time plus an integer frame
// count, never against "now" directly, so that a GC pause or
// scheduling hiccup doesn't compound into permanent drift -- the loop
// either catches up within MaxCatchup blocks or resets its anchor.
type scheduler struct {
	cfg   config.Config
	slot  int
	state *shm.SharedState
	host  *host.Host

	localRing *ring.AudioRing
	frames    <-chan ipc.Frame

	period      time.Duration
	earlyMargin time.Duration
}

// run drives the loop until shutdown is requested or the supervisor
// link closes. It never returns an error for ordinary shutdown; a
// non-nil error indicates an unrecoverable rendering failure.
func (s *scheduler) run() error {
	s.period = time.Duration(float64(s.cfg.BufferSize) / float64(s.cfg.SampleRate) * float64(time.Second))
	s.earlyMargin = time.Duration(s.cfg.EarlyMarginMS) * time.Millisecond

	t0 := time.Now()
	var n int64

	for {
		if !s.drainFrames() {
			return nil
		}
		if s.state.ShutdownRequested(s.slot) {
			return nil
		}

		now := time.Now()
		for catchup := 0; catchup < s.cfg.MaxCatchup; catchup++ {
			deadline := t0.Add(time.Duration(n+1) * s.period)
			if now.Before(deadline.Add(-s.earlyMargin)) {
				break
			}
			// Backpressure is against the local ring only: the pump
			// drains it at pipe speed, so staying LeadTarget ahead
			// here bounds how far rendering runs in front of real
			// time without ever pausing heartbeat production.
			if s.localRing.Occupancy() >= s.cfg.LeadTarget {
				break
			}
			block, err := s.host.ProcessChain()
			if err != nil {
				log.Errorf("worker: slot %d process chain: %v, using last_good", s.slot, err)
				block = s.host.LastGood()
			}
			if err := s.localRing.Write(block); err != nil {
				s.state.AddWritesDropped(s.slot, 1)
			}
			s.state.IncrementHeartbeat(s.slot)
			n++
			now = time.Now()
		}

		lag := now.Sub(t0) - time.Duration(n)*s.period
		if lag > time.Duration(s.cfg.MaxCatchup)*s.period+time.Duration(anchorResetGrace*float64(s.period)) {
			log.Errorf("worker: slot %d lag %v exceeds catch-up budget, resetting anchor (consumer ring occupancy %d)",
				s.slot, lag, s.state.Occupancy(s.slot))
			t0 = now
			n = 0
		}

		s.sleepUntil(t0.Add(time.Duration(n+1)*s.period - s.earlyMargin))
	}
}

// sleepUntil blocks until deadline, sleeping coarsely until the final
// spinWindow and then busy-waiting to land close to it.
func (s *scheduler) sleepUntil(deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > spinWindow {
			time.Sleep(remaining - spinWindow/2)
			continue
		}
		for time.Now().Before(deadline) {
		}
		return
	}
}

// drainFrames applies every frame currently queued without blocking,
// so command and patch traffic is fully drained before the next block
// renders. Returns false if the supervisor link closed or an explicit
// shutdown frame arrived.
func (s *scheduler) drainFrames() bool {
	for {
		select {
		case f, ok := <-s.frames:
			if !ok {
				return false
			}
			if !s.applyFrame(f) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *scheduler) applyFrame(f ipc.Frame) bool {
	switch f.Type {
	case ipc.TypeCommand:
		rec, err := ipc.DecodeCommand(f)
		if err != nil {
			log.Errorf("worker: slot %d malformed command frame: %v", s.slot, err)
			return true
		}
		if err := s.host.EnqueueRecord(rec); err != nil {
			log.Errorf("worker: slot %d dropped invalid command: %v", s.slot, err)
		}
	case ipc.TypePatchOp:
		op, err := ipc.DecodePatchOp(f)
		if err != nil {
			log.Errorf("worker: slot %d malformed patch frame: %v", s.slot, err)
			return true
		}
		s.applyPatchOp(op)
	case ipc.TypeShutdown:
		return false
	}
	return true
}

func (s *scheduler) applyPatchOp(op ipc.PatchOp) {
	switch op.Kind {
	case ipc.PatchCreate:
		if err := s.host.CreateModule(op.ModuleID, op.TypeName); err != nil {
			log.Errorf("worker: slot %d create %s (%s): %v", s.slot, op.ModuleID, op.TypeName, err)
		}
	case ipc.PatchConnect:
		if err := s.host.Connect(op.SourceID, op.DestID); err != nil {
			log.Errorf("worker: slot %d connect %s->%s: %v", s.slot, op.SourceID, op.DestID, err)
		}
	case ipc.PatchDisconnect:
		if err := s.host.Disconnect(op.SourceID, op.DestID); err != nil {
			log.Errorf("worker: slot %d disconnect %s->%s: %v", s.slot, op.SourceID, op.DestID, err)
		}
	case ipc.PatchDelete:
		if err := s.host.DeleteModule(op.ModuleID); err != nil {
			log.Errorf("worker: slot %d delete %s: %v", s.slot, op.ModuleID, err)
		}
	case ipc.PatchSet:
		if err := s.host.ApplyImmediate(op.ModuleID, op.Param, op.Value, false); err != nil {
			log.Errorf("worker: slot %d prime set %s.%s: %v", s.slot, op.ModuleID, op.Param, err)
		}
	case ipc.PatchGate:
		if err := s.host.ApplyImmediate(op.ModuleID, "", op.Value, true); err != nil {
			log.Errorf("worker: slot %d prime gate %s: %v", s.slot, op.ModuleID, err)
		}
	case ipc.PatchPrime:
		s.prime(op)
	case ipc.PatchCommit:
		// Nothing left to do: prime already rendered and marked
		// prime_ready; commit is a marker for the supervisor's own
		// orchestration, not a worker-side action.
	case ipc.PatchAbort:
		s.host.Reset()
		s.state.SetPrimeReady(s.slot, false)
	}
}

// prime applies a batch of graph edits immediately, then renders the
// warmup through host.RenderWarmup, pushing each block into the local
// ring so a successful prime leaves the ring already fed. prime_ready
// is set only if the warmup carried audible energy (or the op says
// silence is acceptable, as rebuild primes do).
func (s *scheduler) prime(op ipc.PatchOp) {
	for _, sub := range op.Ops {
		s.applyPatchOp(sub)
	}

	warmup := op.WarmupCount
	if warmup <= 0 {
		warmup = 1
	}
	nonSilent, err := s.host.RenderWarmup(warmup, func(block []float32) {
		if err := s.localRing.Write(block); err != nil {
			s.state.AddWritesDropped(s.slot, 1)
		}
		s.state.IncrementHeartbeat(s.slot)
	})
	if err != nil {
		log.Errorf("worker: slot %d warmup render failed: %v", s.slot, err)
		return
	}

	if nonSilent || op.AllowSilent {
		s.state.SetPrimeReady(s.slot, true)
	} else {
		log.Errorf("worker: slot %d prime warmup silent, leaving prime_ready unset", s.slot)
	}
}
