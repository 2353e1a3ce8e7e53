package supervisor

import (
	"time"

	log "github.com/charmbracelet/log"
)

// Pull implements audiodev.BlockSource: the audio device calls this
// once per block on its own real-time thread. It performs the
// latest-wins-with-cushion read from the active slot, falls back to
// last_good on underrun, and flips the active index when a pending
// switch is armed and the standby is ready -- without allocating,
// locking, or logging, the same discipline the rings hold themselves
// to.
func (s *Supervisor) Pull(dst []float32) {
	idx := int(s.activeIdx.Load())
	sl := s.slots[idx]

	block, _, ok := sl.audioRing.ReadLatestKeep(s.cfg.KeepAfterRead)
	if ok {
		copy(dst, block)
		copy(sl.lastGood, block)
	} else {
		copy(dst, sl.lastGood)
	}

	if s.pendingSwitch.Load() {
		other := 1 - idx
		otherSlot := s.slots[other]
		if s.state.PrimeReady(other) && otherSlot.audioRing.Occupancy() >= 1 {
			s.activeIdx.Store(int32(other))
			s.state.SetActiveIndex(other)
			s.pendingSwitch.Store(false)
			s.state.SetPendingSwitch(false)
			s.queueRespawn(idx)
		}
	}
}

// queueRespawn asks the monitor goroutine to retire whatever worker
// occupies slot i and spawn a replacement. Callable from the audio
// callback: a compare-and-swap plus a buffered channel send, nothing
// more. The CAS dedupes against the monitor noticing the same slot
// failure on its own.
func (s *Supervisor) queueRespawn(i int) {
	if s.slots[i].respawnQueued.CompareAndSwap(false, true) {
		select {
		case s.respawnCh <- i:
		default:
		}
	}
}

// monitorLoop watches both slots' liveness and heartbeat progress and
// reacts to failures; it runs on its own goroutine, entirely separate
// from the real-time Pull path.
func (s *Supervisor) monitorLoop() {
	defer close(s.monitorDone)
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopMonitor:
			return
		case i := <-s.respawnCh:
			s.recycleSlot(i)
			s.slots[i].respawnQueued.Store(false)
		case <-ticker.C:
			s.checkSlots()
		}
	}
}

func (s *Supervisor) checkSlots() {
	for i := 0; i < 2; i++ {
		sl := s.slots[i]
		if sl.respawnQueued.Load() {
			continue
		}
		select {
		case <-sl.procDone:
			s.onSlotFailed(i)
			continue
		default:
		}

		hb := s.state.Heartbeat(i)
		if hb != s.lastHeartbeat[i] {
			s.lastHeartbeat[i] = hb
			s.staleSince[i] = time.Now()
			continue
		}
		if time.Since(s.spawnedAt[i]) < startupGrace {
			continue
		}
		if s.staleSince[i].IsZero() {
			s.staleSince[i] = time.Now()
			continue
		}
		if time.Since(s.staleSince[i]) > s.stallWindow {
			s.onSlotFailed(i)
		}
	}
}

// onSlotFailed reacts to a detected failure of slot i, either via
// process exit or a stalled heartbeat. The active slot fails over to
// the standby only if the standby has ever been successfully primed;
// otherwise -- e.g. a crash before any patch was ever committed --
// there is nothing audible to switch to, so the failed slot is
// recycled in place and output resumes from its replacement. A standby
// failure is always handled by an immediate in-place recycle, since
// nothing is listening to it yet.
func (s *Supervisor) onSlotFailed(i int) {
	active := int(s.activeIdx.Load())
	if i == active {
		other := 1 - i
		if s.state.PrimeReady(other) {
			if !s.pendingSwitch.Load() {
				log.Warnf("supervisor: active slot %d failed, failing over to standby", i)
				s.pendingSwitch.Store(true)
				s.state.SetPendingSwitch(true)
			}
			return
		}
		log.Warnf("supervisor: active slot %d failed with standby unprimed, respawning in place", i)
		// A switch armed for an earlier commit can no longer complete;
		// disarm it so the flip doesn't fire against a future prime of
		// a graph the caller never committed to activate.
		s.pendingSwitch.Store(false)
		s.state.SetPendingSwitch(false)
		s.queueRespawn(i)
		return
	}
	log.Warnf("supervisor: standby slot %d failed, respawning", i)
	s.queueRespawn(i)
}

// recycleSlot tears down whatever worker currently occupies slot i and
// spawns a fresh one. A dead process is reaped immediately; a live one
// (a stalled worker, or a healthy old active being retired after a
// switch) is asked to exit via its shutdown flag and killed if it does
// not comply within the grace window. Runs only on the monitor
// goroutine, so two recycles of the same slot can never interleave.
func (s *Supervisor) recycleSlot(i int) {
	sl := s.slots[i]
	sl.mu.Lock()
	cmd := sl.cmd
	done := sl.procDone
	sl.mu.Unlock()

	select {
	case <-done:
	default:
		s.state.RequestShutdown(i)
		select {
		case <-done:
		case <-time.After(respawnGrace):
			log.Errorf("supervisor: slot %d worker did not exit within grace period, killing", i)
			if cmd != nil && cmd.Process != nil {
				cmd.Process.Kill()
			}
			<-done
		}
	}

	s.mu.Lock()
	err := s.spawnWorker(i)
	s.mu.Unlock()
	if err != nil {
		log.Errorf("supervisor: respawn slot %d failed: %v", i, err)
		return
	}
	s.lastHeartbeat[i] = s.state.Heartbeat(i)
	s.staleSince[i] = time.Now()
}
