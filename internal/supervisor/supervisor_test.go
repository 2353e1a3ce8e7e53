package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
	"github.com/Norsninja/music-chronus/internal/config"
	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/shm"
)

// newTestSupervisor builds a Supervisor with both slots wired to a real
// shm region but skips spawnWorker entirely, so these tests exercise the
// in-process bookkeeping (rings, counters, queues) without an actual
// subprocess.
func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.shm")
	region, err := shm.Open(path, shm.StateSize)
	require.NoError(t, err)
	t.Cleanup(func() { region.Close() })

	registry := module.NewRegistry()
	require.NoError(t, module.RegisterBuiltins(registry))

	s := &Supervisor{
		cfg:        config.Default(),
		registry:   registry,
		shmPath:    path,
		region:     region,
		state:      shm.NewSharedState(region),
		lastParams: make(map[paramKey]float64),
		lastGates:  make(map[string]bool),
	}
	for i := 0; i < 2; i++ {
		s.slots[i] = newSlotState(i, 4, 64)
	}
	return s
}

func TestStandbyIndexFollowsActive(t *testing.T) {
	s := newTestSupervisor(t)
	s.activeIdx.Store(0)
	require.Equal(t, 1, s.standbyIndex())
	s.activeIdx.Store(1)
	require.Equal(t, 0, s.standbyIndex())
}

func TestBroadcastCommandFansOutToBothSlots(t *testing.T) {
	s := newTestSupervisor(t)
	rec, err := cmdrec.PackFloat64("osc1", "freq", 220)
	require.NoError(t, err)

	s.BroadcastCommand(rec)

	for i := range s.slots {
		got, ok := s.slots[i].cmdRing.Read()
		require.True(t, ok, "slot %d", i)
		require.Equal(t, rec, got)
	}
}

func TestEnqueuePatchDropsWhenQueueFull(t *testing.T) {
	s := newTestSupervisor(t)
	sl := s.slots[0]
	for i := 0; i < patchQueueCapacity; i++ {
		s.enqueuePatch(sl, ipc.PatchOp{Kind: ipc.PatchCommit})
	}
	require.EqualValues(t, 0, sl.patchDrops.Load())

	s.enqueuePatch(sl, ipc.PatchOp{Kind: ipc.PatchCommit})
	require.EqualValues(t, 1, sl.patchDrops.Load())
}

func TestBroadcastRetainsLatestParamAndGate(t *testing.T) {
	s := newTestSupervisor(t)
	first, err := cmdrec.PackFloat64("osc1", "freq", 220)
	require.NoError(t, err)
	second, err := cmdrec.PackFloat64("osc1", "freq", 440)
	require.NoError(t, err)
	gate, err := cmdrec.PackGate("env1", true)
	require.NoError(t, err)

	s.BroadcastCommand(first)
	s.BroadcastCommand(second)
	s.BroadcastCommand(gate)

	require.Equal(t, 440.0, s.lastParams[paramKey{"osc1", "freq"}])
	require.True(t, s.lastGates["env1"])
}

func TestDispatchPatchAccumulatesPendingEdits(t *testing.T) {
	s := newTestSupervisor(t)
	s.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchCreate, ModuleID: "osc1", TypeName: "sine"})
	s.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchConnect, SourceID: "osc1", DestID: "lim1"})
	require.Len(t, s.pendingOps, 2)
	require.Empty(t, s.committedOps)
}

func TestAbortStandbyRestoresCommittedHistory(t *testing.T) {
	s := newTestSupervisor(t)
	s.committedOps = []ipc.PatchOp{{Kind: ipc.PatchCreate, ModuleID: "osc1", TypeName: "sine"}}
	s.lastParams[paramKey{"osc1", "freq"}] = 440

	s.DispatchPatch(ipc.PatchOp{Kind: ipc.PatchCreate, ModuleID: "bad1", TypeName: "sine"})
	require.Len(t, s.pendingOps, 1)

	s.abortStandby(1)
	require.Empty(t, s.pendingOps)

	// The standby queue should now hold: the aborted edit, the abort
	// itself, the committed replay, and the rebuild prime carrying the
	// retained parameter.
	sl := s.slots[1]
	var kinds []ipc.PatchOpKind
	for len(sl.patchCh) > 0 {
		kinds = append(kinds, (<-sl.patchCh).Kind)
	}
	require.Equal(t, []ipc.PatchOpKind{ipc.PatchCreate, ipc.PatchAbort, ipc.PatchCreate, ipc.PatchPrime}, kinds)
}

func TestReplayPrimeCarriesRetainedState(t *testing.T) {
	s := newTestSupervisor(t)
	s.committedOps = []ipc.PatchOp{{Kind: ipc.PatchCreate, ModuleID: "osc1", TypeName: "sine"}}
	s.lastParams[paramKey{"osc1", "freq"}] = 330
	s.lastGates["env1"] = true

	sl := s.slots[0]
	s.patchMu.Lock()
	s.replayCommittedLocked(sl)
	s.patchMu.Unlock()

	require.Equal(t, ipc.PatchCreate, (<-sl.patchCh).Kind)
	prime := <-sl.patchCh
	require.Equal(t, ipc.PatchPrime, prime.Kind)
	require.True(t, prime.AllowSilent)
	require.Len(t, prime.Ops, 2)
}

func TestStatusReflectsSlotState(t *testing.T) {
	s := newTestSupervisor(t)
	s.state.SetPrimeReady(1, true)
	s.state.IncrementHeartbeat(0)

	st := s.Status()
	require.Equal(t, 0, st.ActiveIndex)
	require.False(t, st.PendingSwitch)
	require.True(t, st.Slots[1].PrimeReady)
	require.EqualValues(t, 1, st.Slots[0].Heartbeat)
}

func TestSchemaIsSortedByType(t *testing.T) {
	s := newTestSupervisor(t)
	schemas := s.Schema()
	require.NotEmpty(t, schemas)
	for i := 1; i < len(schemas); i++ {
		require.LessOrEqual(t, schemas[i-1].Type, schemas[i].Type)
	}
}
