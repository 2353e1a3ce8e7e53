package supervisor

import (
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/Norsninja/music-chronus/internal/ipc"
	"github.com/Norsninja/music-chronus/internal/ring"
)

// patchQueueCapacity bounds the per-slot patch queue. Sends are
// non-blocking; overflow increments a drop counter instead of stalling
// the control plane.
const patchQueueCapacity = 128

// cmdRingCapacity sizes each slot's supervisor-side command ring.
const cmdRingCapacity = 64

// slotState holds everything the supervisor owns for one of its two
// worker slots: the rings that survive across worker respawns, the
// patch queue feeding that slot's next prime, and the live process
// handle (replaced wholesale on every (re)spawn).
type slotState struct {
	idx int

	audioRing *ring.AudioRing
	cmdRing   *ring.CommandRing

	patchCh    chan ipc.PatchOp
	patchDrops atomic.Uint64

	// respawnQueued dedupes respawn requests for this slot between the
	// monitor's own failure detection and the audio callback's
	// post-switch handoff; cleared once the replacement worker is up.
	respawnQueued atomic.Bool

	lastGood  []float32
	blockSize int

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdinW    *ipc.Writer
	procDone  chan struct{}
	stopPumps chan struct{}
}

func newSlotState(idx, numBuffers, blockSize int) *slotState {
	return &slotState{
		idx:       idx,
		audioRing: ring.NewAudioRing(numBuffers, blockSize),
		cmdRing:   ring.NewCommandRing(cmdRingCapacity),
		patchCh:   make(chan ipc.PatchOp, patchQueueCapacity),
		lastGood:  make([]float32, blockSize),
		blockSize: blockSize,
	}
}
