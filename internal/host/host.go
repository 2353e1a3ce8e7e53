// Package host implements the module host: it owns a patch.Router plus
// per-module work blocks, applies queued commands atomically at block
// boundaries, and drives Process calls in topological order, one block
// at a time.
package host

import (
	"fmt"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/patch"
)

// pendingCmd is one queued command awaiting the next block boundary.
type pendingCmd struct {
	isGate    bool
	moduleID  string
	param     string
	value     float64
	immediate bool
}

// Host owns one worker's live module graph: the router, each node's
// output work block (allocated by CreateModule), the FIFO of commands awaiting
// the next block boundary, and the last-good fallback block.
type Host struct {
	registry   *module.Registry
	router     *patch.Router
	sampleRate int
	blockSize  int

	workBlocks map[string][]float32
	silence    []float32

	fifo []pendingCmd

	lastGood []float32
	sinkID   string
	haveSink bool
}

// New constructs an unprepared host bound to registry; call Prepare
// before any AddModule/ProcessChain call.
func New(registry *module.Registry) *Host {
	return &Host{
		registry:   registry,
		router:     patch.NewRouter(),
		workBlocks: make(map[string][]float32),
	}
}

// Prepare fixes the sample rate and block size for the lifetime of
// this host's graph.
func (h *Host) Prepare(sampleRate, blockSize int) {
	h.sampleRate = sampleRate
	h.blockSize = blockSize
	h.silence = make([]float32, blockSize)
	h.lastGood = make([]float32, blockSize)
}

// CreateModule instantiates typeName from the registry, prepares it,
// allocates its work block, and adds it to the router under id.
// Allocation here is permitted: it only ever happens off the steady-state
// loop, during a patch edit applied at a block boundary.
func (h *Host) CreateModule(id, typeName string) error {
	mod, err := h.registry.New(typeName)
	if err != nil {
		return err
	}
	if err := mod.Prepare(h.sampleRate, h.blockSize); err != nil {
		return fmt.Errorf("host: prepare %s (%s): %w", id, typeName, err)
	}
	if err := h.router.AddModule(id, typeName, mod); err != nil {
		return err
	}
	h.workBlocks[id] = make([]float32, h.blockSize)
	return nil
}

// DeleteModule removes a module. The router enforces that it must
// already be disconnected. Releasing the work-block map entry avoids
// holding a stale module reference; the backing storage is garbage for
// the runtime to reclaim off the audio path.
func (h *Host) DeleteModule(id string) error {
	if err := h.router.RemoveModule(id); err != nil {
		return err
	}
	delete(h.workBlocks, id)
	return nil
}

func (h *Host) Connect(src, dst string) error    { return h.router.Connect(src, dst) }
func (h *Host) Disconnect(src, dst string) error { return h.router.Disconnect(src, dst) }
func (h *Host) Validate() error                  { return h.router.Validate() }

// EnqueueRecord decodes a 64-byte command record and appends it to the
// FIFO; it will be applied at the next ApplyPending call, never
// mid-block.
func (h *Host) EnqueueRecord(buf [cmdrec.Size]byte) error {
	rec, err := cmdrec.Unpack(buf)
	if err != nil {
		return err
	}
	switch rec.Op {
	case cmdrec.OpSet:
		h.fifo = append(h.fifo, pendingCmd{
			moduleID: rec.Module(),
			param:    rec.ParamName(),
			value:    rec.Float64(),
		})
	case cmdrec.OpGate:
		h.fifo = append(h.fifo, pendingCmd{
			isGate:   true,
			moduleID: rec.Module(),
			value:    rec.Float64(),
		})
	case cmdrec.OpPatchSignal:
		// Reserved; patch edits travel via the patch queue, not the
		// command ring. Nothing to apply here.
	}
	return nil
}

// ApplyImmediate stages a set/gate outside the FIFO, used by the prime
// step, which must apply with immediate=true the instant it runs, not
// at the next natural block boundary (priming IS the boundary).
func (h *Host) ApplyImmediate(moduleID, param string, value float64, isGate bool) error {
	mod, ok := h.router.Module(moduleID)
	if !ok {
		return fmt.Errorf("host: unknown module %q", moduleID)
	}
	if isGate {
		mod.SetGate(value != 0)
		return nil
	}
	return mod.SetParam(param, value, true)
}

// ApplyPending applies the entire queued FIFO atomically: later writes
// to the same (module,param) override earlier ones within this batch,
// matching the command ring's own coalesce policy.
func (h *Host) ApplyPending() {
	if len(h.fifo) == 0 {
		return
	}
	for _, cmd := range h.fifo {
		mod, ok := h.router.Module(cmd.moduleID)
		if !ok {
			continue // module deleted/unknown since enqueue; drop silently
		}
		if cmd.isGate {
			mod.SetGate(cmd.value != 0)
			continue
		}
		_ = mod.SetParam(cmd.param, cmd.value, cmd.immediate)
	}
	h.fifo = h.fifo[:0]
}

// SetSink designates the node whose output block ProcessChain returns.
// If never called, ProcessChain uses the last node in topological
// order.
func (h *Host) SetSink(id string) { h.sinkID = id; h.haveSink = true }

// ProcessChain applies the pending FIFO, then drives every module's
// Process in topological order, resolving each node's input from the
// router's edge map (or silence if it has no incoming edge). Returns
// the sink's output block and refreshes last_good on success.
func (h *Host) ProcessChain() ([]float32, error) {
	h.ApplyPending()

	order, err := h.router.ProcessingOrder()
	if err != nil {
		return h.lastGood, err
	}
	if len(order) == 0 {
		for i := range h.lastGood {
			h.lastGood[i] = 0
		}
		return h.lastGood, nil
	}

	for _, id := range order {
		mod, _ := h.router.Module(id)
		var in []float32
		if src, ok := h.router.IncomingSource(id); ok {
			in = h.workBlocks[src]
		} else {
			in = h.silence
		}
		mod.Process(in, h.workBlocks[id])
	}

	sink := order[len(order)-1]
	if h.haveSink {
		sink = h.sinkID
	}
	out := h.workBlocks[sink]
	copy(h.lastGood, out)
	return out, nil
}

// LastGood returns the most recently successful ProcessChain output,
// for the worker to fall back to when a step is skipped.
func (h *Host) LastGood() []float32 { return h.lastGood }

// RenderWarmup runs ProcessChain count times, handing each rendered
// block to emit (which may be nil), and reports whether the warmup
// carried audible energy. The check is against the maximum per-block
// RMS across all count blocks, so a quiet final block (a decaying
// tail, a waveform crossing zero for a whole block) cannot mask a
// warmup that was audible earlier.
func (h *Host) RenderWarmup(count int, emit func(block []float32)) (nonSilent bool, err error) {
	const silenceFloor = 1e-4
	var maxMeanSq float64
	for i := 0; i < count; i++ {
		block, err := h.ProcessChain()
		if err != nil {
			return false, err
		}
		var sumSq float64
		for _, v := range block {
			sumSq += float64(v) * float64(v)
		}
		if meanSq := sumSq / float64(len(block)); meanSq > maxMeanSq {
			maxMeanSq = meanSq
		}
		if emit != nil {
			emit(block)
		}
	}
	return maxMeanSq > silenceFloor*silenceFloor, nil
}

// Reset clears the FIFO and router, used by a patch abort to
// re-initialize a standby host to an empty graph. Callers that need to
// restore a specific prior committed state should rebuild it via
// CreateModule/Connect from recorded patch history instead of relying
// on Reset alone.
func (h *Host) Reset() {
	h.fifo = h.fifo[:0]
	h.router = patch.NewRouter()
	h.workBlocks = make(map[string][]float32)
	h.haveSink = false
	for i := range h.lastGood {
		h.lastGood[i] = 0
	}
}
