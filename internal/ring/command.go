package ring

import (
	"sync/atomic"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
)

// CommandRing is a single-producer/single-consumer ring of fixed 64-byte
// command records. The producer is the controller dispatch running inside
// the supervisor process; the consumer is that slot's worker.
type CommandRing struct {
	capacity uint64
	records  [][cmdrec.Size]byte

	head atomic.Uint64
	tail atomic.Uint64

	dropped   atomic.Uint64 // records lost with no coalescing target
	gateDrops atomic.Uint64 // gate events lost with no non-gate slot to steal
}

// NewCommandRing allocates a ring holding capacity records.
func NewCommandRing(capacity int) *CommandRing {
	if capacity < 2 {
		capacity = 2
	}
	return &CommandRing{
		capacity: uint64(capacity),
		records:  make([][cmdrec.Size]byte, capacity),
	}
}

// HasData reports whether the consumer has at least one unread record.
func (r *CommandRing) HasData() bool {
	return r.head.Load() != r.tail.Load()
}

// Reset zero-initializes the ring. Only safe when producer and consumer are
// both quiescent (construction time, or standby re-init).
func (r *CommandRing) Reset() {
	for i := range r.records {
		r.records[i] = [cmdrec.Size]byte{}
	}
	r.head.Store(0)
	r.tail.Store(0)
	r.dropped.Store(0)
	r.gateDrops.Store(0)
}

// Dropped returns the count of records lost because the ring was full and
// no coalescing target existed.
func (r *CommandRing) Dropped() uint64 { return r.dropped.Load() }

// GateDrops returns the count of gate events lost because the ring was full
// and no non-gate slot could be stolen. Should be 0 in steady state.
func (r *CommandRing) GateDrops() uint64 { return r.gateDrops.Load() }

// Write enqueues buf, applying the backpressure/coalescing policy when
// the ring is observed full:
//   - Set/PatchSignal records coalesce by (module, param): if a pending
//     record with the same key exists, its value is overwritten in place
//     (latest-wins) and arrival order is preserved.
//   - Gate records are never coalesced; instead they force an overwrite of
//     the oldest pending non-gate record. If none exists, the gate is
//     dropped and counted (GateDrops).
//   - If neither applies, the record is dropped and counted (Dropped).
func (r *CommandRing) Write(buf [cmdrec.Size]byte) error {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail < r.capacity-1 {
		idx := head % r.capacity
		r.records[idx] = buf
		r.head.Store(head + 1)
		return nil
	}

	rec, err := cmdrec.Unpack(buf)
	if err != nil {
		r.dropped.Add(1)
		return ErrFull
	}

	if rec.Op == cmdrec.OpGate {
		for i := tail; i < head; i++ {
			idx := i % r.capacity
			existing, err := cmdrec.Unpack(r.records[idx])
			if err == nil && existing.Op != cmdrec.OpGate {
				r.records[idx] = buf
				return nil
			}
		}
		r.gateDrops.Add(1)
		return ErrFull
	}

	for i := tail; i < head; i++ {
		idx := i % r.capacity
		existing, err := cmdrec.Unpack(r.records[idx])
		if err == nil && existing.Op == rec.Op &&
			existing.Module() == rec.Module() && existing.ParamName() == rec.ParamName() {
			r.records[idx] = buf
			return nil
		}
	}
	r.dropped.Add(1)
	return ErrFull
}

// Read dequeues the oldest pending record, if any.
func (r *CommandRing) Read() (buf [cmdrec.Size]byte, ok bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return buf, false
	}
	idx := tail % r.capacity
	buf = r.records[idx]
	r.tail.Store(tail + 1)
	return buf, true
}

// Capacity returns N_c, the number of pre-allocated record slots.
func (r *CommandRing) Capacity() int { return int(r.capacity) }
