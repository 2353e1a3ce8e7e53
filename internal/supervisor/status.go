package supervisor

import (
	"sort"

	"github.com/Norsninja/music-chronus/internal/module"
)

// SlotStatus is one slot's point-in-time observability snapshot,
// exposed over the read-only status endpoint.
type SlotStatus struct {
	Heartbeat     uint64 `json:"heartbeat"`
	PrimeReady    bool   `json:"prime_ready"`
	Occupancy     int    `json:"occupancy"`
	WritesDropped uint64 `json:"writes_dropped"`
	NoneReads     uint64 `json:"none_reads"`
	PatchDrops    uint64 `json:"patch_drops"`
	CommandDrops  uint64 `json:"command_drops"`
	GateDrops     uint64 `json:"gate_drops"`
}

// Status is the full supervisor snapshot.
type Status struct {
	ActiveIndex     int           `json:"active_index"`
	PendingSwitch   bool          `json:"pending_switch"`
	Slots           [2]SlotStatus `json:"slots"`
	DroppedCommands uint64        `json:"dropped_commands"`
}

// Status returns a consistent-enough snapshot for monitoring; fields
// are read independently, with no global lock, so a snapshot may
// straddle a live state change.
func (s *Supervisor) Status() Status {
	var st Status
	st.ActiveIndex = int(s.activeIdx.Load())
	st.PendingSwitch = s.pendingSwitch.Load()
	st.DroppedCommands = s.droppedCommands.Load()
	for i := range s.slots {
		sl := s.slots[i]
		rs := sl.audioRing.Stats()
		st.Slots[i] = SlotStatus{
			Heartbeat:     s.state.Heartbeat(i),
			PrimeReady:    s.state.PrimeReady(i),
			Occupancy:     rs.Occupancy,
			WritesDropped: rs.WritesDropped,
			NoneReads:     rs.NoneReads,
			PatchDrops:    sl.patchDrops.Load(),
			CommandDrops:  sl.cmdRing.Dropped(),
			GateDrops:     sl.cmdRing.GateDrops(),
		}
	}
	return st
}

// Schema returns every registered module type's schema, sorted by type
// name for a stable response.
func (s *Supervisor) Schema() []module.Schema {
	types := s.registry.Types()
	sort.Strings(types)
	out := make([]module.Schema, 0, len(types))
	for _, t := range types {
		if sch, ok := s.registry.Schema(t); ok {
			out = append(out, sch)
		}
	}
	return out
}
