package shm

// Fixed byte offsets for SharedState's fields, laid out so every u64 is
// 8-byte aligned (required by atomic ops on 32-bit ARM; harmless
// elsewhere). Total region size is StateSize.
const (
	offActiveIndex    = 0
	offPendingSwitch  = 4
	offHeartbeat0     = 8
	offHeartbeat1     = 16
	offPrimeReady0    = 24
	offPrimeReady1    = 28
	offShutdownFlag0  = 32
	offShutdownFlag1  = 36
	offWritesDropped0 = 40
	offWritesDropped1 = 48
	offOccupancy0     = 56
	offOccupancy1     = 60

	// StateSize is two 64-byte cache lines; every field above fits in
	// the first line, and the second is unused.
	StateSize = 128
)

// SharedState is a typed view over a Region holding the
// supervisor/worker cross-process scalars: active index, pending-switch
// flag, heartbeats, prime-ready flags, and shutdown flags for each of
// the two slots.
type SharedState struct {
	r *Region
}

// NewSharedState wraps an already-open Region. The caller chooses
// whether that Region is freshly zeroed (new run) or reused.
func NewSharedState(r *Region) *SharedState { return &SharedState{r: r} }

func (s *SharedState) ActiveIndex() int        { return int(s.r.LoadUint32(offActiveIndex)) }
func (s *SharedState) SetActiveIndex(idx int)  { s.r.StoreUint32(offActiveIndex, uint32(idx)) }
func (s *SharedState) PendingSwitch() bool     { return s.r.LoadUint32(offPendingSwitch) != 0 }
func (s *SharedState) SetPendingSwitch(v bool) { s.r.StoreUint32(offPendingSwitch, boolToU32(v)) }

func (s *SharedState) heartbeatOffset(slot int) int {
	if slot == 0 {
		return offHeartbeat0
	}
	return offHeartbeat1
}

// Heartbeat returns slot's monotonic produced-block counter.
func (s *SharedState) Heartbeat(slot int) uint64 { return s.r.LoadUint64(s.heartbeatOffset(slot)) }

// IncrementHeartbeat is called once per block the worker for slot
// successfully produces.
func (s *SharedState) IncrementHeartbeat(slot int) {
	s.r.AddUint64(s.heartbeatOffset(slot), 1)
}

func (s *SharedState) primeReadyOffset(slot int) int {
	if slot == 0 {
		return offPrimeReady0
	}
	return offPrimeReady1
}

func (s *SharedState) PrimeReady(slot int) bool {
	return s.r.LoadUint32(s.primeReadyOffset(slot)) != 0
}

func (s *SharedState) SetPrimeReady(slot int, v bool) {
	s.r.StoreUint32(s.primeReadyOffset(slot), boolToU32(v))
}

func (s *SharedState) shutdownOffset(slot int) int {
	if slot == 0 {
		return offShutdownFlag0
	}
	return offShutdownFlag1
}

func (s *SharedState) ShutdownRequested(slot int) bool {
	return s.r.LoadUint32(s.shutdownOffset(slot)) != 0
}

func (s *SharedState) RequestShutdown(slot int) {
	s.r.StoreUint32(s.shutdownOffset(slot), 1)
}

func (s *SharedState) ClearShutdown(slot int) {
	s.r.StoreUint32(s.shutdownOffset(slot), 0)
}

func (s *SharedState) writesDroppedOffset(slot int) int {
	if slot == 0 {
		return offWritesDropped0
	}
	return offWritesDropped1
}

// WritesDropped/AddWritesDropped track producer-side ring-full drops
// per slot for the status endpoint.
func (s *SharedState) WritesDropped(slot int) uint64 {
	return s.r.LoadUint64(s.writesDroppedOffset(slot))
}

func (s *SharedState) AddWritesDropped(slot int, n uint64) {
	s.r.AddUint64(s.writesDroppedOffset(slot), n)
}

func (s *SharedState) occupancyOffset(slot int) int {
	if slot == 0 {
		return offOccupancy0
	}
	return offOccupancy1
}

// Occupancy/SetOccupancy mirror a slot's supervisor-side audio ring
// occupancy into shared memory so the worker process (which does not
// share the supervisor's in-process AudioRing object) can self-throttle
// without an extra round-trip message. Written only by the supervisor's
// intake goroutine; the worker only reads it.
func (s *SharedState) Occupancy(slot int) int {
	return int(s.r.LoadUint32(s.occupancyOffset(slot)))
}

func (s *SharedState) SetOccupancy(slot int, occupancy int) {
	s.r.StoreUint32(s.occupancyOffset(slot), uint32(occupancy))
}

func boolToU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
