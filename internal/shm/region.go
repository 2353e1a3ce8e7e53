// Package shm provides the fixed-layout, mmap-backed shared-memory
// region the supervisor and its two worker processes use for scalar
// cross-process state: active slot index, pending-switch flag, per-slot
// heartbeat counters, prime-ready flags, and shutdown flags. Every
// field here is either a single atomic or owned by exactly one writer;
// nothing in this package allocates after Open.
package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a byte-addressed mapping shared by every process that opens
// the same backing path. The backing file is created with O_CREATE if
// absent and truncated to exactly size bytes.
type Region struct {
	file *os.File
	data []byte
}

// Open mmaps path (creating it at size bytes if necessary) shared
// between all processes that open it (MAP_SHARED): the defining
// property that makes writes from one process visible to another
// without any IPC round-trip.
func Open(path string, size int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Region{file: f, data: data}, nil
}

// Close unmaps the region and closes the backing file descriptor. The
// backing file itself is left on disk; callers that own its lifecycle
// (the supervisor, on final shutdown) are responsible for os.Remove.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return err
	}
	return r.file.Close()
}

// Path returns the backing file's path, so a spawned worker can be
// handed it as a command-line argument and Open the same mapping.
func (r *Region) Path() string { return r.file.Name() }

func (r *Region) u32(offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.data[offset]))
}

func (r *Region) u64(offset int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[offset]))
}

// LoadUint32/StoreUint32/LoadUint64/StoreUint64 give atomic access to a
// 4- or 8-byte-aligned field at offset. Callers (SharedState) are
// responsible for keeping their offsets aligned and non-overlapping.
func (r *Region) LoadUint32(offset int) uint32 { return atomic.LoadUint32(r.u32(offset)) }
func (r *Region) StoreUint32(offset int, v uint32) { atomic.StoreUint32(r.u32(offset), v) }
func (r *Region) LoadUint64(offset int) uint64 { return atomic.LoadUint64(r.u64(offset)) }
func (r *Region) StoreUint64(offset int, v uint64) { atomic.StoreUint64(r.u64(offset), v) }
func (r *Region) AddUint64(offset int, delta uint64) uint64 {
	return atomic.AddUint64(r.u64(offset), delta)
}
