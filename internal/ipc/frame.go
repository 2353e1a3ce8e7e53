// Package ipc defines the small framed protocol carried over a worker
// process's stdin/stdout pipes: command records, patch operations, and
// audio blocks cross the process boundary here, while the scalar
// coordination state (heartbeats, prime-ready, active index) lives in
// true shared memory (internal/shm). The ring payload formats stay
// byte-identical on both sides of the pipe.
package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/Norsninja/music-chronus/internal/cmdrec"
)

// Type tags the frame payload.
type Type byte

const (
	TypeCommand Type = iota + 1
	TypePatchOp
	TypeAudioBlock
	TypeShutdown
)

// frame header: 1 byte type + 4 byte big-endian payload length. Unlike
// cmdrec's native-endian in-memory records, this header genuinely
// crosses a stream so it uses a fixed wire byte order.
const headerSize = 5

var errWrongFrameType = fmt.Errorf("ipc: frame is not a patch-op frame")

// Writer frames messages onto an underlying stream (a worker's stdin
// from the supervisor side, or its stdout from the worker side). It is
// safe for concurrent use: the supervisor's command and patch pumps
// share one Writer per worker, so each frame is written whole under a
// lock.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

func (fw *Writer) writeFrame(t Type, payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	var hdr [headerSize]byte
	hdr[0] = byte(t)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := fw.w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := fw.w.Write(payload); err != nil {
			return err
		}
	}
	return fw.w.Flush()
}

// WriteCommand frames a raw 64-byte command record.
func (fw *Writer) WriteCommand(rec [cmdrec.Size]byte) error {
	return fw.writeFrame(TypeCommand, rec[:])
}

// WritePatchOp frames an already-JSON-encoded patch operation.
func (fw *Writer) WritePatchOp(payload []byte) error {
	return fw.writeFrame(TypePatchOp, payload)
}

// WriteAudioBlock frames a block of float32 samples as little-endian
// bytes (the stream's own internal byte order, chosen once and fixed;
// both ends of a pipe are always the same host in this runtime so this
// is a formatting choice, not a portability requirement).
func (fw *Writer) WriteAudioBlock(block []float32) error {
	payload := make([]byte, len(block)*4)
	for i, v := range block {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}
	return fw.writeFrame(TypeAudioBlock, payload)
}

// WriteShutdown frames a shutdown notice.
func (fw *Writer) WriteShutdown() error { return fw.writeFrame(TypeShutdown, nil) }

// Reader reads frames off the paired stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

// Frame is one decoded message; Payload's meaning depends on Type.
type Frame struct {
	Type    Type
	Payload []byte
}

// ReadFrame blocks until a full frame arrives or the stream closes/errs.
func (fr *Reader) ReadFrame() (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: Type(hdr[0]), Payload: payload}, nil
}

// DecodeCommand validates a TypeCommand frame's payload length and
// returns the raw 64-byte record for cmdrec.Unpack.
func DecodeCommand(f Frame) ([cmdrec.Size]byte, error) {
	var rec [cmdrec.Size]byte
	if f.Type != TypeCommand || len(f.Payload) != cmdrec.Size {
		return rec, fmt.Errorf("ipc: malformed command frame (type=%d len=%d)", f.Type, len(f.Payload))
	}
	copy(rec[:], f.Payload)
	return rec, nil
}

// DecodeAudioBlock converts a TypeAudioBlock payload back to float32s.
func DecodeAudioBlock(f Frame) ([]float32, error) {
	if f.Type != TypeAudioBlock || len(f.Payload)%4 != 0 {
		return nil, fmt.Errorf("ipc: malformed audio frame (type=%d len=%d)", f.Type, len(f.Payload))
	}
	out := make([]float32, len(f.Payload)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[i*4:]))
	}
	return out, nil
}
