//go:build !headless

package audiodev

import (
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// OtoDevice drives an oto.Player by pulling fixed-size blocks from a
// BlockSource and translating oto's arbitrary-length byte reads into
// whole-block pulls, buffering any remainder between Read calls.
type OtoDevice struct {
	ctx    *oto.Context
	player *oto.Player

	pull      BlockSource
	blockSize int

	block     []float32 // scratch, reused every pull
	leftover  []float32 // unconsumed tail of the last pulled block
	sampleBuf []float32 // pre-allocated byte-conversion scratch, grown on demand

	mu      sync.Mutex
	started bool
}

// NewOtoDevice opens an oto context at sampleRate/mono/float32 and
// returns a Device that pulls blockSize-sample blocks from pull.
func NewOtoDevice(sampleRate, blockSize int, pull BlockSource) (*OtoDevice, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		// Four blocks of device-side buffering: deep enough to ride out
		// scheduling jitter, shallow enough that failover stays audible
		// within the detection budget.
		BufferSize: time.Duration(4*blockSize) * time.Second / time.Duration(sampleRate),
	})
	if err != nil {
		return nil, err
	}
	<-ready

	d := &OtoDevice{
		ctx:       ctx,
		pull:      pull,
		blockSize: blockSize,
		block:     make([]float32, blockSize),
		sampleBuf: make([]float32, 4096),
	}
	d.player = ctx.NewPlayer(d)
	return d, nil
}

// Read implements io.Reader for oto's player: fill p with as many
// samples as it can hold, pulling fresh blocks as the leftover buffer
// runs dry.
func (d *OtoDevice) Read(p []byte) (int, error) {
	numSamples := len(p) / 4
	if len(d.sampleBuf) < numSamples {
		d.sampleBuf = make([]float32, numSamples)
	}
	out := d.sampleBuf[:numSamples]

	n := 0
	for n < numSamples {
		if len(d.leftover) == 0 {
			d.pull(d.block)
			d.leftover = d.block
		}
		copied := copy(out[n:], d.leftover)
		d.leftover = d.leftover[copied:]
		n += copied
	}

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&out[0]))[:len(p)])
	return len(p), nil
}

func (d *OtoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		d.player.Play()
		d.started = true
	}
	return nil
}

func (d *OtoDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started && d.player != nil {
		d.player.Close()
		d.started = false
	}
}

func (d *OtoDevice) Close() {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
}
