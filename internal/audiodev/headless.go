//go:build headless

package audiodev

import "time"

// HeadlessDevice replaces OtoDevice in headless builds (CI, servers
// without an audio backend). It still ticks pull on a real-time
// cadence: the supervisor's callback is where failover, prime-ready
// polling, and active-slot switching all happen, so a headless run
// that never called pull would never exercise any of that. The
// rendered samples themselves are discarded.
type HeadlessDevice struct {
	pull      BlockSource
	blockSize int
	period    time.Duration
	block     []float32
	stop      chan struct{}
	done      chan struct{}
}

func NewHeadlessDevice(sampleRate, blockSize int, pull BlockSource) (*HeadlessDevice, error) {
	period := time.Duration(float64(blockSize) / float64(sampleRate) * float64(time.Second))
	return &HeadlessDevice{
		pull:      pull,
		blockSize: blockSize,
		period:    period,
		block:     make([]float32, blockSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (d *HeadlessDevice) Start() error {
	go d.run()
	return nil
}

func (d *HeadlessDevice) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.pull(d.block)
		}
	}
}

func (d *HeadlessDevice) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

func (d *HeadlessDevice) Close() {}
