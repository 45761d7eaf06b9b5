// SPDX-License-Identifier: MIT
package transport

import (
	"sync"
	"time"
)

// Feeder polls a snapshot source at a fixed cadence and pushes fresh
// payloads through a Transport. Intervals where the source sequence has not
// advanced send nothing.
type Feeder struct {
	transport Transport
	source    func() (any, uint64)
	interval  time.Duration

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFeeder wires a transport to a source. The source returns the latest
// payload together with its publication sequence; sequence 0 means nothing
// has been published yet.
func NewFeeder(t Transport, interval time.Duration, source func() (any, uint64)) *Feeder {
	return &Feeder{
		transport: t,
		source:    source,
		interval:  interval,
		doneChan:  make(chan struct{}),
	}
}

// Start launches the feed loop.
func (f *Feeder) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		var lastSeq uint64
		for {
			select {
			case <-ticker.C:
				payload, seq := f.source()
				if seq == lastSeq {
					continue
				}
				lastSeq = seq
				f.transport.Send(payload)
			case <-f.doneChan:
				return
			}
		}
	}()
}

// Stop halts the feed loop. The transport is left open; the caller owns it.
func (f *Feeder) Stop() error {
	f.stopOnce.Do(func() { close(f.doneChan) })
	f.wg.Wait()
	return nil
}
