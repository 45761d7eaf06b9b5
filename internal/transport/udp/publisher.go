// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"pulse/internal/frame"
	applog "pulse/internal/log"
	"pulse/internal/snapshot"
)

/*
UDP Packet Structure (BigEndian)

+---------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                  |
|-----------------|-----------|--------------|------------------------------|
| Sequence Number | uint32    | 4            | Monotonically increasing     |
| Timestamp       | int64     | 8            | Nanoseconds since epoch      |
| BPM             | float32   | 4            | Current tempo estimate       |
| Tempo Conf      | float32   | 4            | Tempo confidence 0..1        |
| Beat Phase      | float32   | 4            | Beat phase [0,1)             |
| Bar Phase       | float32   | 4            | Bar phase [0,1)              |
| Flags           | uint8     | 1            | Bit 0 beat tick, 1 downbeat, |
|                 |           |              | 2 snare, 3 hi-hat            |
| Beat In Bar     | uint8     | 1            | Position within the bar      |
| Beats Per Bar   | uint8     | 1            | Time signature numerator     |
| Chord Root      | uint8     | 1            | Pitch class 0..11            |
| Chord Type      | uint8     | 1            | 0 none, 1 maj, 2 min,        |
|                 |           |              | 3 dim, 4 aug                 |
| Chord Conf      | float32   | 4            | Chord confidence 0..1        |
| Fast RMS        | float32   | 4            |                              |
| RMS             | float32   | 4            | Slow-smoothed                |
| Fast Flux       | float32   | 4            |                              |
| Flux            | float32   | 4            | Slow-smoothed                |
| Band Count      | uint16    | 2            | Number of bands (8)          |
| Bands           | []float32 | 8 * 4        | Smoothed band magnitudes     |
| Chroma Count    | uint16    | 2            | Number of chroma bins (12)   |
| Chroma          | []float32 | 12 * 4       | Smoothed chroma magnitudes   |
+---------------------------------------------------------------------------+
*/

const (
	flagBeatTick uint8 = 1 << iota
	flagDownbeatTick
	flagSnareTrigger
	flagHiHatTrigger
)

// Publisher periodically reads the latest conditioned frame and grid
// snapshot, packs them into the binary format above, and sends the packet
// through a Sender. It runs in its own goroutine between Start and Stop.
type Publisher struct {
	sender   *Sender
	frames   *snapshot.Publisher[frame.ConditionedFrame]
	grids    *snapshot.Publisher[frame.MusicalGridSnapshot]
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32
	lastFrame   uint64 // Sequence of the last frame actually sent.

	// Scratch state reused across packets.
	frameBuf     frame.ConditionedFrame
	gridBuf      frame.MusicalGridSnapshot
	packetBuffer *bytes.Buffer
	f32Bands     [frame.NumBands]float32
	f32Chroma    [frame.NumChroma]float32
}

// NewPublisher wires a Publisher to its sender and frame sources. An
// interval <= 0 defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, frames *snapshot.Publisher[frame.ConditionedFrame], grids *snapshot.Publisher[frame.MusicalGridSnapshot]) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if frames == nil || grids == nil {
		return nil, fmt.Errorf("udp publisher: frame sources cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("udp publisher: invalid interval, defaulting to %s", interval)
	}

	return &Publisher{
		sender:       sender,
		frames:       frames,
		grids:        grids,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Safe to call once per
// Start/Stop cycle; a second Start while running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("udp publisher: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("udp publisher: started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to terminate and waits for it. Safe to call
// multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("udp publisher: stopped")
	return nil
}

// buildAndSendPacket reads the newest frame and grid state, packs, and
// sends. Skipped entirely when no new conditioned frame has been published
// since the last packet.
func (p *Publisher) buildAndSendPacket() {
	seq := p.frames.ReadInto(&p.frameBuf)
	if seq == p.lastFrame {
		return
	}
	p.lastFrame = seq
	p.grids.ReadInto(&p.gridBuf)

	var flags uint8
	if p.gridBuf.BeatTick {
		flags |= flagBeatTick
	}
	if p.gridBuf.DownbeatTick {
		flags |= flagDownbeatTick
	}
	if p.frameBuf.SnareTrigger {
		flags |= flagSnareTrigger
	}
	if p.frameBuf.HiHatTrigger {
		flags |= flagHiHatTrigger
	}

	for i, v := range p.frameBuf.Bands {
		p.f32Bands[i] = float32(v)
	}
	for i, v := range p.frameBuf.Chroma {
		p.f32Chroma[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	buf := p.packetBuffer
	err := binary.Write(buf, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, time.Now().UnixNano())
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.gridBuf.BPM))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.gridBuf.Confidence))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.gridBuf.BeatPhase))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.gridBuf.BarPhase))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, flags)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint8(p.gridBuf.BeatInBar))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint8(p.gridBuf.BeatsPerBar))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint8(p.frameBuf.Chord.RootNote))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint8(p.frameBuf.Chord.Type))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.frameBuf.Chord.Confidence))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.frameBuf.FastRMS))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.frameBuf.RMS))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.frameBuf.FastFlux))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, float32(p.frameBuf.Flux))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(frame.NumBands))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.f32Bands[:])
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(frame.NumChroma))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.f32Chroma[:])
	}
	if err != nil {
		applog.Errorf("udp publisher: error packing packet: %v", err)
		return
	}

	if err := p.sender.Send(buf.Bytes()); err != nil {
		applog.Debugf("udp publisher: send failed: %v", err)
	}
}

// Close implements io.Closer by stopping the publisher goroutine.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
