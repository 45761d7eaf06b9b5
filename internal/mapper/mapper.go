// SPDX-License-Identifier: MIT
/*
Package mapper is the render-context consumer of the pipeline: it ticks the
musical grid at render cadence, reads the latest conditioned frame, and
derives the visual parameter set effects consume (brightness, color energy,
strobe gate, bar sweep).

The mapper is the grid's single ticking context; grid tuning updates are
routed through it rather than applied from other goroutines.
*/
package mapper

import (
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/frame"
	"pulse/internal/grid"
	applog "pulse/internal/log"
	"pulse/internal/snapshot"
)

// beatPulseRelease is the per-step decay applied to the beat pulse.
const beatPulseRelease = 0.15

// VisualParams is the derived signal set published to effect consumers.
type VisualParams struct {
	Time frame.AudioTime

	// Brightness in [0,1], energy-driven with a beat boost.
	Brightness float64

	// ColorEnergy in [0,1]: the band-weighted spectral balance, 0 for
	// all-bass content, 1 for all-treble.
	ColorEnergy float64

	// BeatPulse rises to 1 on each beat and decays between beats.
	BeatPulse float64

	// StrobeGate is true for snapshots where a confident, hard onset
	// justifies a strobe hit.
	StrobeGate bool

	// BarSweep is the bar phase in [0,1), for effects that travel once
	// per bar.
	BarSweep float64

	BPM   float64
	Chord frame.ChordState
}

// Mapper derives VisualParams from the pipeline's published outputs.
type Mapper struct {
	frames *snapshot.Publisher[frame.ConditionedFrame]
	grid   *grid.Grid
	pub    *snapshot.Publisher[VisualParams]

	interval    time.Duration
	pendingGrid atomic.Pointer[grid.Params]

	// Step-owned state.
	frameBuf  frame.ConditionedFrame
	beatPulse float64
	out       VisualParams

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	start time.Time
}

// New wires a Mapper to the conditioned-frame publisher and the grid it
// will tick. An interval <= 0 defaults to 16ms.
func New(frames *snapshot.Publisher[frame.ConditionedFrame], g *grid.Grid, interval time.Duration) *Mapper {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Mapper{
		frames:   frames,
		grid:     g,
		pub:      snapshot.New[VisualParams](),
		interval: interval,
		start:    time.Now(),
	}
}

// Publisher returns the visual-parameter publisher effects read from.
func (m *Mapper) Publisher() *snapshot.Publisher[VisualParams] {
	return m.pub
}

// SetGridParams queues grid tuning to be applied on the next step, keeping
// all grid mutation inside the mapper's ticking context.
func (m *Mapper) SetGridParams(p grid.Params) {
	m.pendingGrid.Store(&p)
}

// Step runs one mapping pass at the given time: apply pending grid tuning,
// tick the grid, read the newest frame, derive and publish VisualParams.
// Returns a pointer to the mapper's own copy, valid until the next Step.
func (m *Mapper) Step(now frame.AudioTime) *VisualParams {
	if gp := m.pendingGrid.Swap(nil); gp != nil {
		m.grid.SetParams(*gp)
	}

	gs := m.grid.Tick(now)
	m.frames.ReadInto(&m.frameBuf)
	cf := &m.frameBuf

	if gs.BeatTick {
		m.beatPulse = 1
	} else {
		m.beatPulse *= 1 - beatPulseRelease
	}

	out := &m.out
	out.Time = now
	out.BeatPulse = m.beatPulse
	out.Brightness = clamp01(0.2 + 0.6*cf.FastRMS + 0.2*m.beatPulse)
	out.ColorEnergy = spectralBalance(&cf.Bands)
	out.StrobeGate = gs.BeatTick && gs.Confidence > 0.6 && cf.FastFlux > 0.3
	out.BarSweep = gs.BarPhase
	out.BPM = gs.BPM
	out.Chord = cf.Chord

	m.pub.Publish(*out)
	return out
}

// Start launches the render loop, stepping every interval against a wall
// clock mapped onto the sample clock.
func (m *Mapper) Start() {
	m.mu.Lock()
	if m.ticker != nil {
		m.mu.Unlock()
		applog.Warnf("mapper: Start called but already running")
		return
	}

	m.ticker = time.NewTicker(m.interval)
	m.doneChan = make(chan struct{})
	m.stopOnce = sync.Once{}

	ticker := m.ticker
	doneChan := m.doneChan
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		applog.Infof("mapper: render loop started (interval %s)", m.interval)
		for {
			select {
			case <-ticker.C:
				m.Step(m.now())
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the render loop and waits for it. Safe to call multiple
// times.
func (m *Mapper) Stop() error {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.doneChan)
		m.ticker.Stop()
		m.ticker = nil
	})
	m.mu.Unlock()

	m.wg.Wait()
	applog.Infof("mapper: render loop stopped")
	return nil
}

// now maps the wall clock onto the sample clock for grid advancement.
func (m *Mapper) now() frame.AudioTime {
	elapsed := time.Since(m.start)
	return frame.AudioTime{
		SampleIndex:  uint64(elapsed.Seconds() * frame.SampleRate),
		SampleRateHz: frame.SampleRate,
		MonotonicUS:  uint64(elapsed.Microseconds()),
	}
}

// spectralBalance reduces the band vector to one number: the normalized
// centroid of band energy across the spectrum.
func spectralBalance(bands *[frame.NumBands]float64) float64 {
	var sum, weighted float64
	for i, b := range bands {
		sum += b
		weighted += float64(i) * b
	}
	if sum == 0 {
		return 0
	}
	return weighted / sum / float64(frame.NumBands-1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
