// SPDX-License-Identifier: MIT
/*
Package grid maintains a continuously queryable beat/bar phase advanced at
the consumer's cadence and corrected by discrete beat and tempo observations
from the audio side, a render-domain phase-locked loop.

Beat detection is hop-rate-limited and noisy; visual effects need a smooth
high-resolution phase every render frame. The grid decouples "where in the
beat are we" (render-rate interpolation from the tempo estimate) from "was
there actually a beat" (audio-rate observations applied as gentle
proportional corrections, never hard resets).

Concurrency: the render context owns all grid state and is the only caller
of Tick. The audio context hands in observations through two snapshot
publishers; the render side consumes each published value at most once by
tracking sequences. Neither side ever blocks the other.
*/
package grid

import (
	"pulse/internal/frame"
	"pulse/internal/snapshot"
)

// Params is the grid's tuning surface. All numeric fields are clamped.
type Params struct {
	BeatsPerBar int     // Default 4. Range [1, 16].
	BeatUnit    int     // Default 4. Range [1, 16].
	TempoAlpha  float64 // IIR coefficient for tempo estimates. Default 0.2. Range [0.01, 1].
	PhaseGain   float64 // PLL loop-filter gain. Default 0.35. Range [0.01, 1].
	MinBPM      float64 // Default 60. Range [20, 300].
	MaxBPM      float64 // Default 180. Range [20, 400].
}

// DefaultParams returns the shipped tuning: 4/4 time, moderate lock speed.
func DefaultParams() Params {
	return Params{
		BeatsPerBar: 4,
		BeatUnit:    4,
		TempoAlpha:  0.2,
		PhaseGain:   0.35,
		MinBPM:      60,
		MaxBPM:      180,
	}
}

// Sanitize clamps all fields into their documented ranges.
func (p *Params) Sanitize() {
	p.BeatsPerBar = clampInt(p.BeatsPerBar, 1, 16)
	p.BeatUnit = clampInt(p.BeatUnit, 1, 16)
	p.TempoAlpha = clampFloat(p.TempoAlpha, 0.01, 1)
	p.PhaseGain = clampFloat(p.PhaseGain, 0.01, 1)
	p.MinBPM = clampFloat(p.MinBPM, 20, 300)
	p.MaxBPM = clampFloat(p.MaxBPM, 20, 400)
	if p.MaxBPM <= p.MinBPM {
		p.MaxBPM = p.MinBPM + 1
	}
}

// tempoEstimate and beatObservation are the audio-to-render messages. Plain
// values so the snapshot publishers stay allocation-free.
type tempoEstimate struct {
	BPM        float64
	Confidence float64
}

type beatObservation struct {
	Time     frame.AudioTime
	Strength float64
	Downbeat bool
}

// Grid is the phase-locked musical-grid model.
type Grid struct {
	params Params

	// Cross-context inboxes: audio side publishes, render side consumes.
	tempoIn *snapshot.Publisher[tempoEstimate]
	beatIn  *snapshot.Publisher[beatObservation]

	// Render-context state. Nothing below is touched by the audio side.
	tempoSeq   uint64
	beatSeq    uint64
	bpm        float64
	confidence float64
	phase      float64 // Beat phase in [0,1).
	beatIndex  uint64
	barIndex   uint64
	beatInBar  int
	lastTick   frame.AudioTime
	haveTick   bool

	out frame.MusicalGridSnapshot
	pub *snapshot.Publisher[frame.MusicalGridSnapshot]
}

// New returns a Grid publishing snapshots through pub, free-running at
// 120 BPM until observations arrive.
func New(params Params, pub *snapshot.Publisher[frame.MusicalGridSnapshot]) *Grid {
	params.Sanitize()
	g := &Grid{
		params:  params,
		tempoIn: snapshot.New[tempoEstimate](),
		beatIn:  snapshot.New[beatObservation](),
		pub:     pub,
	}
	g.Reset()
	return g
}

// Publisher returns the snapshot publisher consumers read grid state from.
func (g *Grid) Publisher() *snapshot.Publisher[frame.MusicalGridSnapshot] {
	return g.pub
}

// SetParams swaps the tuning. Render-context only, like Tick.
func (g *Grid) SetParams(params Params) {
	params.Sanitize()
	g.params = params
	if g.beatInBar >= params.BeatsPerBar {
		g.beatInBar = 0
	}
}

// Params returns the current (sanitized) tuning.
func (g *Grid) Params() Params {
	return g.params
}

// OnTempoEstimate hands a tempo estimate across from the audio context.
// Wait-free; safe to call every hop.
func (g *Grid) OnTempoEstimate(bpm, confidence float64) {
	g.tempoIn.Publish(tempoEstimate{BPM: bpm, Confidence: confidence})
}

// OnBeatObservation hands a detected beat onset across from the audio
// context. The correction is applied on the next render tick.
func (g *Grid) OnBeatObservation(now frame.AudioTime, strength float64, downbeat bool) {
	g.beatIn.Publish(beatObservation{Time: now, Strength: strength, Downbeat: downbeat})
}

// Tick advances the grid to now. Render-context only, called once per
// render frame. Returns a pointer to the grid's own snapshot copy, valid
// until the next Tick; cross-context consumers read through the publisher.
func (g *Grid) Tick(now frame.AudioTime) *frame.MusicalGridSnapshot {
	// Consume at most one pending tempo estimate.
	var te tempoEstimate
	if seq := g.tempoIn.ReadInto(&te); seq != g.tempoSeq {
		g.tempoSeq = seq
		target := clampFloat(te.BPM, g.params.MinBPM, g.params.MaxBPM)
		g.bpm += (target - g.bpm) * g.params.TempoAlpha
		g.confidence = clampFloat(te.Confidence, 0, 1)
	}

	var elapsed uint64
	if g.haveTick {
		elapsed = now.Elapsed(g.lastTick)
	}
	g.lastTick = now
	g.haveTick = true

	// Phase increment per sample at the current tempo.
	inc := g.bpm / 60 / frame.SampleRate
	g.phase += inc * float64(elapsed)

	// Apply a pending beat observation as the PLL loop filter: nudge the
	// phase toward the nearest beat boundary proportionally to beat
	// strength, trading instant lock for jitter immunity.
	var bo beatObservation
	if seq := g.beatIn.ReadInto(&bo); seq != g.beatSeq {
		g.beatSeq = seq
		err := g.phase
		for err >= 1 {
			err--
		}
		if err > 0.5 {
			err--
		}
		g.phase -= err * g.params.PhaseGain * clampFloat(bo.Strength, 0, 1)
		if bo.Downbeat && g.beatInBar != 0 {
			g.beatInBar = 0
		}
	}

	beatTick := false
	downbeatTick := false
	for g.phase >= 1 {
		g.phase--
		g.beatIndex++
		g.beatInBar++
		beatTick = true
		if g.beatInBar >= g.params.BeatsPerBar {
			g.beatInBar = 0
			g.barIndex++
			downbeatTick = true
		}
	}
	if g.phase < 0 {
		g.phase = 0
	}

	out := &g.out
	out.Time = now
	out.BPM = g.bpm
	out.Confidence = g.confidence
	out.BeatPhase = g.phase
	out.BarPhase = (float64(g.beatInBar) + g.phase) / float64(g.params.BeatsPerBar)
	out.BeatTick = beatTick
	out.DownbeatTick = downbeatTick
	out.BeatIndex = g.beatIndex
	out.BarIndex = g.barIndex
	out.BeatInBar = g.beatInBar
	out.BeatsPerBar = g.params.BeatsPerBar
	out.BeatUnit = g.params.BeatUnit

	if g.pub != nil {
		g.pub.Publish(*out)
	}
	return out
}

// Reset returns the grid to its free-running default: 120 BPM, zero
// confidence, phase and counters at zero.
func (g *Grid) Reset() {
	g.bpm = 120
	g.confidence = 0
	g.phase = 0
	g.beatIndex = 0
	g.barIndex = 0
	g.beatInBar = 0
	g.haveTick = false
	g.lastTick = frame.AudioTime{}
	g.out = frame.MusicalGridSnapshot{}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
