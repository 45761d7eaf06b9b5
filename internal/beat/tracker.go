// SPDX-License-Identifier: MIT
/*
Package beat detects beat onsets and estimates tempo from the conditioned
band stream.

Each hop runs flux computation, adaptive-threshold update, gated detection,
and interval recording. Detection is band-weighted spectral flux against a
threshold that tracks the flux's own running mean and variance, so quiet
verses and loud choruses both resolve to sensible sensitivity without a
fixed cutoff. Tempo falls out of the mean of a short ring of inter-beat
intervals; confidence falls out of their spread.
*/
package beat

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"pulse/internal/frame"
)

// intervalRingSize bounds how much history the tempo estimate considers.
const intervalRingSize = 16

// minIntervalsForConfidence is the smallest sample the interval statistics
// are trusted at; below it confidence is reported as zero.
const minIntervalsForConfidence = 4

// Params holds the tracker's tuning. Sanitize clamps every numeric field.
type Params struct {
	// BandWeights bias flux toward the bands that carry the beat. The
	// default is bass-heavy, which favors kick-drum-driven material; that
	// is a deliberate fit for dance/electronic lighting, not a universal
	// beat detector. Flatten the weights for other genres.
	BandWeights [frame.NumBands]float64

	Sensitivity    float64 // Threshold stddev multiplier k. Default 1.5. Range [0.1, 10].
	ThresholdAlpha float64 // Flux mean/variance EMA coefficient. Default 0.05. Range [0.001, 1].
	SilenceFloor   float64 // RMS below this means no beat this hop. Default 0.01. Range [0, 0.5].
	DebounceMS     float64 // Minimum gap between beats. Default 250. Range [50, 2000].
	MinBPM         float64 // Default 60. Range [20, 300].
	MaxBPM         float64 // Default 180. Range [20, 400].

	// MaxIntervalVariance is the relative interval variance (variance over
	// squared mean) at which confidence reaches zero. Default 0.04.
	MaxIntervalVariance float64 // Range [0.0001, 1].
}

// DefaultParams returns the shipped tuning.
func DefaultParams() Params {
	return Params{
		BandWeights:         [frame.NumBands]float64{2.0, 1.6, 1.2, 1.0, 0.8, 0.6, 0.5, 0.4},
		Sensitivity:         1.5,
		ThresholdAlpha:      0.05,
		SilenceFloor:        0.01,
		DebounceMS:          250,
		MinBPM:              60,
		MaxBPM:              180,
		MaxIntervalVariance: 0.04,
	}
}

// Sanitize clamps all fields into their documented ranges and guarantees
// MinBPM < MaxBPM and at least one positive band weight.
func (p *Params) Sanitize() {
	for i, w := range p.BandWeights {
		if w < 0 {
			p.BandWeights[i] = 0
		}
	}
	sum := 0.0
	for _, w := range p.BandWeights {
		sum += w
	}
	if sum == 0 {
		p.BandWeights = DefaultParams().BandWeights
	}

	p.Sensitivity = clampRange(p.Sensitivity, 0.1, 10)
	p.ThresholdAlpha = clampRange(p.ThresholdAlpha, 0.001, 1)
	p.SilenceFloor = clampRange(p.SilenceFloor, 0, 0.5)
	p.DebounceMS = clampRange(p.DebounceMS, 50, 2000)
	p.MinBPM = clampRange(p.MinBPM, 20, 300)
	p.MaxBPM = clampRange(p.MaxBPM, 20, 400)
	if p.MaxBPM <= p.MinBPM {
		p.MaxBPM = p.MinBPM + 1
	}
	p.MaxIntervalVariance = clampRange(p.MaxIntervalVariance, 0.0001, 1)
}

// Tracker is the per-hop beat detector. Audio-context only; no operation
// here can fail or block, and the hot path never allocates.
type Tracker struct {
	params    Params
	weightSum float64
	debounceN uint64 // DebounceMS converted to samples.

	prevBands [frame.NumBands]float64
	havePrev  bool

	fluxMean float64
	fluxVar  float64

	lastBeat     frame.AudioTime
	haveLastBeat bool

	intervals [intervalRingSize]float64 // In samples.
	intervalN int
	ringPos   int

	bpm          float64
	isBeat       bool
	beatStrength float64
	lastFlux     float64
	threshold    float64
}

// New returns a Tracker with sanitized params and a provisional 120 BPM.
func New(params Params) *Tracker {
	t := &Tracker{}
	t.SetParams(params)
	t.Reset()
	return t
}

// SetParams swaps the tuning at runtime.
func (t *Tracker) SetParams(params Params) {
	params.Sanitize()
	t.params = params
	t.weightSum = 0
	for _, w := range params.BandWeights {
		t.weightSum += w
	}
	t.debounceN = uint64(params.DebounceMS / 1000 * frame.SampleRate)
}

// Params returns the current (sanitized) tuning.
func (t *Tracker) Params() Params {
	return t.params
}

// Process runs one hop of detection over the conditioned bands and RMS.
// Returns whether a beat onset was declared this hop.
func (t *Tracker) Process(now frame.AudioTime, bands *[frame.NumBands]float64, rms float64) bool {
	t.isBeat = false
	t.beatStrength = 0

	// Band-weighted positive spectral flux.
	flux := 0.0
	if t.havePrev {
		for i, b := range bands {
			d := b - t.prevBands[i]
			if d > 0 {
				flux += t.params.BandWeights[i] * d
			}
		}
		flux /= t.weightSum
	}
	t.prevBands = *bands
	t.havePrev = true
	t.lastFlux = flux

	// Adaptive threshold from running flux statistics.
	alpha := t.params.ThresholdAlpha
	d := flux - t.fluxMean
	t.fluxMean += alpha * d
	t.fluxVar += alpha * (d*d - t.fluxVar)
	t.threshold = clampRange(t.fluxMean+t.params.Sensitivity*math.Sqrt(t.fluxVar), 0.02, 0.8)

	// Gate 1: silence. prevBands already updated for the next hop.
	if rms < t.params.SilenceFloor {
		return false
	}
	// Gate 2: debounce against double-triggers on a transient's decay.
	if t.haveLastBeat && now.SampleIndex-t.lastBeat.SampleIndex < t.debounceN {
		return false
	}
	if flux <= t.threshold {
		return false
	}

	t.isBeat = true
	t.beatStrength = clampRange((flux-t.threshold)/t.threshold, 0, 1)

	if t.haveLastBeat {
		t.recordInterval(float64(now.SampleIndex - t.lastBeat.SampleIndex))
	}
	t.lastBeat = now
	t.haveLastBeat = true
	return true
}

// recordInterval pushes a plausible inter-beat interval into the ring and
// re-derives BPM from the ring mean.
func (t *Tracker) recordInterval(samples float64) {
	minInterval := 60.0 * frame.SampleRate / t.params.MaxBPM
	maxInterval := 60.0 * frame.SampleRate / t.params.MinBPM
	if samples < minInterval || samples > maxInterval {
		return
	}

	t.intervals[t.ringPos] = samples
	t.ringPos = (t.ringPos + 1) % intervalRingSize
	if t.intervalN < intervalRingSize {
		t.intervalN++
	}

	mean := stat.Mean(t.intervals[:t.intervalN], nil)
	if mean > 0 {
		t.bpm = clampRange(60*frame.SampleRate/mean, t.params.MinBPM, t.params.MaxBPM)
	}
}

// BPM returns the current tempo estimate (120 until enough beats arrive).
func (t *Tracker) BPM() float64 { return t.bpm }

// Confidence scores how steady the recorded intervals are: 1 for a rigid
// click train, 0 for fewer than four intervals or wildly uneven spacing.
func (t *Tracker) Confidence() float64 {
	if t.intervalN < minIntervalsForConfidence {
		return 0
	}
	mean, variance := stat.MeanVariance(t.intervals[:t.intervalN], nil)
	if mean <= 0 {
		return 0
	}
	relVar := variance / (mean * mean)
	return clampRange(1-relVar/t.params.MaxIntervalVariance, 0, 1)
}

// IsBeat reports whether the most recent Process declared a beat.
func (t *Tracker) IsBeat() bool { return t.isBeat }

// BeatStrength is the normalized excess over threshold for the most recent
// beat, in [0,1]; zero when IsBeat is false.
func (t *Tracker) BeatStrength() float64 { return t.beatStrength }

// LastFlux and Threshold expose the most recent detection inputs for
// diagnostics.
func (t *Tracker) LastFlux() float64  { return t.lastFlux }
func (t *Tracker) Threshold() float64 { return t.threshold }

// LastBeat returns the AudioTime of the most recent detected beat and
// whether any beat has been detected at all.
func (t *Tracker) LastBeat() (frame.AudioTime, bool) {
	return t.lastBeat, t.haveLastBeat
}

// Reset clears all detection state back to defaults: 120 BPM, zero
// confidence, no beat history.
func (t *Tracker) Reset() {
	t.prevBands = [frame.NumBands]float64{}
	t.havePrev = false
	t.fluxMean = 0
	t.fluxVar = 0
	t.lastBeat = frame.AudioTime{}
	t.haveLastBeat = false
	t.intervals = [intervalRingSize]float64{}
	t.intervalN = 0
	t.ringPos = 0
	t.bpm = 120
	t.isBeat = false
	t.beatStrength = 0
	t.lastFlux = 0
	t.threshold = 0
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
