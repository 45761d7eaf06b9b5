// SPDX-License-Identifier: MIT
/*
Package spectral maintains a sliding window over raw PCM samples and computes
narrowband magnitude for a fixed set of target frequencies using the
single-bin recursive DFT (Goertzel).

Goertzel avoids a full FFT's log-N cost when only a handful of fixed bins are
needed. The 512-sample window re-analyzed every 128- or 256-sample hop gives
75% overlap: re-analysis every ~8 ms for visual responsiveness while the
32 ms window keeps enough frequency resolution for bass coherence.
*/
package spectral

import (
	"math"

	"pulse/internal/frame"
)

// WindowSize is the sliding analysis window length in samples.
const WindowSize = 512

// Band center frequencies in Hz. The top band sits below Nyquist/2 on
// purpose: Goertzel turns numerically unstable at the boundary.
var targetFrequencies = [frame.NumBands]float64{
	60, 120, 250, 500, 1000, 2000, 4000, 7800,
}

// Per-band output scaling applied after the Goertzel magnitude, tuned so a
// full-scale sine lands near 1.0 in its band.
const bandNorm = 4.0 / WindowSize

// Analyzer holds the sample ring and precomputed Goertzel coefficients.
// Single-context use only; the audio context owns it exclusively.
type Analyzer struct {
	ring     [WindowSize]int16
	writePos int
	totalIn  uint64
	coeffs   [frame.NumBands]float64
	linear   [WindowSize]float64 // Time-ordered copy built per Analyze call.
}

// New returns an Analyzer with coefficients precomputed for the fixed band
// set at the pipeline sample rate.
func New() *Analyzer {
	a := &Analyzer{}
	for i, f := range targetFrequencies {
		k := f / frame.SampleRate * WindowSize
		a.coeffs[i] = 2 * math.Cos(2*math.Pi*k/WindowSize)
	}
	return a
}

// Accumulate copies samples into the ring at the current write cursor.
// Cannot fail; callers push whatever block size the capture layer delivers.
func (a *Analyzer) Accumulate(samples []int16) {
	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % WindowSize
	}
	a.totalIn += uint64(len(samples))
}

// Ready reports whether the window has been filled at least once.
func (a *Analyzer) Ready() bool {
	return a.totalIn >= WindowSize
}

// Analyze computes the magnitude response for all bands over the current
// window. The ok result is false until the window has filled once; after
// that it is always true. Allocation-free.
func (a *Analyzer) Analyze(bands *[frame.NumBands]float64) (ok bool) {
	if !a.Ready() {
		return false
	}

	// Linearize the ring oldest-first so the recursion sees samples in
	// time order, normalized to [-1,1).
	const norm = 1.0 / 32768.0
	pos := a.writePos
	for i := range a.linear {
		a.linear[i] = float64(a.ring[pos]) * norm
		pos++
		if pos == WindowSize {
			pos = 0
		}
	}

	for b, c := range a.coeffs {
		var s1, s2 float64
		for _, x := range a.linear {
			s0 := x + c*s1 - s2
			s2 = s1
			s1 = s0
		}
		mag := math.Sqrt(s1*s1 + s2*s2 - c*s1*s2)
		v := mag * bandNorm
		if v > 1 {
			v = 1
		}
		bands[b] = v
	}
	return true
}

// Reset zeroes the ring, cursor, and lifetime counter. Analyze reports
// not-ready again until the window refills.
func (a *Analyzer) Reset() {
	a.ring = [WindowSize]int16{}
	a.writePos = 0
	a.totalIn = 0
}

// BandFrequency returns the center frequency (Hz) of band i, or 0 for an
// out-of-range index.
func BandFrequency(i int) float64 {
	if i < 0 || i >= frame.NumBands {
		return 0
	}
	return targetFrequencies[i]
}
