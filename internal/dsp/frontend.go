// SPDX-License-Identifier: MIT
/*
Package dsp assembles the per-hop RawMeasurement fed to the conditioner: RMS,
wideband spectral flux, a 12-bin chroma projection, a time-domain waveform
snapshot, and percussive-onset heuristics. Band magnitudes come from the
spectral analyzer and are filled in by the caller.

All buffers are pre-allocated at construction; Measure performs no heap
allocation.
*/
package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"pulse/internal/frame"
	"pulse/pkg/bitint"
)

const (
	// FrameSize is the FFT frame length, matching the spectral analyzer's
	// sliding window so both views describe the same audio.
	FrameSize = 512

	// Chroma projection range. Below ~110 Hz pitch-class resolution of a
	// 512-point FFT collapses; above ~3.5 kHz harmonics smear the bins.
	chromaLowHz  = 110.0
	chromaHighHz = 3520.0

	// Percussive heuristic bands. Snare body and rattle sit in the low
	// mids through presence range; hi-hat energy is almost entirely top.
	snareLowHz  = 1500.0
	snareHighHz = 4000.0
	hihatLowHz  = 6000.0
	hihatHighHz = 7800.0

	onsetAvgAlpha = 0.05
	onsetRatio    = 2.5
	onsetFloor    = 0.05
)

// magNorm scales FFT magnitudes so a full-scale Hann-windowed sine peaks
// near 1.0 (coherent gain 0.5, peak bin magnitude N/4).
const magNorm = 4.0 / FrameSize

// FrontEnd computes everything in a RawMeasurement except the band
// magnitudes. Single-goroutine use from the audio context.
type FrontEnd struct {
	ring     [FrameSize]float64
	writePos int
	totalIn  uint64

	fft  *fourier.FFT
	win  []float64
	in   []float64
	out  []complex128
	mag  []float64
	prev []float64

	// Per-bin pitch class, -1 outside the chroma range.
	pitchClass []int
	snareLo    int
	snareHi    int
	hihatLo    int
	hihatHi    int

	snareAvg float64
	hihatAvg float64
}

// ringMask turns ring indexing into a single AND. Valid because the frame
// length is a power of 2, checked in New.
const ringMask = FrameSize - 1

// New returns a ready FrontEnd for the fixed pipeline sample rate.
func New() *FrontEnd {
	if !bitint.IsPowerOfTwo(FrameSize) {
		panic("dsp: frame size must be a power of 2")
	}
	f := &FrontEnd{
		fft:  fourier.NewFFT(FrameSize),
		in:   make([]float64, FrameSize),
		out:  make([]complex128, FrameSize/2+1),
		mag:  make([]float64, FrameSize/2+1),
		prev: make([]float64, FrameSize/2+1),
	}

	f.win = make([]float64, FrameSize)
	for i := range f.win {
		f.win[i] = 1
	}
	window.Hann(f.win)

	f.pitchClass = make([]int, len(f.out))
	binHz := float64(frame.SampleRate) / FrameSize
	for i := range f.pitchClass {
		f.pitchClass[i] = -1
		freq := float64(i) * binHz
		if freq < chromaLowHz || freq > chromaHighHz {
			continue
		}
		// Semitone offset from A440, folded to a pitch class with C=0.
		semis := int(math.Round(12 * math.Log2(freq/440)))
		f.pitchClass[i] = ((semis+9)%12 + 12) % 12
	}

	f.snareLo = int(math.Ceil(snareLowHz / binHz))
	f.snareHi = int(snareHighHz / binHz)
	f.hihatLo = int(math.Ceil(hihatLowHz / binHz))
	f.hihatHi = min(int(hihatHighHz/binHz), len(f.mag)-1)
	return f
}

// Accumulate pushes PCM samples into the sliding window.
func (f *FrontEnd) Accumulate(samples []int16) {
	for _, s := range samples {
		f.ring[f.writePos] = float64(s) / 32768.0
		f.writePos = (f.writePos + 1) & ringMask
	}
	f.totalIn += uint64(len(samples))
}

// Ready reports whether a full analysis frame has been accumulated.
func (f *FrontEnd) Ready() bool {
	return f.totalIn >= FrameSize
}

// Measure fills out's RMS, Flux, Chroma, Waveform, and percussive fields
// from the current window. The Bands array is left untouched for the caller
// to fill from the spectral analyzer. Returns false before the first full
// frame has accumulated, leaving out unmodified.
func (f *FrontEnd) Measure(out *frame.RawMeasurement) bool {
	if !f.Ready() {
		return false
	}

	// Linearize oldest-first, windowed for the FFT. RMS is taken from the
	// unwindowed samples.
	var sumSq float64
	for i := 0; i < FrameSize; i++ {
		s := f.ring[(f.writePos+i)&ringMask]
		sumSq += s * s
		f.in[i] = s * f.win[i]
	}
	out.RMS = clamp01(math.Sqrt(sumSq / FrameSize))

	f.fft.Coefficients(f.out, f.in)
	var fluxSum float64
	for i := range f.out {
		m := cmplx.Abs(f.out[i]) * magNorm
		f.mag[i] = m
		if d := m - f.prev[i]; d > 0 {
			fluxSum += d
		}
		f.prev[i] = m
	}
	out.Flux = clamp01(fluxSum / float64(len(f.mag)) * 16)

	var chroma [frame.NumChroma]float64
	for i, pc := range f.pitchClass {
		if pc >= 0 {
			chroma[pc] += f.mag[i] * f.mag[i]
		}
	}
	maxChroma := 0.0
	for i := range chroma {
		chroma[i] = math.Sqrt(chroma[i])
		if chroma[i] > maxChroma {
			maxChroma = chroma[i]
		}
	}
	if maxChroma > 0 {
		for i := range chroma {
			chroma[i] /= maxChroma
		}
	}
	out.Chroma = chroma

	// Most recent WaveformSize samples, oldest first.
	start := f.writePos - frame.WaveformSize
	for i := 0; i < frame.WaveformSize; i++ {
		out.Waveform[i] = f.ring[(start+i)&ringMask]
	}

	out.SnareEnergy, out.SnareTrigger = f.onset(f.snareLo, f.snareHi, &f.snareAvg)
	out.HiHatEnergy, out.HiHatTrigger = f.onset(f.hihatLo, f.hihatHi, &f.hihatAvg)
	return true
}

// onset computes band energy over [lo, hi] and fires a trigger when it jumps
// well above its own running average.
func (f *FrontEnd) onset(lo, hi int, avg *float64) (float64, bool) {
	var sumSq float64
	n := 0
	for i := lo; i <= hi && i < len(f.mag); i++ {
		sumSq += f.mag[i] * f.mag[i]
		n++
	}
	if n == 0 {
		return 0, false
	}
	energy := clamp01(math.Sqrt(sumSq / float64(n)))

	trigger := energy > onsetFloor && energy > *avg*onsetRatio
	*avg += (energy - *avg) * onsetAvgAlpha
	return energy, trigger
}

// Reset clears the window and all running state.
func (f *FrontEnd) Reset() {
	f.ring = [FrameSize]float64{}
	f.writePos = 0
	f.totalIn = 0
	for i := range f.prev {
		f.prev[i] = 0
	}
	f.snareAvg = 0
	f.hihatAvg = 0
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
