// SPDX-License-Identifier: MIT
/*
Package frame defines the plain-data value types exchanged between the audio
analysis context and the render context.

Every type here is a fixed-size value with no pointers or slices, so a whole
frame can be copied across contexts by the snapshot publisher without
allocation and without sharing any memory between writer and reader.
*/
package frame

// Fixed pipeline topology. The pipeline is tuned for one input rate and one
// set of consumers; these are not runtime-configurable.
const (
	SampleRate   = 16000 // Input sample rate (Hz), mono int16 PCM.
	NumBands     = 8     // Narrowband spectral bands.
	NumChroma    = 12    // Pitch-class bins.
	WaveformSize = 128   // Time-domain snapshot length (samples).

	FastHop = 128 // "Fast" hop size in samples (~8 ms).
	BeatHop = 256 // "Beat" hop size in samples (~16 ms).
)

// AudioTime is the monotonic sample-index clock. SampleIndex is the single
// source of truth for ordering and interval math; MonotonicUS is advisory
// wall-clock context for logging and display only.
type AudioTime struct {
	SampleIndex  uint64
	SampleRateHz uint32
	MonotonicUS  uint64
}

// Elapsed returns the sample distance from earlier to t. Returns 0 if earlier
// is not actually earlier (the clock never runs backwards, but callers may
// hold stale copies).
func (t AudioTime) Elapsed(earlier AudioTime) uint64 {
	if earlier.SampleIndex >= t.SampleIndex {
		return 0
	}
	return t.SampleIndex - earlier.SampleIndex
}

// Seconds converts a sample count to seconds at this clock's rate.
func (t AudioTime) Seconds(samples uint64) float64 {
	if t.SampleRateHz == 0 {
		return 0
	}
	return float64(samples) / float64(t.SampleRateHz)
}

// RawMeasurement is one hop's worth of unsmoothed inputs, assembled by the
// DSP front end. All magnitudes are expected in [0,1]; the conditioner clamps
// on ingest rather than trusting the producer.
type RawMeasurement struct {
	RMS      float64
	Flux     float64
	Bands    [NumBands]float64
	Chroma   [NumChroma]float64
	Waveform [WaveformSize]float64

	// Optional percussive-onset inputs. Energies are magnitudes in [0,1];
	// the trigger booleans are one-hop pulses from the front end.
	SnareEnergy  float64
	HiHatEnergy  float64
	SnareTrigger bool
	HiHatTrigger bool
}

// ChordType classifies the triad detected from the chroma vector.
type ChordType uint8

const (
	ChordNone ChordType = iota
	ChordMajor
	ChordMinor
	ChordDiminished
	ChordAugmented
)

func (c ChordType) String() string {
	switch c {
	case ChordMajor:
		return "major"
	case ChordMinor:
		return "minor"
	case ChordDiminished:
		return "diminished"
	case ChordAugmented:
		return "augmented"
	default:
		return "none"
	}
}

// ChordState is the per-hop chord classification. It has no identity beyond
// the frame it was computed in.
type ChordState struct {
	RootNote    int // 0..11, pitch class of the candidate root.
	Type        ChordType
	Confidence  float64
	RootEnergy  float64
	ThirdEnergy float64
	FifthEnergy float64
}

// ConditionedFrame is the published output of the signal conditioner and the
// canonical audio-derived signal set for every visual effect.
type ConditionedFrame struct {
	Time AudioTime

	// Exponentially smoothed energy measures, fast and slow variants.
	FastRMS  float64
	RMS      float64
	FastFlux float64
	Flux     float64

	// Attack/release smoothed spectra. The Heavy variants use slower
	// coefficients and suit ambient, slow-moving effects.
	Bands       [NumBands]float64
	BandsHeavy  [NumBands]float64
	Chroma      [NumChroma]float64
	ChromaHeavy [NumChroma]float64

	Waveform [WaveformSize]float64

	Chord ChordState

	// Percussive onsets passed through from the raw measurement.
	SnareEnergy  float64
	HiHatEnergy  float64
	SnareTrigger bool
	HiHatTrigger bool

	// Style classification carried through from an external classifier.
	StyleCategory   int
	StyleConfidence float64
}

// MusicalGridSnapshot is the published output of the musical grid: a
// continuously advancing beat/bar phase queryable at render cadence.
type MusicalGridSnapshot struct {
	Time AudioTime

	BPM        float64
	Confidence float64

	// Continuous phases in [0,1).
	BeatPhase float64
	BarPhase  float64

	// One-shot booleans, true for exactly the snapshot in which the
	// corresponding boundary was crossed.
	BeatTick     bool
	DownbeatTick bool

	BeatIndex uint64
	BarIndex  uint64
	BeatInBar int

	BeatsPerBar int
	BeatUnit    int
}
