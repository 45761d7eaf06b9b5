// SPDX-License-Identifier: MIT
package conditioner

// Params holds every runtime-settable knob for the conditioner. All numeric
// fields are range-clamped by Sanitize so no configuration input can produce
// divide-by-zero or runaway-gain states; out-of-range values are corrected
// silently rather than rejected.
type Params struct {
	// Exponential smoothing coefficients for RMS and flux.
	FastAlpha float64 // Default 0.35. Range [0.01, 1].
	SlowAlpha float64 // Default 0.12. Range [0.005, 1].

	// Asymmetric attack/release coefficients for bands and chroma.
	Attack       float64 // Default 0.15. Range [0.01, 1].
	Release      float64 // Default 0.03. Range [0.001, 1].
	AttackHeavy  float64 // Default 0.08. Range [0.005, 1].
	ReleaseHeavy float64 // Default 0.015. Range [0.0005, 1].

	// Transient spike removal over the 3-frame lookahead.
	SpikeRemoval   bool
	SpikeDeviation float64 // Significant-deviation ratio, default 0.15. Range [0.01, 1].
	SpikeFloor     float64 // Absolute deviation floor, default 0.02. Range [0.001, 0.5].

	// Per-zone automatic gain control, bands and chroma independently.
	BandAGC          bool
	BandAGCAttack    float64 // Default 0.05. Range [0.001, 1].
	BandAGCRelease   float64 // Default 0.05. Range [0.001, 1].
	BandAGCFloor     float64 // Max-gain cap, default 0.01 (100x). Range [0.001, 1].
	ChromaAGC        bool
	ChromaAGCAttack  float64 // Default 0.05. Range [0.001, 1].
	ChromaAGCRelease float64 // Default 0.05. Range [0.001, 1].
	ChromaAGCFloor   float64 // Default 0.01. Range [0.001, 1].

	// Chord classification from the smoothed chroma.
	ChordDetection     bool
	ChordMinConfidence float64 // Default 0.5. Range [0, 1].
}

// DefaultParams returns the tuning the pipeline ships with.
func DefaultParams() Params {
	return Params{
		FastAlpha:          0.35,
		SlowAlpha:          0.12,
		Attack:             0.15,
		Release:            0.03,
		AttackHeavy:        0.08,
		ReleaseHeavy:       0.015,
		SpikeRemoval:       true,
		SpikeDeviation:     0.15,
		SpikeFloor:         0.02,
		BandAGC:            true,
		BandAGCAttack:      0.05,
		BandAGCRelease:     0.05,
		BandAGCFloor:       0.01,
		ChromaAGC:          true,
		ChromaAGCAttack:    0.05,
		ChromaAGCRelease:   0.05,
		ChromaAGCFloor:     0.01,
		ChordDetection:     true,
		ChordMinConfidence: 0.5,
	}
}

// Sanitize clamps every numeric field into its documented range.
func (p *Params) Sanitize() {
	p.FastAlpha = clampRange(p.FastAlpha, 0.01, 1)
	p.SlowAlpha = clampRange(p.SlowAlpha, 0.005, 1)
	p.Attack = clampRange(p.Attack, 0.01, 1)
	p.Release = clampRange(p.Release, 0.001, 1)
	p.AttackHeavy = clampRange(p.AttackHeavy, 0.005, 1)
	p.ReleaseHeavy = clampRange(p.ReleaseHeavy, 0.0005, 1)
	p.SpikeDeviation = clampRange(p.SpikeDeviation, 0.01, 1)
	p.SpikeFloor = clampRange(p.SpikeFloor, 0.001, 0.5)
	p.BandAGCAttack = clampRange(p.BandAGCAttack, 0.001, 1)
	p.BandAGCRelease = clampRange(p.BandAGCRelease, 0.001, 1)
	p.BandAGCFloor = clampRange(p.BandAGCFloor, 0.001, 1)
	p.ChromaAGCAttack = clampRange(p.ChromaAGCAttack, 0.001, 1)
	p.ChromaAGCRelease = clampRange(p.ChromaAGCRelease, 0.001, 1)
	p.ChromaAGCFloor = clampRange(p.ChromaAGCFloor, 0.001, 1)
	p.ChordMinConfidence = clampRange(p.ChordMinConfidence, 0, 1)
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
