// SPDX-License-Identifier: MIT
/*
Package conditioner turns one raw per-hop measurement into one conditioned,
published frame: defensive clamping, fast/slow energy smoothing, asymmetric
attack/release spectrum smoothing in two weights, single-frame spike
rejection, per-zone automatic gain, and triad chord classification.

The conditioner is owned by the audio context. Its only observable side
effect is publishing the assembled frame through a snapshot publisher; no
operation here can fail, and the hot path never allocates.
*/
package conditioner

import (
	"pulse/internal/frame"
	"pulse/internal/snapshot"
)

// Conditioner carries all smoothing and gain state between hops.
type Conditioner struct {
	params Params

	fastRMS  float64
	slowRMS  float64
	fastFlux float64
	slowFlux float64

	bands       [frame.NumBands]float64
	bandsHeavy  [frame.NumBands]float64
	chroma      [frame.NumChroma]float64
	chromaHeavy [frame.NumChroma]float64

	bandLook   lookahead
	chromaLook lookahead
	bandZones  [numZones]zoneAGC
	chromaZone [numZones]zoneAGC

	styleCategory   int
	styleConfidence float64

	// Scratch buffers reused every hop.
	workBands  [frame.NumBands]float64
	workChroma [frame.NumChroma]float64
	out        frame.ConditionedFrame

	pub *snapshot.Publisher[frame.ConditionedFrame]
}

// New returns a Conditioner publishing through pub. Params are sanitized on
// the way in.
func New(params Params, pub *snapshot.Publisher[frame.ConditionedFrame]) *Conditioner {
	params.Sanitize()
	return &Conditioner{
		params:     params,
		bandLook:   newLookahead(frame.NumBands),
		chromaLook: newLookahead(frame.NumChroma),
		pub:        pub,
	}
}

// Publisher returns the snapshot publisher consumers read frames from.
func (c *Conditioner) Publisher() *snapshot.Publisher[frame.ConditionedFrame] {
	return c.pub
}

// SetParams swaps the tuning at runtime. Audio-context only, like every
// other mutating call here.
func (c *Conditioner) SetParams(params Params) {
	params.Sanitize()
	c.params = params
}

// Params returns the current (sanitized) tuning.
func (c *Conditioner) Params() Params {
	return c.params
}

// SetStyle records the external style classification carried through
// published frames.
func (c *Conditioner) SetStyle(category int, confidence float64) {
	c.styleCategory = category
	c.styleConfidence = clamp01(confidence)
}

// UpdateFromHop is the sole mutating entry point, called once per audio hop.
// It conditions raw into the next published frame and returns a pointer to
// the conditioner's own copy of it, valid until the next call; cross-context
// consumers read through the publisher instead.
func (c *Conditioner) UpdateFromHop(now frame.AudioTime, raw *frame.RawMeasurement) *frame.ConditionedFrame {
	p := &c.params

	// Ingest clamping: never trust the front end.
	rms := clamp01(raw.RMS)
	flux := clamp01(raw.Flux)
	for i, v := range raw.Bands {
		c.workBands[i] = clamp01(v)
	}
	for i, v := range raw.Chroma {
		c.workChroma[i] = clamp01(v)
	}

	c.fastRMS += (rms - c.fastRMS) * p.FastAlpha
	c.slowRMS += (rms - c.slowRMS) * p.SlowAlpha
	c.fastFlux += (flux - c.fastFlux) * p.FastAlpha
	c.slowFlux += (flux - c.slowFlux) * p.SlowAlpha

	if p.SpikeRemoval {
		c.bandLook.push(c.workBands[:], c.workBands[:], p.SpikeDeviation, p.SpikeFloor)
		c.chromaLook.push(c.workChroma[:], c.workChroma[:], p.SpikeDeviation, p.SpikeFloor)
	}
	if p.BandAGC {
		normalizeZones(c.workBands[:], &c.bandZones, bandsPerZone,
			p.BandAGCAttack, p.BandAGCRelease, p.BandAGCFloor)
	}
	if p.ChromaAGC {
		normalizeZones(c.workChroma[:], &c.chromaZone, chromaPerZone,
			p.ChromaAGCAttack, p.ChromaAGCRelease, p.ChromaAGCFloor)
	}

	for i, v := range c.workBands {
		c.bands[i] = attackRelease(c.bands[i], v, p.Attack, p.Release)
		c.bandsHeavy[i] = attackRelease(c.bandsHeavy[i], v, p.AttackHeavy, p.ReleaseHeavy)
	}
	for i, v := range c.workChroma {
		c.chroma[i] = attackRelease(c.chroma[i], v, p.Attack, p.Release)
		c.chromaHeavy[i] = attackRelease(c.chromaHeavy[i], v, p.AttackHeavy, p.ReleaseHeavy)
	}

	out := &c.out
	out.Time = now
	out.FastRMS = c.fastRMS
	out.RMS = c.slowRMS
	out.FastFlux = c.fastFlux
	out.Flux = c.slowFlux
	out.Bands = c.bands
	out.BandsHeavy = c.bandsHeavy
	out.Chroma = c.chroma
	out.ChromaHeavy = c.chromaHeavy

	for i, v := range raw.Waveform {
		out.Waveform[i] = clampSigned(v)
	}

	if p.ChordDetection {
		out.Chord = classifyChord(&c.chroma, p.ChordMinConfidence)
	} else {
		out.Chord = frame.ChordState{}
	}

	out.SnareEnergy = clamp01(raw.SnareEnergy)
	out.HiHatEnergy = clamp01(raw.HiHatEnergy)
	out.SnareTrigger = raw.SnareTrigger
	out.HiHatTrigger = raw.HiHatTrigger
	out.StyleCategory = c.styleCategory
	out.StyleConfidence = c.styleConfidence

	if c.pub != nil {
		c.pub.Publish(*out)
	}
	return out
}

// Reset clears all smoothing, lookahead, and gain state back to defaults.
// Replaying the same inputs after Reset reproduces identical outputs.
func (c *Conditioner) Reset() {
	c.fastRMS, c.slowRMS, c.fastFlux, c.slowFlux = 0, 0, 0, 0
	c.bands = [frame.NumBands]float64{}
	c.bandsHeavy = [frame.NumBands]float64{}
	c.chroma = [frame.NumChroma]float64{}
	c.chromaHeavy = [frame.NumChroma]float64{}
	c.bandLook.reset()
	c.chromaLook.reset()
	c.bandZones = [numZones]zoneAGC{}
	c.chromaZone = [numZones]zoneAGC{}
	c.out = frame.ConditionedFrame{}
}

// attackRelease blends toward target with the attack coefficient when rising
// and the release coefficient when falling: fast up, slow down.
func attackRelease(current, target, attack, release float64) float64 {
	if target > current {
		return current + (target-current)*attack
	}
	return current + (target-current)*release
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
