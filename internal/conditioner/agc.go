// SPDX-License-Identifier: MIT
package conditioner

import "pulse/internal/frame"

// Zone layout: 8 bands split into 4 zones of 2, 12 chroma bins into 4 zones
// of 3. Normalizing per zone keeps bass-heavy material from crushing mid and
// high detail the way a single global gain would.
const (
	numZones      = 4
	bandsPerZone  = frame.NumBands / numZones
	chromaPerZone = frame.NumChroma / numZones
)

// zoneAGC tracks a smoothed envelope of one zone's peak magnitude. The
// envelope is the divisor used to normalize that zone's channels; the floor
// caps the maximum possible gain.
type zoneAGC struct {
	follower float64
}

// update feeds the zone's peak magnitude for this hop into the envelope
// (attack when rising, release when falling) and returns the divisor.
func (z *zoneAGC) update(maxMag, attack, release, floor float64) float64 {
	if maxMag > z.follower {
		z.follower += (maxMag - z.follower) * attack
	} else {
		z.follower += (maxMag - z.follower) * release
	}
	if z.follower < floor {
		return floor
	}
	return z.follower
}

// normalizeZones divides each channel by its zone's envelope. values is
// modified in place; perZone channels belong to each consecutive zone.
func normalizeZones(values []float64, zones *[numZones]zoneAGC, perZone int, attack, release, floor float64) {
	for zi := range zones {
		lo := zi * perZone
		hi := lo + perZone

		maxMag := 0.0
		for i := lo; i < hi; i++ {
			if values[i] > maxMag {
				maxMag = values[i]
			}
		}

		div := zones[zi].update(maxMag, attack, release, floor)
		for i := lo; i < hi; i++ {
			values[i] = clamp01(values[i] / div)
		}
	}
}
