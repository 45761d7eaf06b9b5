// SPDX-License-Identifier: MIT
package conditioner

import "pulse/internal/frame"

// lookaheadWidth must accommodate the widest channel group (chroma).
const lookaheadWidth = frame.NumChroma

// lookahead is a 3-slot buffer over one channel group (bands or chroma).
// Pushing frame N emits frame N-2, giving the spike detector one frame of
// future context: a value that is a local extremum over exactly one frame
// and deviates significantly from its neighbors is replaced by their
// average before it is ever emitted. Conditioning therefore runs a fixed
// 2-frame behind the raw input.
type lookahead struct {
	slots [3][lookaheadWidth]float64
	n     int // Active channel count (<= lookaheadWidth).
	fill  int
}

func newLookahead(n int) lookahead {
	if n > lookaheadWidth {
		n = lookaheadWidth
	}
	return lookahead{n: n}
}

// push shifts in the new frame and writes the (possibly corrected) oldest
// frame into out. Returns false during warm-up, when fewer than 3 frames
// have been seen and out is zeroed.
func (l *lookahead) push(in, out []float64, deviation, floor float64) bool {
	l.slots[0] = l.slots[1]
	l.slots[1] = l.slots[2]
	copy(l.slots[2][:l.n], in)
	if l.fill < 3 {
		l.fill++
	}
	if l.fill < 3 {
		for i := 0; i < l.n; i++ {
			out[i] = 0
		}
		return false
	}

	for i := 0; i < l.n; i++ {
		prev, mid, next := l.slots[0][i], l.slots[1][i], l.slots[2][i]

		// A spike reverses direction over exactly one frame: the change
		// into mid and the change out of mid have opposite signs.
		dIn := mid - prev
		dOut := next - mid
		if dIn*dOut < 0 {
			avg := (prev + next) / 2
			dev := mid - avg
			if dev < 0 {
				dev = -dev
			}
			limit := deviation * avg
			if limit < floor {
				limit = floor
			}
			if dev > limit {
				l.slots[1][i] = avg
			}
		}
		out[i] = l.slots[0][i]
	}
	return true
}

// reset clears all slots and the fill counter; the next two pushes emit
// zeros again.
func (l *lookahead) reset() {
	l.slots = [3][lookaheadWidth]float64{}
	l.fill = 0
}
