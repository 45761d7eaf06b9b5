// SPDX-License-Identifier: MIT
package conditioner

import "pulse/internal/frame"

// Triad interval templates in semitones above the root.
var triadIntervals = [...]struct {
	chordType    frame.ChordType
	third, fifth int
}{
	{frame.ChordMajor, 4, 7},
	{frame.ChordMinor, 3, 7},
	{frame.ChordDiminished, 3, 6},
	{frame.ChordAugmented, 4, 8},
}

// classifyChord picks the strongest chroma bin as the candidate root and
// tests each triad template against it. Confidence is the share of total
// chroma energy concentrated in the triad's three pitch classes; below
// minConfidence the result is ChordNone.
func classifyChord(chroma *[frame.NumChroma]float64, minConfidence float64) frame.ChordState {
	root := 0
	total := 0.0
	for i, v := range chroma {
		total += v
		if v > chroma[root] {
			root = i
		}
	}

	state := frame.ChordState{RootNote: root, Type: frame.ChordNone}
	if total <= 1e-9 {
		return state
	}

	bestConf := 0.0
	for _, triad := range triadIntervals {
		rootE := chroma[root]
		thirdE := chroma[(root+triad.third)%frame.NumChroma]
		fifthE := chroma[(root+triad.fifth)%frame.NumChroma]
		conf := (rootE + thirdE + fifthE) / total
		if conf > bestConf {
			bestConf = conf
			state.Type = triad.chordType
			state.RootEnergy = rootE
			state.ThirdEnergy = thirdE
			state.FifthEnergy = fifthE
		}
	}

	if bestConf < minConfidence {
		return frame.ChordState{RootNote: root, Type: frame.ChordNone}
	}
	state.Confidence = bestConf
	return state
}
