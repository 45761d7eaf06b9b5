// SPDX-License-Identifier: MIT
package grid

import (
	"math"
	"testing"

	"pulse/internal/frame"
	"pulse/internal/snapshot"
)

// tickSamples is 1/64 of a 120 BPM beat at 16 kHz, so the free-running
// phase increment per tick is exactly representable (1/64).
const tickSamples = 125

func tickTime(n int) frame.AudioTime {
	return frame.AudioTime{
		SampleIndex:  uint64(n) * tickSamples,
		SampleRateHz: frame.SampleRate,
	}
}

func TestFreeRunAdvancesLinearlyAndWraps(t *testing.T) {
	g := New(DefaultParams(), nil)

	// At 120 BPM a beat is 8000 samples = 64 ticks of 125 samples.
	prev := -1.0
	beatTicks := 0
	var wrapAt int
	for n := 0; n < 130; n++ {
		snap := g.Tick(tickTime(n))

		if snap.BeatTick {
			beatTicks++
			wrapAt = n
			if snap.BeatPhase != 0 {
				t.Errorf("tick %d: phase after wrap = %v, want exactly 0", n, snap.BeatPhase)
			}
		} else if snap.BeatPhase <= prev && n > 0 {
			t.Errorf("tick %d: phase %v did not advance from %v", n, snap.BeatPhase, prev)
		}
		prev = snap.BeatPhase
	}

	if beatTicks != 2 {
		t.Errorf("beat ticks fired %d times over 130 ticks, want exactly 2", beatTicks)
	}
	if wrapAt != 128 {
		t.Errorf("second wrap at tick %d, want 128", wrapAt)
	}
}

func TestBeatTickIsOneShot(t *testing.T) {
	g := New(DefaultParams(), nil)

	for n := 0; n < 70; n++ {
		snap := g.Tick(tickTime(n))
		if snap.BeatTick && n != 64 {
			t.Errorf("beat tick at %d, want only at 64", n)
		}
	}
}

func TestBarAndDownbeatCounting(t *testing.T) {
	g := New(DefaultParams(), nil)

	downbeats := 0
	var last *frame.MusicalGridSnapshot
	for n := 0; n < 64*8+2; n++ {
		last = g.Tick(tickTime(n))
		if last.DownbeatTick {
			downbeats++
			if last.BeatInBar != 0 {
				t.Errorf("downbeat with beat-in-bar %d", last.BeatInBar)
			}
		}
	}

	// 8 beats in 4/4 time: downbeats at beats 4 and 8.
	if downbeats != 2 {
		t.Errorf("downbeats = %d, want 2", downbeats)
	}
	if last.BeatIndex != 8 || last.BarIndex != 2 {
		t.Errorf("counters = beat %d / bar %d, want 8 / 2", last.BeatIndex, last.BarIndex)
	}
}

func TestBarPhaseSpansTheBar(t *testing.T) {
	g := New(DefaultParams(), nil)

	prev := -1.0
	for n := 0; n < 64*4; n++ {
		snap := g.Tick(tickTime(n))
		if snap.BarPhase < 0 || snap.BarPhase >= 1 {
			t.Fatalf("tick %d: bar phase %v out of [0,1)", n, snap.BarPhase)
		}
		if !snap.DownbeatTick && n > 0 && snap.BarPhase <= prev {
			t.Fatalf("tick %d: bar phase %v did not advance from %v", n, snap.BarPhase, prev)
		}
		prev = snap.BarPhase
	}
}

func TestTempoEstimateSmoothedIn(t *testing.T) {
	g := New(DefaultParams(), nil)
	g.Tick(tickTime(0))

	g.OnTempoEstimate(160, 0.9)
	snap := g.Tick(tickTime(1))

	// One IIR step from 120 toward 160 at alpha 0.2.
	if math.Abs(snap.BPM-128) > 1e-9 {
		t.Errorf("BPM after one estimate = %v, want 128", snap.BPM)
	}
	if snap.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", snap.Confidence)
	}

	// The same estimate must not be consumed twice.
	snap = g.Tick(tickTime(2))
	if math.Abs(snap.BPM-128) > 1e-9 {
		t.Errorf("BPM after no new estimate = %v, want unchanged 128", snap.BPM)
	}
}

func TestTempoEstimateClamped(t *testing.T) {
	g := New(DefaultParams(), nil)
	g.Tick(tickTime(0))

	g.OnTempoEstimate(1000, 1)
	snap := g.Tick(tickTime(1))

	// Target clamps to MaxBPM 180; one IIR step from 120 is 132.
	if math.Abs(snap.BPM-132) > 1e-9 {
		t.Errorf("BPM = %v, want 132 (estimate clamped to 180)", snap.BPM)
	}
}

func TestBeatObservationNudgesPhaseTowardZero(t *testing.T) {
	g := New(DefaultParams(), nil)

	// Advance to mid-beat, phase 0.25.
	g.Tick(tickTime(0))
	snap := g.Tick(tickTime(16))
	if math.Abs(snap.BeatPhase-0.25) > 1e-9 {
		t.Fatalf("setup phase = %v, want 0.25", snap.BeatPhase)
	}

	// A full-strength beat observation pulls the phase toward 0 by the
	// loop gain, not all the way (no snapping).
	g.OnBeatObservation(tickTime(16), 1, false)
	snap = g.Tick(tickTime(16))
	want := 0.25 - 0.25*DefaultParams().PhaseGain
	if math.Abs(snap.BeatPhase-want) > 1e-9 {
		t.Errorf("phase after correction = %v, want %v", snap.BeatPhase, want)
	}
}

func TestLateBeatObservationPushesPhaseForward(t *testing.T) {
	g := New(DefaultParams(), nil)

	// Phase 0.75: the nearest beat boundary is ahead, so the correction
	// must increase the phase.
	g.Tick(tickTime(0))
	snap := g.Tick(tickTime(48))
	if math.Abs(snap.BeatPhase-0.75) > 1e-9 {
		t.Fatalf("setup phase = %v, want 0.75", snap.BeatPhase)
	}

	g.OnBeatObservation(tickTime(48), 1, false)
	snap = g.Tick(tickTime(48))
	want := 0.75 + 0.25*DefaultParams().PhaseGain
	if math.Abs(snap.BeatPhase-want) > 1e-9 {
		t.Errorf("phase after late correction = %v, want %v", snap.BeatPhase, want)
	}
}

func TestDownbeatObservationForcesBarAlignment(t *testing.T) {
	g := New(DefaultParams(), nil)

	// Run two beats in so beat-in-bar is 2.
	var n int
	for n = 0; n < 64*2+1; n++ {
		g.Tick(tickTime(n))
	}

	g.OnBeatObservation(tickTime(n), 0.5, true)
	snap := g.Tick(tickTime(n))
	if snap.BeatInBar != 0 {
		t.Errorf("beat-in-bar after downbeat observation = %d, want 0", snap.BeatInBar)
	}
}

func TestPublishesThroughSnapshot(t *testing.T) {
	pub := snapshot.New[frame.MusicalGridSnapshot]()
	g := New(DefaultParams(), pub)

	g.Tick(tickTime(0))
	g.Tick(tickTime(1))

	snap, seq := pub.Read()
	if seq != 2 {
		t.Fatalf("sequence = %d, want 2", seq)
	}
	if snap.BPM != 120 {
		t.Errorf("published BPM = %v, want 120", snap.BPM)
	}
}

func TestResetRestoresFreeRun(t *testing.T) {
	g := New(DefaultParams(), nil)

	g.OnTempoEstimate(90, 0.5)
	for n := 0; n < 200; n++ {
		g.Tick(tickTime(n))
	}

	g.Reset()
	snap := g.Tick(tickTime(0))
	if snap.BPM != 120 || snap.BeatIndex != 0 || snap.BarIndex != 0 || snap.BeatPhase != 0 {
		t.Errorf("state after reset: %+v", snap)
	}
}

func TestTickHotPath(t *testing.T) {
	pub := snapshot.New[frame.MusicalGridSnapshot]()
	g := New(DefaultParams(), pub)

	g.Tick(tickTime(0)) // Warm-up.
	n := 1
	allocs := testing.AllocsPerRun(100, func() {
		g.Tick(tickTime(n))
		n++
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Tick hot path, got %.1f", allocs)
	}
}

func TestObservationHotPath(t *testing.T) {
	g := New(DefaultParams(), nil)

	g.OnTempoEstimate(120, 1)
	g.OnBeatObservation(tickTime(0), 1, false)
	allocs := testing.AllocsPerRun(100, func() {
		g.OnTempoEstimate(120, 1)
		g.OnBeatObservation(tickTime(0), 1, false)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in observation paths, got %.1f", allocs)
	}
}

func BenchmarkTick(b *testing.B) {
	g := New(DefaultParams(), snapshot.New[frame.MusicalGridSnapshot]())

	b.ReportAllocs()
	n := 0
	for i := 0; i < b.N; i++ {
		g.Tick(tickTime(n))
		n++
	}
}
