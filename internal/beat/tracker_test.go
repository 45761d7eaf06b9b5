// SPDX-License-Identifier: MIT
package beat

import (
	"math"
	"testing"

	"pulse/internal/frame"
)

const hopSamples = 250

func hopTime(n int) frame.AudioTime {
	return frame.AudioTime{
		SampleIndex:  uint64(n) * hopSamples,
		SampleRateHz: frame.SampleRate,
	}
}

// driveClicks feeds hops hops with a bass transient every clickEvery hops
// and returns the number of beats detected.
func driveClicks(t *Tracker, hops, clickEvery int) int {
	quiet := [frame.NumBands]float64{0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02, 0.02}
	click := [frame.NumBands]float64{0.85, 0.7, 0.3, 0.1, 0.05, 0.05, 0.02, 0.02}

	beats := 0
	for hop := 0; hop < hops; hop++ {
		bands := quiet
		if hop%clickEvery == 0 && hop > 0 {
			bands = click
		}
		if t.Process(hopTime(hop), &bands, 0.3) {
			beats++
		}
	}
	return beats
}

func TestClickTrainYieldsTempoAndConfidence(t *testing.T) {
	tr := New(DefaultParams())

	// A click every 32 hops of 250 samples is an 8000-sample interval:
	// 120 BPM at 16 kHz. Run long enough for well over 4 intervals.
	beats := driveClicks(tr, 32*12, 32)
	if beats < 6 {
		t.Fatalf("detected %d beats, want at least 6", beats)
	}
	if bpm := tr.BPM(); math.Abs(bpm-120) > 2 {
		t.Errorf("BPM = %.2f, want 120 +/- 2", bpm)
	}
	if conf := tr.Confidence(); conf <= 0.8 {
		t.Errorf("confidence = %.3f, want > 0.8", conf)
	}
}

func TestConfidenceZeroWithFewIntervals(t *testing.T) {
	tr := New(DefaultParams())

	// 3 beats = 2 intervals, below the statistics floor.
	driveClicks(tr, 32*3+1, 32)
	if conf := tr.Confidence(); conf != 0 {
		t.Errorf("confidence = %.3f with < 4 intervals, want 0", conf)
	}
}

func TestDebounceSuppressesDoubleTrigger(t *testing.T) {
	tr := New(DefaultParams())
	quiet := [frame.NumBands]float64{}
	click := [frame.NumBands]float64{0.9, 0.8, 0.4, 0.1, 0, 0, 0, 0}

	// Settle the threshold statistics on silence first.
	hop := 0
	for n := 0; n < 20; n++ {
		tr.Process(hopTime(hop), &quiet, 0.3)
		hop++
	}

	if !tr.Process(hopTime(hop), &click, 0.5) {
		t.Fatal("first transient not detected")
	}
	hop++
	tr.Process(hopTime(hop), &quiet, 0.5)
	hop++

	// A second transient 500 samples later sits inside the 250 ms
	// debounce window and must be suppressed.
	if tr.Process(hopTime(hop), &click, 0.5) {
		t.Error("transient inside debounce window reported as a beat")
	}
}

func TestSilenceGateBlocksDetection(t *testing.T) {
	p := DefaultParams()
	p.SilenceFloor = 0.05
	tr := New(p)

	quiet := [frame.NumBands]float64{}
	click := [frame.NumBands]float64{0.9, 0.8, 0.4, 0.1, 0, 0, 0, 0}

	hop := 0
	for n := 0; n < 20; n++ {
		tr.Process(hopTime(hop), &quiet, 0.3)
		hop++
	}
	if tr.Process(hopTime(hop), &click, 0.01) {
		t.Error("beat reported below the silence floor")
	}
}

func TestImplausibleIntervalsIgnored(t *testing.T) {
	tr := New(DefaultParams())

	// Clicks every 128 hops = 32000 samples = 30 BPM, below MinBPM 60:
	// intervals must be rejected and BPM stays at the 120 default.
	driveClicks(tr, 128*6, 128)
	if bpm := tr.BPM(); bpm != 120 {
		t.Errorf("BPM = %.2f after implausible intervals, want untouched 120", bpm)
	}
	if conf := tr.Confidence(); conf != 0 {
		t.Errorf("confidence = %.3f, want 0 (no intervals recorded)", conf)
	}
}

func TestBeatStrengthBounded(t *testing.T) {
	tr := New(DefaultParams())
	quiet := [frame.NumBands]float64{}
	click := [frame.NumBands]float64{1, 1, 1, 1, 1, 1, 1, 1}

	hop := 0
	for n := 0; n < 20; n++ {
		tr.Process(hopTime(hop), &quiet, 0.3)
		hop++
	}
	if !tr.Process(hopTime(hop), &click, 0.9) {
		t.Fatal("full-scale transient not detected")
	}
	s := tr.BeatStrength()
	if s <= 0 || s > 1 {
		t.Errorf("beat strength = %v, want in (0, 1]", s)
	}
}

func TestResetReproducesColdStart(t *testing.T) {
	tr := New(DefaultParams())

	driveClicks(tr, 32*8, 32)
	firstBPM, firstConf := tr.BPM(), tr.Confidence()

	tr.Reset()
	if tr.BPM() != 120 || tr.Confidence() != 0 || tr.IsBeat() {
		t.Fatal("Reset did not restore defaults")
	}

	driveClicks(tr, 32*8, 32)
	if tr.BPM() != firstBPM || tr.Confidence() != firstConf {
		t.Errorf("replay after reset: BPM %.2f/conf %.3f, want %.2f/%.3f",
			tr.BPM(), tr.Confidence(), firstBPM, firstConf)
	}
}

func TestParamsSanitized(t *testing.T) {
	p := DefaultParams()
	p.BandWeights = [frame.NumBands]float64{-1, -2, 0, 0, 0, 0, 0, 0}
	p.MinBPM = 200
	p.MaxBPM = 100
	p.Sanitize()

	if p.BandWeights != DefaultParams().BandWeights {
		t.Errorf("all-zero weights not restored to defaults: %v", p.BandWeights)
	}
	if p.MaxBPM <= p.MinBPM {
		t.Errorf("MaxBPM %.0f not forced above MinBPM %.0f", p.MaxBPM, p.MinBPM)
	}
}

func TestProcessHotPath(t *testing.T) {
	tr := New(DefaultParams())
	bands := [frame.NumBands]float64{0.3, 0.2, 0.1, 0.1, 0.05, 0.05, 0.02, 0.02}

	tr.Process(hopTime(0), &bands, 0.3) // Warm-up.
	hop := 1
	allocs := testing.AllocsPerRun(100, func() {
		tr.Process(hopTime(hop), &bands, 0.3)
		hop++
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process hot path, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	tr := New(DefaultParams())
	bands := [frame.NumBands]float64{0.3, 0.2, 0.1, 0.1, 0.05, 0.05, 0.02, 0.02}

	b.ReportAllocs()
	hop := 0
	for i := 0; i < b.N; i++ {
		tr.Process(hopTime(hop), &bands, 0.3)
		hop++
	}
}
