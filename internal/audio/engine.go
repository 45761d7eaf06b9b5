// SPDX-License-Identifier: MIT
/*
Package audio owns the capture side of the pipeline:
- Lock-free audio capture using PortAudio (16 kHz mono int16)
- Per-hop dispatch into the spectral analyzer, DSP front end, conditioner,
  and beat tracker
- Noise gate with branchless implementation
- WAV recording with atomic state management

Thread Safety:
- The PortAudio callback is the only writer of pipeline state
- Tuning changes cross into the callback through an atomic pointer
- Pre-allocated buffers, no allocation in the hot path
*/
package audio

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"pulse/internal/beat"
	"pulse/internal/conditioner"
	"pulse/internal/config"
	"pulse/internal/dsp"
	"pulse/internal/frame"
	"pulse/internal/grid"
	applog "pulse/internal/log"
	"pulse/internal/snapshot"
	"pulse/internal/spectral"
)

// tuning bundles the parameter sets swapped into the callback atomically.
type tuning struct {
	conditioner conditioner.Params
	beat        beat.Params
}

type Engine struct {
	cfg *config.Config

	// Audio input handling.
	inputBuffer  []int16
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Pipeline stages, driven from the stream callback.
	analyzer *spectral.Analyzer
	frontEnd *dsp.FrontEnd
	cond     *conditioner.Conditioner
	tracker  *beat.Tracker
	grid     *grid.Grid

	// Hop bookkeeping. A beat hop fires every second fast-hop callback.
	sampleIndex   uint64
	hopsSinceBeat int
	raw           frame.RawMeasurement
	startTime     time.Time

	pending atomic.Pointer[tuning]

	// Noise gate for signal conditioning.
	gateEnabled   bool
	gateThreshold int32 // Absolute int16 amplitude threshold (0-32767).

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state
	wavEncoder  *wav.Encoder
	outputFile  *os.File
	sampleBuf   *goaudio.IntBuffer
}

// NewEngine builds the full analysis pipeline around the configured input
// device. PortAudio must be initialized first.
func NewEngine(cfg *config.Config) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		inputBuffer: make([]int16, frame.FastHop),
		inputDevice: inputDevice,

		analyzer: spectral.New(),
		frontEnd: dsp.New(),
		cond: conditioner.New(cfg.Tuning.ConditionerParams(),
			snapshot.New[frame.ConditionedFrame]()),
		tracker: beat.New(cfg.Tuning.BeatParams()),
		grid: grid.New(cfg.Tuning.GridParams(),
			snapshot.New[frame.MusicalGridSnapshot]()),

		gateEnabled:   cfg.Audio.GateEnabled,
		gateThreshold: int32(cfg.Audio.GateThreshold * 32767),
		startTime:     time.Now(),
	}

	if cfg.Audio.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return e, nil
}

// Frames returns the conditioned-frame publisher render-side consumers read
// from.
func (e *Engine) Frames() *snapshot.Publisher[frame.ConditionedFrame] {
	return e.cond.Publisher()
}

// Grid returns the musical grid. Ticking it is the render context's job;
// the engine only feeds it observations.
func (e *Engine) Grid() *grid.Grid {
	return e.grid
}

// ApplyTuning hands new conditioner and beat parameters to the stream
// callback. Safe to call from any goroutine; the swap happens at the next
// hop boundary. Grid tuning is applied by the grid's ticking context.
func (e *Engine) ApplyTuning(cfg *config.Config) {
	e.pending.Store(&tuning{
		conditioner: cfg.Tuning.ConditionerParams(),
		beat:        cfg.Tuning.BeatParams(),
	})
	applog.Debugf("engine: tuning update queued")
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: frame.FastHop,
		SampleRate:      frame.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		return err
	}

	applog.Infof("engine: capturing from %q at %d Hz", e.inputDevice.Name, frame.SampleRate)
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}
		if err := e.inputStream.Close(); err != nil {
			return err
		}
		e.inputStream = nil
	}
	return nil
}

// processInputStream is the core audio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer)

	if atomic.LoadInt32(&e.isRecording) == 1 && e.wavEncoder != nil {
		for i, sample := range e.inputBuffer {
			e.sampleBuf.Data[i] = int(sample)
		}
		e.sampleBuf.Data = e.sampleBuf.Data[:len(e.inputBuffer)]

		if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
			applog.Errorf("engine: error writing WAV file: %v", err)
		}
	}
}

// processBuffer runs one fast hop of the pipeline in-place.
// Performance Critical (Hot Path):
// - No allocations
// - Branchless noise gate implementation
// - Beat-hop work only every second callback
func (e *Engine) processBuffer(buffer []int16) {
	if tn := e.pending.Swap(nil); tn != nil {
		e.cond.SetParams(tn.conditioner)
		e.tracker.SetParams(tn.beat)
	}

	gateOpen := true
	if e.gateEnabled {
		var maxAmplitude int32
		for i := range buffer {
			sample := int32(buffer[i])
			mask := sample >> 31
			amplitude := (sample ^ mask) - mask
			diff := amplitude - maxAmplitude
			maxAmplitude += (diff & (diff >> 31)) ^ diff
		}
		gateOpen = maxAmplitude > e.gateThreshold
	}

	if gateOpen {
		e.analyzer.Accumulate(buffer)
		e.frontEnd.Accumulate(buffer)
	}
	e.sampleIndex += uint64(len(buffer))

	e.hopsSinceBeat++
	if e.hopsSinceBeat*frame.FastHop < frame.BeatHop {
		return
	}
	e.hopsSinceBeat = 0

	if !e.frontEnd.Measure(&e.raw) {
		return
	}
	e.analyzer.Analyze(&e.raw.Bands)

	now := frame.AudioTime{
		SampleIndex:  e.sampleIndex,
		SampleRateHz: frame.SampleRate,
		MonotonicUS:  uint64(time.Since(e.startTime).Microseconds()),
	}

	cf := e.cond.UpdateFromHop(now, &e.raw)
	if e.tracker.Process(now, &cf.Bands, cf.FastRMS) {
		e.grid.OnBeatObservation(now, e.tracker.BeatStrength(), false)
		e.grid.OnTempoEstimate(e.tracker.BPM(), e.tracker.Confidence())
	}
}
