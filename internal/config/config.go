// SPDX-License-Identifier: MIT
// Package config loads and validates the application configuration: device
// selection, recording, network fan-out, and the tuning surface of every
// pipeline stage. Values come from built-in defaults, an optional YAML file,
// environment overrides, and CLI flags, applied in that order.
package config

import (
	"time"

	"pulse/internal/beat"
	"pulse/internal/conditioner"
	"pulse/internal/frame"
	"pulse/internal/grid"
)

const (
	// MinDeviceID (-1) selects the system default input device.
	MinDeviceID       = -1
	DefaultDeviceID   = MinDeviceID
	DefaultLowLatency = false

	// DefaultGateThreshold is ~0.1% of full scale, enough to reject
	// interface self-noise without eating quiet musical content.
	DefaultGateThreshold = 0.001

	DefaultFormat     = "wav"
	DefaultOutputFile = "" // Auto-generated filename.

	DefaultWebsocketAddr    = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 16 * time.Millisecond // ~60 Hz.

	// DefaultRenderInterval is the mapper's grid tick cadence.
	DefaultRenderInterval = 16 * time.Millisecond
)

// Config is the full runtime configuration. CLI-only fields carry no YAML
// tag; everything else can come from a config file.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	Command    string `yaml:"-"` // One-off command ("list", ...) instead of running the pipeline.
	TUIMode    bool   `yaml:"-"`
	ConfigPath string `yaml:"-"` // File the config was loaded from, empty for defaults.

	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	Tuning    TuningConfig    `yaml:"tuning"`
}

// AudioConfig selects and conditions the capture device. The sample rate,
// channel count, and hop sizes are fixed pipeline constants, not config.
type AudioConfig struct {
	InputDevice   int     `yaml:"input_device"` // PortAudio device index, -1 for default.
	LowLatency    bool    `yaml:"low_latency"`
	GateEnabled   bool    `yaml:"gate_enabled"`
	GateThreshold float64 `yaml:"gate_threshold"` // 0..1 of full scale.
}

// RecordingConfig controls optional WAV capture of the input stream.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
}

// TransportConfig controls network fan-out of published frames.
type TransportConfig struct {
	WebsocketEnabled bool   `yaml:"websocket_enabled"`
	WebsocketAddr    string `yaml:"websocket_addr"`

	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// TuningConfig is the YAML-facing view of the pipeline stage parameters.
// Each section converts to its package's Params type, which applies its own
// range clamping.
type TuningConfig struct {
	Conditioner ConditionerTuning `yaml:"conditioner"`
	Beat        BeatTuning        `yaml:"beat"`
	Grid        GridTuning        `yaml:"grid"`
}

type ConditionerTuning struct {
	FastAlpha    float64 `yaml:"fast_alpha"`
	SlowAlpha    float64 `yaml:"slow_alpha"`
	Attack       float64 `yaml:"attack"`
	Release      float64 `yaml:"release"`
	AttackHeavy  float64 `yaml:"attack_heavy"`
	ReleaseHeavy float64 `yaml:"release_heavy"`

	SpikeRemoval   bool    `yaml:"spike_removal"`
	SpikeDeviation float64 `yaml:"spike_deviation"`
	SpikeFloor     float64 `yaml:"spike_floor"`

	BandAGC          bool    `yaml:"band_agc"`
	BandAGCAttack    float64 `yaml:"band_agc_attack"`
	BandAGCRelease   float64 `yaml:"band_agc_release"`
	BandAGCFloor     float64 `yaml:"band_agc_floor"`
	ChromaAGC        bool    `yaml:"chroma_agc"`
	ChromaAGCAttack  float64 `yaml:"chroma_agc_attack"`
	ChromaAGCRelease float64 `yaml:"chroma_agc_release"`
	ChromaAGCFloor   float64 `yaml:"chroma_agc_floor"`

	ChordDetection     bool    `yaml:"chord_detection"`
	ChordMinConfidence float64 `yaml:"chord_min_confidence"`
}

type BeatTuning struct {
	BandWeights         []float64 `yaml:"band_weights"`
	Sensitivity         float64   `yaml:"sensitivity"`
	ThresholdAlpha      float64   `yaml:"threshold_alpha"`
	SilenceFloor        float64   `yaml:"silence_floor"`
	DebounceMS          float64   `yaml:"debounce_ms"`
	MinBPM              float64   `yaml:"min_bpm"`
	MaxBPM              float64   `yaml:"max_bpm"`
	MaxIntervalVariance float64   `yaml:"max_interval_variance"`
}

type GridTuning struct {
	BeatsPerBar int     `yaml:"beats_per_bar"`
	BeatUnit    int     `yaml:"beat_unit"`
	TempoAlpha  float64 `yaml:"tempo_alpha"`
	PhaseGain   float64 `yaml:"phase_gain"`
	MinBPM      float64 `yaml:"min_bpm"`
	MaxBPM      float64 `yaml:"max_bpm"`
}

// NewConfig returns a Config carrying every default, ready to be overlaid
// by a YAML file, environment overrides, and CLI flags.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:   DefaultDeviceID,
			LowLatency:    DefaultLowLatency,
			GateEnabled:   true,
			GateThreshold: DefaultGateThreshold,
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: DefaultOutputFile,
		},
		Transport: TransportConfig{
			WebsocketEnabled: false,
			WebsocketAddr:    DefaultWebsocketAddr,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Tuning: defaultTuning(),
	}
}

func defaultTuning() TuningConfig {
	c := conditioner.DefaultParams()
	b := beat.DefaultParams()
	g := grid.DefaultParams()
	return TuningConfig{
		Conditioner: ConditionerTuning{
			FastAlpha:          c.FastAlpha,
			SlowAlpha:          c.SlowAlpha,
			Attack:             c.Attack,
			Release:            c.Release,
			AttackHeavy:        c.AttackHeavy,
			ReleaseHeavy:       c.ReleaseHeavy,
			SpikeRemoval:       c.SpikeRemoval,
			SpikeDeviation:     c.SpikeDeviation,
			SpikeFloor:         c.SpikeFloor,
			BandAGC:            c.BandAGC,
			BandAGCAttack:      c.BandAGCAttack,
			BandAGCRelease:     c.BandAGCRelease,
			BandAGCFloor:       c.BandAGCFloor,
			ChromaAGC:          c.ChromaAGC,
			ChromaAGCAttack:    c.ChromaAGCAttack,
			ChromaAGCRelease:   c.ChromaAGCRelease,
			ChromaAGCFloor:     c.ChromaAGCFloor,
			ChordDetection:     c.ChordDetection,
			ChordMinConfidence: c.ChordMinConfidence,
		},
		Beat: BeatTuning{
			BandWeights:         b.BandWeights[:],
			Sensitivity:         b.Sensitivity,
			ThresholdAlpha:      b.ThresholdAlpha,
			SilenceFloor:        b.SilenceFloor,
			DebounceMS:          b.DebounceMS,
			MinBPM:              b.MinBPM,
			MaxBPM:              b.MaxBPM,
			MaxIntervalVariance: b.MaxIntervalVariance,
		},
		Grid: GridTuning{
			BeatsPerBar: g.BeatsPerBar,
			BeatUnit:    g.BeatUnit,
			TempoAlpha:  g.TempoAlpha,
			PhaseGain:   g.PhaseGain,
			MinBPM:      g.MinBPM,
			MaxBPM:      g.MaxBPM,
		},
	}
}

// ConditionerParams converts the tuning section to sanitized conditioner
// parameters.
func (t *TuningConfig) ConditionerParams() conditioner.Params {
	c := t.Conditioner
	p := conditioner.Params{
		FastAlpha:          c.FastAlpha,
		SlowAlpha:          c.SlowAlpha,
		Attack:             c.Attack,
		Release:            c.Release,
		AttackHeavy:        c.AttackHeavy,
		ReleaseHeavy:       c.ReleaseHeavy,
		SpikeRemoval:       c.SpikeRemoval,
		SpikeDeviation:     c.SpikeDeviation,
		SpikeFloor:         c.SpikeFloor,
		BandAGC:            c.BandAGC,
		BandAGCAttack:      c.BandAGCAttack,
		BandAGCRelease:     c.BandAGCRelease,
		BandAGCFloor:       c.BandAGCFloor,
		ChromaAGC:          c.ChromaAGC,
		ChromaAGCAttack:    c.ChromaAGCAttack,
		ChromaAGCRelease:   c.ChromaAGCRelease,
		ChromaAGCFloor:     c.ChromaAGCFloor,
		ChordDetection:     c.ChordDetection,
		ChordMinConfidence: c.ChordMinConfidence,
	}
	p.Sanitize()
	return p
}

// BeatParams converts the tuning section to sanitized beat tracker
// parameters. A band_weights list of the wrong length falls back to the
// shipped weights.
func (t *TuningConfig) BeatParams() beat.Params {
	b := t.Beat
	p := beat.Params{
		BandWeights:         beat.DefaultParams().BandWeights,
		Sensitivity:         b.Sensitivity,
		ThresholdAlpha:      b.ThresholdAlpha,
		SilenceFloor:        b.SilenceFloor,
		DebounceMS:          b.DebounceMS,
		MinBPM:              b.MinBPM,
		MaxBPM:              b.MaxBPM,
		MaxIntervalVariance: b.MaxIntervalVariance,
	}
	if len(b.BandWeights) == frame.NumBands {
		copy(p.BandWeights[:], b.BandWeights)
	}
	p.Sanitize()
	return p
}

// GridParams converts the tuning section to sanitized grid parameters.
func (t *TuningConfig) GridParams() grid.Params {
	g := t.Grid
	p := grid.Params{
		BeatsPerBar: g.BeatsPerBar,
		BeatUnit:    g.BeatUnit,
		TempoAlpha:  g.TempoAlpha,
		PhaseGain:   g.PhaseGain,
		MinBPM:      g.MinBPM,
		MaxBPM:      g.MaxBPM,
	}
	p.Sanitize()
	return p
}
