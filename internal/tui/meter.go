// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"pulse/internal/frame"
	"pulse/internal/snapshot"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	meterRefresh  = 33 * time.Millisecond // ~30 fps.
	meterBarWidth = 24
)

var (
	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	beatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#F25D94")).
			Padding(0, 1).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

var bandLabels = [frame.NumBands]string{
	" 60", "120", "250", "500", " 1k", " 2k", " 4k", " 8k",
}

// MeterModel is the live pipeline meter: band bars, BPM readout, chord,
// and a beat flash, refreshed on its own tick.
type MeterModel struct {
	frames *snapshot.Publisher[frame.ConditionedFrame]
	grids  *snapshot.Publisher[frame.MusicalGridSnapshot]

	cf frame.ConditionedFrame
	gs frame.MusicalGridSnapshot

	// flash counts down refreshes since the last beat tick.
	flash int
}

// NewMeterModel wires a meter to the pipeline's publishers.
func NewMeterModel(frames *snapshot.Publisher[frame.ConditionedFrame], grids *snapshot.Publisher[frame.MusicalGridSnapshot]) MeterModel {
	return MeterModel{frames: frames, grids: grids}
}

type refreshMsg time.Time

func refreshTick() tea.Cmd {
	return tea.Tick(meterRefresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m MeterModel) Init() tea.Cmd {
	return refreshTick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case refreshMsg:
		m.frames.ReadInto(&m.cf)
		m.grids.ReadInto(&m.gs)
		if m.gs.BeatTick {
			m.flash = 3
		} else if m.flash > 0 {
			m.flash--
		}
		return m, refreshTick()
	}
	return m, nil
}

func (m MeterModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("pulse"))
	sb.WriteString("  ")
	if m.flash > 0 {
		sb.WriteString(beatStyle.Render("BEAT"))
	} else {
		sb.WriteString(dimStyle.Render("beat"))
	}
	sb.WriteString(fmt.Sprintf("  %.1f BPM (%.0f%%)  bar %d.%d\n\n",
		m.gs.BPM, m.gs.Confidence*100, m.gs.BarIndex, m.gs.BeatInBar+1))

	for i, v := range m.cf.Bands {
		sb.WriteString(fmt.Sprintf("%s %s\n", bandLabels[i], renderBar(v)))
	}

	sb.WriteString(fmt.Sprintf("\nRMS %s\n", renderBar(m.cf.FastRMS)))

	if m.cf.Chord.Type != frame.ChordNone {
		sb.WriteString(fmt.Sprintf("\nchord: %s %s (%.0f%%)\n",
			noteName(m.cf.Chord.RootNote), m.cf.Chord.Type, m.cf.Chord.Confidence*100))
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

func renderBar(v float64) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v * meterBarWidth)
	return barStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", meterBarWidth-filled))
}

var noteNames = [frame.NumChroma]string{
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

func noteName(pitchClass int) string {
	if pitchClass < 0 || pitchClass >= len(noteNames) {
		return "?"
	}
	return noteNames[pitchClass]
}
