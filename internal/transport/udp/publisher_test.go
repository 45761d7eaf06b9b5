// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"pulse/internal/frame"
	"pulse/internal/snapshot"
)

func localListener(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().String()
}

func TestPacketLayout(t *testing.T) {
	listener, addr := localListener(t)

	sender, err := NewSender(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	frames := snapshot.New[frame.ConditionedFrame]()
	grids := snapshot.New[frame.MusicalGridSnapshot]()

	var cf frame.ConditionedFrame
	cf.FastRMS = 0.5
	cf.Chord = frame.ChordState{RootNote: 9, Type: frame.ChordMinor, Confidence: 0.75}
	cf.Bands[0] = 0.25
	cf.Chroma[11] = 0.125
	cf.SnareTrigger = true
	frames.Publish(cf)

	var gs frame.MusicalGridSnapshot
	gs.BPM = 128
	gs.BeatPhase = 0.5
	gs.BeatTick = true
	gs.BeatInBar = 2
	gs.BeatsPerBar = 4
	grids.Publish(gs)

	pub, err := NewPublisher(time.Hour, sender, frames, grids)
	if err != nil {
		t.Fatal(err)
	}
	pub.buildAndSendPacket()

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	packet := make([]byte, 2048)
	n, err := listener.Read(packet)
	if err != nil {
		t.Fatal(err)
	}
	packet = packet[:n]

	wantLen := 4 + 8 + 4*4 + 5 + 4 + 4*4 + 2 + frame.NumBands*4 + 2 + frame.NumChroma*4
	if n != wantLen {
		t.Fatalf("Packet length = %d, want %d", n, wantLen)
	}

	if seq := binary.BigEndian.Uint32(packet[0:4]); seq != 1 {
		t.Errorf("Sequence = %d, want 1", seq)
	}
	if bpm := f32At(packet, 12); bpm != 128 {
		t.Errorf("BPM = %v, want 128", bpm)
	}
	if phase := f32At(packet, 20); phase != 0.5 {
		t.Errorf("Beat phase = %v, want 0.5", phase)
	}

	flags := packet[28]
	if flags != flagBeatTick|flagSnareTrigger {
		t.Errorf("Flags = %08b", flags)
	}
	if packet[29] != 2 || packet[30] != 4 {
		t.Errorf("Beat in bar / beats per bar = %d / %d", packet[29], packet[30])
	}
	if packet[31] != 9 || packet[32] != uint8(frame.ChordMinor) {
		t.Errorf("Chord root/type = %d / %d", packet[31], packet[32])
	}
	if conf := f32At(packet, 33); conf != 0.75 {
		t.Errorf("Chord confidence = %v", conf)
	}
	if fastRMS := f32At(packet, 37); fastRMS != 0.5 {
		t.Errorf("Fast RMS = %v", fastRMS)
	}

	bandsOff := 53
	if count := binary.BigEndian.Uint16(packet[bandsOff : bandsOff+2]); count != frame.NumBands {
		t.Errorf("Band count = %d", count)
	}
	if b0 := f32At(packet, bandsOff+2); b0 != 0.25 {
		t.Errorf("Bands[0] = %v", b0)
	}

	chromaOff := bandsOff + 2 + frame.NumBands*4
	if count := binary.BigEndian.Uint16(packet[chromaOff : chromaOff+2]); count != frame.NumChroma {
		t.Errorf("Chroma count = %d", count)
	}
	if c11 := f32At(packet, chromaOff+2+11*4); c11 != 0.125 {
		t.Errorf("Chroma[11] = %v", c11)
	}
}

func TestNoPacketWithoutNewFrame(t *testing.T) {
	listener, addr := localListener(t)

	sender, err := NewSender(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	frames := snapshot.New[frame.ConditionedFrame]()
	grids := snapshot.New[frame.MusicalGridSnapshot]()
	pub, err := NewPublisher(time.Hour, sender, frames, grids)
	if err != nil {
		t.Fatal(err)
	}

	// No frame has ever been published: nothing must be sent.
	pub.buildAndSendPacket()

	frames.Publish(frame.ConditionedFrame{})
	pub.buildAndSendPacket()
	pub.buildAndSendPacket() // Same frame again: suppressed.

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	packet := make([]byte, 2048)
	if _, err := listener.Read(packet); err != nil {
		t.Fatal("First packet never arrived")
	}

	listener.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := listener.Read(packet); err == nil {
		t.Error("Duplicate packet sent for an unchanged frame")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	_, addr := localListener(t)

	sender, err := NewSender(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	frames := snapshot.New[frame.ConditionedFrame]()
	grids := snapshot.New[frame.MusicalGridSnapshot]()
	pub, err := NewPublisher(time.Millisecond, sender, frames, grids)
	if err != nil {
		t.Fatal(err)
	}

	pub.Start()
	pub.Start() // Second Start is a no-op.
	if err := pub.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Stop(); err != nil {
		t.Fatal(err)
	}
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
}
