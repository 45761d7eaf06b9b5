package utils

import "math"

// MockTransport implements the transport interface for testing.
type MockTransport struct {
	Sent []any
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.Sent = append(m.Sent, data)
	return nil
}

// Close is a no-op for the mock.
func (m *MockTransport) Close() error { return nil }

// SineWaveInt16 generates a pure sine wave as 16-bit PCM.
// amplitude is relative to full scale, in [0,1].
func SineWaveInt16(size int, sampleRate, frequency, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * amplitude * 32767)
	}
	return buffer
}

// ComplexWaveInt16 generates a 440 Hz fundamental plus two harmonics,
// useful as arbitrary "musical" content.
func ComplexWaveInt16(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = int16(signal * 32767 * 0.9)
	}
	return buffer
}

// ClickTrainInt16 generates silence with a short full-band burst every
// interval samples, starting at sample 0. At 16 kHz an interval of 8000
// samples is a 120 BPM click train.
func ClickTrainInt16(size, interval, clickLen int, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		if i%interval < clickLen {
			// Alternate polarity inside the click so it carries energy
			// across the spectrum instead of a DC step.
			if i%2 == 0 {
				buffer[i] = int16(amplitude * 32767)
			} else {
				buffer[i] = int16(-amplitude * 32767)
			}
		}
	}
	return buffer
}
