package audio

import (
	"math"
	"time"
)

// Level returns the RMS level of the frame, from 0.0 (silence) to 1.0
func (f Frame) Level() float64 {
	return calculateEnergy(f.Data)
}

// Duration returns the audio time the frame covers
func (f Frame) Duration() time.Duration {
	return time.Duration(f.Frames) * time.Second / SampleRate
}

// calculateEnergy calculates the energy (RMS) of an audio buffer
func calculateEnergy(data []byte) float64 {
	// Assuming 16-bit signed integers (2 bytes per sample)
	sampleCount := len(data) / 2
	if sampleCount == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < sampleCount; i++ {
		// Read 16-bit sample (little-endian)
		sample := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		normalized := float64(sample) / 32768.0 // Normalize to -1.0 to 1.0
		sum += normalized * normalized
	}

	// Return RMS (Root Mean Square) energy
	return math.Sqrt(sum / float64(sampleCount))
}
