// Package audio provides microphone capture and PCM utilities shared by the
// continuous listener and the command recorder.
//
// Samples are mono float32 in [-1, 1] throughout; conversion to 16-bit PCM
// happens only at the edges (the streaming recognizer wire format and WAV
// artifacts on disk).
package audio

import "math"

// Float32ToPCM16 converts mono float32 samples in [-1, 1] to interleaved
// 16-bit little-endian PCM bytes. Out-of-range samples are clipped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		n := int16(v * 32767)
		out[i*2] = byte(n)
		out[i*2+1] = byte(n >> 8)
	}
	return out
}

// RMS returns the root-mean-square level of a frame, used by the continuous
// listener's noise gate. Returns 0 for an empty frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var s float64
	for _, x := range frame {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(frame)))
}
