// Package audio defines the fixed frame format consumed by the session
// protocol and the chunking that produces it from arbitrary sample runs.
package audio

import (
	"context"
	"time"
)

const (
	// SampleRate is the only sample rate the protocol accepts.
	SampleRate = 24000

	// FrameSamples is the exact sample count of every transmitted frame.
	FrameSamples = 1920
)

// FrameDuration is the wall-clock span one frame covers (80ms).
const FrameDuration = time.Duration(FrameSamples) * time.Second / SampleRate

// Frame is a mono run of exactly FrameSamples single-precision samples at
// SampleRate. Producers must never hand out a frame of any other length.
type Frame []float32

// FrameSource produces fixed-format frames until the context is cancelled or
// the underlying input runs out.
type FrameSource interface {
	Stream(ctx context.Context, onFrame func(frame Frame)) error
	Close()
}

// FromPCM16 converts little-endian 16-bit PCM bytes to float32 samples in
// [-1, 1). A trailing odd byte is dropped.
func FromPCM16(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		sample := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		samples[i] = float32(sample) / 32768
	}
	return samples
}
