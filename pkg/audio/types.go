// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats and immutable decoded PCM buffers
package audio

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a decoded audio stream
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Buffer holds a fully decoded track. Samples are interleaved and
// scaled to the 24-bit range regardless of the source bit depth.
// A Buffer is never modified after decode; every source playing the
// track shares the same instance.
type Buffer struct {
	Format  Format
	Samples []int32
}

// Frames returns the number of sample frames (samples per channel)
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length in seconds at rate 1.0
func (b *Buffer) Duration() float64 {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.Format.SampleRate)
}

// Sample returns one sample normalised to [-1, 1]
func (b *Buffer) Sample(frame, channel int) float32 {
	return SampleToFloat(b.Samples[frame*b.Format.Channels+channel])
}

// SampleToFloat converts a 24-bit range sample to [-1, 1]
func SampleToFloat(sample int32) float32 {
	return float32(sample) / Max24Bit
}

// SampleFromFloat converts a [-1, 1] sample to the 24-bit range,
// clipping anything outside it
func SampleFromFloat(sample float32) int32 {
	switch {
	case sample >= 1:
		return Max24Bit
	case sample <= -1:
		return -Max24Bit
	}
	return int32(sample * Max24Bit)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromDepth scales a signed sample of the given bit depth to the 24-bit range
func SampleFromDepth(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24 || bitDepth <= 0:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}
