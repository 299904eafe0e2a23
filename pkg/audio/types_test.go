// ABOUTME: Tests for audio types
// ABOUTME: Tests buffer geometry and sample scaling helpers
package audio

import (
	"math"
	"testing"
)

func TestBufferGeometry(t *testing.T) {
	buf := &Buffer{
		Format:  Format{Codec: "wav", SampleRate: 1000, Channels: 2, BitDepth: 16},
		Samples: make([]int32, 2*2500),
	}

	if buf.Frames() != 2500 {
		t.Errorf("expected 2500 frames, got %d", buf.Frames())
	}
	if math.Abs(buf.Duration()-2.5) > 1e-12 {
		t.Errorf("expected duration 2.5s, got %f", buf.Duration())
	}
}

func TestBufferNil(t *testing.T) {
	var buf *Buffer
	if buf.Frames() != 0 || buf.Duration() != 0 {
		t.Error("nil buffer should report zero length")
	}
}

func TestBufferSample(t *testing.T) {
	buf := &Buffer{
		Format:  Format{SampleRate: 10, Channels: 2},
		Samples: []int32{0, Max24Bit, -Max24Bit, 0},
	}
	if got := buf.Sample(0, 1); got != 1 {
		t.Errorf("expected 1.0, got %f", got)
	}
	if got := buf.Sample(1, 0); got != -1 {
		t.Errorf("expected -1.0, got %f", got)
	}
}

func TestSampleFromDepth(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		depth    int
		expected int32
	}{
		{"16 bit", 100, 16, 100 << 8},
		{"8 bit", -3, 8, -3 << 16},
		{"24 bit", 0x123456, 24, 0x123456},
		{"32 bit", 1 << 30, 32, 1 << 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleFromDepth(tt.sample, tt.depth); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestSampleFromFloat(t *testing.T) {
	tests := []struct {
		in   float32
		want int32
	}{
		{0, 0},
		{0.5, Max24Bit / 2},
		{1, Max24Bit},
		{1.7, Max24Bit},
		{-1, -Max24Bit},
		{-4, -Max24Bit},
	}
	for _, tt := range tests {
		if got := SampleFromFloat(tt.in); got != tt.want {
			t.Errorf("SampleFromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := SampleToInt16(SampleFromFloat(1)); got != 32767 {
		t.Errorf("full scale should map to 32767, got %d", got)
	}
}

func TestSampleInt16Scaling(t *testing.T) {
	if got := SampleFromInt16(-100); got != -100<<8 {
		t.Errorf("expected %d, got %d", -100<<8, got)
	}
	if got := SampleToInt16(1000000); got != 3906 {
		t.Errorf("expected 3906, got %d", got)
	}
}
