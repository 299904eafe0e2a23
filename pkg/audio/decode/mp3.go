// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 files to int32 samples via go-mp3
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/stemdeck/stemdeck-go/pkg/audio"
)

// DecodeMP3 decodes a complete MP3 file. go-mp3 always produces
// 16-bit little-endian stereo.
func DecodeMP3(data []byte) (*audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	numSamples := len(raw) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}

	// Drop a trailing partial frame
	samples = samples[:len(samples)-len(samples)%2]

	return &audio.Buffer{
		Format: audio.Format{
			Codec:      "mp3",
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
		Samples: samples,
	}, nil
}
