// ABOUTME: WAV audio decoder
// ABOUTME: Decodes integer PCM WAV files such as separated stems
package decode

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
	"github.com/stemdeck/stemdeck-go/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// DecodeWAV decodes a complete integer PCM WAV file
func DecodeWAV(data []byte) (*audio.Buffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("unsupported wav encoding: %d (supported: integer PCM)", decoder.WavAudioFormat)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode error: %w", err)
	}

	bitDepth := int(decoder.BitDepth)
	channels := int(decoder.NumChans)
	if channels == 0 {
		return nil, fmt.Errorf("wav file has no channels")
	}

	samples := make([]int32, len(pcm.Data))
	for i, s := range pcm.Data {
		v := int32(s)
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		samples[i] = audio.SampleFromDepth(v, bitDepth)
	}

	return &audio.Buffer{
		Format: audio.Format{
			Codec:      "wav",
			SampleRate: int(decoder.SampleRate),
			Channels:   channels,
			BitDepth:   bitDepth,
		},
		Samples: samples,
	}, nil
}
