// ABOUTME: Ogg Opus audio decoder
// ABOUTME: Decodes Ogg Opus files to int32 samples via libopusfile
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// Opus always decodes at 48kHz
const opusSampleRate = 48000

// DecodeOpus decodes a complete Ogg Opus file
func DecodeOpus(data []byte) (*audio.Buffer, error) {
	channels, err := opusChannels(data)
	if err != nil {
		return nil, err
	}

	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create opus stream: %w", err)
	}
	defer stream.Close()

	// Max frame size per read
	pcm16 := make([]int16, 5760*channels)
	samples := make([]int32, 0, len(data)*4)
	for {
		n, err := stream.Read(pcm16)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}
		if n == 0 {
			break
		}
		for _, s := range pcm16[:n*channels] {
			samples = append(samples, audio.SampleFromInt16(s))
		}
	}

	return &audio.Buffer{
		Format: audio.Format{
			Codec:      "opus",
			SampleRate: opusSampleRate,
			Channels:   channels,
			BitDepth:   16,
		},
		Samples: samples,
	}, nil
}

// opusChannels reads the channel count from the OpusHead packet that
// starts the first Ogg page.
func opusChannels(data []byte) (int, error) {
	const pageHeader = 27
	if len(data) < pageHeader {
		return 0, fmt.Errorf("truncated ogg page")
	}
	head := pageHeader + int(data[26])
	if len(data) < head+10 || !bytes.Equal(data[head:head+8], []byte("OpusHead")) {
		return 0, fmt.Errorf("ogg stream is not opus: %w", ErrUnsupportedFormat)
	}
	channels := int(data[head+9])
	if channels < 1 || channels > 2 {
		return 0, fmt.Errorf("unsupported opus channel count: %d", channels)
	}
	return channels, nil
}
