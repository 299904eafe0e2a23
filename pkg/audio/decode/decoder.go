// ABOUTME: Whole-file decoder entry point
// ABOUTME: Sniffs the container and dispatches to the matching codec
package decode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
)

// ErrUnsupportedFormat is returned when no codec recognises the data
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrEmpty is returned when a file decodes to zero frames
var ErrEmpty = errors.New("decoded audio is empty")

// Func decodes a complete encoded file into PCM
type Func func(data []byte) (*audio.Buffer, error)

// Decode converts a complete encoded file into an immutable PCM buffer
func Decode(data []byte) (*audio.Buffer, error) {
	codec, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	var buf *audio.Buffer
	switch codec {
	case "flac":
		buf, err = DecodeFLAC(data)
	case "wav":
		buf, err = DecodeWAV(data)
	case "opus":
		buf, err = DecodeOpus(data)
	case "mp3":
		buf, err = DecodeMP3(data)
	}
	if err != nil {
		return nil, err
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%s: %w", codec, ErrEmpty)
	}
	return buf, nil
}

// Sniff identifies the codec from the leading bytes of a file
func Sniff(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac", nil
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav", nil
	case bytes.HasPrefix(data, []byte("OggS")):
		return "opus", nil
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3", nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return "mp3", nil
	}
	return "", ErrUnsupportedFormat
}
