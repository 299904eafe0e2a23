// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for devices that pull rendered audio
package output

import "io"

// Output represents an audio output device. The device pulls
// interleaved float32 little-endian frames from src on its own thread.
type Output interface {
	// Open initializes the output device and starts pulling from src
	Open(src io.Reader, sampleRate, channels int) error

	// Close releases output resources
	Close() error
}
