// ABOUTME: Host audio primitive interfaces
// ABOUTME: Clock, gain nodes and one-shot buffer sources owned by the platform
package graph

import "github.com/stemdeck/stemdeck-go/pkg/audio"

// Host is the platform audio subsystem. It owns the hardware clock and
// renders connected nodes on its own thread; all methods are safe to call
// from the application goroutine.
type Host interface {
	// Now returns the monotonic hardware clock in seconds
	Now() float64

	// Destination is the node that feeds the output device
	Destination() Node

	// NewGain creates an unconnected gain node with gain 1
	NewGain() Gain

	// NewSource creates a one-shot source playing buf
	NewSource(buf *audio.Buffer) Source
}

// Node is anything that can feed another node
type Node interface {
	Connect(dst Node) error
	Disconnect()
}

// Gain scales everything connected to it
type Gain interface {
	Node
	SetGain(v float64)
}

// Source plays one buffer. A source can be started once; seeking
// requires a new source.
type Source interface {
	Node

	// Start begins playback at hardware time when, from offset seconds
	// into the buffer
	Start(when, offset float64) error

	// Stop halts playback. Stopping twice is a no-op.
	Stop()

	// SetRate changes the playback rate effective at hardware time when
	SetRate(rate, when float64)

	// SetLoop sets the native loop region in buffer seconds
	SetLoop(enabled bool, start, end float64)
}
