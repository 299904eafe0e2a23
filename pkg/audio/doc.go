// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the decoded PCM types shared by the player.
//
// A Buffer is the unit the asset cache hands out and the mixer plays:
// interleaved int32 samples in the 24-bit range plus the Format they
// were decoded with. Buffers are immutable so any number of sources can
// read one instance concurrently.
//
// Example:
//
//	buf, err := decode.Decode(data)
//	fmt.Printf("%d Hz, %d ch, %.2fs\n",
//	    buf.Format.SampleRate, buf.Format.Channels, buf.Duration())
package audio
