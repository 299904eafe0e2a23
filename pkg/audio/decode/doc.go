// ABOUTME: Audio decoder package for whole-file decoding
// ABOUTME: Provides Decode plus MP3, FLAC, WAV and Ogg Opus codecs
// Package decode turns complete encoded files into audio.Buffer values.
//
// Supports: MP3, FLAC, WAV (integer PCM) and Ogg Opus. The codec is
// picked from the file's leading bytes.
//
// All decoders output int32 samples in 24-bit range so mixed-format
// stems can play side by side.
//
// Example:
//
//	buf, err := decode.Decode(data)
package decode
