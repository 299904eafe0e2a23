// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the software mixer host and the oto device that drives it
// Package output provides the host audio primitive and device backends.
//
// Mixer implements graph.Host in software: it owns the hardware clock
// (frames rendered), plays buffer sources with sample-accurate start,
// rate changes and native loops, and sums them through gain nodes. Any
// Output device pulls rendered frames from it; Oto is the default.
//
// Example:
//
//	mixer := output.NewMixer(48000, 2)
//	out := output.NewOto(20*time.Millisecond, logger)
//	err := out.Open(mixer, 48000, 2)
package output
