// ABOUTME: High-level stemdeck library API
// ABOUTME: Player for synchronized playback of a full mix and its stems
// Package stemdeck plays a full mix and its isolated stems on one
// timeline with variable speed, A/B loops and per-stem mute.
//
// Every stem is started at the same hardware instant with the same
// offset, so the tracks stay phase locked without drift correction.
// Song time is derived from the audio clock, never stored while playing.
//
// For lower-level control, see the transport, clock, graph and asset
// packages.
//
// Example:
//
//	player, err := stemdeck.NewPlayer(stemdeck.PlayerConfig{
//	    OnTimeUpdate: func(t float64) { fmt.Printf("\r%.2fs", t) },
//	})
//	err = player.Load(ctx, []stem.Descriptor{
//	    {Key: stem.Master, URL: "https://example.com/song/mix.mp3"},
//	    {Key: stem.Vocals, URL: "https://example.com/song/vocals.wav"},
//	}, 0)
//	err = player.SetLoop(12.5, 20)
//	err = player.SetRate(0.75)
//	err = player.Play()
package stemdeck
